package logging_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/agentstation/sheetsync/pkg/logging"
)

func TestDefaultLogger(t *testing.T) {
	original := *logging.Default()
	t.Cleanup(func() { logging.SetDefault(original) })

	buf := &bytes.Buffer{}
	logger := zerolog.New(buf).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	logging.SetDefault(logger)

	logging.Info().Msg("info message")
	logging.Warn().Msg("warning message")

	output := buf.String()
	if !strings.Contains(output, "info message") {
		t.Errorf("Expected info message in output, got: %s", output)
	}
	if !strings.Contains(output, `"level":"warn"`) {
		t.Errorf("Expected warn level in output, got: %s", output)
	}
}

func TestContextLogger(t *testing.T) {
	testLogger := logging.NewTestLogger(t)

	ctx := logging.WithLogger(context.Background(), testLogger.Logger)
	ctx = logging.WithCycle(ctx, "cycle-1")
	ctx = logging.WithPartNo(ctx, "ABC-123")

	logging.FromContext(ctx).Info().Msg("record created")

	testLogger.AssertContains(t, `"cycle_id":"cycle-1"`)
	testLogger.AssertContains(t, `"part_no":"ABC-123"`)
	testLogger.AssertContains(t, "record created")

	if got := logging.CycleID(ctx); got != "cycle-1" {
		t.Errorf("CycleID() = %q, want cycle-1", got)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	if logging.FromContext(nil) != logging.Default() {
		t.Error("nil context should return the default logger")
	}
	if logging.FromContext(context.Background()) != logging.Default() {
		t.Error("empty context should return the default logger")
	}
}

func TestConfiguration(t *testing.T) {
	configs := []struct {
		name   string
		config *logging.Config
		check  func(t *testing.T, output string)
	}{
		{
			name:   "debug level",
			config: &logging.Config{Level: "debug", Format: "json"},
			check: func(t *testing.T, output string) {
				if !strings.Contains(output, `"level":"debug"`) {
					t.Errorf("Expected debug level in output")
				}
			},
		},
		{
			name:   "error level only",
			config: &logging.Config{Level: "error", Format: "json"},
			check: func(t *testing.T, output string) {
				if strings.Contains(output, `"level":"info"`) {
					t.Errorf("Should not contain info level when set to error")
				}
			},
		},
		{
			name:   "critical maps to fatal",
			config: &logging.Config{Level: "CRITICAL", Format: "json"},
			check: func(t *testing.T, output string) {
				if strings.Contains(output, `"level":"error"`) {
					t.Errorf("Should not contain error level when set to critical")
				}
			},
		},
		{
			name: "default fields",
			config: &logging.Config{
				Level:  "info",
				Format: "json",
				Fields: map[string]any{"environment": "production"},
			},
			check: func(t *testing.T, output string) {
				if !strings.Contains(output, `"environment":"production"`) {
					t.Errorf("Expected environment field in output, got: %s", output)
				}
			},
		},
	}

	for _, tc := range configs {
		t.Run(tc.name, func(t *testing.T) {
			original := zerolog.GlobalLevel()
			t.Cleanup(func() { zerolog.SetGlobalLevel(original) })

			buf := &bytes.Buffer{}
			logger := logging.NewLoggerFromConfig(tc.config).Output(buf)

			logger.Debug().Msg("debug")
			logger.Info().Msg("info")
			logger.Error().Msg("error")

			tc.check(t, buf.String())
		})
	}
}

func TestCaptureLoggingForTest(t *testing.T) {
	tl := logging.CaptureLoggingForTest(t)

	logging.Info().Msg("message 1")
	logging.Error().Msg("message 2")

	tl.AssertContains(t, "message 1")
	tl.AssertContains(t, "message 2")
	tl.AssertNotContains(t, "message 3")
	if n := len(tl.Lines()); n != 2 {
		t.Errorf("Expected 2 log entries, got %d", n)
	}
}
