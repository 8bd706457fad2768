package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentstation/sheetsync"
	"github.com/agentstation/sheetsync/internal/cmd/output"
	"github.com/agentstation/sheetsync/internal/server"
	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/logging"
)

// NewSyncCommand creates the one-shot sync command.
func (a *App) NewSyncCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation cycle",
		Long: `Sync runs exactly one cycle: read the source, skip if unchanged, and
otherwise create or update every record in the catalog.

With --dry-run the normalized records and the action each would receive
are printed. Nothing is written to the catalog or the mirror, and the
fingerprint is not recorded.`,
		Example: `  sheetsync sync
  sheetsync sync --dry-run -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logging.WithLogger(cmd.Context(), a.logger)
			engine, err := a.Engine(ctx)
			if err != nil {
				return err
			}

			if dryRun {
				plan, err := engine.Plan(ctx)
				if err != nil {
					return err
				}
				return a.render(cmd, plan, output.PlanTable(plan))
			}

			w, err := sheetsync.NewWatcher(engine, sheetsync.WithInterval(a.config.SyncInterval))
			if err != nil {
				return err
			}
			res, err := w.RunOnce(ctx)
			if err != nil {
				return err
			}
			return a.render(cmd, res, output.CycleTables(res, a.format() == output.FormatWide))
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the planned actions without writing")
	return cmd
}

// NewWatchCommand creates the poll loop command.
func (a *App) NewWatchCommand() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the source and reconcile on every change",
		Long: `Watch runs cycles until interrupted, waiting --interval between them.
After a failed cycle the wait is doubled before the next attempt.

When STATUS_ADDR is set a status server is started with /healthz,
/status and an /events stream of state changes and outcomes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval > 0 {
				a.config.SyncInterval = interval
			}
			ctx := logging.WithLogger(cmd.Context(), a.logger)
			engine, err := a.Engine(ctx)
			if err != nil {
				return err
			}
			return a.watch(ctx, engine)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "delay between cycles (default SYNC_INTERVAL or 30s)")
	return cmd
}

func (a *App) watch(ctx context.Context, engine *sheetsync.Engine) error {
	opts := []sheetsync.WatchOption{sheetsync.WithInterval(a.config.SyncInterval)}

	if a.config.StatusAddr == "" {
		w, err := sheetsync.NewWatcher(engine, opts...)
		if err != nil {
			return err
		}
		return w.Run(ctx)
	}

	tracker := server.NewTracker(engine.Source())
	tracker.Attach(engine)
	cfg := server.DefaultConfig(a.config.StatusAddr)
	cfg.Token = a.config.StatusToken
	srv, err := server.New(cfg, tracker, a.logger)
	if err != nil {
		return err
	}

	opts = append(opts, sheetsync.WithOnState(tracker.SetState), sheetsync.WithOnError(tracker.RecordError))
	w, err := sheetsync.NewWatcher(engine, opts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return w.Run(gctx) })
	return g.Wait()
}

// NewCheckCommand creates the connection test command.
func (a *App) NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Test connectivity to the source, the catalog and the mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logging.WithLogger(cmd.Context(), a.logger)
			engine, err := a.Engine(ctx)
			if err != nil {
				return err
			}
			report, checkErr := engine.Check(ctx)
			if err := a.render(cmd, report, output.CheckTable(report)); err != nil {
				return err
			}
			if checkErr != nil {
				return errors.WrapResource("check", "connections", engine.Source(), checkErr)
			}
			return nil
		},
	}
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("sheetsync %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}

func (a *App) format() output.Format {
	return output.DetectFormat(a.config.Format)
}

// render writes data in the selected format, using table for table output.
func (a *App) render(cmd *cobra.Command, data any, table any) error {
	format := a.format()
	if _, err := output.ParseFormat(string(format)); err != nil {
		return errors.NewConfigError("format", err.Error(), err)
	}
	if format.IsTable() {
		data = table
	}
	if err := output.NewFormatter(format).Format(cmd.OutOrStdout(), data); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
