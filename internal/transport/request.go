package transport

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/sheetsync/pkg/constants"
)

// readBody reads at most limit bytes when limit >= 0, draining the rest.
func readBody(r io.Reader, limit int64) ([]byte, error) {
	if limit < 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, err
	}
	_, _ = io.Copy(io.Discard, r)
	return data, nil
}

// retryDelay honors Retry-After and otherwise backs off exponentially.
func retryDelay(attempt int, retryAfter string) time.Duration {
	if d := parseRetryAfter(retryAfter); d > 0 {
		if d > constants.MaxRetryBackoff {
			return constants.MaxRetryBackoff
		}
		return d
	}
	d := constants.RetryBackoff << (attempt - 1)
	if d <= 0 || d > constants.MaxRetryBackoff {
		return constants.MaxRetryBackoff
	}
	return d
}

// parseRetryAfter accepts delta-seconds (including Shopify's fractional
// "2.0") or an HTTP date.
func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.ParseFloat(header, 64); err == nil && seconds >= 0 {
		return time.Duration(seconds * float64(time.Second))
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NextLink extracts the rel="next" URL from an RFC 8288 Link header.
func NextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			param = strings.TrimSpace(param)
			if strings.EqualFold(param, `rel="next"`) || strings.EqualFold(param, "rel=next") {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}
