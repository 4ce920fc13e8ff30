package gwselect

import (
	"log/slog"
	"time"
)

// DebugTrace wraps a Matcher with tracing, active only when the
// surrounding compile ran with debug enabled. It adds one call frame of
// overhead per wrapped node; a disabled compile never allocates it.
type DebugTrace struct {
	Inner          Matcher
	Path           string
	Logger         *slog.Logger
	CaptureCtxKeys bool
}

func (d DebugTrace) Evaluate(ctx Context) bool {
	start := time.Now()
	result := d.Inner.Evaluate(ctx)
	elapsed := time.Since(start)

	if d.Logger == nil {
		return result
	}

	attrs := []any{
		slog.String("path", d.Path),
		slog.String("kind", d.Inner.Kind()),
		slog.Bool("result", result),
		slog.Float64("elapsed_ms", float64(elapsed.Microseconds())/1000.0),
	}
	if d.CaptureCtxKeys {
		keys := make([]string, 0, len(ctx))
		for k := range ctx {
			keys = append(keys, k)
		}
		attrs = append(attrs, slog.Any("ctx_keys", keys))
	}
	d.Logger.Debug("gwselect matcher evaluated", attrs...)

	return result
}

func (d DebugTrace) Kind() string { return "DBG(" + d.Inner.Kind() + ")" }
