package logging

import (
	"context"
	"log/slog"
	"time"
)

// SlowOperationThreshold is the duration above which a finished operation logs at warn.
var SlowOperationThreshold = 500 * time.Millisecond

// Operation times a named unit of work, typically a multi-query read.
type Operation struct {
	name   string
	logger *slog.Logger
	start  time.Time
}

// StartOperation returns a context whose logger is tagged with the operation name.
func StartOperation(ctx context.Context, name string) (context.Context, *Operation) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := FromContext(ctx).With(slog.String("operation", name))
	return WithLogger(ctx, logger), &Operation{name: name, logger: logger, start: time.Now()}
}

// End logs the elapsed time.
func (o *Operation) End() {
	if o == nil {
		return
	}
	elapsed := time.Since(o.start)
	if elapsed > SlowOperationThreshold {
		o.logger.Warn("slow operation", slog.Duration("duration", elapsed))
		return
	}
	o.logger.Debug("operation completed", slog.Duration("duration", elapsed))
}
