package audit

import (
	"context"
	"log/slog"
	"time"
)

// Worker periodically probes the sink by flushing the offline queue. This
// is what detects connectivity restoration when no foreground traffic is
// emitting events.
type Worker struct {
	emitter  *Emitter
	logger   *slog.Logger
	interval time.Duration
}

// NewWorker creates a flush worker.
func NewWorker(emitter *Emitter, logger *slog.Logger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Worker{emitter: emitter, logger: logger, interval: interval}
}

// Run flushes on a ticker until the context is cancelled. A final flush
// drains what it can on shutdown.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if depth := w.emitter.QueueDepth(); depth > 0 {
				w.logger.Info("flushing audit queue on shutdown", "depth", depth)
				w.emitter.Flush(context.Background())
			}
			return ctx.Err()
		case <-ticker.C:
			w.emitter.Flush(ctx)
		}
	}
}
