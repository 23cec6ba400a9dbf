package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paycrypt-tech/webhook-dispatch/internal/logging"
	"github.com/paycrypt-tech/webhook-dispatch/internal/metrics"
)

// Summary tallies one dispatch cycle, suitable for logging and for the CLI's
// exit-code decision.
type Summary struct {
	Processed int
	Delivered int
	Failed    int
	Skipped   int
}

// BatchRunner drains due events in bounded batches. It is built to be invoked
// periodically by an external scheduler, but Start lets it run as its own
// ticker loop too.
type BatchRunner struct {
	events     eventStore
	dispatcher *Dispatcher
	limit      int
	interval   time.Duration
}

func NewBatchRunner(events eventStore, dispatcher *Dispatcher, limit int, interval time.Duration) *BatchRunner {
	return &BatchRunner{
		events:     events,
		dispatcher: dispatcher,
		limit:      limit,
		interval:   interval,
	}
}

// RunOnce fetches one batch of due events and dispatches each in sequence.
// Per-event failures are absorbed into the summary; only failure to fetch the
// batch itself propagates, and the caller should treat that as "run failed,
// retry next tick".
func (r *BatchRunner) RunOnce(ctx context.Context) (Summary, error) {
	log := logging.FromContext(ctx)

	events, err := r.events.Due(ctx, r.limit)
	if err != nil {
		return Summary{}, fmt.Errorf("RunOnce: fetch due events: %w", err)
	}

	var summary Summary
	for i := range events {
		event := &events[i]
		summary.Processed++

		start := time.Now()
		outcome := r.dispatcher.Dispatch(ctx, event)
		metrics.ObserveDispatch(string(event.EventType), outcome.String(), time.Since(start))

		switch outcome {
		case OutcomeDelivered:
			summary.Delivered++
		case OutcomeFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}

	if summary.Processed > 0 {
		log.Info("webhook dispatch cycle complete",
			"processed", summary.Processed,
			"delivered", summary.Delivered,
			"failed", summary.Failed,
			"skipped", summary.Skipped,
		)
	}
	return summary, nil
}

// Start polls on the configured interval until the context is cancelled.
func (r *BatchRunner) Start(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("webhook batch runner started", "interval", r.interval, "limit", r.limit)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("webhook batch runner stopped")
			return
		case <-ticker.C:
			runCtx := logging.WithLogger(ctx, log.With("run_id", uuid.NewString()))
			if _, err := r.RunOnce(runCtx); err != nil {
				logging.FromContext(runCtx).Error("webhook dispatch cycle failed", "error", err)
			}
		}
	}
}
