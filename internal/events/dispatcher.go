package events

import (
	"context"
	"time"

	"vendfleet-backend/internal/logger"
	"vendfleet-backend/internal/metrics"
	"vendfleet-backend/internal/timeutil"
)

// DefaultMaxAttempts is how many failed publishes an event gets before it is
// parked.
const DefaultMaxAttempts = 10

// Dispatcher drains the outbox into a Publisher. Delivery is at-least-once:
// an event is marked published only after Publish returns nil.
type Dispatcher struct {
	outbox      Outbox
	publisher   Publisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
	wake        chan struct{}
	log         *logger.Logger
}

func NewDispatcher(outbox Outbox, publisher Publisher, interval time.Duration, batchSize int, log *logger.Logger) *Dispatcher {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{
		outbox:      outbox,
		publisher:   publisher,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: DefaultMaxAttempts,
		wake:        make(chan struct{}, 1),
		log:         log.With("component", "outbox_dispatcher"),
	}
}

// SetMaxAttempts overrides DefaultMaxAttempts. Values below 1 are ignored.
func (d *Dispatcher) SetMaxAttempts(n int) {
	if n > 0 {
		d.maxAttempts = n
	}
}

// Notify asks the dispatcher to drain now instead of waiting for the next tick.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.log.Info("outbox dispatcher started", "interval", d.interval.String(), "batch_size", d.batchSize, "max_attempts", d.maxAttempts)
	for {
		select {
		case <-ctx.Done():
			d.log.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
		case <-d.wake:
		}
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.log.Error("outbox dispatch failed", "error", err)
		}
	}
}

// DispatchOnce publishes one batch and returns how many events went out.
// After a failed publish the remaining events of the same request wait for
// the retry, so per-request order holds; other requests keep flowing.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	pending, err := d.outbox.PendingEvents(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	blocked := make(map[string]bool)
	for _, ev := range pending {
		if blocked[ev.Event.RequestID] {
			continue
		}
		if err := d.publisher.Publish(ctx, ev.Event); err != nil {
			metrics.OutboxPublishFailures.Inc()
			if markErr := d.fail(ctx, ev.ID, ev.Attempts+1, ev.Event.Name, err); markErr != nil {
				return sent, markErr
			}
			blocked[ev.Event.RequestID] = true
			continue
		}
		if err := d.outbox.MarkPublished(ctx, ev.ID, timeutil.Now()); err != nil {
			return sent, err
		}
		metrics.OutboxEventsPublished.Inc()
		sent++
	}
	return sent, nil
}

// fail records a failed attempt and parks the event once it has used up
// maxAttempts.
func (d *Dispatcher) fail(ctx context.Context, id string, attempts int, name string, cause error) error {
	if attempts < d.maxAttempts {
		d.log.Warn("event publish failed", "event_id", id, "event", name, "attempt", attempts, "error", cause)
		return d.outbox.MarkFailed(ctx, id, cause.Error())
	}

	d.log.Error("event parked after repeated publish failures", "event_id", id, "event", name, "attempts", attempts, "error", cause)
	metrics.OutboxEventsParked.Inc()
	if f, ok := d.publisher.(interface{ Forget(string) }); ok {
		f.Forget(id)
	}
	return d.outbox.MarkParked(ctx, id, cause.Error(), timeutil.Now())
}
