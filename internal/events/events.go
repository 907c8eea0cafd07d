// Package events moves domain events from the transactional outbox to
// subscribers after the owning transaction has committed.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"

	"vendfleet-backend/internal/models"
)

// Outbox is the store side of the outbox table.
type Outbox interface {
	// PendingEvents returns events that are neither published nor parked.
	PendingEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	// MarkParked takes an event out of rotation after repeated failures.
	MarkParked(ctx context.Context, id, reason string, at time.Time) error
}

// Publisher delivers one event to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e models.MaterialRequestEvent) error
}

// MultiPublisher fans an event out to several publishers. Sinks that already
// accepted an event are skipped when the same event is retried.
type MultiPublisher struct {
	sinks []Publisher

	mu        sync.Mutex
	delivered map[string][]bool
}

func NewMultiPublisher(sinks ...Publisher) *MultiPublisher {
	return &MultiPublisher{sinks: sinks, delivered: make(map[string][]bool)}
}

// Add appends a sink. It must be called before the first Publish.
func (m *MultiPublisher) Add(p Publisher) {
	m.sinks = append(m.sinks, p)
}

// Publish tries every sink that has not yet accepted e and returns the
// combined error of those that failed.
func (m *MultiPublisher) Publish(ctx context.Context, e models.MaterialRequestEvent) error {
	m.mu.Lock()
	done, ok := m.delivered[e.ID]
	if !ok {
		done = make([]bool, len(m.sinks))
	}
	m.mu.Unlock()

	var errs error
	for i, p := range m.sinks {
		if p == nil || done[i] {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		done[i] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if errs == nil {
		delete(m.delivered, e.ID)
		return nil
	}
	m.delivered[e.ID] = done
	return errs
}

// Forget drops retry state for an event that will not be published again.
func (m *MultiPublisher) Forget(eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.delivered, eventID)
}
