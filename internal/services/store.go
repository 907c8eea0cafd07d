package services

import (
	"context"
	"time"

	"vendfleet-backend/internal/models"
)

// MaterialRequestStore is the persistence contract of the workflow engine.
// Reads are scoped to an organization and never return soft-deleted rows.
type MaterialRequestStore interface {
	// RunInTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx MaterialRequestTx) error) error

	Get(ctx context.Context, orgID, id string) (*models.MaterialRequest, error)
	List(ctx context.Context, orgID string, filter models.MaterialRequestFilter) ([]*models.MaterialRequest, int, error)
	Stats(ctx context.Context, orgID string) (*models.MaterialRequestStats, error)
	PendingApprovals(ctx context.Context, orgID string) ([]*models.MaterialRequest, error)
	History(ctx context.Context, orgID, requestID string) ([]models.MaterialRequestHistory, error)
	Payments(ctx context.Context, orgID, requestID string) ([]models.MaterialRequestPayment, error)
}

// MaterialRequestTx is the write side available inside a transaction.
type MaterialRequestTx interface {
	// NextRequestSequence atomically increments and returns the global
	// counter for year.
	NextRequestSequence(ctx context.Context, year int) (int, error)
	Insert(ctx context.Context, r *models.MaterialRequest) error
	// FindForUpdate loads a request and holds it against concurrent writers
	// until the transaction ends.
	FindForUpdate(ctx context.Context, orgID, id string) (*models.MaterialRequest, error)
	// Save persists r if its stored version still equals r.Version and bumps
	// r.Version. Items are rewritten when replaceItems is set, otherwise only
	// their delivered quantities are updated.
	Save(ctx context.Context, r *models.MaterialRequest, replaceItems bool) error
	SoftDelete(ctx context.Context, r *models.MaterialRequest, at time.Time) error
	AppendHistory(ctx context.Context, h *models.MaterialRequestHistory) error
	AppendPayment(ctx context.Context, p *models.MaterialRequestPayment) error
	EnqueueEvent(ctx context.Context, e *models.MaterialRequestEvent) error
}

// StatsCache caches per-organization statistics. GetStats reports the cache
// generation it looked at, hit or miss, and SetStats stores under that
// generation. InvalidateStats moves the organization to a new generation, so
// stats computed before a commit are never served after it.
type StatsCache interface {
	GetStats(ctx context.Context, orgID string) (stats *models.MaterialRequestStats, gen int64, ok bool)
	SetStats(ctx context.Context, orgID string, gen int64, stats *models.MaterialRequestStats)
	InvalidateStats(ctx context.Context, orgID string)
}

// EventNotifier is poked after a commit that enqueued events.
type EventNotifier interface {
	Notify()
}
