package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"vendfleet-backend/internal/apperr"
	"vendfleet-backend/internal/events"
	"vendfleet-backend/internal/models"
	"vendfleet-backend/internal/services"
)

// Store keeps material requests in process memory. Transactions are
// serialized by txMu and their writes are staged until commit, so a failed
// transaction leaves nothing behind.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	requests map[string]*models.MaterialRequest
	order    []string
	history  []models.MaterialRequestHistory
	payments []models.MaterialRequestPayment
	outbox   []*models.OutboxEvent
	counters map[int]int
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		requests: make(map[string]*models.MaterialRequest),
		counters: make(map[int]int),
	}
}

// Verify interface compliance
var (
	_ services.MaterialRequestStore = (*Store)(nil)
	_ services.MaterialRequestTx    = (*tx)(nil)
	_ events.Outbox                 = (*Store)(nil)
)

type tx struct {
	store    *Store
	requests map[string]*models.MaterialRequest
	inserted []string
	history  []models.MaterialRequestHistory
	payments []models.MaterialRequestPayment
	events   []*models.MaterialRequestEvent
	counters map[int]int
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx services.MaterialRequestTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{
		store:    s,
		requests: make(map[string]*models.MaterialRequest),
		counters: make(map[int]int),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

func (s *Store) commit(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for year, v := range t.counters {
		s.counters[year] = v
	}
	s.order = append(s.order, t.inserted...)
	for id, r := range t.requests {
		s.requests[id] = r
	}
	s.history = append(s.history, t.history...)
	s.payments = append(s.payments, t.payments...)
	for _, e := range t.events {
		s.outbox = append(s.outbox, &models.OutboxEvent{
			ID:        e.ID,
			Event:     *e,
			CreatedAt: e.Timestamp,
		})
	}
}

// lookup returns the newest version of id visible to the transaction.
func (t *tx) lookup(id string) *models.MaterialRequest {
	if r, ok := t.requests[id]; ok {
		return r
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.requests[id]
}

func (t *tx) NextRequestSequence(_ context.Context, year int) (int, error) {
	v, ok := t.counters[year]
	if !ok {
		t.store.mu.RLock()
		v = t.store.counters[year]
		t.store.mu.RUnlock()
	}
	v++
	t.counters[year] = v
	return v, nil
}

func (t *tx) Insert(_ context.Context, r *models.MaterialRequest) error {
	if t.lookup(r.ID) != nil {
		return apperr.Conflict("material request %s already exists", r.ID)
	}
	t.store.mu.RLock()
	for _, existing := range t.store.requests {
		if existing.RequestNumber == r.RequestNumber {
			t.store.mu.RUnlock()
			return apperr.Conflict("request number %s already assigned", r.RequestNumber)
		}
	}
	t.store.mu.RUnlock()

	t.requests[r.ID] = r.Clone()
	t.inserted = append(t.inserted, r.ID)
	return nil
}

func (t *tx) FindForUpdate(_ context.Context, orgID, id string) (*models.MaterialRequest, error) {
	r := t.lookup(id)
	if r == nil || r.OrganizationID != orgID || r.DeletedAt != nil {
		return nil, apperr.NotFound("material request %s not found", id)
	}
	return r.Clone(), nil
}

func (t *tx) Save(_ context.Context, r *models.MaterialRequest, _ bool) error {
	current := t.lookup(r.ID)
	if current == nil || current.DeletedAt != nil {
		return apperr.NotFound("material request %s not found", r.ID)
	}
	if current.Version != r.Version {
		return apperr.Conflict("material request %s was modified concurrently", r.RequestNumber)
	}
	r.Version++
	t.requests[r.ID] = r.Clone()
	return nil
}

func (t *tx) SoftDelete(ctx context.Context, r *models.MaterialRequest, at time.Time) error {
	r.DeletedAt = &at
	r.UpdatedAt = at
	return t.Save(ctx, r, false)
}

func (t *tx) AppendHistory(_ context.Context, h *models.MaterialRequestHistory) error {
	t.history = append(t.history, *h)
	return nil
}

func (t *tx) AppendPayment(_ context.Context, p *models.MaterialRequestPayment) error {
	t.payments = append(t.payments, *p)
	return nil
}

func (t *tx) EnqueueEvent(_ context.Context, e *models.MaterialRequestEvent) error {
	ev := *e
	t.events = append(t.events, &ev)
	return nil
}

// visible returns committed, non-deleted requests of orgID in insertion order.
func (s *Store) visible(orgID string) []*models.MaterialRequest {
	out := make([]*models.MaterialRequest, 0)
	for _, id := range s.order {
		r := s.requests[id]
		if r.OrganizationID == orgID && r.DeletedAt == nil {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) Get(_ context.Context, orgID, id string) (*models.MaterialRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok || r.OrganizationID != orgID || r.DeletedAt != nil {
		return nil, apperr.NotFound("material request %s not found", id)
	}
	return r.Clone(), nil
}

func (s *Store) List(_ context.Context, orgID string, f models.MaterialRequestFilter) ([]*models.MaterialRequest, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(f.Search)
	var matched []*models.MaterialRequest
	for _, r := range s.visible(orgID) {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Priority != "" && r.Priority != f.Priority {
			continue
		}
		if f.RequesterID != "" && r.RequesterID != f.RequesterID {
			continue
		}
		if f.SupplierID != "" && (r.SupplierID == nil || *r.SupplierID != f.SupplierID) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(r.RequestNumber), search) &&
			!strings.Contains(strings.ToLower(r.Notes), search) {
			continue
		}
		matched = append(matched, r)
	}

	desc := f.SortOrder != "asc"
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		c := compare(a, b, f.SortBy)
		if c == 0 {
			c = strings.Compare(a.RequestNumber, b.RequestNumber)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})

	total := len(matched)
	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = total
	}
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]*models.MaterialRequest, 0, end-start)
	for _, r := range matched[start:end] {
		out = append(out, r.Clone())
	}
	return out, total, nil
}

func compare(a, b *models.MaterialRequest, field string) int {
	switch field {
	case "totalAmount":
		return a.TotalAmount.Cmp(b.TotalAmount)
	case "requestNumber":
		return strings.Compare(a.RequestNumber, b.RequestNumber)
	case "priority":
		return a.Priority.Rank() - b.Priority.Rank()
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (s *Store) Stats(_ context.Context, orgID string) (*models.MaterialRequestStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.NewMaterialRequestStats()
	for _, r := range s.visible(orgID) {
		stats.AddStatus(r.Status, 1)
		stats.TotalAmount = stats.TotalAmount.Add(r.TotalAmount)
		stats.PaidAmount = stats.PaidAmount.Add(r.PaidAmount)
		stats.OverpaidAmount = stats.OverpaidAmount.Add(r.OverpaidAmount)
	}
	stats.UnpaidAmount = stats.TotalAmount.Sub(stats.PaidAmount)
	return stats, nil
}

func (s *Store) PendingApprovals(_ context.Context, orgID string) ([]*models.MaterialRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.MaterialRequest
	for _, r := range s.visible(orgID) {
		if r.Status == models.StatusNew {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SubmittedAt != nil && b.SubmittedAt != nil && !a.SubmittedAt.Equal(*b.SubmittedAt) {
			return a.SubmittedAt.Before(*b.SubmittedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out, nil
}

// History is newest first; rows with equal timestamps keep reverse insertion order.
func (s *Store) History(_ context.Context, orgID, requestID string) ([]models.MaterialRequestHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.MaterialRequestHistory
	for i := len(s.history) - 1; i >= 0; i-- {
		h := s.history[i]
		if h.RequestID == requestID && h.OrganizationID == orgID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (s *Store) Payments(_ context.Context, orgID, requestID string) ([]models.MaterialRequestPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.MaterialRequestPayment
	for _, p := range s.payments {
		if p.RequestID == requestID && p.OrganizationID == orgID {
			out = append(out, p)
		}
	}
	return out, nil
}

// PendingEvents returns unpublished, unparked outbox events, oldest first.
func (s *Store) PendingEvents(_ context.Context, limit int) ([]models.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.OutboxEvent
	for _, e := range s.outbox {
		if e.PublishedAt != nil || e.ParkedAt != nil {
			continue
		}
		out = append(out, *e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.outbox {
		if e.ID == id {
			e.PublishedAt = &at
			e.Attempts++
			return nil
		}
	}
	return apperr.NotFound("outbox event %s not found", id)
}

func (s *Store) MarkFailed(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.outbox {
		if e.ID == id {
			e.Attempts++
			e.LastError = reason
			return nil
		}
	}
	return apperr.NotFound("outbox event %s not found", id)
}

func (s *Store) MarkParked(_ context.Context, id, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.outbox {
		if e.ID == id {
			e.Attempts++
			e.LastError = reason
			e.ParkedAt = &at
			return nil
		}
	}
	return apperr.NotFound("outbox event %s not found", id)
}

// HistoryCount is the total number of history rows across all organizations.
func (s *Store) HistoryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}
