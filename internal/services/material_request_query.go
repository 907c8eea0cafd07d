package services

import (
	"context"
	"strings"

	"vendfleet-backend/internal/apperr"
	"vendfleet-backend/internal/logger"
	"vendfleet-backend/internal/metrics"
	"vendfleet-backend/internal/models"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

var sortableFields = map[string]bool{
	"createdAt":     true,
	"totalAmount":   true,
	"requestNumber": true,
	"priority":      true,
}

// MaterialRequestQueryService serves read-only views over material requests.
type MaterialRequestQueryService struct {
	Store MaterialRequestStore

	stats StatsCache
	log   *logger.Logger
}

func NewMaterialRequestQueryService(store MaterialRequestStore, log *logger.Logger) *MaterialRequestQueryService {
	return &MaterialRequestQueryService{
		Store: store,
		log:   log.With("component", "material_request_query"),
	}
}

// SetStatsCache sets the cache consulted by GetStats
func (s *MaterialRequestQueryService) SetStatsCache(c StatsCache) {
	s.stats = c
}

// NormalizeFilter applies paging defaults and rejects unknown filter values.
func NormalizeFilter(f models.MaterialRequestFilter) (models.MaterialRequestFilter, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return f, apperr.Validation("unknown status %q", f.Status)
	}
	if f.Priority != "" && !f.Priority.IsValid() {
		return f, apperr.Validation("unknown priority %q", f.Priority)
	}
	if f.SortBy == "" {
		f.SortBy = "createdAt"
	}
	if !sortableFields[f.SortBy] {
		return f, apperr.Validation("cannot sort by %q", f.SortBy)
	}
	f.SortOrder = strings.ToLower(f.SortOrder)
	switch f.SortOrder {
	case "":
		f.SortOrder = "desc"
	case "asc", "desc":
	default:
		return f, apperr.Validation("sort order must be asc or desc")
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	f.Search = strings.TrimSpace(f.Search)
	return f, nil
}

// GetRequests returns one page of an organization's requests, newest first
// unless the filter says otherwise.
func (s *MaterialRequestQueryService) GetRequests(ctx context.Context, orgID string, filter models.MaterialRequestFilter) (*models.MaterialRequestPage, error) {
	f, err := NormalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	data, total, err := s.Store.List(ctx, orgID, f)
	if err != nil {
		return nil, s.internal("list", err)
	}
	if data == nil {
		data = []*models.MaterialRequest{}
	}

	totalPages := (total + f.Limit - 1) / f.Limit
	return &models.MaterialRequestPage{
		Data:       data,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: totalPages,
	}, nil
}

func (s *MaterialRequestQueryService) GetRequest(ctx context.Context, orgID, id string) (*models.MaterialRequest, error) {
	r, err := s.Store.Get(ctx, orgID, id)
	if err != nil {
		return nil, s.internal("get", err)
	}
	return r, nil
}

// GetStats returns status counts and money totals, served from cache when
// one is configured.
func (s *MaterialRequestQueryService) GetStats(ctx context.Context, orgID string) (*models.MaterialRequestStats, error) {
	var gen int64
	if s.stats != nil {
		cached, g, ok := s.stats.GetStats(ctx, orgID)
		if ok {
			metrics.StatsCacheHits.Inc()
			return cached, nil
		}
		gen = g
	}

	stats, err := s.Store.Stats(ctx, orgID)
	if err != nil {
		return nil, s.internal("stats", err)
	}
	stats.UnpaidAmount = stats.TotalAmount.Sub(stats.PaidAmount)

	if s.stats != nil {
		s.stats.SetStats(ctx, orgID, gen, stats)
	}
	return stats, nil
}

// GetPendingApprovals is the approver queue: every NEW request, oldest
// submission first.
func (s *MaterialRequestQueryService) GetPendingApprovals(ctx context.Context, orgID string) ([]*models.MaterialRequest, error) {
	list, err := s.Store.PendingApprovals(ctx, orgID)
	if err != nil {
		return nil, s.internal("pending approvals", err)
	}
	if list == nil {
		list = []*models.MaterialRequest{}
	}
	return list, nil
}

// GetRequestHistory returns the audit trail of one request, newest first.
func (s *MaterialRequestQueryService) GetRequestHistory(ctx context.Context, orgID, id string) ([]models.MaterialRequestHistory, error) {
	if _, err := s.Store.Get(ctx, orgID, id); err != nil {
		return nil, s.internal("history", err)
	}
	history, err := s.Store.History(ctx, orgID, id)
	if err != nil {
		return nil, s.internal("history", err)
	}
	if history == nil {
		history = []models.MaterialRequestHistory{}
	}
	return history, nil
}

// GetPayments returns the payment ledger of one request, oldest first.
func (s *MaterialRequestQueryService) GetPayments(ctx context.Context, orgID, id string) ([]models.MaterialRequestPayment, error) {
	if _, err := s.Store.Get(ctx, orgID, id); err != nil {
		return nil, s.internal("payments", err)
	}
	payments, err := s.Store.Payments(ctx, orgID, id)
	if err != nil {
		return nil, s.internal("payments", err)
	}
	if payments == nil {
		payments = []models.MaterialRequestPayment{}
	}
	return payments, nil
}

func (s *MaterialRequestQueryService) internal(op string, err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	s.log.Error("material request query failed", "op", op, "error", err)
	return apperr.Wrap(apperr.KindInternal, err, op+" failed")
}
