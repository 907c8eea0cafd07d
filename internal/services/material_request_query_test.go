package services_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"vendfleet-backend/internal/apperr"
	"vendfleet-backend/internal/logger"
	"vendfleet-backend/internal/models"
	"vendfleet-backend/internal/services"
)

// mapCache mirrors the generation scheme of the Redis stats cache.
type mapCache struct {
	mu      sync.Mutex
	gens    map[string]int64
	entries map[string]models.MaterialRequestStats
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{gens: map[string]int64{}, entries: map[string]models.MaterialRequestStats{}}
}

func cacheKey(orgID string, gen int64) string {
	return fmt.Sprintf("%s:v%d", orgID, gen)
}

func (c *mapCache) GetStats(_ context.Context, orgID string) (*models.MaterialRequestStats, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.gens[orgID]
	s, ok := c.entries[cacheKey(orgID, gen)]
	if !ok {
		return nil, gen, false
	}
	return &s, gen, true
}

func (c *mapCache) SetStats(_ context.Context, orgID string, gen int64, stats *models.MaterialRequestStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(orgID, gen)] = *stats
	c.sets++
}

func (c *mapCache) InvalidateStats(_ context.Context, orgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[orgID]++
}

func TestGetRequestsPaginationAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		f.create(t, items(1, int64(100+i)))
	}
	_, err := f.svc.CreateMaterialRequest(ctx, requester, &models.CreateMaterialRequestRequest{Notes: "Urgent CUPS for lobby"})
	if err != nil {
		t.Fatalf("CreateMaterialRequest failed: %v", err)
	}

	page, err := f.query.GetRequests(ctx, "org-1", models.MaterialRequestFilter{})
	if err != nil {
		t.Fatalf("GetRequests failed: %v", err)
	}
	if page.Total != 26 || page.Page != 1 || page.Limit != services.DefaultPageLimit || page.TotalPages != 2 {
		t.Errorf("Unexpected page meta: total=%d page=%d limit=%d pages=%d", page.Total, page.Page, page.Limit, page.TotalPages)
	}
	if len(page.Data) != 20 {
		t.Errorf("Expected 20 rows, got %d", len(page.Data))
	}
	if page.Data[0].RequestNumber != "MR-2026-00026" {
		t.Errorf("Expected newest first, got %s", page.Data[0].RequestNumber)
	}

	page, _ = f.query.GetRequests(ctx, "org-1", models.MaterialRequestFilter{Search: "cups"})
	if page.Total != 1 {
		t.Errorf("Expected case-insensitive notes match, got %d", page.Total)
	}
	page, _ = f.query.GetRequests(ctx, "org-1", models.MaterialRequestFilter{Search: "mr-2026-0001"})
	if page.Total != 10 {
		t.Errorf("Expected 10 request-number matches, got %d", page.Total)
	}

	page, _ = f.query.GetRequests(ctx, "org-1", models.MaterialRequestFilter{Limit: 500, SortBy: "totalAmount", SortOrder: "asc"})
	if page.Limit != services.MaxPageLimit {
		t.Errorf("Expected limit capped at %d, got %d", services.MaxPageLimit, page.Limit)
	}
	if !page.Data[0].TotalAmount.IsZero() {
		t.Errorf("Expected cheapest first, got %s", page.Data[0].TotalAmount)
	}
}

func TestGetRequestsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.advance(t, models.StatusNew)
	f.advance(t, models.StatusApproved)
	f.create(t, nil)

	page, err := f.query.GetRequests(ctx, "org-1", models.MaterialRequestFilter{Status: models.StatusNew})
	if err != nil {
		t.Fatalf("GetRequests failed: %v", err)
	}
	if page.Total != 1 || page.Data[0].Status != models.StatusNew {
		t.Errorf("Expected only the NEW request, got %d", page.Total)
	}

	_, err = f.query.GetRequests(ctx, "org-1", models.MaterialRequestFilter{Status: "LOST"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected ValidationFailed for unknown status, got %v", err)
	}
	_, err = f.query.GetRequests(ctx, "org-1", models.MaterialRequestFilter{SortBy: "notes"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected ValidationFailed for unknown sort field, got %v", err)
	}

	page, _ = f.query.GetRequests(ctx, "org-2", models.MaterialRequestFilter{})
	if page.Total != 0 || page.Data == nil {
		t.Errorf("Expected an empty non-nil page for another tenant")
	}
}

func TestGetStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, items(1, 1000))
	f.advance(t, models.StatusNew)
	f.advance(t, models.StatusPartiallyPaid)
	f.advance(t, models.StatusRejected)

	stats, err := f.query.GetStats(ctx, "org-1")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Total != 4 || stats.Draft != 1 || stats.PendingApproval != 1 || stats.PartiallyPaid != 1 || stats.Rejected != 1 {
		t.Errorf("Unexpected buckets: %+v", stats)
	}
	wantTotal := decimal.NewFromInt(1000 + 3*500000)
	if !stats.TotalAmount.Equal(wantTotal) {
		t.Errorf("Expected total %s, got %s", wantTotal, stats.TotalAmount)
	}
	if !stats.PaidAmount.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("Expected paid 100000, got %s", stats.PaidAmount)
	}
	if !stats.UnpaidAmount.Equal(wantTotal.Sub(decimal.NewFromInt(100000))) {
		t.Errorf("Unexpected unpaid amount %s", stats.UnpaidAmount)
	}
}

func TestGetStatsCacheInvalidatedByCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, items(1, 1000))

	first, _ := f.query.GetStats(ctx, "org-1")
	second, _ := f.query.GetStats(ctx, "org-1")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical stats without intervening writes")
	}
	if f.cache.sets != 1 {
		t.Errorf("Expected second read to hit the cache, got %d sets", f.cache.sets)
	}

	if _, err := f.svc.Submit(ctx, requester, r.ID, ""); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	third, _ := f.query.GetStats(ctx, "org-1")
	if third.PendingApproval != 1 || third.Draft != 0 {
		t.Errorf("Expected fresh stats after submit, got %+v", third)
	}
}

// commitDuringStats runs a write after the stats query has read the
// database but before the result reaches the cache.
type commitDuringStats struct {
	services.MaterialRequestStore
	write func()
}

func (s commitDuringStats) Stats(ctx context.Context, orgID string) (*models.MaterialRequestStats, error) {
	stats, err := s.MaterialRequestStore.Stats(ctx, orgID)
	if s.write != nil {
		s.write()
	}
	return stats, err
}

func TestGetStatsDoesNotCacheOverACommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, items(1, 1000))

	slow := services.NewMaterialRequestQueryService(commitDuringStats{
		MaterialRequestStore: f.store,
		write: func() {
			if _, err := f.svc.Submit(ctx, requester, r.ID, ""); err != nil {
				t.Errorf("Submit failed: %v", err)
			}
		},
	}, logger.Nop())
	slow.SetStatsCache(f.cache)

	stale, err := slow.GetStats(ctx, "org-1")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stale.Draft != 1 {
		t.Fatalf("Expected the in-flight read to see the draft, got %+v", stale)
	}

	fresh, err := f.query.GetStats(ctx, "org-1")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if fresh.Draft != 0 || fresh.PendingApproval != 1 {
		t.Errorf("Expected stats from after the submit, got %+v", fresh)
	}
}

func TestGetPendingApprovalsFIFO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, items(1, 100))
	b := f.create(t, items(1, 100))
	f.create(t, items(1, 100))

	// b is submitted before a
	if _, err := f.svc.Submit(ctx, requester, b.ID, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Submit(ctx, requester, a.ID, ""); err != nil {
		t.Fatal(err)
	}

	queue, err := f.query.GetPendingApprovals(ctx, "org-1")
	if err != nil {
		t.Fatalf("GetPendingApprovals failed: %v", err)
	}
	if len(queue) != 2 || queue[0].ID != b.ID || queue[1].ID != a.ID {
		t.Errorf("Expected [b, a] by submission time, got %d entries", len(queue))
	}
}

func TestHistoryReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.advance(t, models.StatusSent)

	first, err := f.query.GetRequestHistory(ctx, "org-1", r.ID)
	if err != nil {
		t.Fatalf("GetRequestHistory failed: %v", err)
	}
	second, _ := f.query.GetRequestHistory(ctx, "org-1", r.ID)
	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical history on repeated reads")
	}

	if _, err := f.query.GetRequestHistory(ctx, "org-1", "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}
