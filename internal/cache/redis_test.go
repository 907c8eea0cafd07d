package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vendfleet-backend/internal/models"
)

func TestStatsCacheWithoutRedis(t *testing.T) {
	client = nil
	c := NewStatsCache(0)
	if c.TTL != defaultTTL {
		t.Errorf("Expected default TTL, got %s", c.TTL)
	}

	ctx := context.Background()
	c.SetStats(ctx, "org-1", 0, &models.MaterialRequestStats{Total: 3, TotalAmount: decimal.NewFromInt(10)})
	if _, _, ok := c.GetStats(ctx, "org-1"); ok {
		t.Error("Expected a miss when Redis is not connected")
	}
	c.InvalidateStats(ctx, "org-1")
	FlushStats(ctx)

	if IsHealthy() {
		t.Error("Expected unhealthy without a client")
	}
}

func TestStatsKey(t *testing.T) {
	if got := StatsKey("org-9", 3); got != "material_requests:stats:org-9:v3" {
		t.Errorf("Unexpected key %s", got)
	}
	if got := StatsGenerationKey("org-9"); got != "material_requests:stats:org-9:gen" {
		t.Errorf("Unexpected generation key %s", got)
	}
	if NewStatsCache(5*time.Second).TTL != 5*time.Second {
		t.Error("Expected TTL to be kept")
	}
}

// connectTestRedis uses TEST_REDIS_ADDR and skips when it is unset.
func connectTestRedis(t *testing.T) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	if err := Init(addr, os.Getenv("TEST_REDIS_PASSWORD"), 0); err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(Close)
}

func TestStatsCacheGenerations(t *testing.T) {
	connectTestRedis(t)
	ctx := context.Background()
	c := NewStatsCache(time.Minute)
	org := "test-" + uuid.NewString()
	t.Cleanup(func() { InvalidatePattern(context.Background(), StatsKeyFmt+org+"*") })

	_, gen, ok := c.GetStats(ctx, org)
	if ok {
		t.Fatal("Expected a miss on a fresh organization")
	}
	c.SetStats(ctx, org, gen, &models.MaterialRequestStats{Total: 1})
	if got, _, ok := c.GetStats(ctx, org); !ok || got.Total != 1 {
		t.Fatalf("Expected a hit after SetStats, got %+v ok=%v", got, ok)
	}

	// A reader that looked up gen before the invalidation stores late.
	c.InvalidateStats(ctx, org)
	c.SetStats(ctx, org, gen, &models.MaterialRequestStats{Total: 1})
	if _, next, ok := c.GetStats(ctx, org); ok || next != gen+1 {
		t.Errorf("Expected a miss at generation %d, got ok=%v gen=%d", gen+1, ok, next)
	}

	FlushStats(ctx)
	if _, g, _ := c.GetStats(ctx, org); g != 0 {
		t.Errorf("Expected generation reset after flush, got %d", g)
	}
}
