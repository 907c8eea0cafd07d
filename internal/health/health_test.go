package health

import (
	"context"
	"errors"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheckBasic(t *testing.T) {
	tests := []struct {
		name    string
		db      Pinger
		redis   func() bool
		status  string
		storage string
	}{
		{"memory store", nil, nil, "healthy", "memory"},
		{"postgres up", pingFunc(func(context.Context) error { return nil }), nil, "healthy", "postgres"},
		{"postgres down", pingFunc(func(context.Context) error { return errors.New("refused") }), nil, "unhealthy", "postgres"},
		{"redis down stays healthy", nil, func() bool { return false }, "healthy", "memory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewHealthChecker(tt.db, tt.redis).CheckBasic()
			if got.Status != tt.status || got.Storage != tt.storage {
				t.Errorf("Expected %s/%s, got %s/%s", tt.status, tt.storage, got.Status, got.Storage)
			}
		})
	}

	got := NewHealthChecker(nil, func() bool { return false }).CheckBasic()
	if got.Redis == nil || got.Redis.Status != "degraded" {
		t.Errorf("Expected degraded redis, got %+v", got.Redis)
	}
}

func TestCheckDetailedIncludesHost(t *testing.T) {
	got := NewHealthChecker(nil, nil).CheckDetailed()
	if got.Host == nil {
		t.Fatal("Expected host stats")
	}
}
