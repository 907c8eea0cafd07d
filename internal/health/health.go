package health

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthChecker struct {
	db    Pinger
	redis func() bool
}

type HealthStatus struct {
	Status   string          `json:"status"`
	Storage  string          `json:"storage"`
	Database *ComponentState `json:"database,omitempty"`
	Redis    *ComponentState `json:"redis,omitempty"`
	Host     *HostStats      `json:"host,omitempty"`
}

type ComponentState struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"response_time_ms"`
}

type HostStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
	DiskPercent   float64 `json:"disk_percent"`
}

// NewHealthChecker takes a nil db when the memory store is in use and a nil
// redis probe when Redis is not configured.
func NewHealthChecker(db Pinger, redis func() bool) *HealthChecker {
	return &HealthChecker{db: db, redis: redis}
}

// CheckBasic reports readiness. Redis is optional and never makes the
// service unhealthy.
func (h *HealthChecker) CheckBasic() HealthStatus {
	status := HealthStatus{Status: "healthy", Storage: "memory"}

	if h.db != nil {
		status.Storage = "postgres"
		db := h.checkDatabase()
		status.Database = &db
		if db.Status != "healthy" {
			status.Status = "unhealthy"
		}
	}

	if h.redis != nil {
		start := time.Now()
		state := "healthy"
		if !h.redis() {
			state = "degraded"
		}
		status.Redis = &ComponentState{Status: state, ResponseTime: time.Since(start).Milliseconds()}
	}
	return status
}

// CheckDetailed adds host resource usage to CheckBasic.
func (h *HealthChecker) CheckDetailed() HealthStatus {
	status := h.CheckBasic()
	status.Host = collectHostStats()
	return status
}

func (h *HealthChecker) checkDatabase() ComponentState {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	err := h.db.Ping(ctx)
	responseTime := time.Since(start).Milliseconds()

	if err != nil {
		return ComponentState{Status: "unhealthy", ResponseTime: responseTime}
	}
	return ComponentState{Status: "healthy", ResponseTime: responseTime}
}

func collectHostStats() *HostStats {
	stats := &HostStats{}

	// Interval 0 compares against the previous call instead of sleeping.
	if cpuPercents, err := cpu.Percent(0, false); err == nil && len(cpuPercents) > 0 {
		stats.CPUPercent = cpuPercents[0]
	}
	if memStats, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = memStats.UsedPercent
		stats.MemoryUsedMB = memStats.Used / (1024 * 1024)
		stats.MemoryTotalMB = memStats.Total / (1024 * 1024)
	}
	if diskStats, err := disk.Usage("/"); err == nil {
		stats.DiskPercent = diskStats.UsedPercent
	}
	return stats
}
