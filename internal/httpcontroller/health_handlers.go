package httpcontroller

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/oncoderma/oncoderma-go/internal/classifier"
	"github.com/oncoderma/oncoderma-go/internal/logger"
)

const healthCheckTimeout = 2 * time.Second

// Overall health states
const (
	healthOK          = "ok"
	healthDegraded    = "degraded"
	healthUnavailable = "unavailable"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string          `json:"status"`
	Version       string          `json:"version"`
	BuildDate     string          `json:"build_date"`
	Uptime        string          `json:"uptime"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Model         classifier.Info `json:"model"`
	Database      ComponentHealth `json:"database"`
	ChatEnabled   bool            `json:"chat_enabled"`
	Memory        *MemoryStats    `json:"memory,omitempty"`
}

// ComponentHealth is the state of one dependency.
type ComponentHealth struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MemoryStats is host memory usage.
type MemoryStats struct {
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// healthCheck reports model readiness, database reachability, uptime and
// host memory. It answers 503 only when the database is unreachable; a
// disabled model degrades the service but pages still work.
func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	uptime := time.Since(s.startedAt)
	resp := HealthResponse{
		Status:        healthOK,
		Version:       s.Build.GetVersion(),
		BuildDate:     s.Build.GetBuildDate(),
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		Model:         s.Classifier.Info(),
		Database:      s.databaseHealth(ctx),
		ChatEnabled:   s.chatEnabled(),
		Memory:        memoryStats(ctx),
	}

	status := http.StatusOK
	switch {
	case resp.Database.Status != healthOK:
		resp.Status = healthUnavailable
		status = http.StatusServiceUnavailable
	case !resp.Model.Ready:
		resp.Status = healthDegraded
	}

	return c.JSON(status, resp)
}

func (s *Server) databaseHealth(ctx context.Context) ComponentHealth {
	start := time.Now()
	if err := s.DS.Ping(ctx); err != nil {
		GetLogger().Warn("health check database ping failed", logger.Error(err))
		return ComponentHealth{Status: healthUnavailable, Error: "database unreachable"}
	}
	return ComponentHealth{Status: healthOK, Latency: time.Since(start).String()}
}

// memoryStats returns host memory usage, or nil where gopsutil cannot read it.
func memoryStats(ctx context.Context) *MemoryStats {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		GetLogger().Debug("memory stats unavailable", logger.Error(err))
		return nil
	}
	return &MemoryStats{
		TotalBytes:  vm.Total,
		UsedBytes:   vm.Used,
		UsedPercent: vm.UsedPercent,
	}
}
