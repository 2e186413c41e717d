package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/mem"
)

// HealthHandler answers liveness probes.
type HealthHandler struct {
	version      string
	startTime    time.Time
	cacheEnabled bool
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(version string, cacheEnabled bool) *HealthHandler {
	return &HealthHandler{
		version:      version,
		startTime:    time.Now(),
		cacheEnabled: cacheEnabled,
	}
}

// HealthInput is the input for the health endpoint.
type HealthInput struct{}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status       string  `json:"status" doc:"Service status"`
	Version      string  `json:"version" doc:"Build version"`
	Timestamp    string  `json:"timestamp" doc:"Current server time, RFC3339"`
	Uptime       string  `json:"uptime" doc:"Time since process start"`
	Goroutines   int     `json:"goroutines" doc:"Number of live goroutines"`
	MemoryUsedMB float64 `json:"memory_used_mb,omitempty" doc:"System memory in use, MiB"`
	CacheEnabled bool    `json:"cache_enabled" doc:"Whether the blob store cache is configured"`
}

// HealthOutput is the output for the health endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/healthz",
		Summary:     "Health check",
		Description: "Returns the health status of the service",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	resp := HealthResponse{
		Status:       "healthy",
		Version:      h.version,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Goroutines:   runtime.NumGoroutine(),
		CacheEnabled: h.cacheEnabled,
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.MemoryUsedMB = float64(vm.Used) / (1 << 20)
	}

	return &HealthOutput{Body: resp}, nil
}
