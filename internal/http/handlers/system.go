package handlers

import (
	"context"
	"os"
	"runtime"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/process"

	"soundsproxy/internal/version"
)

// SystemHandler exposes build and runtime information.
type SystemHandler struct{}

// NewSystemHandler creates the system handler.
func NewSystemHandler() *SystemHandler {
	return &SystemHandler{}
}

// SystemInput is the input for the system info endpoint.
type SystemInput struct{}

// SystemResponse is the system info payload.
type SystemResponse struct {
	Version      string  `json:"version" doc:"Build version"`
	Commit       string  `json:"commit,omitempty" doc:"Build commit hash"`
	BuildDate    string  `json:"build_date,omitempty" doc:"Build date"`
	GoVersion    string  `json:"go_version" doc:"Go runtime version"`
	OS           string  `json:"os" doc:"Operating system"`
	Arch         string  `json:"arch" doc:"CPU architecture"`
	NumCPU       int     `json:"num_cpu" doc:"Number of logical CPUs"`
	Load1        float64 `json:"load_1,omitempty" doc:"1 minute load average"`
	ProcessRSSMB float64 `json:"process_rss_mb,omitempty" doc:"Process resident memory, MiB"`
}

// SystemOutput is the output for the system info endpoint.
type SystemOutput struct {
	Body SystemResponse
}

// Register registers the system route with the API.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSystemInfo",
		Method:      "GET",
		Path:        "/api/v1/system",
		Summary:     "System information",
		Description: "Returns build and runtime information about the service",
		Tags:        []string{"System"},
	}, h.GetSystemInfo)
}

// GetSystemInfo returns build and runtime information.
func (h *SystemHandler) GetSystemInfo(ctx context.Context, _ *SystemInput) (*SystemOutput, error) {
	info := version.GetInfo()

	resp := SystemResponse{
		Version:   info.Version,
		Commit:    info.Commit,
		BuildDate: info.Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		NumCPU:    runtime.NumCPU(),
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		resp.Load1 = avg.Load1
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil {
			resp.ProcessRSSMB = float64(memInfo.RSS) / (1 << 20)
		}
	}

	return &SystemOutput{Body: resp}, nil
}
