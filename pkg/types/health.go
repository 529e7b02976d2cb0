package types

// DeviceHealth reports accelerator memory figures in megabytes.
type DeviceHealth struct {
	// Device name as reported by the driver.
	// example: NVIDIA A100-SXM4-80GB
	Name string `json:"name" example:"NVIDIA A100-SXM4-80GB"`
	// example: 34816
	MemoryAllocatedMB int64 `json:"memory_allocated_mb" example:"34816"`
	// example: 46264
	MemoryFreeMB int64 `json:"memory_free_mb" example:"46264"`
	// example: 81080
	MemoryTotalMB int64 `json:"memory_total_mb" example:"81080"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// Overall status: loading, ready, degraded or failed.
	// example: ready
	Status string `json:"status" example:"ready"`
	// example: true
	ModelLoaded bool `json:"model_loaded" example:"true"`
	// example: true
	ModelReady bool `json:"model_ready" example:"true"`
	// Model identifier being served.
	ModelID string `json:"model_id,omitempty"`
	// Wall-clock seconds the weight load took; 0 while loading.
	ModelLoadTimeSeconds float64 `json:"model_load_time_seconds,omitempty"`
	// Accelerator memory figures when a device is visible.
	Device *DeviceHealth `json:"device,omitempty"`
	// Soft operator-facing warnings (e.g. low free device memory).
	Warnings []string `json:"warnings,omitempty"`
	// Last recorded error when status is failed.
	LastError string `json:"last_error,omitempty"`
}

// ReadinessResponse is returned by GET /ready.
type ReadinessResponse struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

// LivenessResponse is returned by GET /liveness.
type LivenessResponse struct {
	Alive   bool   `json:"alive"`
	Message string `json:"message"`
}

// MetricsResponse is the cumulative counters snapshot for GET /metrics.
type MetricsResponse struct {
	RequestsTotal  uint64            `json:"requests_total"`
	FailuresTotal  uint64            `json:"failures_total"`
	FailuresByType map[string]uint64 `json:"failures_by_type,omitempty"`
	// Rolling mean over the recent-latency window.
	AvgLatencyMs         float64 `json:"avg_latency_ms"`
	P50LatencyMs         float64 `json:"p50_latency_ms"`
	P95LatencyMs         float64 `json:"p95_latency_ms"`
	TokensGeneratedTotal uint64  `json:"tokens_generated_total"`
	ModelLoaded          bool    `json:"model_loaded"`
	ModelLoadTimeSeconds float64 `json:"model_load_time_seconds,omitempty"`
	UptimeSeconds        int64   `json:"uptime_seconds"`
	GPUMemoryAllocatedMB int64   `json:"gpu_memory_allocated_mb,omitempty"`
	GPUMemoryFreeMB      int64   `json:"gpu_memory_free_mb,omitempty"`
	GPUMemoryTotalMB     int64   `json:"gpu_memory_total_mb,omitempty"`
}
