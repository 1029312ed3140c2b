package dto

import "time"

// SystemMetrics summarises runtime counters for the health endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CascadeBranchFailures    uint64    `json:"cascade_branch_failures"`
	CascadeRetries           uint64    `json:"cascade_retries"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// HealthStatus reports readiness of the process dependencies.
type HealthStatus struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Metrics   *SystemMetrics    `json:"metrics,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}
