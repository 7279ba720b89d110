package dto

import "time"

// HealthResponse is the per-service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// ServiceHealth is one entry of the aggregated dependency health report.
type ServiceHealth struct {
	Name      string        `json:"name"`
	URL       string        `json:"url"`
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}
