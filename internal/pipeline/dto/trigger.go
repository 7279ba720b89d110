package dto

import (
	"encoding/json"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
)

// DispatchRequest is the payload accepted by the orchestrate endpoint.
type DispatchRequest struct {
	Symbols []string `json:"symbols,omitempty"`
}

// TriggerOutcome is the status handle for one dispatched trigger. A repeated
// idempotency key within the retention window returns the recorded outcome
// without re-executing side effects.
type TriggerOutcome struct {
	TriggerType    entity.TriggerType   `json:"trigger_type"`
	IdempotencyKey string               `json:"idempotency_key"`
	Status         entity.TriggerStatus `json:"status"`
	Detail         json.RawMessage      `json:"detail,omitempty"`
	Error          string               `json:"error,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	Duplicate      bool                 `json:"duplicate,omitempty"`
}

// TriggerTask is the message published to the trigger stream. Delivery is
// at-least-once; the idempotency key makes redelivery safe.
type TriggerTask struct {
	TriggerType    entity.TriggerType `json:"trigger_type"`
	IdempotencyKey string             `json:"idempotency_key"`
	Symbols        []string           `json:"symbols,omitempty"`
	EnqueuedAt     time.Time          `json:"enqueued_at"`
}

// PipelineStatus reports orchestration state for the status endpoint.
type PipelineStatus struct {
	WatchlistCount       int            `json:"watchlist_count"`
	ActivePositionsCount int            `json:"active_positions_count"`
	ProviderCallCounts   map[string]int `json:"provider_call_counts"`
	LastCounterReset     time.Time      `json:"last_counter_reset"`
}
