package entity

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

// TriggerType selects the pipeline stage a dispatch runs.
type TriggerType string

const (
	TriggerTypeIntraday     TriggerType = "intraday"
	TriggerTypeDaily        TriggerType = "daily"
	TriggerTypeFundamentals TriggerType = "fundamentals"
	TriggerTypeMarketNews   TriggerType = "market-news"
	TriggerTypeFull         TriggerType = "full"
)

// ValidTriggerType reports whether t names a known pipeline trigger.
func ValidTriggerType(t TriggerType) bool {
	switch t {
	case TriggerTypeIntraday, TriggerTypeDaily, TriggerTypeFundamentals,
		TriggerTypeMarketNews, TriggerTypeFull:
		return true
	}
	return false
}

// TriggerStatus is the completion status of a dispatched trigger.
type TriggerStatus string

const (
	TriggerStatusPending   TriggerStatus = "pending"
	TriggerStatusSucceeded TriggerStatus = "succeeded"
	TriggerStatusPartial   TriggerStatus = "partial"
	TriggerStatusFailed    TriggerStatus = "failed"
)

// TriggerExecution is the audit record for one dispatched trigger. The
// idempotency key is unique; redelivered schedule events attach to the
// existing row instead of creating a second execution.
type TriggerExecution struct {
	ID             int64          `gorm:"primaryKey" json:"id"`
	TriggerType    TriggerType    `gorm:"not null" json:"trigger_type"`
	IdempotencyKey string         `gorm:"uniqueIndex;not null" json:"idempotency_key"`
	Status         TriggerStatus  `gorm:"not null" json:"status"`
	Payload        datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	Outcome        datatypes.JSON `gorm:"type:jsonb" json:"outcome"`
	ErrorMessage   sql.NullString `json:"error_message"`
	StartedAt      time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt    sql.NullTime   `json:"completed_at"`
}

func (TriggerExecution) TableName() string {
	return "trigger_executions"
}
