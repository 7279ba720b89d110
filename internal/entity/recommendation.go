package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Verdict is the outcome of scoring a symbol.
type Verdict string

const (
	VerdictBuy  Verdict = "buy"
	VerdictHold Verdict = "hold"
	VerdictSell Verdict = "sell"
)

// ValidVerdict reports whether v is one of the three allowed verdicts.
func ValidVerdict(v Verdict) bool {
	return v == VerdictBuy || v == VerdictHold || v == VerdictSell
}

// Recommendation is one scoring result. The log is append-only; rows are
// never rewritten so later audits and backtests see exactly what the model
// produced.
type Recommendation struct {
	ID           int64          `gorm:"primaryKey" json:"id"`
	Symbol       string         `gorm:"index:idx_recommendations_symbol_created;not null" json:"symbol"`
	Verdict      Verdict        `gorm:"not null" json:"verdict"`
	Confidence   float64        `gorm:"not null" json:"confidence"`
	PriceTarget  float64        `json:"price_target,omitempty"`
	StopLoss     float64        `json:"stop_loss,omitempty"`
	ModelVersion string         `gorm:"not null" json:"model_version"`
	Features     datatypes.JSON `gorm:"type:jsonb" json:"features"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index:idx_recommendations_symbol_created" json:"created_at"`
}

func (Recommendation) TableName() string {
	return "recommendations"
}
