package entity

import "time"

// SignalState is the lifecycle state of a trade signal.
type SignalState string

const (
	SignalStateActive     SignalState = "active"
	SignalStateExpired    SignalState = "expired"
	SignalStateSuperseded SignalState = "superseded"
	SignalStateRejected   SignalState = "rejected"
)

// TradeSignal is a risk-checked trading decision. At most one signal per
// symbol is in the active state at any instant; the strategy engine owns all
// state transitions.
type TradeSignal struct {
	ID           int64       `gorm:"primaryKey" json:"id"`
	Symbol       string      `gorm:"index:idx_trade_signals_symbol_state;not null" json:"symbol"`
	Verdict      Verdict     `gorm:"not null" json:"verdict"`
	Quantity     int64       `gorm:"not null" json:"quantity"`
	PriceLimit   float64     `json:"price_limit,omitempty"`
	StopLoss     float64     `json:"stop_loss,omitempty"`
	TakeProfit   float64     `json:"take_profit,omitempty"`
	Confidence   float64     `gorm:"not null" json:"confidence"`
	Reasoning    string      `json:"reasoning"`
	State        SignalState `gorm:"index:idx_trade_signals_symbol_state;not null" json:"state"`
	RejectReason string      `json:"reject_reason,omitempty"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"`
}

func (TradeSignal) TableName() string {
	return "trade_signals"
}

// PastExpiry reports whether the signal carries a deadline that now has
// passed.
func (s TradeSignal) PastExpiry(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}
