package entity

import "time"

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionStatusActive PositionStatus = "active"
	PositionStatusClosed PositionStatus = "closed"
)

// TransactionType distinguishes simulated fills.
type TransactionType string

const (
	TransactionTypeBuy  TransactionType = "buy"
	TransactionTypeSell TransactionType = "sell"
)

// Position is a holding in the simulated portfolio. AverageCost is only
// meaningful while Quantity > 0; a quantity of zero closes the position.
type Position struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Symbol        string         `gorm:"index:idx_positions_symbol_status;not null" json:"symbol"`
	Quantity      int64          `gorm:"not null" json:"quantity"`
	AverageCost   float64        `gorm:"not null" json:"average_cost"`
	CurrentPrice  float64        `json:"current_price,omitempty"`
	MarketValue   float64        `json:"market_value,omitempty"`
	UnrealizedPnL float64        `json:"unrealized_pnl,omitempty"`
	Status        PositionStatus `gorm:"index:idx_positions_symbol_status;not null" json:"status"`
	OpenedAt      time.Time      `gorm:"not null" json:"opened_at"`
	ClosedAt      *time.Time     `json:"closed_at,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// Transaction is an immutable record of a simulated fill.
type Transaction struct {
	ID         int64           `gorm:"primaryKey" json:"id"`
	Symbol     string          `gorm:"index;not null" json:"symbol"`
	Type       TransactionType `gorm:"not null" json:"type"`
	Quantity   int64           `gorm:"not null" json:"quantity"`
	Price      float64         `gorm:"not null" json:"price"`
	Fees       float64         `gorm:"not null" json:"fees"`
	OrderID    string          `gorm:"uniqueIndex;not null" json:"order_id"`
	ExecutedAt time.Time       `gorm:"not null" json:"executed_at"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// RiskState tracks per-symbol exposure and realized daily loss. Exposure is
// the filled cost basis: the ledger adds it on buy fills and releases it on
// sells, so unfilled signals never contribute. The daily counter resets at
// the start of the exchange-local calendar day.
type RiskState struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Symbol            string    `gorm:"uniqueIndex;not null" json:"symbol"`
	Exposure          float64   `gorm:"not null" json:"exposure"`
	DailyRealizedLoss float64   `gorm:"not null" json:"daily_realized_loss"`
	LastResetDate     time.Time `gorm:"not null" json:"last_reset_date"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RiskState) TableName() string {
	return "risk_states"
}
