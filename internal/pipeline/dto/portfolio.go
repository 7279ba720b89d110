package dto

import "time"

// PortfolioSummary is derived by full aggregation over active positions
// after every ledger mutation; it is never mutated independently.
type PortfolioSummary struct {
	ActivePositionsCount int       `json:"active_positions_count"`
	TotalMarketValue     float64   `json:"total_market_value"`
	TotalCostBasis       float64   `json:"total_cost_basis"`
	TotalUnrealizedPnL   float64   `json:"total_unrealized_pnl"`
	UnrealizedReturnPct  float64   `json:"unrealized_return_pct"`
	LastUpdated          time.Time `json:"last_updated"`
}

// HoldingPerformance is the per-position slice of the performance breakdown.
type HoldingPerformance struct {
	Symbol        string  `json:"symbol"`
	Quantity      int64   `json:"quantity"`
	AverageCost   float64 `json:"average_cost"`
	CurrentPrice  float64 `json:"current_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	ReturnPct     float64 `json:"return_pct"`
}

// RiskStatus reports the strategy engine's current risk posture.
type RiskStatus struct {
	PortfolioValue         float64            `json:"portfolio_value"`
	ActivePositions        int                `json:"active_positions"`
	MaxPositionSizePct     float64            `json:"max_position_size_pct"`
	StopLossPct            float64            `json:"stop_loss_pct"`
	MinConfidence          float64            `json:"min_confidence"`
	DailyLossLimit         float64            `json:"daily_loss_limit"`
	DailyRealizedLossBySym map[string]float64 `json:"daily_realized_loss_by_symbol"`
}

// AddWatchlistRequest creates or updates a watchlist entry.
type AddWatchlistRequest struct {
	Symbol   string `json:"symbol"`
	AddedBy  string `json:"added_by"`
	Priority int    `json:"priority"`
	Notes    string `json:"notes"`
}
