package entity

import (
	"time"

	"github.com/lib/pq"
)

// PriceBar is a single OHLCV bar. Rows are keyed by (symbol, timestamp); when
// two providers report the same bar, the one with the higher priority wins.
// Bars are never deleted.
type PriceBar struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Symbol           string    `gorm:"uniqueIndex:idx_price_bars_symbol_ts;not null" json:"symbol"`
	Timestamp        time.Time `gorm:"uniqueIndex:idx_price_bars_symbol_ts;not null" json:"timestamp"`
	Open             float64   `gorm:"not null" json:"open"`
	High             float64   `gorm:"not null" json:"high"`
	Low              float64   `gorm:"not null" json:"low"`
	Close            float64   `gorm:"not null" json:"close"`
	Volume           int64     `gorm:"not null" json:"volume"`
	Provider         string    `gorm:"not null" json:"provider"`
	ProviderPriority int       `gorm:"not null" json:"provider_priority"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PriceBar) TableName() string {
	return "price_bars"
}

// Valid reports whether the bar satisfies the OHLC ordering invariants.
func (b PriceBar) Valid() bool {
	if b.High < b.Low {
		return false
	}
	if b.Open > b.High || b.Open < b.Low {
		return false
	}
	if b.Close > b.High || b.Close < b.Low {
		return false
	}
	return true
}

// FundamentalSnapshot is a point-in-time view of company fundamentals.
type FundamentalSnapshot struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Symbol           string    `gorm:"uniqueIndex:idx_fundamentals_symbol_ts;not null" json:"symbol"`
	Timestamp        time.Time `gorm:"uniqueIndex:idx_fundamentals_symbol_ts;not null" json:"timestamp"`
	Revenue          float64   `json:"revenue"`
	NetIncome        float64   `json:"net_income"`
	EPS              float64   `json:"eps"`
	PERatio          float64   `json:"pe_ratio"`
	MarketCap        float64   `json:"market_cap"`
	Provider         string    `gorm:"not null" json:"provider"`
	ProviderPriority int       `gorm:"not null" json:"provider_priority"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FundamentalSnapshot) TableName() string {
	return "fundamental_snapshots"
}

// NewsItem is a normalized news article. The URL deduplicates re-ingested
// items.
type NewsItem struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Headline    string         `gorm:"not null" json:"headline"`
	Summary     string         `json:"summary"`
	URL         string         `gorm:"uniqueIndex;not null" json:"url"`
	PublishedAt time.Time      `gorm:"not null" json:"published_at"`
	Symbols     pq.StringArray `gorm:"type:text[]" json:"symbols"`
	Sentiment   float64        `json:"sentiment"`
	Provider    string         `gorm:"not null" json:"provider"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (NewsItem) TableName() string {
	return "news_items"
}
