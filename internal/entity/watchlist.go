package entity

import "time"

// WatchlistItem is a symbol under monitoring. Every scheduled cycle reads the
// watchlist to determine its scope.
type WatchlistItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"uniqueIndex;not null" json:"symbol"`
	AddedBy   string    `gorm:"not null" json:"added_by"`
	Priority  int       `gorm:"not null;default:1" json:"priority"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WatchlistItem) TableName() string {
	return "watchlist_items"
}
