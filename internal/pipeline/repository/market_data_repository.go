package repository

import (
	"context"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MarketDataRepository defines the interface for the market data store. All
// writes are idempotent upserts; re-running collection for an already-covered
// window changes nothing unless a strictly higher provider priority arrives.
type MarketDataRepository interface {
	UpsertPriceBar(ctx context.Context, bar *entity.PriceBar) (written bool, err error)
	UpsertFundamentals(ctx context.Context, snap *entity.FundamentalSnapshot) (written bool, err error)
	UpsertNewsItem(ctx context.Context, item *entity.NewsItem) (written bool, err error)
	LatestBars(ctx context.Context, symbol string, limit int) ([]entity.PriceBar, error)
	LatestClose(ctx context.Context, symbol string) (float64, error)
	LatestFundamentals(ctx context.Context, symbol string) (*entity.FundamentalSnapshot, error)
	RecentNews(ctx context.Context, symbol string, since time.Time) ([]entity.NewsItem, error)
}

// NewMarketDataRepository creates a new GORM-based market data repository.
func NewMarketDataRepository(db *gorm.DB) MarketDataRepository {
	return &marketDataRepository{db: db}
}

type marketDataRepository struct {
	db *gorm.DB
}

// UpsertPriceBar inserts the bar, or replaces the stored (symbol, timestamp)
// row only when the incoming provider priority is strictly higher. On a
// priority tie the stored row wins.
func (r *marketDataRepository) UpsertPriceBar(ctx context.Context, bar *entity.PriceBar) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}, {Name: "timestamp"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"open":              bar.Open,
			"high":              bar.High,
			"low":               bar.Low,
			"close":             bar.Close,
			"volume":            bar.Volume,
			"provider":          bar.Provider,
			"provider_priority": bar.ProviderPriority,
			"updated_at":        time.Now(),
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Lt{Column: clause.Column{Table: "price_bars", Name: "provider_priority"}, Value: bar.ProviderPriority},
		}},
	}).Create(bar)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpsertFundamentals applies the same priority merge policy to fundamentals.
func (r *marketDataRepository) UpsertFundamentals(ctx context.Context, snap *entity.FundamentalSnapshot) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}, {Name: "timestamp"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"revenue":           snap.Revenue,
			"net_income":        snap.NetIncome,
			"eps":               snap.EPS,
			"pe_ratio":          snap.PERatio,
			"market_cap":        snap.MarketCap,
			"provider":          snap.Provider,
			"provider_priority": snap.ProviderPriority,
			"updated_at":        time.Now(),
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Lt{Column: clause.Column{Table: "fundamental_snapshots", Name: "provider_priority"}, Value: snap.ProviderPriority},
		}},
	}).Create(snap)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpsertNewsItem deduplicates on URL; re-ingested items are ignored.
func (r *marketDataRepository) UpsertNewsItem(ctx context.Context, item *entity.NewsItem) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// LatestBars returns up to limit bars for the symbol, newest first.
func (r *marketDataRepository) LatestBars(ctx context.Context, symbol string, limit int) ([]entity.PriceBar, error) {
	var bars []entity.PriceBar
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp desc").
		Limit(limit).
		Find(&bars).Error
	if err != nil {
		return nil, err
	}
	return bars, nil
}

// LatestClose returns the most recent close price for the symbol.
func (r *marketDataRepository) LatestClose(ctx context.Context, symbol string) (float64, error) {
	var bar entity.PriceBar
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp desc").
		First(&bar).Error
	if err != nil {
		return 0, err
	}
	return bar.Close, nil
}

// LatestFundamentals returns the most recent fundamentals snapshot.
func (r *marketDataRepository) LatestFundamentals(ctx context.Context, symbol string) (*entity.FundamentalSnapshot, error) {
	var snap entity.FundamentalSnapshot
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp desc").
		First(&snap).Error
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// RecentNews returns news mentioning the symbol published after since.
func (r *marketDataRepository) RecentNews(ctx context.Context, symbol string, since time.Time) ([]entity.NewsItem, error) {
	var items []entity.NewsItem
	err := r.db.WithContext(ctx).
		Where("? = ANY(symbols) AND published_at >= ?", symbol, since).
		Order("published_at desc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
