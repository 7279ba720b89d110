package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/pkg/logger"

	"github.com/mmcdole/gofeed"
)

// NewRSSNewsProvider creates a news-only provider that reads an RSS feed.
// The feed URL may contain {symbol}, substituted per fetch.
func NewRSSNewsProvider(cfg config.Provider, log *logger.Logger) MarketDataProvider {
	return &rssNewsProvider{
		cfg:    cfg,
		log:    log,
		parser: gofeed.NewParser(),
	}
}

type rssNewsProvider struct {
	cfg    config.Provider
	log    *logger.Logger
	parser *gofeed.Parser

	mu    sync.Mutex
	calls int
}

func (p *rssNewsProvider) Name() string  { return p.cfg.Name }
func (p *rssNewsProvider) Priority() int { return p.cfg.Priority }

func (p *rssNewsProvider) Supports(kind dto.DataKind) bool {
	return kind == dto.DataKindNews
}

func (p *rssNewsProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *rssNewsProvider) ResetCallCount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = 0
}

func (p *rssNewsProvider) FetchPrices(context.Context, string) ([]entity.PriceBar, error) {
	return nil, nil
}

func (p *rssNewsProvider) FetchFundamentals(context.Context, string) (*entity.FundamentalSnapshot, error) {
	return nil, nil
}

func (p *rssNewsProvider) FetchNews(ctx context.Context, symbol string) ([]entity.NewsItem, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	feedURL := strings.ReplaceAll(p.cfg.FeedURL, "{symbol}", symbol)
	feed, err := p.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	items := make([]entity.NewsItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		publishedAt := time.Now()
		if it.PublishedParsed != nil {
			publishedAt = *it.PublishedParsed
		}
		items = append(items, entity.NewsItem{
			Headline:    it.Title,
			Summary:     it.Description,
			URL:         it.Link,
			PublishedAt: publishedAt,
			Symbols:     []string{symbol},
			Provider:    p.cfg.Name,
		})
	}
	return items, nil
}
