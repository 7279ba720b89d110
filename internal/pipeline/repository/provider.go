package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/pkg/logger"
	"github.com/dhumphrey11/moda-trading/pkg/utils"

	"golang.org/x/time/rate"
)

// MarketDataProvider fetches normalized market data from one upstream
// source. Wire-format parsing happens upstream; providers return the common
// price/fundamental/news shape.
type MarketDataProvider interface {
	Name() string
	Priority() int
	Supports(kind dto.DataKind) bool
	FetchPrices(ctx context.Context, symbol string) ([]entity.PriceBar, error)
	FetchFundamentals(ctx context.Context, symbol string) (*entity.FundamentalSnapshot, error)
	FetchNews(ctx context.Context, symbol string) ([]entity.NewsItem, error)
	CallCount() int
	ResetCallCount()
}

// NewHTTPProvider creates a provider client for one configured upstream
// service. Each request waits on the provider's rate limiter first so the
// fan-out respects external limits.
func NewHTTPProvider(cfg config.Provider, log *logger.Logger) MarketDataProvider {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	kinds := make(map[dto.DataKind]bool, len(cfg.Kinds))
	for _, k := range cfg.Kinds {
		kinds[dto.DataKind(k)] = true
	}
	return &httpProvider{
		cfg:            cfg,
		log:            log,
		kinds:          kinds,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		requestLimiter: rate.NewLimiter(limit, burst),
	}
}

type httpProvider struct {
	cfg            config.Provider
	log            *logger.Logger
	kinds          map[dto.DataKind]bool
	httpClient     *http.Client
	requestLimiter *rate.Limiter

	mu    sync.Mutex
	calls int
}

func (p *httpProvider) Name() string  { return p.cfg.Name }
func (p *httpProvider) Priority() int { return p.cfg.Priority }

func (p *httpProvider) Supports(kind dto.DataKind) bool {
	return p.kinds[kind]
}

func (p *httpProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *httpProvider) ResetCallCount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = 0
}

func (p *httpProvider) FetchPrices(ctx context.Context, symbol string) ([]entity.PriceBar, error) {
	var bars []entity.PriceBar
	url := fmt.Sprintf("%s/prices/%s", p.cfg.BaseURL, symbol)
	if err := p.getJSON(ctx, url, &bars); err != nil {
		return nil, err
	}
	for i := range bars {
		bars[i].Provider = p.cfg.Name
		bars[i].ProviderPriority = p.cfg.Priority
	}
	return bars, nil
}

func (p *httpProvider) FetchFundamentals(ctx context.Context, symbol string) (*entity.FundamentalSnapshot, error) {
	var snap entity.FundamentalSnapshot
	url := fmt.Sprintf("%s/fundamentals/%s", p.cfg.BaseURL, symbol)
	if err := p.getJSON(ctx, url, &snap); err != nil {
		return nil, err
	}
	snap.Provider = p.cfg.Name
	snap.ProviderPriority = p.cfg.Priority
	return &snap, nil
}

func (p *httpProvider) FetchNews(ctx context.Context, symbol string) ([]entity.NewsItem, error) {
	var items []entity.NewsItem
	url := fmt.Sprintf("%s/news/%s", p.cfg.BaseURL, symbol)
	if err := p.getJSON(ctx, url, &items); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Provider = p.cfg.Name
	}
	return items, nil
}

func (p *httpProvider) getJSON(ctx context.Context, url string, out interface{}) error {
	if err := p.requestLimiter.Wait(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	if p.cfg.DailyCap > 0 && p.calls >= p.cfg.DailyCap {
		p.mu.Unlock()
		return fmt.Errorf("provider %s daily call cap %d reached", p.cfg.Name, p.cfg.DailyCap)
	}
	p.calls++
	p.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider %s returned status %d: %s", p.cfg.Name, resp.StatusCode, utils.Truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("provider %s returned malformed payload: %w", p.cfg.Name, err)
	}
	return nil
}
