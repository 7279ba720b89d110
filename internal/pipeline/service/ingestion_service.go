package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/repository"
	"github.com/dhumphrey11/moda-trading/pkg/logger"
)

// IngestionService fans a collection run out across the configured providers
// and folds the results into the market data store. A failed fetch never
// aborts the batch; it is recorded against its (symbol, provider, kind) and
// the rest of the run proceeds.
type IngestionService interface {
	Collect(ctx context.Context, req dto.CollectRequest) (*dto.CollectionResult, error)
	Status(ctx context.Context) (*dto.PipelineStatus, error)
	ResetProviderCounters()
}

// NewIngestionService creates a new ingestion coordinator.
func NewIngestionService(
	cfg *config.Config,
	providers []repository.MarketDataProvider,
	marketDataRepo repository.MarketDataRepository,
	watchlistRepo repository.WatchlistRepository,
	positionRepo repository.PositionRepository,
	log *logger.Logger,
) IngestionService {
	fetchTimeout, err := time.ParseDuration(cfg.Ingestion.FetchTimeout)
	if err != nil || fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	initialBackoff, err := time.ParseDuration(cfg.Ingestion.InitialBackoff)
	if err != nil || initialBackoff <= 0 {
		initialBackoff = 500 * time.Millisecond
	}
	maxWorkers := cfg.Ingestion.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	maxAttempts := cfg.Ingestion.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &ingestionService{
		providers:        providers,
		marketDataRepo:   marketDataRepo,
		watchlistRepo:    watchlistRepo,
		positionRepo:     positionRepo,
		logger:           log,
		maxWorkers:       maxWorkers,
		maxAttempts:      maxAttempts,
		fetchTimeout:     fetchTimeout,
		initialBackoff:   initialBackoff,
		lastCounterReset: time.Now(),
	}
}

type ingestionService struct {
	providers      []repository.MarketDataProvider
	marketDataRepo repository.MarketDataRepository
	watchlistRepo  repository.WatchlistRepository
	positionRepo   repository.PositionRepository
	logger         *logger.Logger
	maxWorkers     int
	maxAttempts    int
	fetchTimeout   time.Duration
	initialBackoff time.Duration

	mu               sync.Mutex
	lastCounterReset time.Time
}

type fetchJob struct {
	symbol   string
	provider repository.MarketDataProvider
	kind     dto.DataKind
}

type fetchResult struct {
	symbol  string
	written int
	isBars  bool
	err     *dto.FetchError
}

// Collect runs one collection pass over the requested symbols and kinds.
// Symbols default to the watchlist plus active position symbols; kinds
// default to all. The same request can be re-run safely: writes are
// idempotent upserts keyed by (symbol, timestamp) and news URL.
func (s *ingestionService) Collect(ctx context.Context, req dto.CollectRequest) (*dto.CollectionResult, error) {
	symbols, err := s.resolveSymbols(ctx, req.Symbols)
	if err != nil {
		return nil, err
	}
	kinds := req.Kinds
	if len(kinds) == 0 {
		kinds = dto.AllDataKinds()
	}

	jobs := make([]fetchJob, 0, len(symbols)*len(kinds))
	for _, symbol := range symbols {
		for _, kind := range kinds {
			for _, provider := range s.providers {
				if provider.Supports(kind) {
					jobs = append(jobs, fetchJob{symbol: symbol, provider: provider, kind: kind})
				}
			}
		}
	}

	s.logger.Info("Starting collection run",
		logger.IntField("symbols", len(symbols)),
		logger.IntField("kinds", len(kinds)),
		logger.IntField("fetches", len(jobs)))

	jobCh := make(chan fetchJob)
	resultCh := make(chan fetchResult, len(jobs))

	var wg sync.WaitGroup
	workers := s.maxWorkers
	if workers > len(jobs) && len(jobs) > 0 {
		workers = len(jobs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				resultCh <- s.runFetch(ctx, job)
			}
		}()
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()
	close(resultCh)

	perSymbol := make(map[string]*dto.SymbolCollection, len(symbols))
	for _, symbol := range symbols {
		perSymbol[symbol] = &dto.SymbolCollection{Symbol: symbol}
	}
	attempts := make(map[string]int, len(symbols))
	failures := make(map[string]int, len(symbols))

	total := 0
	for res := range resultCh {
		sc := perSymbol[res.symbol]
		attempts[res.symbol]++
		if res.err != nil {
			failures[res.symbol]++
			sc.Errors = append(sc.Errors, *res.err)
			continue
		}
		if res.isBars {
			sc.BarsWritten += res.written
		} else {
			sc.ItemsWritten += res.written
		}
		total += res.written
	}

	result := &dto.CollectionResult{TotalWritten: total}
	for _, symbol := range symbols {
		sc := perSymbol[symbol]
		switch {
		case attempts[symbol] == 0 || failures[symbol] == 0:
			sc.Status = dto.SymbolStatusSuccess
		case failures[symbol] == attempts[symbol]:
			sc.Status = dto.SymbolStatusFailed
			result.Partial = true
		default:
			sc.Status = dto.SymbolStatusPartial
			result.Partial = true
		}
		result.Symbols = append(result.Symbols, *sc)
	}

	s.logger.Info("Collection run finished",
		logger.IntField("total_written", total),
		logger.StringField("status", string(result.Status())))
	return result, nil
}

// Status reports orchestration counters for the status endpoint.
func (s *ingestionService) Status(ctx context.Context) (*dto.PipelineStatus, error) {
	watchlist, err := s.watchlistRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := s.positionRepo.AllActive(ctx)
	if err != nil {
		return nil, err
	}

	calls := make(map[string]int, len(s.providers))
	for _, p := range s.providers {
		calls[p.Name()] = p.CallCount()
	}

	s.mu.Lock()
	lastReset := s.lastCounterReset
	s.mu.Unlock()

	return &dto.PipelineStatus{
		WatchlistCount:       len(watchlist),
		ActivePositionsCount: len(positions),
		ProviderCallCounts:   calls,
		LastCounterReset:     lastReset,
	}, nil
}

// ResetProviderCounters zeroes the per-provider call counters. The scheduler
// calls this at the start of each market day so daily caps line up with the
// providers' own quota windows.
func (s *ingestionService) ResetProviderCounters() {
	for _, p := range s.providers {
		p.ResetCallCount()
	}
	s.mu.Lock()
	s.lastCounterReset = time.Now()
	s.mu.Unlock()
	s.logger.Info("Provider call counters reset")
}

// resolveSymbols expands an empty request to the watchlist union active
// position symbols, deduplicated.
func (s *ingestionService) resolveSymbols(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		return dedupe(requested), nil
	}

	watched, err := s.watchlistRepo.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := s.positionRepo.AllActive(ctx)
	if err != nil {
		return nil, err
	}

	combined := make([]string, 0, len(watched)+len(positions))
	combined = append(combined, watched...)
	for _, p := range positions {
		combined = append(combined, p.Symbol)
	}
	return dedupe(combined), nil
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// runFetch executes one (symbol, provider, kind) fetch with retry and
// persists whatever came back.
func (s *ingestionService) runFetch(ctx context.Context, job fetchJob) fetchResult {
	var (
		written int
		isBars  bool
		lastErr error
	)

	attempt := 0
	for attempt < s.maxAttempts {
		attempt++
		written, isBars, lastErr = s.fetchOnce(ctx, job)
		if lastErr == nil {
			return fetchResult{symbol: job.symbol, written: written, isBars: isBars}
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < s.maxAttempts {
			backoff := s.initialBackoff << (attempt - 1)
			s.logger.Warn("Fetch failed, backing off",
				logger.StringField("symbol", job.symbol),
				logger.StringField("provider", job.provider.Name()),
				logger.StringField("kind", string(job.kind)),
				logger.IntField("attempt", attempt),
				logger.ErrorField(lastErr))
			select {
			case <-ctx.Done():
				attempt = s.maxAttempts
			case <-time.After(backoff):
			}
		}
	}

	return fetchResult{
		symbol: job.symbol,
		isBars: isBars,
		err: &dto.FetchError{
			Symbol:   job.symbol,
			Provider: job.provider.Name(),
			Kind:     job.kind,
			Attempts: attempt,
			Error:    lastErr.Error(),
		},
	}
}

func (s *ingestionService) fetchOnce(ctx context.Context, job fetchJob) (int, bool, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	switch job.kind {
	case dto.DataKindPrice:
		bars, err := job.provider.FetchPrices(fetchCtx, job.symbol)
		if err != nil {
			return 0, true, err
		}
		return s.persistBars(ctx, job, bars), true, nil
	case dto.DataKindFundamentals:
		snap, err := job.provider.FetchFundamentals(fetchCtx, job.symbol)
		if err != nil {
			return 0, false, err
		}
		return s.persistFundamentals(ctx, job, snap), false, nil
	default:
		items, err := job.provider.FetchNews(fetchCtx, job.symbol)
		if err != nil {
			return 0, false, err
		}
		return s.persistNews(ctx, job, items), false, nil
	}
}

func (s *ingestionService) persistBars(ctx context.Context, job fetchJob, bars []entity.PriceBar) int {
	written := 0
	for i := range bars {
		bar := bars[i]
		if bar.Symbol == "" {
			bar.Symbol = job.symbol
		}
		if !bar.Valid() {
			s.logger.Warn("Dropping bar that fails OHLC validation",
				logger.StringField("symbol", bar.Symbol),
				logger.StringField("provider", job.provider.Name()),
				logger.Field("timestamp", bar.Timestamp))
			continue
		}
		ok, err := s.marketDataRepo.UpsertPriceBar(ctx, &bar)
		if err != nil {
			s.logger.Error("Failed to upsert price bar", logger.ErrorField(err),
				logger.StringField("symbol", bar.Symbol))
			continue
		}
		if ok {
			written++
		} else {
			s.logger.Debug("Bar kept from higher-priority provider",
				logger.StringField("symbol", bar.Symbol),
				logger.StringField("provider", job.provider.Name()),
				logger.Field("timestamp", bar.Timestamp))
		}
	}
	return written
}

func (s *ingestionService) persistFundamentals(ctx context.Context, job fetchJob, snap *entity.FundamentalSnapshot) int {
	if snap == nil {
		return 0
	}
	if snap.Symbol == "" {
		snap.Symbol = job.symbol
	}
	ok, err := s.marketDataRepo.UpsertFundamentals(ctx, snap)
	if err != nil {
		s.logger.Error("Failed to upsert fundamentals", logger.ErrorField(err),
			logger.StringField("symbol", snap.Symbol))
		return 0
	}
	if !ok {
		return 0
	}
	return 1
}

func (s *ingestionService) persistNews(ctx context.Context, job fetchJob, items []entity.NewsItem) int {
	written := 0
	for i := range items {
		item := items[i]
		if len(item.Symbols) == 0 {
			item.Symbols = []string{job.symbol}
		}
		if item.URL == "" {
			s.logger.Warn("Dropping news item without URL",
				logger.StringField("symbol", job.symbol),
				logger.StringField("provider", job.provider.Name()))
			continue
		}
		ok, err := s.marketDataRepo.UpsertNewsItem(ctx, &item)
		if err != nil {
			s.logger.Error("Failed to upsert news item", logger.ErrorField(err),
				logger.StringField("url", item.URL))
			continue
		}
		if ok {
			written++
		}
	}
	return written
}
