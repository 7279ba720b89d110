package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/entity"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"

	"gorm.io/gorm"
)

// In-memory repository fakes shared across the service tests.

var errFlaky = errors.New("transient upstream error")

type fakeWatchlistRepo struct {
	mu    sync.Mutex
	items map[string]entity.WatchlistItem
}

func newFakeWatchlistRepo(symbols ...string) *fakeWatchlistRepo {
	r := &fakeWatchlistRepo{items: make(map[string]entity.WatchlistItem)}
	for i, s := range symbols {
		r.items[s] = entity.WatchlistItem{ID: uint(i + 1), Symbol: s, AddedBy: "test", Priority: 1}
	}
	return r
}

func (r *fakeWatchlistRepo) Upsert(_ context.Context, item *entity.WatchlistItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[item.Symbol]; ok {
		*item = existing
		return nil
	}
	item.ID = uint(len(r.items) + 1)
	r.items[item.Symbol] = *item
	return nil
}

func (r *fakeWatchlistRepo) FindBySymbol(_ context.Context, symbol string) (*entity.WatchlistItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item, ok := r.items[symbol]; ok {
		return &item, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeWatchlistRepo) FindAll(_ context.Context) ([]entity.WatchlistItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.WatchlistItem, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (r *fakeWatchlistRepo) Delete(_ context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, symbol)
	return nil
}

func (r *fakeWatchlistRepo) Symbols(ctx context.Context) ([]string, error) {
	items, _ := r.FindAll(ctx)
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Symbol)
	}
	return out, nil
}

type barKey struct {
	symbol string
	ts     time.Time
}

type fakeMarketDataRepo struct {
	mu           sync.Mutex
	bars         map[barKey]entity.PriceBar
	fundamentals map[string]entity.FundamentalSnapshot
	news         map[string]entity.NewsItem
}

func newFakeMarketDataRepo() *fakeMarketDataRepo {
	return &fakeMarketDataRepo{
		bars:         make(map[barKey]entity.PriceBar),
		fundamentals: make(map[string]entity.FundamentalSnapshot),
		news:         make(map[string]entity.NewsItem),
	}
}

func (r *fakeMarketDataRepo) seedBars(symbol string, closes ...float64) {
	base := time.Date(2026, 8, 1, 16, 0, 0, 0, time.UTC)
	for i, c := range closes {
		ts := base.AddDate(0, 0, i)
		r.bars[barKey{symbol, ts}] = entity.PriceBar{
			Symbol: symbol, Timestamp: ts,
			Open: c, High: c, Low: c, Close: c,
			Volume: 1000, Provider: "seed", ProviderPriority: 1,
		}
	}
}

func (r *fakeMarketDataRepo) UpsertPriceBar(_ context.Context, bar *entity.PriceBar) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := barKey{bar.Symbol, bar.Timestamp}
	if existing, ok := r.bars[key]; ok && existing.ProviderPriority >= bar.ProviderPriority {
		return false, nil
	}
	r.bars[key] = *bar
	return true, nil
}

func (r *fakeMarketDataRepo) UpsertFundamentals(_ context.Context, snap *entity.FundamentalSnapshot) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.fundamentals[snap.Symbol]; ok && existing.ProviderPriority >= snap.ProviderPriority {
		return false, nil
	}
	r.fundamentals[snap.Symbol] = *snap
	return true, nil
}

func (r *fakeMarketDataRepo) UpsertNewsItem(_ context.Context, item *entity.NewsItem) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.news[item.URL]; ok {
		return false, nil
	}
	r.news[item.URL] = *item
	return true, nil
}

func (r *fakeMarketDataRepo) LatestBars(_ context.Context, symbol string, limit int) ([]entity.PriceBar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.PriceBar
	for key, bar := range r.bars {
		if key.symbol == symbol {
			out = append(out, bar)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeMarketDataRepo) LatestClose(ctx context.Context, symbol string) (float64, error) {
	bars, _ := r.LatestBars(ctx, symbol, 1)
	if len(bars) == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return bars[0].Close, nil
}

func (r *fakeMarketDataRepo) LatestFundamentals(_ context.Context, symbol string) (*entity.FundamentalSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if snap, ok := r.fundamentals[symbol]; ok {
		return &snap, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeMarketDataRepo) RecentNews(_ context.Context, symbol string, since time.Time) ([]entity.NewsItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.NewsItem
	for _, item := range r.news {
		if item.PublishedAt.Before(since) {
			continue
		}
		for _, s := range item.Symbols {
			if s == symbol {
				out = append(out, item)
				break
			}
		}
	}
	return out, nil
}

type fakePositionRepo struct {
	mu        sync.Mutex
	positions map[uint]entity.Position
	nextID    uint
}

func newFakePositionRepo() *fakePositionRepo {
	return &fakePositionRepo{positions: make(map[uint]entity.Position), nextID: 1}
}

func (r *fakePositionRepo) Save(_ context.Context, position *entity.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if position.ID == 0 {
		position.ID = r.nextID
		r.nextID++
	}
	r.positions[position.ID] = *position
	return nil
}

func (r *fakePositionRepo) ActiveBySymbol(_ context.Context, symbol string) (*entity.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.positions {
		if p.Symbol == symbol && p.Status == entity.PositionStatusActive {
			cp := p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakePositionRepo) AllActive(_ context.Context) ([]entity.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Position
	for _, p := range r.positions {
		if p.Status == entity.PositionStatusActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (r *fakePositionRepo) History(_ context.Context, limit int) ([]entity.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Position
	for _, p := range r.positions {
		if p.Status == entity.PositionStatusClosed {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeTransactionRepo struct {
	mu  sync.Mutex
	txs []entity.Transaction
}

func newFakeTransactionRepo() *fakeTransactionRepo { return &fakeTransactionRepo{} }

func (r *fakeTransactionRepo) Create(_ context.Context, tx *entity.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx.ID = int64(len(r.txs) + 1)
	r.txs = append(r.txs, *tx)
	return nil
}

func (r *fakeTransactionRepo) FindRecent(_ context.Context, limit int) ([]entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.Transaction, len(r.txs))
	copy(out, r.txs)
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeRiskStateRepo struct {
	mu     sync.Mutex
	states map[string]entity.RiskState
}

func newFakeRiskStateRepo() *fakeRiskStateRepo {
	return &fakeRiskStateRepo{states: make(map[string]entity.RiskState)}
}

func (r *fakeRiskStateRepo) GetOrCreate(_ context.Context, symbol string) (*entity.RiskState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.states[symbol]; ok {
		cp := state
		return &cp, nil
	}
	state := entity.RiskState{ID: uint(len(r.states) + 1), Symbol: symbol, LastResetDate: time.Now()}
	r.states[symbol] = state
	cp := state
	return &cp, nil
}

func (r *fakeRiskStateRepo) Save(_ context.Context, state *entity.RiskState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.Symbol] = *state
	return nil
}

func (r *fakeRiskStateRepo) FindAll(_ context.Context) ([]entity.RiskState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.RiskState, 0, len(r.states))
	for _, state := range r.states {
		out = append(out, state)
	}
	return out, nil
}

type fakeSignalRepo struct {
	mu      sync.Mutex
	signals map[int64]entity.TradeSignal
	nextID  int64
}

func newFakeSignalRepo() *fakeSignalRepo {
	return &fakeSignalRepo{signals: make(map[int64]entity.TradeSignal), nextID: 1}
}

func (r *fakeSignalRepo) Create(_ context.Context, signal *entity.TradeSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	signal.ID = r.nextID
	signal.CreatedAt = time.Now()
	r.nextID++
	r.signals[signal.ID] = *signal
	return nil
}

func (r *fakeSignalRepo) Update(_ context.Context, signal *entity.TradeSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals[signal.ID] = *signal
	return nil
}

func (r *fakeSignalRepo) ActiveBySymbol(_ context.Context, symbol string) (*entity.TradeSignal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *entity.TradeSignal
	for id := range r.signals {
		signal := r.signals[id]
		if signal.Symbol != symbol || signal.State != entity.SignalStateActive {
			continue
		}
		if newest == nil || signal.CreatedAt.After(newest.CreatedAt) {
			cp := signal
			newest = &cp
		}
	}
	if newest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return newest, nil
}

func (r *fakeSignalRepo) AllActive(_ context.Context) ([]entity.TradeSignal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.TradeSignal
	for _, signal := range r.signals {
		if signal.State == entity.SignalStateActive {
			out = append(out, signal)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSignalRepo) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, signal := range r.signals {
		if signal.State == entity.SignalStateActive && signal.ExpiresAt != nil && signal.ExpiresAt.Before(now) {
			signal.State = entity.SignalStateExpired
			r.signals[id] = signal
			n++
		}
	}
	return n, nil
}

type fakeRecommendationRepo struct {
	mu   sync.Mutex
	recs []entity.Recommendation
}

func newFakeRecommendationRepo() *fakeRecommendationRepo { return &fakeRecommendationRepo{} }

func (r *fakeRecommendationRepo) Append(_ context.Context, rec *entity.Recommendation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ID = int64(len(r.recs) + 1)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	r.recs = append(r.recs, *rec)
	return nil
}

func (r *fakeRecommendationRepo) LatestBySymbol(_ context.Context, symbol string) (*entity.Recommendation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.recs) - 1; i >= 0; i-- {
		if r.recs[i].Symbol == symbol {
			cp := r.recs[i]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRecommendationRepo) FindSince(_ context.Context, since time.Time) ([]entity.Recommendation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Recommendation
	for _, rec := range r.recs {
		if !rec.CreatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeScoringRepo struct {
	scoreFn func(symbol string) (*dto.ScoreResult, error)
}

func (r *fakeScoringRepo) Score(_ context.Context, features dto.FeatureSnapshot) (*dto.ScoreResult, error) {
	return r.scoreFn(features.Symbol)
}

type fakeProvider struct {
	name     string
	priority int
	kinds    map[dto.DataKind]bool

	mu        sync.Mutex
	calls     int
	failTimes int
	bars      []entity.PriceBar
	snap      *entity.FundamentalSnapshot
	news      []entity.NewsItem
	err       error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Priority() int { return p.priority }

func (p *fakeProvider) Supports(k dto.DataKind) bool { return p.kinds[k] }

func (p *fakeProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) ResetCallCount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = 0
}

func (p *fakeProvider) maybeFail() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	if p.failTimes > 0 {
		p.failTimes--
		return errFlaky
	}
	return nil
}

func (p *fakeProvider) FetchPrices(_ context.Context, symbol string) ([]entity.PriceBar, error) {
	if err := p.maybeFail(); err != nil {
		return nil, err
	}
	out := make([]entity.PriceBar, len(p.bars))
	copy(out, p.bars)
	for i := range out {
		out[i].Symbol = symbol
		out[i].Provider = p.name
		out[i].ProviderPriority = p.priority
	}
	return out, nil
}

func (p *fakeProvider) FetchFundamentals(_ context.Context, symbol string) (*entity.FundamentalSnapshot, error) {
	if err := p.maybeFail(); err != nil {
		return nil, err
	}
	if p.snap == nil {
		return nil, nil
	}
	cp := *p.snap
	cp.Symbol = symbol
	cp.Provider = p.name
	cp.ProviderPriority = p.priority
	return &cp, nil
}

func (p *fakeProvider) FetchNews(_ context.Context, symbol string) ([]entity.NewsItem, error) {
	if err := p.maybeFail(); err != nil {
		return nil, err
	}
	out := make([]entity.NewsItem, len(p.news))
	copy(out, p.news)
	for i := range out {
		out[i].Symbols = []string{symbol}
		out[i].Provider = p.name
	}
	return out, nil
}

type fakeNotifier struct {
	mu         sync.Mutex
	signals    []string
	rejections []string
}

func (n *fakeNotifier) SendMessage(string) error { return nil }

func (n *fakeNotifier) NotifySignal(symbol, verdict string, _ int64, _ float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signals = append(n.signals, symbol+":"+verdict)
	return nil
}

func (n *fakeNotifier) NotifyRejection(symbol, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejections = append(n.rejections, symbol+":"+reason)
	return nil
}
