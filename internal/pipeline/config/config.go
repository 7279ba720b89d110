package config

import (
	"github.com/dhumphrey11/moda-trading/pkg/config"
)

// Provider describes one upstream market-data provider. Priority breaks ties
// when several providers return the same bar; higher wins.
type Provider struct {
	Name      string   `mapstructure:"name"`
	BaseURL   string   `mapstructure:"base_url"`
	APIKey    string   `mapstructure:"api_key"`
	Priority  int      `mapstructure:"priority"`
	RateLimit float64  `mapstructure:"rate_limit"` // requests per second
	Burst     int      `mapstructure:"burst"`
	DailyCap  int      `mapstructure:"daily_cap"`
	Kinds     []string `mapstructure:"kinds"`
	FeedURL   string   `mapstructure:"feed_url"` // set for RSS news providers
}

// Ingestion holds collection fan-out settings.
type Ingestion struct {
	MaxWorkers     int        `mapstructure:"max_workers"`
	FetchTimeout   string     `mapstructure:"fetch_timeout"`
	MaxAttempts    int        `mapstructure:"max_attempts"`
	InitialBackoff string     `mapstructure:"initial_backoff"`
	Providers      []Provider `mapstructure:"providers"`
}

// Scoring selects and configures the external scoring function.
type Scoring struct {
	Provider     string `mapstructure:"provider"` // "http" or "gemini"
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	Timeout      string `mapstructure:"timeout"`
	MaxInFlight  int    `mapstructure:"max_in_flight"`
	ModelVersion string `mapstructure:"model_version"`
}

// Risk holds the strategy engine's gating parameters.
type Risk struct {
	MaxPositionSizePct  float64 `mapstructure:"max_position_size_pct"`
	MaxTotalExposurePct float64 `mapstructure:"max_total_exposure_pct"`
	MaxActivePositions  int     `mapstructure:"max_active_positions"`
	StopLossPct         float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct       float64 `mapstructure:"take_profit_pct"`
	MinConfidence       float64 `mapstructure:"min_confidence"`
	DailyLossLimit      float64 `mapstructure:"daily_loss_limit"`
	BasePortfolioValue  float64 `mapstructure:"base_portfolio_value"`
	SignalTTL           string  `mapstructure:"signal_ttl"`
}

// Ledger holds simulated-fill settings.
type Ledger struct {
	FeeRate float64 `mapstructure:"fee_rate"`
}

// TriggerSchedule binds a cron expression to a trigger type.
type TriggerSchedule struct {
	Type string `mapstructure:"type"`
	Cron string `mapstructure:"cron"`
}

// Scheduler holds cron schedule definitions with an explicit timezone.
type Scheduler struct {
	Timezone       string            `mapstructure:"timezone"`
	Schedules      []TriggerSchedule `mapstructure:"schedules"`
	StageDeadline  string            `mapstructure:"stage_deadline"`
	OutcomeTTL     string            `mapstructure:"outcome_ttl"`
	ExpirySweep    string            `mapstructure:"expiry_sweep_interval"`
	UseRedisStore  bool              `mapstructure:"use_redis_store"`
	StreamReadWait string            `mapstructure:"stream_read_wait"`
}

// Health lists downstream dependencies polled by the health aggregator.
type Health struct {
	MaxConcurrent int               `mapstructure:"max_concurrent"`
	Timeout       string            `mapstructure:"timeout"`
	Services      map[string]string `mapstructure:"services"`
}

// Telegram holds notification settings.
type Telegram struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Config holds the full configuration for the pipeline service.
type Config struct {
	App       config.App      `mapstructure:"app"`
	Logger    config.Logger   `mapstructure:"logger"`
	Database  config.Database `mapstructure:"database"`
	Redis     config.Redis    `mapstructure:"redis"`
	API       config.API      `mapstructure:"api"`
	Ingestion Ingestion       `mapstructure:"ingestion"`
	Scoring   Scoring         `mapstructure:"scoring"`
	Risk      Risk            `mapstructure:"risk"`
	Ledger    Ledger          `mapstructure:"ledger"`
	Scheduler Scheduler       `mapstructure:"scheduler"`
	Health    Health          `mapstructure:"health"`
	Telegram  Telegram        `mapstructure:"telegram"`
}

// Load loads the pipeline configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
