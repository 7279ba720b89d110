package dto

import "github.com/dhumphrey11/moda-trading/internal/entity"

// RecommendRequest scopes a scoring batch.
type RecommendRequest struct {
	Symbols []string `json:"symbols"`
}

// FeatureSnapshot is the typed feature set handed to the scorer, assembled
// from the market data store as of the most recent ingestion. Extra is an
// explicit opaque-metadata map; business logic never reads through it.
type FeatureSnapshot struct {
	Symbol        string             `json:"symbol"`
	LatestClose   float64            `json:"latest_close"`
	Return5d      float64            `json:"return_5d"`
	Return20d     float64            `json:"return_20d"`
	Volatility20d float64            `json:"volatility_20d"`
	AvgVolume20d  float64            `json:"avg_volume_20d"`
	PERatio       float64            `json:"pe_ratio,omitempty"`
	EPS           float64            `json:"eps,omitempty"`
	NewsCount7d   int                `json:"news_count_7d"`
	NewsSentiment float64            `json:"news_sentiment"`
	Extra         map[string]float64 `json:"extra,omitempty"`
}

// ScoreResult is what the external scoring function returns for one symbol.
type ScoreResult struct {
	Symbol       string  `json:"symbol"`
	Verdict      string  `json:"verdict"`
	Confidence   float64 `json:"confidence"`
	PriceTarget  float64 `json:"price_target,omitempty"`
	StopLoss     float64 `json:"stop_loss,omitempty"`
	ModelVersion string  `json:"model_version"`
}

// SymbolFailure records one symbol that produced no recommendation.
type SymbolFailure struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// RecommendationBatch is the structured outcome of one scoring batch. A
// failed symbol never fails the batch.
type RecommendationBatch struct {
	Recommendations []entity.Recommendation `json:"recommendations"`
	Failures        []SymbolFailure         `json:"failures,omitempty"`
}
