package dto

import "errors"

var (
	// ErrInvalidTrigger is returned when a dispatch names an unknown
	// trigger type.
	ErrInvalidTrigger = errors.New("invalid trigger type")

	// ErrRiskLimitExceeded rejects a candidate signal that would breach an
	// exposure cap or the daily-loss limit.
	ErrRiskLimitExceeded = errors.New("risk limit exceeded")

	// ErrInsufficientPosition rejects a sell larger than the held quantity.
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrNoRecommendation is returned when signal generation finds no
	// recommendation for the symbol.
	ErrNoRecommendation = errors.New("no recommendation available")

	// ErrNoPriceData is returned when no fill price can be determined.
	ErrNoPriceData = errors.New("no price data available")

	// ErrSymbolNotFound is returned for lookups of unknown symbols.
	ErrSymbolNotFound = errors.New("symbol not found")
)

// ErrorResponse represents a generic error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}
