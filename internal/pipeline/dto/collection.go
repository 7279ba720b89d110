package dto

// DataKind selects which market-data categories a collection covers.
type DataKind string

const (
	DataKindPrice        DataKind = "price"
	DataKindFundamentals DataKind = "fundamentals"
	DataKindNews         DataKind = "news"
)

// AllDataKinds is the default scope when a collect request names no kinds.
func AllDataKinds() []DataKind {
	return []DataKind{DataKindPrice, DataKindFundamentals, DataKindNews}
}

// CollectRequest scopes a collection run.
type CollectRequest struct {
	Symbols []string   `json:"symbols,omitempty"`
	Kinds   []DataKind `json:"kinds,omitempty"`
}

// SymbolStatus summarizes one symbol inside a batch.
type SymbolStatus string

const (
	SymbolStatusSuccess SymbolStatus = "success"
	SymbolStatusPartial SymbolStatus = "partial"
	SymbolStatusFailed  SymbolStatus = "failed"
)

// FetchError records one failed (symbol, provider, kind) fetch. Failures are
// isolated; they never abort the rest of the collection.
type FetchError struct {
	Symbol   string   `json:"symbol"`
	Provider string   `json:"provider"`
	Kind     DataKind `json:"kind"`
	Attempts int      `json:"attempts"`
	Error    string   `json:"error"`
}

// SymbolCollection is the per-symbol slice of a collection result.
type SymbolCollection struct {
	Symbol       string       `json:"symbol"`
	Status       SymbolStatus `json:"status"`
	BarsWritten  int          `json:"bars_written"`
	ItemsWritten int          `json:"items_written"`
	Errors       []FetchError `json:"errors,omitempty"`
}

// CollectionResult is the structured outcome of one collection run.
type CollectionResult struct {
	Symbols      []SymbolCollection `json:"symbols"`
	TotalWritten int                `json:"total_written"`
	Partial      bool               `json:"partial"`
}

// Status derives the overall batch status from the per-symbol statuses.
func (r *CollectionResult) Status() SymbolStatus {
	if len(r.Symbols) == 0 {
		return SymbolStatusSuccess
	}
	failed, succeeded := 0, 0
	for _, s := range r.Symbols {
		switch s.Status {
		case SymbolStatusFailed:
			failed++
		case SymbolStatusSuccess:
			succeeded++
		}
	}
	if failed == len(r.Symbols) {
		return SymbolStatusFailed
	}
	if succeeded == len(r.Symbols) {
		return SymbolStatusSuccess
	}
	return SymbolStatusPartial
}
