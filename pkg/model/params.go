package model

// TokenRef identifies a single token within a contract.
type TokenRef struct {
	Contract string
	TokenID  string
}

// SortField selects the search sort order.
type SortField string

const (
	// SortCreatedAt orders by ingestion time, newest first. The default.
	SortCreatedAt SortField = "createdAt"

	// SortTimestamp orders by on-chain event time, newest first.
	SortTimestamp SortField = "timestamp"
)

// SearchParams are the structured filters accepted by the search engine.
// Absent filters add no clause at all.
type SearchParams struct {
	Types       []ActivityType
	Tokens      []TokenRef
	Contracts   []string
	Collections []string
	Sources     []string

	// Users filters on sender or receiver. Addresses are case-normalized to
	// lowercase before matching.
	Users []string

	// StartTimestamp is an inclusive lower bound, epoch seconds.
	StartTimestamp *int64
	// EndTimestamp is an exclusive upper bound, epoch seconds.
	EndTimestamp *int64

	SortBy       SortField
	Limit        int
	Continuation string

	// IntegerContinuation keeps the raw numeric cursor format a legacy
	// consumer depends on: no id tie-break is appended to the sort and the
	// cursor is passed through unencoded. A backward-compatibility carve-out,
	// not a general mode.
	IntegerContinuation bool
}

// SearchResult is one page of activities plus the cursor for the next page.
// An empty Continuation means the result set is exhausted.
type SearchResult struct {
	Activities   []*ActivityDocument
	Continuation string
}

// ChainStats are rolling-window fill counts and volumes.
type ChainStats struct {
	Day1 WindowStats `json:"1day"`
	Day7 WindowStats `json:"7day"`
}

// WindowStats is the fill count and volume for one rolling window.
type WindowStats struct {
	Count  int64   `json:"count"`
	Volume float64 `json:"volume"`
}

// CollectionAggSort selects the ordering of top-selling collection buckets.
type CollectionAggSort string

const (
	SortByVolume    CollectionAggSort = "volume"
	SortBySaleCount CollectionAggSort = "salesCount"
)

// TopSellingCollection is one bucket of the trending-collections aggregation.
type TopSellingCollection struct {
	ID          string              `json:"id"`
	Count       int64               `json:"count"`
	Volume      float64             `json:"volume"`
	Name        string              `json:"name,omitempty"`
	Image       string              `json:"image,omitempty"`
	RecentSales []*ActivityDocument `json:"recentSales,omitempty"`
}
