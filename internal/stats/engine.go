// Package stats runs the rolling-window and trending-collection aggregation
// queries over the activity index.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/chainfeedhq/chainfeed/internal/store/types"
	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// bucketSize is the rounding granularity for stats window boundaries.
// Repeated calls inside the same bucket produce identical queries, so an
// upstream cache layer can serve them.
const bucketSize = 5 * time.Minute

// volumeField is the numeric field summed as traded volume.
const volumeField = "pricing.valueDecimal"

// Config holds the stats engine settings.
type Config struct {
	// ExcludedCollections are collection ids left out of the trending
	// aggregation (wash-traded or spam collections).
	ExcludedCollections []string `yaml:"excluded_collections"`
}

// DefaultConfig returns the default stats configuration.
func DefaultConfig() Config {
	return Config{}
}

// Engine executes aggregation queries.
type Engine struct {
	store  types.Store
	index  string
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a stats engine over the logical activity index.
func NewEngine(store types.Store, index string, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, index: index, cfg: cfg, logger: logger, now: time.Now}
}

type windowAggResult struct {
	DocCount int64 `json:"doc_count"`
	Volume   struct {
		Value float64 `json:"value"`
	} `json:"volume"`
}

// GetChainStats computes fill (sale and mint) count and volume over the last
// one and seven days. Window boundaries are floored to five-minute buckets.
func (e *Engine) GetChainStats(ctx context.Context) (*model.ChainStats, error) {
	now := floorToBucket(e.now())
	day1 := now.Add(-24 * time.Hour).Unix()
	day7 := now.Add(-7 * 24 * time.Hour).Unix()

	fillTypes := make([]interface{}, 0, 2)
	for _, t := range model.FillTypes() {
		fillTypes = append(fillTypes, string(t))
	}

	res, err := e.store.Search(ctx, e.index, types.SearchRequest{
		Query: model.BoolQuery{
			Filter: []model.Query{
				model.TermsQuery{Field: "type", Values: fillTypes},
				model.RangeQuery{Field: "timestamp", Gte: day7, Format: "epoch_second"},
			},
		},
		Aggs: map[string]model.Agg{
			"day1": windowAgg(day1),
			"day7": windowAgg(day7),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying chain stats: %w", err)
	}

	stats := &model.ChainStats{}
	for name, target := range map[string]*model.WindowStats{
		"day1": &stats.Day1,
		"day7": &stats.Day7,
	} {
		raw, ok := res.Aggs[name]
		if !ok {
			return nil, fmt.Errorf("chain stats response missing %s aggregation", name)
		}
		var parsed windowAggResult
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("decoding %s aggregation: %w", name, err)
		}
		target.Count = parsed.DocCount
		target.Volume = roundVolume(parsed.Volume.Value)
	}
	return stats, nil
}

func windowAgg(since int64) model.Agg {
	return model.FilterAgg{
		Filter: model.RangeQuery{Field: "timestamp", Gte: since, Format: "epoch_second"},
		Aggs: map[string]model.Agg{
			"volume": model.SumAgg{Field: volumeField},
		},
	}
}

type collectionBucket struct {
	Key      string `json:"key"`
	DocCount int64  `json:"doc_count"`
	Volume   struct {
		Value float64 `json:"value"`
	} `json:"volume"`
	DistinctSales struct {
		Value float64 `json:"value"`
	} `json:"distinctSales"`
	RecentSales struct {
		Hits struct {
			Hits []struct {
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	} `json:"recentSales"`
}

// TopSellingParams are the trending-collections query parameters.
type TopSellingParams struct {
	StartTime int64 // inclusive, epoch seconds
	EndTime   *int64
	FillTypes []model.ActivityType
	SortBy    model.CollectionAggSort
	Limit     int
	// IncludeRecentSales widens the representative hits per bucket from one
	// (enough for display metadata) to the eight newest sales.
	IncludeRecentSales bool
}

// GetTopSellingCollections buckets fills by collection within the time
// range, excluding the configured denylist, ordered by summed volume or by a
// distinct-transaction cardinality estimate.
func (e *Engine) GetTopSellingCollections(ctx context.Context, params TopSellingParams) ([]*model.TopSellingCollection, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}
	fills := params.FillTypes
	if len(fills) == 0 {
		fills = model.FillTypes()
	}
	fillValues := make([]interface{}, len(fills))
	for i, t := range fills {
		fillValues[i] = string(t)
	}

	timeRange := model.RangeQuery{Field: "timestamp", Gte: params.StartTime, Format: "epoch_second"}
	if params.EndTime != nil {
		timeRange.Lt = *params.EndTime
	}

	query := model.BoolQuery{
		Filter: []model.Query{
			model.TermsQuery{Field: "type", Values: fillValues},
			timeRange,
		},
	}
	if len(e.cfg.ExcludedCollections) > 0 {
		query.MustNot = []model.Query{
			model.StringTerms("collection.id", e.cfg.ExcludedCollections),
		}
	}

	orderBy := "volume"
	if params.SortBy == model.SortBySaleCount {
		orderBy = "distinctSales"
	}

	hitsPerBucket := 1
	if params.IncludeRecentSales {
		hitsPerBucket = 8
	}

	res, err := e.store.Search(ctx, e.index, types.SearchRequest{
		Query: query,
		Aggs: map[string]model.Agg{
			"collections": model.TermsAgg{
				Field:     "collection.id",
				Size:      limit,
				OrderBy:   orderBy,
				OrderDesc: true,
				Aggs: map[string]model.Agg{
					"volume":        model.SumAgg{Field: volumeField},
					"distinctSales": model.CardinalityAgg{Field: "event.txHash"},
					"recentSales": model.TopHitsAgg{
						Size: hitsPerBucket,
						Sort: []model.Sort{{Field: "timestamp", Desc: true, Format: "epoch_second"}},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying top selling collections: %w", err)
	}

	raw, ok := res.Aggs["collections"]
	if !ok {
		return nil, fmt.Errorf("top selling response missing collections aggregation")
	}
	var parsed struct {
		Buckets []collectionBucket `json:"buckets"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding collections aggregation: %w", err)
	}

	collections := make([]*model.TopSellingCollection, 0, len(parsed.Buckets))
	for _, bucket := range parsed.Buckets {
		entry := &model.TopSellingCollection{
			ID:     bucket.Key,
			Volume: roundVolume(bucket.Volume.Value),
		}
		if params.SortBy == model.SortBySaleCount {
			entry.Count = int64(bucket.DistinctSales.Value)
		} else {
			entry.Count = bucket.DocCount
		}

		for i, hit := range bucket.RecentSales.Hits.Hits {
			var doc model.ActivityDocument
			if err := json.Unmarshal(hit.Source, &doc); err != nil {
				e.logger.Warn("skipping undecodable recent sale",
					"topic", "activities-stats",
					"collection", bucket.Key,
					"error", err.Error(),
				)
				continue
			}
			// The newest hit surfaces the collection display metadata.
			if i == 0 && doc.Collection != nil {
				entry.Name = doc.Collection.Name
				entry.Image = doc.Collection.Image
			}
			if params.IncludeRecentSales {
				entry.RecentSales = append(entry.RecentSales, &doc)
			}
		}
		collections = append(collections, entry)
	}
	return collections, nil
}

// floorToBucket rounds a time down to the stats cache bucket.
func floorToBucket(t time.Time) time.Time {
	return t.UTC().Truncate(bucketSize)
}

// roundVolume rounds traded volume to two decimal places.
func roundVolume(v float64) float64 {
	return math.Round(v*100) / 100
}
