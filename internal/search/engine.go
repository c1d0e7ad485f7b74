package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/chainfeedhq/chainfeed/internal/store/types"
	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// DefaultLimit is the page size applied when the caller does not set one.
const DefaultLimit = 20

// Engine executes cursor-paginated searches against the activity index.
type Engine struct {
	store  types.Store
	index  string
	logger *slog.Logger
}

// NewEngine creates a search engine over the logical activity index. The
// store is expected to already carry the retry layer.
func NewEngine(store types.Store, index string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, index: index, logger: logger}
}

// Search returns one page of activities plus the continuation for the next
// page. A continuation is emitted only when the page came back exactly full:
// a full page may have more matches behind it, while a short page is
// exhausted. The tradeoff is one extra empty follow-up call when the match
// count is an exact multiple of the limit, in exchange for never running a
// total-count query.
func (e *Engine) Search(ctx context.Context, params model.SearchParams) (*model.SearchResult, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	sort := buildSort(params)

	searchAfter, err := seedSearchAfter(params)
	if err != nil {
		return nil, err
	}

	res, err := e.store.Search(ctx, e.index, types.SearchRequest{
		Query:       model.BoolQuery{Filter: BuildFilters(params)},
		Sort:        sort,
		SearchAfter: searchAfter,
		Size:        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("searching activities: %w", err)
	}

	activities := make([]*model.ActivityDocument, 0, len(res.Hits))
	for _, hit := range res.Hits {
		var doc model.ActivityDocument
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			e.logger.Warn("skipping undecodable activity hit",
				"topic", "activities-search",
				"index", hit.Index,
				"id", hit.ID,
				"error", err.Error(),
			)
			continue
		}
		activities = append(activities, &doc)
	}

	result := &model.SearchResult{Activities: activities}
	if len(res.Hits) == limit {
		last := res.Hits[len(res.Hits)-1]
		if params.IntegerContinuation {
			// Raw numeric passthrough for the legacy cursor consumer.
			if len(last.Sort) > 0 {
				result.Continuation = stringifySortValue(last.Sort[0])
			}
		} else {
			result.Continuation = EncodeContinuation(last.Sort)
		}
	}
	return result, nil
}

// buildSort chooses the sort: event timestamp descending (epoch-second
// formatted) or ingestion time descending, the default. An id tie-break is
// appended unless the caller opted into the integer continuation carve-out,
// whose cursors carry a single numeric component.
func buildSort(params model.SearchParams) []model.Sort {
	var sort []model.Sort
	if params.SortBy == model.SortTimestamp {
		sort = append(sort, model.Sort{Field: "timestamp", Desc: true, Format: "epoch_second"})
	} else {
		sort = append(sort, model.Sort{Field: "createdAt", Desc: true})
	}
	if !params.IntegerContinuation {
		sort = append(sort, model.Sort{Field: "id", Desc: true})
	}
	return sort
}

// seedSearchAfter decodes the caller's continuation, if any, into the sort
// tuple the next page resumes from.
func seedSearchAfter(params model.SearchParams) ([]interface{}, error) {
	if params.Continuation == "" {
		return nil, nil
	}

	if params.IntegerContinuation {
		n, err := strconv.ParseInt(params.Continuation, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: not an integer cursor", model.ErrMalformedContinuation)
		}
		return []interface{}{n}, nil
	}

	components, err := DecodeContinuation(params.Continuation)
	if err != nil {
		return nil, err
	}
	searchAfter := make([]interface{}, len(components))
	for i, c := range components {
		searchAfter[i] = c
	}
	return searchAfter, nil
}
