// Package consistency propagates upstream metadata changes into
// already-indexed activity documents. There is no reverse index of affected
// document ids; each pass scans for stale documents and patches one bounded
// batch, trading query-time cost for zero index-maintenance overhead.
package consistency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chainfeedhq/chainfeed/internal/store/types"
	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// MaxBatch bounds the candidate set of one propagation pass. A full batch
// implies more stale documents may remain.
const MaxBatch = 1000

// conflictRetries is the store-side optimistic-concurrency retry count for
// each scripted update, absorbing races against concurrent writers.
const conflictRetries = 3

// TokenData is the new token metadata. Nil fields remove the denormalized
// value; non-nil fields overwrite it.
type TokenData struct {
	Name  *string
	Image *string
	Media *string
}

// CollectionData is the new collection metadata, with the same nil/non-nil
// semantics as TokenData.
type CollectionData struct {
	Name  *string
	Image *string
}

// Engine runs scan-then-scripted-update propagation passes. Each call
// handles at most one batch and returns keepGoing; the scheduled job owning
// the cadence re-invokes until keepGoing is false. The engine itself never
// loops or schedules.
type Engine struct {
	store  types.Store
	index  string
	logger *slog.Logger
}

// NewEngine creates a consistency engine over the logical activity index.
func NewEngine(store types.Store, index string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, index: index, logger: logger}
}

// fieldChange is one denormalized sub-field to set or remove.
type fieldChange struct {
	path  string  // dotted document path, e.g. "collection.name"
	value *string // nil removes the field
}

// BackfillMissingCollection attaches a collection to activities of a token
// that were indexed before the token's collection was known.
func (e *Engine) BackfillMissingCollection(ctx context.Context, contract, tokenID string, collection model.CollectionInfo) (bool, error) {
	changes := []fieldChange{
		{path: "collection.id", value: &collection.ID},
	}
	if collection.Name != "" {
		changes = append(changes, fieldChange{path: "collection.name", value: &collection.Name})
	}
	if collection.Image != "" {
		changes = append(changes, fieldChange{path: "collection.image", value: &collection.Image})
	}
	return e.propagate(ctx, "backfill-missing-collection", tokenIdentity(contract, tokenID), changes)
}

// ReassignCollection moves a token's activities to a different collection.
func (e *Engine) ReassignCollection(ctx context.Context, contract, tokenID, collectionID string) (bool, error) {
	changes := []fieldChange{{path: "collection.id", value: &collectionID}}
	return e.propagate(ctx, "reassign-collection", tokenIdentity(contract, tokenID), changes)
}

// RefreshTokenMetadata propagates new token name/image/media onto the
// token's activities.
func (e *Engine) RefreshTokenMetadata(ctx context.Context, contract, tokenID string, data TokenData) (bool, error) {
	changes := []fieldChange{
		{path: "token.name", value: data.Name},
		{path: "token.image", value: data.Image},
		{path: "token.media", value: data.Media},
	}
	return e.propagate(ctx, "refresh-token-metadata", tokenIdentity(contract, tokenID), changes)
}

// RefreshCollectionMetadata propagates new collection name/image onto all of
// the collection's activities.
func (e *Engine) RefreshCollectionMetadata(ctx context.Context, collectionID string, data CollectionData) (bool, error) {
	identity := []model.Query{model.TermQuery{Field: "collection.id", Value: collectionID}}
	changes := []fieldChange{
		{path: "collection.name", value: data.Name},
		{path: "collection.image", value: data.Image},
	}
	return e.propagate(ctx, "refresh-collection-metadata", identity, changes)
}

func tokenIdentity(contract, tokenID string) []model.Query {
	return []model.Query{
		model.TermQuery{Field: "contract", Value: strings.ToLower(contract)},
		model.TermQuery{Field: "token.id", Value: tokenID},
	}
}

// propagate runs one scan-then-patch pass: select documents whose
// denormalized fields are absent or stale relative to the new values, fetch
// up to MaxBatch candidate ids (with their physical index, since the alias
// may span generations), and submit one bulk scripted update.
func (e *Engine) propagate(ctx context.Context, op string, identity []model.Query, changes []fieldChange) (bool, error) {
	query := model.BoolQuery{
		Filter: append(identity, model.BoolQuery{
			Should:             stalenessClauses(changes),
			MinimumShouldMatch: 1,
		}),
	}

	res, err := e.store.Search(ctx, e.index, types.SearchRequest{
		Query:  query,
		Size:   MaxBatch,
		Source: []string{"id"},
	})
	if err != nil {
		return e.deferOrFail(op, "scan", err)
	}
	if len(res.Hits) == 0 {
		return false, nil
	}

	script := buildScript(changes)
	ops := make([]types.BulkOp, len(res.Hits))
	for i, hit := range res.Hits {
		ops[i] = types.BulkOp{
			Action:          types.ActionUpdate,
			Index:           hit.Index,
			ID:              hit.ID,
			Script:          script,
			RetryOnConflict: conflictRetries,
		}
	}

	result, err := e.store.Bulk(ctx, ops)
	if err != nil {
		return e.deferOrFail(op, "update", err)
	}

	keepGoing := len(res.Hits) == MaxBatch
	for _, item := range result.FailedItems() {
		// A stale-version conflict means a concurrent writer won after the
		// store's own retries; the next pass converges it. Anything else
		// asks for a re-invocation.
		if item.Status == 409 || item.ErrorType == "version_conflict_engine_exception" {
			continue
		}
		keepGoing = true
		e.logger.Warn("propagation batch item failed",
			"topic", "activities-consistency",
			"op", op,
			"id", item.ID,
			"status", item.Status,
			"error", item.Reason,
		)
	}

	e.logger.Info("propagation pass complete",
		"topic", "activities-consistency",
		"op", op,
		"candidates", len(res.Hits),
		"keepGoing", keepGoing,
	)
	return keepGoing, nil
}

// stalenessClauses builds the disjunction selecting documents out of sync
// with the new values. A non-nil value selects documents not already holding
// it (missing included); a nil value selects documents still carrying the
// field.
func stalenessClauses(changes []fieldChange) []model.Query {
	clauses := make([]model.Query, 0, len(changes))
	for _, c := range changes {
		if c.value != nil {
			clauses = append(clauses, model.BoolQuery{
				MustNot: []model.Query{model.TermQuery{Field: c.path, Value: *c.value}},
			})
		} else {
			clauses = append(clauses, model.ExistsQuery{Field: c.path})
		}
	}
	return clauses
}

// buildScript emits the partial-update script. Each sub-field is set or
// removed individually so concurrent updates to sibling fields are never
// clobbered.
func buildScript(changes []fieldChange) *types.Script {
	var sb strings.Builder
	params := map[string]interface{}{}
	ensured := map[string]bool{}

	for _, c := range changes {
		parent, field, _ := strings.Cut(c.path, ".")
		if c.value != nil {
			if !ensured[parent] {
				fmt.Fprintf(&sb, "if (ctx._source.%s == null) { ctx._source.%s = [:]; } ", parent, parent)
				ensured[parent] = true
			}
			param := parent + "_" + field
			fmt.Fprintf(&sb, "ctx._source.%s.%s = params.%s; ", parent, field, param)
			params[param] = *c.value
		} else {
			fmt.Fprintf(&sb, "if (ctx._source.%s != null) { ctx._source.%s.remove('%s'); } ", parent, parent, field)
		}
	}

	return &types.Script{Source: strings.TrimSpace(sb.String()), Params: params}
}

// deferOrFail decides whether a failed pass is re-run later or surfaced.
// Transient store trouble, retry exhaustion included, defers to the next
// scheduled invocation; fatal errors propagate.
func (e *Engine) deferOrFail(op, stage string, err error) (bool, error) {
	if model.IsTransient(err) || errors.Is(err, model.ErrStoreUnavailable) {
		e.logger.Warn("propagation pass deferred",
			"topic", "activities-consistency",
			"op", op,
			"stage", stage,
			"error", err.Error(),
		)
		return true, nil
	}
	return false, fmt.Errorf("%s %s: %w", op, stage, err)
}
