// Package types defines the document-store primitives the engine depends on.
// The engine is written against this interface only; the concrete store is an
// opaque external service reachable over a query/mutation protocol.
package types

import (
	"context"
	"encoding/json"

	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// SearchRequest is one query submission. Aggregation-only requests set Size
// to zero.
type SearchRequest struct {
	Query model.Query
	Sort  []model.Sort

	// SearchAfter resumes from a previous page's last sort tuple.
	SearchAfter []interface{}

	Size int

	// Source restricts the returned fields. Empty returns the whole document.
	Source []string

	Aggs map[string]model.Agg
}

// Hit is one matched document. Index is the physical index generation holding
// the document, which may differ from the logical alias the query targeted.
type Hit struct {
	Index  string
	ID     string
	Source json.RawMessage
	Sort   []interface{}
}

// SearchResult is a query response: hits plus raw aggregation payloads keyed
// by aggregation name.
type SearchResult struct {
	Hits  []Hit
	Total int64
	Aggs  map[string]json.RawMessage
}

// BulkAction selects the semantics of one bulk operation.
type BulkAction string

const (
	// ActionIndex replaces the document keyed on ID. Safe for redelivery.
	ActionIndex BulkAction = "index"

	// ActionCreate fails per-document on a duplicate ID. Used when strict
	// first-write-wins is required.
	ActionCreate BulkAction = "create"

	// ActionUpdate applies a scripted partial update with conflict retry.
	ActionUpdate BulkAction = "update"

	// ActionDelete removes the document. Absent IDs are not errors.
	ActionDelete BulkAction = "delete"
)

// Script is a stored-procedure-style partial update applied server-side.
type Script struct {
	Source string                 `json:"source"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// BulkOp is one operation in a bulk submission.
type BulkOp struct {
	Action BulkAction
	Index  string
	ID     string

	// Doc is the document body for index/create actions.
	Doc interface{}

	// Script is the update script for update actions.
	Script *Script

	// RetryOnConflict is the store-side optimistic-concurrency retry count
	// for update actions.
	RetryOnConflict int
}

// BulkItemResult is the per-item outcome of a bulk submission.
type BulkItemResult struct {
	ID        string
	Status    int
	ErrorType string
	Reason    string
}

// Failed reports whether the item was rejected by the store.
func (r BulkItemResult) Failed() bool {
	return r.Status >= 300
}

// BulkResult is a bulk response. Partial per-item failure does not fail the
// call; callers inspect Items and decide whether to redeliver.
type BulkResult struct {
	Errors bool
	Items  []BulkItemResult
}

// FailedItems returns the rejected items.
func (r *BulkResult) FailedItems() []BulkItemResult {
	var failed []BulkItemResult
	for _, item := range r.Items {
		if item.Failed() {
			failed = append(failed, item)
		}
	}
	return failed
}

// Store is the query/mutation protocol consumed by the engine.
type Store interface {
	// Search executes a filter/aggregation query against a logical index.
	Search(ctx context.Context, index string, req SearchRequest) (*SearchResult, error)

	// Bulk submits a batch of mutations with per-item error reporting.
	Bulk(ctx context.Context, ops []BulkOp) (*BulkResult, error)

	// Count returns the number of documents matching the query.
	Count(ctx context.Context, index string, query model.Query) (int64, error)

	// ResolveAlias returns the physical index the alias points at, or
	// model.ErrIndexNotFound when the alias does not resolve.
	ResolveAlias(ctx context.Context, alias string) (string, error)

	// CreateIndexWithAlias creates a physical index and assigns the alias in
	// the same atomic store operation.
	CreateIndexWithAlias(ctx context.Context, index, alias string, mapping json.RawMessage) error

	// PutMapping applies an additive mapping update to a physical index. The
	// store rejects destructive changes.
	PutMapping(ctx context.Context, index string, mapping json.RawMessage) error
}
