// Package storetest provides a scriptable fake Store for package tests.
package storetest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/chainfeedhq/chainfeed/internal/store/types"
	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// Fake is an in-memory Store whose behavior is scripted per call. Zero value
// is ready to use: every operation succeeds with empty results.
type Fake struct {
	mu sync.Mutex

	// SearchFunc, when set, handles Search calls. Otherwise SearchResults
	// are returned in order, then empty results.
	SearchFunc    func(ctx context.Context, index string, req types.SearchRequest) (*types.SearchResult, error)
	SearchResults []*types.SearchResult

	BulkFunc    func(ctx context.Context, ops []types.BulkOp) (*types.BulkResult, error)
	BulkResults []*types.BulkResult

	CountFunc func(ctx context.Context, index string, query model.Query) (int64, error)

	ResolveAliasFunc func(ctx context.Context, alias string) (string, error)
	CreateIndexFunc  func(ctx context.Context, index, alias string, mapping json.RawMessage) error
	PutMappingFunc   func(ctx context.Context, index string, mapping json.RawMessage) error

	// Recorded calls.
	SearchCalls  []SearchCall
	BulkCalls    [][]types.BulkOp
	CreateCalls  []CreateCall
	MappingCalls []string
	AliasCalls   []string

	searchIdx int
	bulkIdx   int
}

var _ types.Store = (*Fake)(nil)

// SearchCall records one Search invocation.
type SearchCall struct {
	Index   string
	Request types.SearchRequest
}

// CreateCall records one CreateIndexWithAlias invocation.
type CreateCall struct {
	Index string
	Alias string
}

func (f *Fake) Search(ctx context.Context, index string, req types.SearchRequest) (*types.SearchResult, error) {
	f.mu.Lock()
	f.SearchCalls = append(f.SearchCalls, SearchCall{Index: index, Request: req})
	fn := f.SearchFunc
	var scripted *types.SearchResult
	if fn == nil && f.searchIdx < len(f.SearchResults) {
		scripted = f.SearchResults[f.searchIdx]
		f.searchIdx++
	}
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, index, req)
	}
	if scripted != nil {
		return scripted, nil
	}
	return &types.SearchResult{}, nil
}

func (f *Fake) Bulk(ctx context.Context, ops []types.BulkOp) (*types.BulkResult, error) {
	f.mu.Lock()
	copied := make([]types.BulkOp, len(ops))
	copy(copied, ops)
	f.BulkCalls = append(f.BulkCalls, copied)
	fn := f.BulkFunc
	var scripted *types.BulkResult
	if fn == nil && f.bulkIdx < len(f.BulkResults) {
		scripted = f.BulkResults[f.bulkIdx]
		f.bulkIdx++
	}
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, ops)
	}
	if scripted != nil {
		return scripted, nil
	}
	return &types.BulkResult{}, nil
}

func (f *Fake) Count(ctx context.Context, index string, query model.Query) (int64, error) {
	if f.CountFunc != nil {
		return f.CountFunc(ctx, index, query)
	}
	return 0, nil
}

func (f *Fake) ResolveAlias(ctx context.Context, alias string) (string, error) {
	f.mu.Lock()
	f.AliasCalls = append(f.AliasCalls, alias)
	f.mu.Unlock()

	if f.ResolveAliasFunc != nil {
		return f.ResolveAliasFunc(ctx, alias)
	}
	return "", model.ErrIndexNotFound
}

func (f *Fake) CreateIndexWithAlias(ctx context.Context, index, alias string, mapping json.RawMessage) error {
	f.mu.Lock()
	f.CreateCalls = append(f.CreateCalls, CreateCall{Index: index, Alias: alias})
	f.mu.Unlock()

	if f.CreateIndexFunc != nil {
		return f.CreateIndexFunc(ctx, index, alias, mapping)
	}
	return nil
}

func (f *Fake) PutMapping(ctx context.Context, index string, mapping json.RawMessage) error {
	f.mu.Lock()
	f.MappingCalls = append(f.MappingCalls, index)
	f.mu.Unlock()

	if f.PutMappingFunc != nil {
		return f.PutMappingFunc(ctx, index, mapping)
	}
	return nil
}
