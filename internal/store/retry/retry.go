// Package retry wraps a Store with transient-failure classification and a
// bounded immediate retry. It sits at the lowest layer so every higher
// component is written as if the store were reliable.
package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chainfeedhq/chainfeed/internal/store/types"
	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// maxAttempts is the total number of attempts per call: the first try plus
// three immediate retries. Transience is expected to clear within the same
// request, so there is no backoff between attempts.
const maxAttempts = 4

// Store decorates another Store with the retry protocol.
type Store struct {
	inner  types.Store
	logger *slog.Logger
}

var _ types.Store = (*Store)(nil)

// New wraps a store. The logger receives a structured event on every retry
// and every exhaustion, carrying the attempt count and the serialized
// request parameters.
func New(inner types.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{inner: inner, logger: logger}
}

// execute runs op up to maxAttempts times. The loop is explicit with an
// attempt counter rather than recursion, so the bound is independently
// testable and there is no stack growth.
func (s *Store) execute(ctx context.Context, name string, params interface{}, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !model.IsTransient(err) {
			return err
		}
		lastErr = err
		if attempt < maxAttempts {
			s.logger.Warn("retrying store operation",
				"topic", "store-retry",
				"op", name,
				"attempt", attempt,
				"error", err.Error(),
				"request", serializeParams(params),
			)
		}
	}

	s.logger.Error("store retries exhausted",
		"topic", "store-retry",
		"op", name,
		"attempts", maxAttempts,
		"error", lastErr.Error(),
		"request", serializeParams(params),
	)
	return fmt.Errorf("%s after %d attempts: %w: %s", name, maxAttempts, model.ErrStoreUnavailable, lastErr)
}

func serializeParams(params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%+v", params)
	}
	return string(data)
}

func (s *Store) Search(ctx context.Context, index string, req types.SearchRequest) (*types.SearchResult, error) {
	var result *types.SearchResult
	err := s.execute(ctx, "search", map[string]interface{}{"index": index, "size": req.Size}, func() error {
		var opErr error
		result, opErr = s.inner.Search(ctx, index, req)
		return opErr
	})
	return result, err
}

func (s *Store) Bulk(ctx context.Context, ops []types.BulkOp) (*types.BulkResult, error) {
	var result *types.BulkResult
	err := s.execute(ctx, "bulk", map[string]interface{}{"ops": len(ops)}, func() error {
		var opErr error
		result, opErr = s.inner.Bulk(ctx, ops)
		return opErr
	})
	return result, err
}

func (s *Store) Count(ctx context.Context, index string, query model.Query) (int64, error) {
	var count int64
	err := s.execute(ctx, "count", map[string]interface{}{"index": index}, func() error {
		var opErr error
		count, opErr = s.inner.Count(ctx, index, query)
		return opErr
	})
	return count, err
}

func (s *Store) ResolveAlias(ctx context.Context, alias string) (string, error) {
	var index string
	err := s.execute(ctx, "resolve_alias", map[string]interface{}{"alias": alias}, func() error {
		var opErr error
		index, opErr = s.inner.ResolveAlias(ctx, alias)
		return opErr
	})
	return index, err
}

func (s *Store) CreateIndexWithAlias(ctx context.Context, index, alias string, mapping json.RawMessage) error {
	return s.execute(ctx, "create_index", map[string]interface{}{"index": index, "alias": alias}, func() error {
		return s.inner.CreateIndexWithAlias(ctx, index, alias, mapping)
	})
}

func (s *Store) PutMapping(ctx context.Context, index string, mapping json.RawMessage) error {
	return s.execute(ctx, "put_mapping", map[string]interface{}{"index": index}, func() error {
		return s.inner.PutMapping(ctx, index, mapping)
	})
}
