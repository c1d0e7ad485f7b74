// Package index provides bulk document writing and index lifecycle
// management for the activity index.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainfeedhq/chainfeed/internal/store/types"
	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// Writer submits activity documents to the store in bulk, one call per batch.
type Writer struct {
	store  types.Store
	index  string
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a writer targeting the logical activity index.
func NewWriter(store types.Store, index string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, index: index, logger: logger, now: time.Now}
}

// Save writes documents in one bulk call. With upsert, documents replace by
// id, which is safe for redelivered events; without it, create semantics
// reject duplicate ids per document, for strict first-write-wins paths such
// as the initial backfill. With stampIndexedAt, every document's IndexedAt is
// set to now before writing so downstream consumers can detect freshness
// without a second read.
//
// Per-document failures do not abort the call: they are reported through
// logged diagnostics and the caller owns redelivery.
func (w *Writer) Save(ctx context.Context, docs []*model.ActivityDocument, upsert bool, stampIndexedAt bool) error {
	if len(docs) == 0 {
		return nil
	}

	action := types.ActionCreate
	if upsert {
		action = types.ActionIndex
	}

	if stampIndexedAt {
		now := w.now().UTC()
		for _, doc := range docs {
			doc.IndexedAt = now
		}
	}

	ops := make([]types.BulkOp, len(docs))
	for i, doc := range docs {
		ops[i] = types.BulkOp{
			Action: action,
			Index:  w.index,
			ID:     doc.ID,
			Doc:    doc,
		}
	}

	result, err := w.store.Bulk(ctx, ops)
	if err != nil {
		return fmt.Errorf("saving %d activities: %w", len(docs), err)
	}

	if failed := result.FailedItems(); len(failed) > 0 {
		w.logger.Warn("bulk save finished with per-document failures",
			"topic", "save-activities",
			"total", len(docs),
			"failed", len(failed),
			"firstId", failed[0].ID,
			"firstError", failed[0].Reason,
		)
	} else {
		w.logger.Debug("bulk save complete",
			"topic", "save-activities",
			"total", len(docs),
		)
	}
	return nil
}

// Delete removes documents by id in one bulk call. Duplicate or
// already-absent ids are not errors.
func (w *Writer) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ops := make([]types.BulkOp, len(ids))
	for i, id := range ids {
		ops[i] = types.BulkOp{
			Action: types.ActionDelete,
			Index:  w.index,
			ID:     id,
		}
	}

	result, err := w.store.Bulk(ctx, ops)
	if err != nil {
		return fmt.Errorf("deleting %d activities: %w", len(ids), err)
	}

	failed := 0
	for _, item := range result.Items {
		// 404 means the document was already gone, which is fine.
		if item.Failed() && item.Status != 404 {
			failed++
		}
	}
	if failed > 0 {
		w.logger.Warn("bulk delete finished with per-document failures",
			"topic", "delete-activities",
			"total", len(ids),
			"failed", failed,
		)
	}
	return nil
}
