// Package backfill repopulates a fresh index generation from the system of
// record.
package backfill

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chainfeedhq/chainfeed/internal/source/mongo"
	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// Source streams canonical activities in batches. Satisfied by mongo.Reader.
type Source interface {
	Next(ctx context.Context, after *mongo.Cursor) ([]*model.ActivityDocument, *mongo.Cursor, error)
	Count(ctx context.Context) (int64, error)
}

// Saver persists a batch of activities. Satisfied by index.Writer.
type Saver interface {
	Save(ctx context.Context, docs []*model.ActivityDocument, upsert bool, stampIndexedAt bool) error
}

// Runner drains the source into the index. Documents are written with create
// semantics: when live ingestion already wrote a newer version of an
// activity, the backfill must not clobber it, and the resulting per-document
// conflicts are expected rather than errors.
type Runner struct {
	source Source
	writer Saver
	logger *slog.Logger
}

// NewRunner creates a backfill runner.
func NewRunner(source Source, writer Saver, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{source: source, writer: writer, logger: logger}
}

// Run drains the source from the beginning and returns the number of
// documents submitted.
func (r *Runner) Run(ctx context.Context) (int64, error) {
	total, err := r.source.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting source activities: %w", err)
	}
	r.logger.Info("backfill starting",
		"topic", "activities-backfill",
		"total", total,
	)

	var written int64
	var cursor *mongo.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		docs, next, err := r.source.Next(ctx, cursor)
		if err != nil {
			return written, fmt.Errorf("reading source batch: %w", err)
		}
		if len(docs) == 0 {
			break
		}

		if err := r.writer.Save(ctx, docs, false, true); err != nil {
			return written, fmt.Errorf("writing backfill batch: %w", err)
		}
		written += int64(len(docs))

		r.logger.Debug("backfill progress",
			"topic", "activities-backfill",
			"written", written,
			"total", total,
		)

		if next == nil {
			break
		}
		cursor = next
	}

	r.logger.Info("backfill complete",
		"topic", "activities-backfill",
		"written", written,
	)
	return written, nil
}
