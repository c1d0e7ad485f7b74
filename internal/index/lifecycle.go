package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainfeedhq/chainfeed/internal/store/types"
	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// BackfillScheduler emits a request to populate a fresh index generation
// from the system of record. Execution is owned by the external job system.
type BackfillScheduler interface {
	ScheduleBackfill(ctx context.Context, index string) error
}

// Config holds the index lifecycle settings.
type Config struct {
	// Name is the logical index name, exposed to callers as a stable alias.
	Name string `yaml:"name"`

	// MappingName selects the mapping configuration for this deployment.
	MappingName string `yaml:"mapping_name"`

	// EnableMappingUpdate applies the configured mapping to an existing
	// generation on init. Updates are additive only; the store rejects
	// destructive changes.
	EnableMappingUpdate bool `yaml:"enable_mapping_update"`
}

// DefaultConfig returns the default index lifecycle configuration.
func DefaultConfig() Config {
	return Config{
		Name:                "activities",
		MappingName:         "default",
		EnableMappingUpdate: false,
	}
}

// Lifecycle manages index generations behind the logical alias.
type Lifecycle struct {
	store     types.Store
	cfg       Config
	scheduler BackfillScheduler
	logger    *slog.Logger
	now       func() time.Time
}

// NewLifecycle creates a lifecycle manager. The scheduler may be nil, in
// which case no backfill is requested for fresh generations.
func NewLifecycle(store types.Store, cfg Config, scheduler BackfillScheduler, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{store: store, cfg: cfg, scheduler: scheduler, logger: logger, now: time.Now}
}

// InitIndex is idempotent. If the alias already resolves it returns
// immediately, or applies the configured mapping additively when mapping
// updates are enabled. Otherwise it creates a generation named
// <logical>-<creation-epoch-ms>, points the alias at it within the same
// atomic store operation, and schedules an asynchronous full backfill.
func (l *Lifecycle) InitIndex(ctx context.Context) error {
	mapping, ok := Mapping(l.cfg.MappingName)
	if !ok {
		return fmt.Errorf("unknown mapping configuration %q", l.cfg.MappingName)
	}

	physical, err := l.store.ResolveAlias(ctx, l.cfg.Name)
	if err == nil {
		if !l.cfg.EnableMappingUpdate {
			return nil
		}
		if err := l.store.PutMapping(ctx, physical, mapping); err != nil {
			return fmt.Errorf("updating mapping on %s: %w", physical, err)
		}
		l.logger.Info("applied mapping update",
			"topic", "index-lifecycle",
			"index", physical,
			"mapping", l.cfg.MappingName,
		)
		return nil
	}
	if !errors.Is(err, model.ErrIndexNotFound) {
		return fmt.Errorf("resolving alias %s: %w", l.cfg.Name, err)
	}

	generation := fmt.Sprintf("%s-%d", l.cfg.Name, l.now().UnixMilli())
	if err := l.store.CreateIndexWithAlias(ctx, generation, l.cfg.Name, mapping); err != nil {
		return fmt.Errorf("creating index %s: %w", generation, err)
	}
	l.logger.Info("created index generation",
		"topic", "index-lifecycle",
		"index", generation,
		"alias", l.cfg.Name,
		"mapping", l.cfg.MappingName,
	)

	if l.scheduler != nil {
		if err := l.scheduler.ScheduleBackfill(ctx, l.cfg.Name); err != nil {
			return fmt.Errorf("scheduling backfill for %s: %w", l.cfg.Name, err)
		}
	}
	return nil
}
