// Package schedule publishes background job requests to the message bus.
// Execution is owned by the external job runners; this package only emits
// the requests.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// Job kinds understood by the runners.
const (
	JobBackfill          = "backfill"
	JobCollectionRefresh = "collection-refresh"
	JobTokenRefresh      = "token-refresh"
)

// Config holds the job publisher settings.
type Config struct {
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DefaultConfig returns the default schedule configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:    "JOBS",
		SubjectPrefix: "jobs",
	}
}

// Job is one published job request.
type Job struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// BackfillPayload asks a runner to repopulate an index from the system of
// record.
type BackfillPayload struct {
	Index string `json:"index"`
}

// CollectionRefreshPayload asks a runner to propagate fresh collection
// metadata onto the indexed activities. Nil fields clear the stored value.
type CollectionRefreshPayload struct {
	CollectionID string  `json:"collectionId"`
	Name         *string `json:"name"`
	Image        *string `json:"image"`
}

// TokenRefreshPayload asks a runner to propagate fresh token metadata onto
// the indexed activities. Nil fields clear the stored value.
type TokenRefreshPayload struct {
	Contract string  `json:"contract"`
	TokenID  string  `json:"tokenId"`
	Name     *string `json:"name"`
	Image    *string `json:"image"`
	Media    *string `json:"media"`
}

// JetStream is the slice of the jetstream API the publisher uses.
type JetStream interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// Publisher emits job requests. It satisfies index.BackfillScheduler.
type Publisher struct {
	js     JetStream
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewPublisher creates a job publisher and ensures the job stream exists.
func NewPublisher(ctx context.Context, js JetStream, cfg Config, logger *slog.Logger) (*Publisher, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream cannot be nil")
	}
	if cfg.StreamName == "" {
		cfg.StreamName = DefaultConfig().StreamName
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultConfig().SubjectPrefix
	}

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring job stream: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		js:     js,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// ScheduleBackfill publishes a backfill request for the logical index.
func (p *Publisher) ScheduleBackfill(ctx context.Context, index string) error {
	return p.publish(ctx, JobBackfill, BackfillPayload{Index: index})
}

// ScheduleCollectionRefresh publishes a collection metadata refresh request.
func (p *Publisher) ScheduleCollectionRefresh(ctx context.Context, payload CollectionRefreshPayload) error {
	return p.publish(ctx, JobCollectionRefresh, payload)
}

// ScheduleTokenRefresh publishes a token metadata refresh request.
func (p *Publisher) ScheduleTokenRefresh(ctx context.Context, payload TokenRefreshPayload) error {
	return p.publish(ctx, JobTokenRefresh, payload)
}

func (p *Publisher) publish(ctx context.Context, kind string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	job := Job{
		ID:        p.newID(),
		Kind:      kind,
		Payload:   raw,
		CreatedAt: p.now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding %s job: %w", kind, err)
	}

	subject := p.cfg.SubjectPrefix + "." + kind
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}

	p.logger.Info("job scheduled",
		"topic", "job-schedule",
		"job", job.ID,
		"kind", kind,
	)
	return nil
}
