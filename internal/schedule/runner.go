package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrRequeue signals that a job handled one batch of work and wants the bus
// to redeliver it for the next pass.
var ErrRequeue = errors.New("job requeued for another pass")

// HandlerFunc executes one job kind. Returning ErrRequeue redelivers the job
// without treating it as a failure.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Runner consumes the job stream and dispatches jobs to registered handlers.
type Runner struct {
	js       jetstream.JetStream
	cfg      Config
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

// NewRunner creates a job runner over an established bus connection.
func NewRunner(nc *nats.Conn, cfg Config, logger *slog.Logger) (*Runner, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection cannot be nil")
	}
	if cfg.StreamName == "" {
		cfg.StreamName = DefaultConfig().StreamName
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultConfig().SubjectPrefix
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		js:       js,
		cfg:      cfg,
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}, nil
}

// Handle registers the handler for a job kind. Not safe to call after Run.
func (r *Runner) Handle(kind string, fn HandlerFunc) {
	r.handlers[kind] = fn
}

// Run consumes jobs until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	subject := r.cfg.SubjectPrefix + ".>"

	_, err := r.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     r.cfg.StreamName,
		Subjects: []string{subject},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("ensuring job stream: %w", err)
	}

	consumer, err := r.js.CreateOrUpdateConsumer(ctx, r.cfg.StreamName, jetstream.ConsumerConfig{
		Durable:       "chainfeed-jobs",
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: subject,
	})
	if err != nil {
		return fmt.Errorf("creating job consumer: %w", err)
	}

	var closing atomic.Bool
	done := make(chan struct{})

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if closing.Load() {
			msg.Nak()
			return
		}
		r.dispatch(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("starting job consumer: %w", err)
	}

	r.logger.Info("job runner subscribed",
		"topic", "job-schedule",
		"stream", r.cfg.StreamName,
	)

	go func() {
		<-ctx.Done()
		closing.Store(true)
		cc.Stop()
		close(done)
	}()

	<-done
	r.logger.Info("job runner stopped", "topic", "job-schedule")
	return nil
}

// message is the slice of a bus message dispatch needs.
type message interface {
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

func (r *Runner) dispatch(ctx context.Context, msg message) {
	var job Job
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		r.logger.Warn("terminating undecodable job",
			"topic", "job-schedule",
			"error", err.Error(),
		)
		msg.Term()
		return
	}

	handler, ok := r.handlers[job.Kind]
	if !ok {
		r.logger.Warn("terminating job with no handler",
			"topic", "job-schedule",
			"job", job.ID,
			"kind", job.Kind,
		)
		msg.Term()
		return
	}

	if err := handler(ctx, job.Payload); err != nil {
		if errors.Is(err, ErrRequeue) {
			r.logger.Info("job requeued",
				"topic", "job-schedule",
				"job", job.ID,
				"kind", job.Kind,
			)
			msg.Nak()
			return
		}
		r.logger.Error("job failed, requesting redelivery",
			"topic", "job-schedule",
			"job", job.ID,
			"kind", job.Kind,
			"error", err.Error(),
		)
		msg.Nak()
		return
	}

	r.logger.Info("job complete",
		"topic", "job-schedule",
		"job", job.ID,
		"kind", job.Kind,
	)
	msg.Ack()
}
