package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// Config holds the ingest consumer settings.
type Config struct {
	StreamName    string        `yaml:"stream_name"`
	Subject       string        `yaml:"subject"`
	ConsumerName  string        `yaml:"consumer_name"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	DropRules     []string      `yaml:"drop_rules"`
}

// DefaultConfig returns the default ingest configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:    "ACTIVITIES",
		Subject:       "activities.events",
		ConsumerName:  "chainfeed-indexer",
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    1024,
	}
}

// Message is the slice of a bus message the consumer needs: the payload and
// the delivery outcome signals.
type Message interface {
	Data() []byte
	// Ack acknowledges successful processing.
	Ack() error
	// Nak requests redelivery.
	Nak() error
	// Term terminates the message without redelivery.
	Term() error
}

// Saver persists a batch of activities. Satisfied by index.Writer.
type Saver interface {
	Save(ctx context.Context, docs []*model.ActivityDocument, upsert bool, stampIndexedAt bool) error
}

// Consumer reads activity events off the bus, screens them through the drop
// rules and writes them to the index in batches.
type Consumer struct {
	js     jetstream.JetStream
	cfg    Config
	writer Saver
	filter *Filter
	logger *slog.Logger
}

// NewConsumer creates an ingest consumer over an established bus connection.
func NewConsumer(nc *nats.Conn, cfg Config, writer Saver, logger *slog.Logger) (*Consumer, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection cannot be nil")
	}
	if cfg.StreamName == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	filter, err := NewFilter(cfg.DropRules)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{js: js, cfg: cfg, writer: writer, filter: filter, logger: logger}, nil
}

// Run subscribes and processes events until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	subject := c.cfg.Subject
	if subject == "" {
		subject = c.cfg.StreamName + ".>"
	}

	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     c.cfg.StreamName,
		Subjects: []string{subject},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("ensuring stream: %w", err)
	}

	consumerName := c.cfg.ConsumerName
	if consumerName == "" {
		consumerName = "consumer"
	}
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.StreamName, jetstream.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: subject,
	})
	if err != nil {
		return fmt.Errorf("creating consumer: %w", err)
	}

	msgCh := make(chan Message, c.cfg.BufferSize)
	var closing atomic.Bool

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if closing.Load() {
			msg.Nak()
			return
		}
		select {
		case msgCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("starting consumer: %w", err)
	}

	c.logger.Info("ingest consumer subscribed",
		"topic", "activities-ingest",
		"stream", c.cfg.StreamName,
		"subject", subject,
	)

	go func() {
		<-ctx.Done()
		closing.Store(true)
		cc.Stop()
		close(msgCh)
	}()

	c.process(ctx, msgCh)
	c.logger.Info("ingest consumer stopped", "topic", "activities-ingest")
	return nil
}

// process drains the message channel, batching decoded activities and
// flushing on batch size or the flush interval, whichever comes first.
func (c *Consumer) process(ctx context.Context, msgCh <-chan Message) {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	batch := newBatch(c.cfg.BatchSize)
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				c.flush(ctx, batch)
				return
			}
			c.accept(batch, msg)
			if batch.full(c.cfg.BatchSize) {
				c.flush(ctx, batch)
			}
		case <-ticker.C:
			c.flush(ctx, batch)
		}
	}
}

// accept decodes, validates and screens one message. Messages that can never
// succeed are terminated rather than redelivered.
func (c *Consumer) accept(batch *batch, msg Message) {
	var doc model.ActivityDocument
	if err := json.Unmarshal(msg.Data(), &doc); err != nil {
		c.logger.Warn("terminating undecodable event",
			"topic", "activities-ingest",
			"error", err.Error(),
		)
		msg.Term()
		return
	}
	if err := doc.Validate(); err != nil {
		c.logger.Warn("terminating invalid event",
			"topic", "activities-ingest",
			"id", doc.ID,
			"error", err.Error(),
		)
		msg.Term()
		return
	}

	drop, err := c.filter.Drop(&doc)
	if err != nil {
		c.logger.Error("drop rule evaluation failed",
			"topic", "activities-ingest",
			"id", doc.ID,
			"error", err.Error(),
		)
		msg.Nak()
		return
	}
	if drop {
		c.logger.Debug("dropping filtered event",
			"topic", "activities-ingest",
			"id", doc.ID,
		)
		msg.Ack()
		return
	}

	batch.add(&doc, msg)
}

// flush writes the pending batch. On write failure every message is naked so
// the bus redelivers; duplicates are absorbed by id-keyed upserts.
func (c *Consumer) flush(ctx context.Context, batch *batch) {
	if len(batch.docs) == 0 {
		return
	}
	docs, msgs := batch.take()

	if err := c.writer.Save(ctx, docs, true, true); err != nil {
		c.logger.Error("batch save failed, requesting redelivery",
			"topic", "activities-ingest",
			"size", len(docs),
			"error", err.Error(),
		)
		for _, msg := range msgs {
			msg.Nak()
		}
		return
	}
	for _, msg := range msgs {
		msg.Ack()
	}
}

type batch struct {
	docs []*model.ActivityDocument
	msgs []Message
}

func newBatch(capacity int) *batch {
	return &batch{
		docs: make([]*model.ActivityDocument, 0, capacity),
		msgs: make([]Message, 0, capacity),
	}
}

func (b *batch) add(doc *model.ActivityDocument, msg Message) {
	b.docs = append(b.docs, doc)
	b.msgs = append(b.msgs, msg)
}

func (b *batch) full(size int) bool {
	return len(b.docs) >= size
}

func (b *batch) take() ([]*model.ActivityDocument, []Message) {
	docs, msgs := b.docs, b.msgs
	b.docs = make([]*model.ActivityDocument, 0, cap(docs))
	b.msgs = make([]Message, 0, cap(msgs))
	return docs, msgs
}
