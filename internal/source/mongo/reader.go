// Package mongo reads canonical activities from the system of record for
// index backfills.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// Config holds the system-of-record connection settings.
type Config struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	BatchSize  int    `yaml:"batch_size"`
}

// DefaultConfig returns the default source configuration.
func DefaultConfig() Config {
	return Config{
		URI:        "mongodb://localhost:27017",
		Database:   "chainfeed",
		Collection: "activities",
		BatchSize:  1000,
	}
}

// Reader streams canonical activities in stable (timestamp, _id) order so a
// backfill can resume mid-stream.
type Reader struct {
	coll      *mongo.Collection
	batchSize int
}

// NewReader connects to the system of record and verifies the connection.
func NewReader(ctx context.Context, cfg Config) (*Reader, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to source: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging source: %w", err)
	}

	return &Reader{
		coll:      client.Database(cfg.Database).Collection(cfg.Collection),
		batchSize: cfg.BatchSize,
	}, nil
}

// Close disconnects from the system of record.
func (r *Reader) Close(ctx context.Context) error {
	return r.coll.Database().Client().Disconnect(ctx)
}

// Cursor marks a position in the activity stream.
type Cursor struct {
	Timestamp int64
	ID        primitive.ObjectID
}

// sourceActivity is the system-of-record document shape. The index document
// is embedded whole under the activity field.
type sourceActivity struct {
	ID        primitive.ObjectID     `bson:"_id"`
	Timestamp int64                  `bson:"timestamp"`
	Activity  model.ActivityDocument `bson:"activity"`
}

// Next returns up to one batch of activities after the cursor, plus the
// cursor for the following batch. A nil next cursor means the stream is
// exhausted.
func (r *Reader) Next(ctx context.Context, after *Cursor) ([]*model.ActivityDocument, *Cursor, error) {
	filter := bson.M{}
	if after != nil {
		filter["$or"] = bson.A{
			bson.M{"timestamp": bson.M{"$gt": after.Timestamp}},
			bson.M{"timestamp": after.Timestamp, "_id": bson.M{"$gt": after.ID}},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(r.batchSize))

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("querying source activities: %w", err)
	}

	var rows []sourceActivity
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, nil, fmt.Errorf("reading source activities: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}

	docs := make([]*model.ActivityDocument, len(rows))
	for i := range rows {
		docs[i] = &rows[i].Activity
	}

	if len(rows) < r.batchSize {
		// Short batch, the stream is exhausted.
		return docs, nil, nil
	}
	last := rows[len(rows)-1]
	return docs, &Cursor{Timestamp: last.Timestamp, ID: last.ID}, nil
}

// Count returns the total number of canonical activities, for backfill
// progress reporting.
func (r *Reader) Count(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{})
}
