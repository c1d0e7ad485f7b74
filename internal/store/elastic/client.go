// Package elastic implements the store protocol on Elasticsearch.
package elastic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/chainfeedhq/chainfeed/internal/store/types"
	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// Config holds the Elasticsearch connection settings.
type Config struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}

// DefaultConfig returns the default Elasticsearch configuration.
func DefaultConfig() Config {
	return Config{
		Addresses: []string{"http://localhost:9200"},
	}
}

// Client is the Elasticsearch-backed store.
type Client struct {
	es *elasticsearch.Client
}

var _ types.Store = (*Client)(nil)

// NewClient connects to Elasticsearch.
func NewClient(cfg Config) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}
	return &Client{es: es}, nil
}

// NewClientWithTransport builds a client over a custom round tripper.
// Used by tests to stub the wire.
func NewClientWithTransport(rt http.RoundTripper) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://stub:9200"},
		Transport: rt,
	})
	if err != nil {
		return nil, err
	}
	return &Client{es: es}, nil
}

// esError is the error envelope Elasticsearch returns on failed requests.
type esError struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// wrapTransportErr converts transport-level failures into StoreError. Caller
// cancellation passes through untouched so it is never classified transient.
func wrapTransportErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, io.EOF) {
		return &model.StoreError{Op: op, Reason: err.Error(), Aborted: true}
	}
	return &model.StoreError{Op: op, Reason: err.Error()}
}

// responseError converts a non-2xx store response into StoreError carrying
// the store's own error metadata.
func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(res.Body)

	var envelope esError
	errType := ""
	reason := string(body)
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Type != "" {
		errType = envelope.Error.Type
		reason = envelope.Error.Reason
	}

	return &model.StoreError{
		Op:         op,
		StatusCode: res.StatusCode,
		Type:       errType,
		Reason:     reason,
	}
}

func decodeResponse(res *esapi.Response, v interface{}) error {
	return json.NewDecoder(res.Body).Decode(v)
}
