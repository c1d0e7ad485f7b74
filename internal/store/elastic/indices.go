package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// ResolveAlias returns the physical index a logical alias points at.
func (c *Client) ResolveAlias(ctx context.Context, alias string) (string, error) {
	res, err := c.es.Indices.GetAlias(
		c.es.Indices.GetAlias.WithContext(ctx),
		c.es.Indices.GetAlias.WithName(alias),
	)
	if err != nil {
		return "", wrapTransportErr("get_alias", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return "", model.ErrIndexNotFound
	}
	if res.IsError() {
		return "", responseError("get_alias", res)
	}

	// The response maps physical index names to their alias sets.
	var parsed map[string]json.RawMessage
	if err := decodeResponse(res, &parsed); err != nil {
		return "", fmt.Errorf("decoding alias response: %w", err)
	}
	for index := range parsed {
		return index, nil
	}
	return "", model.ErrIndexNotFound
}

// CreateIndexWithAlias creates a physical index and assigns the alias in one
// atomic store operation, so there is no window where the alias dangles.
// The mapping is the index's mappings object.
func (c *Client) CreateIndexWithAlias(ctx context.Context, index, alias string, mapping json.RawMessage) error {
	body := map[string]interface{}{
		"aliases": map[string]interface{}{
			alias: map[string]interface{}{},
		},
	}
	if len(mapping) > 0 {
		body["mappings"] = json.RawMessage(mapping)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling create index request: %w", err)
	}

	res, err := c.es.Indices.Create(
		index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return wrapTransportErr("create_index", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("create_index", res)
	}
	return nil
}

// PutMapping applies an additive mapping update to a physical index. The
// store rejects destructive changes, which is intentional.
func (c *Client) PutMapping(ctx context.Context, index string, mapping json.RawMessage) error {
	res, err := c.es.Indices.PutMapping(
		[]string{index},
		bytes.NewReader(mapping),
		c.es.Indices.PutMapping.WithContext(ctx),
	)
	if err != nil {
		return wrapTransportErr("put_mapping", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("put_mapping", res)
	}
	return nil
}
