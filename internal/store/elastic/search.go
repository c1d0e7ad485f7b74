package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/chainfeedhq/chainfeed/internal/store/types"
	"github.com/chainfeedhq/chainfeed/pkg/model"
)

type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Index  string          `json:"_index"`
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
			Sort   []interface{}   `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

// Search executes a filter/aggregation query against a logical index.
func (c *Client) Search(ctx context.Context, index string, req types.SearchRequest) (*types.SearchResult, error) {
	body := map[string]interface{}{}
	if req.Query != nil {
		body["query"] = req.Query
	}
	if len(req.Sort) > 0 {
		body["sort"] = req.Sort
	}
	if len(req.SearchAfter) > 0 {
		body["search_after"] = req.SearchAfter
	}
	if req.Size > 0 {
		body["size"] = req.Size
	} else if len(req.Aggs) > 0 {
		body["size"] = 0
	}
	if len(req.Source) > 0 {
		body["_source"] = req.Source
	}
	if len(req.Aggs) > 0 {
		body["aggs"] = req.Aggs
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, wrapTransportErr("search", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError("search", res)
	}

	var parsed esSearchResponse
	if err := decodeResponse(res, &parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	result := &types.SearchResult{
		Total: parsed.Hits.Total.Value,
		Aggs:  parsed.Aggregations,
	}
	for _, h := range parsed.Hits.Hits {
		result.Hits = append(result.Hits, types.Hit{
			Index:  h.Index,
			ID:     h.ID,
			Source: h.Source,
			Sort:   h.Sort,
		})
	}
	return result, nil
}

// Count returns the number of documents matching the query.
func (c *Client) Count(ctx context.Context, index string, query model.Query) (int64, error) {
	body := map[string]interface{}{}
	if query != nil {
		body["query"] = query
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshaling count request: %w", err)
	}

	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(index),
		c.es.Count.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return 0, wrapTransportErr("count", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, responseError("count", res)
	}

	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := decodeResponse(res, &parsed); err != nil {
		return 0, fmt.Errorf("decoding count response: %w", err)
	}
	return parsed.Count, nil
}
