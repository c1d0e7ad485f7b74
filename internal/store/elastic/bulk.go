package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/chainfeedhq/chainfeed/internal/store/types"
)

type esBulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

type esBulkResponse struct {
	Errors bool                    `json:"errors"`
	Items  []map[string]esBulkItem `json:"items"`
}

// Bulk submits a batch of mutations in a single call with per-item error
// reporting. Partial per-item failure does not fail the call.
func (c *Client) Bulk(ctx context.Context, ops []types.BulkOp) (*types.BulkResult, error) {
	if len(ops) == 0 {
		return &types.BulkResult{}, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, op := range ops {
		meta := map[string]interface{}{
			"_index": op.Index,
			"_id":    op.ID,
		}
		if op.Action == types.ActionUpdate && op.RetryOnConflict > 0 {
			meta["retry_on_conflict"] = op.RetryOnConflict
		}
		if err := enc.Encode(map[string]interface{}{string(op.Action): meta}); err != nil {
			return nil, fmt.Errorf("encoding bulk action: %w", err)
		}

		switch op.Action {
		case types.ActionIndex, types.ActionCreate:
			if err := enc.Encode(op.Doc); err != nil {
				return nil, fmt.Errorf("encoding bulk document %s: %w", op.ID, err)
			}
		case types.ActionUpdate:
			if err := enc.Encode(map[string]interface{}{"script": op.Script}); err != nil {
				return nil, fmt.Errorf("encoding bulk script %s: %w", op.ID, err)
			}
		case types.ActionDelete:
			// Action line only.
		default:
			return nil, fmt.Errorf("unknown bulk action %q", op.Action)
		}
	}

	res, err := c.es.Bulk(&buf, c.es.Bulk.WithContext(ctx))
	if err != nil {
		return nil, wrapTransportErr("bulk", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError("bulk", res)
	}

	var parsed esBulkResponse
	if err := decodeResponse(res, &parsed); err != nil {
		return nil, fmt.Errorf("decoding bulk response: %w", err)
	}

	result := &types.BulkResult{Errors: parsed.Errors}
	for _, wrapper := range parsed.Items {
		for _, item := range wrapper {
			out := types.BulkItemResult{ID: item.ID, Status: item.Status}
			if item.Error != nil {
				out.ErrorType = item.Error.Type
				out.Reason = item.Error.Reason
			}
			result.Items = append(result.Items, out)
		}
	}
	return result, nil
}
