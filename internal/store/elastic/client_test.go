package elastic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainfeedhq/chainfeed/internal/store/types"
	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// stubTransport answers every request with a canned response and records
// what was sent.
type stubTransport struct {
	status   int
	body     string
	err      error
	requests []capturedRequest
}

type capturedRequest struct {
	method string
	path   string
	body   string
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		body = string(raw)
	}
	s.requests = append(s.requests, capturedRequest{
		method: req.Method,
		path:   req.URL.Path,
		body:   body,
	})

	if s.err != nil {
		return nil, s.err
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Elastic-Product", "Elasticsearch")
	return &http.Response{
		StatusCode: s.status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(s.body)),
	}, nil
}

func stubClient(t *testing.T, status int, body string) (*Client, *stubTransport) {
	t.Helper()
	rt := &stubTransport{status: status, body: body}
	client, err := NewClientWithTransport(rt)
	require.NoError(t, err)
	return client, rt
}

func TestSearch_RequestAndResponse(t *testing.T) {
	client, rt := stubClient(t, 200, `{
		"hits": {
			"total": {"value": 2},
			"hits": [
				{"_index": "activities-1", "_id": "a", "_source": {"id": "a"}, "sort": ["200", "a"]},
				{"_index": "activities-1", "_id": "b", "_source": {"id": "b"}, "sort": ["100", "b"]}
			]
		}
	}`)

	res, err := client.Search(context.Background(), "activities", types.SearchRequest{
		Query:       model.TermQuery{Field: "type", Value: "sale"},
		Sort:        []model.Sort{{Field: "timestamp", Desc: true, Format: "epoch_second"}},
		SearchAfter: []interface{}{"300", "c"},
		Size:        2,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Total)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "activities-1", res.Hits[0].Index)
	assert.Equal(t, "a", res.Hits[0].ID)
	assert.Equal(t, []interface{}{"200", "a"}, res.Hits[0].Sort)

	require.Len(t, rt.requests, 1)
	req := rt.requests[0]
	assert.Contains(t, req.path, "/activities/_search")
	assert.JSONEq(t, `{
		"query": {"term": {"type": "sale"}},
		"sort": [{"timestamp": {"order": "desc", "format": "epoch_second"}}],
		"search_after": ["300", "c"],
		"size": 2
	}`, req.body)
}

func TestSearch_AggsOnlyRequestsNoHits(t *testing.T) {
	client, rt := stubClient(t, 200, `{
		"hits": {"total": {"value": 9}, "hits": []},
		"aggregations": {"volume": {"value": 12.5}}
	}`)

	res, err := client.Search(context.Background(), "activities", types.SearchRequest{
		Aggs: map[string]model.Agg{"volume": model.SumAgg{Field: "pricing.valueDecimal"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value": 12.5}`, string(res.Aggs["volume"]))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(rt.requests[0].body), &body))
	assert.Equal(t, float64(0), body["size"])
}

func TestSearch_ErrorEnvelopeParsed(t *testing.T) {
	client, _ := stubClient(t, 429, `{
		"error": {"type": "es_rejected_execution_exception", "reason": "queue is full"}
	}`)

	_, err := client.Search(context.Background(), "activities", types.SearchRequest{})
	require.Error(t, err)

	var se *model.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "search", se.Op)
	assert.Equal(t, 429, se.StatusCode)
	assert.Equal(t, "es_rejected_execution_exception", se.Type)
	assert.Equal(t, "queue is full", se.Reason)
	assert.True(t, se.Transient())
}

func TestSearch_NonEnvelopeErrorKeepsRawBody(t *testing.T) {
	client, _ := stubClient(t, 400, `bad request, plain text`)

	_, err := client.Search(context.Background(), "activities", types.SearchRequest{})
	var se *model.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.StatusCode)
	assert.Empty(t, se.Type)
	assert.Contains(t, se.Reason, "bad request")
	assert.False(t, se.Transient())
}

func TestBulk_EncodingPerAction(t *testing.T) {
	client, rt := stubClient(t, 200, `{
		"errors": false,
		"items": [
			{"index": {"_id": "a", "status": 200}},
			{"update": {"_id": "b", "status": 200}},
			{"delete": {"_id": "c", "status": 404}}
		]
	}`)

	res, err := client.Bulk(context.Background(), []types.BulkOp{
		{Action: types.ActionIndex, Index: "activities", ID: "a", Doc: map[string]string{"id": "a"}},
		{
			Action:          types.ActionUpdate,
			Index:           "activities-1",
			ID:              "b",
			Script:          &types.Script{Source: "ctx._source.x = params.x;", Params: map[string]interface{}{"x": 1}},
			RetryOnConflict: 3,
		},
		{Action: types.ActionDelete, Index: "activities", ID: "c"},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, 404, res.Items[2].Status)

	lines := strings.Split(strings.TrimSpace(rt.requests[0].body), "\n")
	require.Len(t, lines, 5)
	assert.JSONEq(t, `{"index": {"_index": "activities", "_id": "a"}}`, lines[0])
	assert.JSONEq(t, `{"id": "a"}`, lines[1])
	assert.JSONEq(t, `{"update": {"_index": "activities-1", "_id": "b", "retry_on_conflict": 3}}`, lines[2])
	assert.Contains(t, lines[3], `"script"`)
	assert.JSONEq(t, `{"delete": {"_index": "activities", "_id": "c"}}`, lines[4])
}

func TestBulk_PerItemErrorsReported(t *testing.T) {
	client, _ := stubClient(t, 200, `{
		"errors": true,
		"items": [
			{"create": {"_id": "a", "status": 409, "error": {"type": "version_conflict_engine_exception", "reason": "exists"}}},
			{"create": {"_id": "b", "status": 201}}
		]
	}`)

	res, err := client.Bulk(context.Background(), []types.BulkOp{
		{Action: types.ActionCreate, Index: "activities", ID: "a", Doc: map[string]string{}},
		{Action: types.ActionCreate, Index: "activities", ID: "b", Doc: map[string]string{}},
	})
	require.NoError(t, err)

	failed := res.FailedItems()
	require.Len(t, failed, 1)
	assert.Equal(t, "a", failed[0].ID)
	assert.Equal(t, "version_conflict_engine_exception", failed[0].ErrorType)
}

func TestBulk_EmptyIsNoop(t *testing.T) {
	client, rt := stubClient(t, 200, `{}`)
	res, err := client.Bulk(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Empty(t, rt.requests)
}

func TestResolveAlias(t *testing.T) {
	client, rt := stubClient(t, 200, `{"activities-1700000000000": {"aliases": {"activities": {}}}}`)

	index, err := client.ResolveAlias(context.Background(), "activities")
	require.NoError(t, err)
	assert.Equal(t, "activities-1700000000000", index)
	assert.Contains(t, rt.requests[0].path, "_alias/activities")
}

func TestResolveAlias_Missing(t *testing.T) {
	client, _ := stubClient(t, 404, `{"error": {"type": "index_not_found_exception", "reason": "no such alias"}}`)

	_, err := client.ResolveAlias(context.Background(), "activities")
	require.ErrorIs(t, err, model.ErrIndexNotFound)
}

func TestCreateIndexWithAlias(t *testing.T) {
	client, rt := stubClient(t, 200, `{"acknowledged": true}`)

	mapping := json.RawMessage(`{"properties": {"id": {"type": "keyword"}}}`)
	err := client.CreateIndexWithAlias(context.Background(), "activities-1700000000000", "activities", mapping)
	require.NoError(t, err)

	req := rt.requests[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Contains(t, req.path, "/activities-1700000000000")
	assert.JSONEq(t, `{
		"aliases": {"activities": {}},
		"mappings": {"properties": {"id": {"type": "keyword"}}}
	}`, req.body)
}

func TestCount(t *testing.T) {
	client, rt := stubClient(t, 200, `{"count": 42}`)

	n, err := client.Count(context.Background(), "activities", model.TermQuery{Field: "type", Value: "sale"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Contains(t, rt.requests[0].path, "/activities/_count")
}
