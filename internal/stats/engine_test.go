package stats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainfeedhq/chainfeed/internal/store/storetest"
	"github.com/chainfeedhq/chainfeed/internal/store/types"
	"github.com/chainfeedhq/chainfeed/pkg/model"
)

func statsEngineAt(t *testing.T, fake *storetest.Fake, now time.Time) *Engine {
	t.Helper()
	eng := NewEngine(fake, "activities", DefaultConfig(), nil)
	eng.now = func() time.Time { return now }
	return eng
}

func requestJSON(t *testing.T, req types.SearchRequest) map[string]interface{} {
	t.Helper()
	body := map[string]interface{}{}
	if req.Query != nil {
		body["query"] = req.Query
	}
	if req.Aggs != nil {
		body["aggs"] = req.Aggs
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return decoded
}

func TestGetChainStats(t *testing.T) {
	fake := &storetest.Fake{}
	fake.SearchResults = []*types.SearchResult{{
		Aggs: map[string]json.RawMessage{
			"day1": json.RawMessage(`{"doc_count":42,"volume":{"value":12.345}}`),
			"day7": json.RawMessage(`{"doc_count":300,"volume":{"value":99.999}}`),
		},
	}}

	// 12:03:30 floors to 12:00:00.
	now := time.Date(2026, 8, 30, 12, 3, 30, 0, time.UTC)
	eng := statsEngineAt(t, fake, now)

	stats, err := eng.GetChainStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), stats.Day1.Count)
	assert.Equal(t, 12.35, stats.Day1.Volume)
	assert.Equal(t, int64(300), stats.Day7.Count)
	assert.Equal(t, 100.0, stats.Day7.Volume)

	require.Len(t, fake.SearchCalls, 1)
	call := fake.SearchCalls[0]
	assert.Equal(t, "activities", call.Index)
	assert.Equal(t, 0, call.Request.Size)

	bucketed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	decoded := requestJSON(t, call.Request)
	raw, err := json.Marshal(decoded)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, `"sale"`)
	assert.Contains(t, body, `"mint"`)
	assert.Contains(t, body, jsonNumber(bucketed.Add(-24*time.Hour).Unix()))
	assert.Contains(t, body, jsonNumber(bucketed.Add(-7*24*time.Hour).Unix()))
}

func jsonNumber(v int64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

func TestGetChainStats_SameBucketSameQuery(t *testing.T) {
	fake := &storetest.Fake{}
	aggs := map[string]json.RawMessage{
		"day1": json.RawMessage(`{"doc_count":1,"volume":{"value":1}}`),
		"day7": json.RawMessage(`{"doc_count":1,"volume":{"value":1}}`),
	}
	fake.SearchResults = []*types.SearchResult{{Aggs: aggs}, {Aggs: aggs}}

	base := time.Date(2026, 8, 30, 12, 0, 1, 0, time.UTC)
	eng := statsEngineAt(t, fake, base)
	_, err := eng.GetChainStats(context.Background())
	require.NoError(t, err)

	eng.now = func() time.Time { return base.Add(4 * time.Minute) }
	_, err = eng.GetChainStats(context.Background())
	require.NoError(t, err)

	require.Len(t, fake.SearchCalls, 2)
	first := requestJSON(t, fake.SearchCalls[0].Request)
	second := requestJSON(t, fake.SearchCalls[1].Request)
	assert.Equal(t, first, second)
}

func topSellingAggs(buckets string) map[string]json.RawMessage {
	return map[string]json.RawMessage{
		"collections": json.RawMessage(`{"buckets":[` + buckets + `]}`),
	}
}

const bucketPunks = `{
	"key": "0xpunks",
	"doc_count": 17,
	"volume": {"value": 250.456},
	"distinctSales": {"value": 11},
	"recentSales": {"hits": {"hits": [
		{"_source": {"id": "a", "type": "sale", "collection": {"id": "0xpunks", "name": "Punks", "image": "https://img/punks.png"}, "timestamp": 1700000300}},
		{"_source": {"id": "b", "type": "sale", "collection": {"id": "0xpunks", "name": "Punks"}, "timestamp": 1700000200}}
	]}}
}`

func TestGetTopSellingCollections_ByVolume(t *testing.T) {
	fake := &storetest.Fake{}
	fake.SearchResults = []*types.SearchResult{{Aggs: topSellingAggs(bucketPunks)}}
	eng := statsEngineAt(t, fake, time.Now())

	out, err := eng.GetTopSellingCollections(context.Background(), TopSellingParams{
		StartTime: 1700000000,
		SortBy:    model.SortByVolume,
		Limit:     5,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	entry := out[0]
	assert.Equal(t, "0xpunks", entry.ID)
	assert.Equal(t, int64(17), entry.Count)
	assert.Equal(t, 250.46, entry.Volume)
	assert.Equal(t, "Punks", entry.Name)
	assert.Equal(t, "https://img/punks.png", entry.Image)
	assert.Empty(t, entry.RecentSales)

	raw, err := json.Marshal(requestJSON(t, fake.SearchCalls[0].Request))
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, `"collection.id"`)
	assert.Contains(t, body, `"volume":"desc"`)
	assert.Contains(t, body, `"size":1`)
}

func TestGetTopSellingCollections_BySaleCount(t *testing.T) {
	fake := &storetest.Fake{}
	fake.SearchResults = []*types.SearchResult{{Aggs: topSellingAggs(bucketPunks)}}
	eng := statsEngineAt(t, fake, time.Now())

	out, err := eng.GetTopSellingCollections(context.Background(), TopSellingParams{
		StartTime: 1700000000,
		SortBy:    model.SortBySaleCount,
		Limit:     5,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	// Count is the distinct-transaction estimate, not the raw doc count.
	assert.Equal(t, int64(11), out[0].Count)

	raw, err := json.Marshal(requestJSON(t, fake.SearchCalls[0].Request))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"distinctSales":"desc"`)
}

func TestGetTopSellingCollections_RecentSales(t *testing.T) {
	fake := &storetest.Fake{}
	fake.SearchResults = []*types.SearchResult{{Aggs: topSellingAggs(bucketPunks)}}
	eng := statsEngineAt(t, fake, time.Now())

	out, err := eng.GetTopSellingCollections(context.Background(), TopSellingParams{
		StartTime:          1700000000,
		Limit:              5,
		IncludeRecentSales: true,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].RecentSales, 2)
	assert.Equal(t, "a", out[0].RecentSales[0].ID)
	assert.Equal(t, "b", out[0].RecentSales[1].ID)

	raw, err := json.Marshal(requestJSON(t, fake.SearchCalls[0].Request))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"size":8`)
}

func TestGetTopSellingCollections_Denylist(t *testing.T) {
	fake := &storetest.Fake{}
	fake.SearchResults = []*types.SearchResult{{Aggs: topSellingAggs(bucketPunks)}}
	eng := NewEngine(fake, "activities", Config{ExcludedCollections: []string{"0xspam"}}, nil)

	_, err := eng.GetTopSellingCollections(context.Background(), TopSellingParams{StartTime: 1})
	require.NoError(t, err)

	raw, err := json.Marshal(requestJSON(t, fake.SearchCalls[0].Request))
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, `"must_not"`)
	assert.Contains(t, body, `"0xspam"`)
}

func TestGetTopSellingCollections_EndTimeAndFillTypes(t *testing.T) {
	fake := &storetest.Fake{}
	fake.SearchResults = []*types.SearchResult{{Aggs: topSellingAggs("")}}
	eng := statsEngineAt(t, fake, time.Now())

	end := int64(1700009999)
	out, err := eng.GetTopSellingCollections(context.Background(), TopSellingParams{
		StartTime: 1700000000,
		EndTime:   &end,
		FillTypes: []model.ActivityType{model.ActivitySale},
	})
	require.NoError(t, err)
	assert.Empty(t, out)

	raw, err := json.Marshal(requestJSON(t, fake.SearchCalls[0].Request))
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, `"lt":1700009999`)
	assert.Contains(t, body, `"sale"`)
	assert.NotContains(t, body, `"mint"`)
}
