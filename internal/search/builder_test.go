package search

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainfeedhq/chainfeed/pkg/model"
)

func filtersJSON(t *testing.T, params model.SearchParams) string {
	t.Helper()
	data, err := json.Marshal(BuildFilters(params))
	require.NoError(t, err)
	return string(data)
}

func TestBuildFilters_Empty(t *testing.T) {
	// No filters means no clauses, not an implicit wildcard.
	assert.Empty(t, BuildFilters(model.SearchParams{}))
}

func TestBuildFilters_Types(t *testing.T) {
	got := filtersJSON(t, model.SearchParams{
		Types: []model.ActivityType{model.ActivitySale, model.ActivityMint},
	})
	assert.JSONEq(t, `[{"terms":{"type":["sale","mint"]}}]`, got)
}

func TestBuildFilters_Contracts(t *testing.T) {
	got := filtersJSON(t, model.SearchParams{Contracts: []string{"0xabc"}})
	assert.JSONEq(t, `[{"terms":{"contract":["0xabc"]}}]`, got)
}

func TestBuildFilters_Collections(t *testing.T) {
	got := filtersJSON(t, model.SearchParams{Collections: []string{"punks", "apes"}})
	assert.JSONEq(t, `[{"terms":{"collection.id":["punks","apes"]}}]`, got)
}

func TestBuildFilters_Sources(t *testing.T) {
	got := filtersJSON(t, model.SearchParams{Sources: []string{"opensea.io"}})
	assert.JSONEq(t, `[{"terms":{"order.sourceId":["opensea.io"]}}]`, got)
}

func TestBuildFilters_TokensSingleContract(t *testing.T) {
	got := filtersJSON(t, model.SearchParams{
		Tokens: []model.TokenRef{
			{Contract: "0xabc", TokenID: "1"},
			{Contract: "0xabc", TokenID: "2"},
		},
	})
	want := `[{"bool":{"filter":[
		{"term":{"contract":"0xabc"}},
		{"terms":{"token.id":["1","2"]}}
	]}}]`
	assert.JSONEq(t, want, got)
}

func TestBuildFilters_TokensMixedContracts(t *testing.T) {
	got := filtersJSON(t, model.SearchParams{
		Tokens: []model.TokenRef{
			{Contract: "0xabc", TokenID: "1"},
			{Contract: "0xdef", TokenID: "2"},
		},
	})
	want := `[{"bool":{
		"should":[
			{"bool":{"filter":[{"term":{"contract":"0xabc"}},{"term":{"token.id":"1"}}]}},
			{"bool":{"filter":[{"term":{"contract":"0xdef"}},{"term":{"token.id":"2"}}]}}
		],
		"minimum_should_match":1
	}}]`
	assert.JSONEq(t, want, got)
}

func TestBuildFilters_UsersLowercased(t *testing.T) {
	got := filtersJSON(t, model.SearchParams{Users: []string{"0xAbCd"}})
	want := `[{"bool":{
		"should":[
			{"terms":{"fromAddress":["0xabcd"]}},
			{"terms":{"toAddress":["0xabcd"]}}
		],
		"minimum_should_match":1
	}}]`
	assert.JSONEq(t, want, got)
}

func TestBuildFilters_TimestampRange(t *testing.T) {
	start, end := int64(100), int64(200)

	got := filtersJSON(t, model.SearchParams{StartTimestamp: &start, EndTimestamp: &end})
	assert.JSONEq(t, `[{"range":{"timestamp":{"gte":100,"lt":200,"format":"epoch_second"}}}]`, got)

	got = filtersJSON(t, model.SearchParams{StartTimestamp: &start})
	assert.JSONEq(t, `[{"range":{"timestamp":{"gte":100,"format":"epoch_second"}}}]`, got)
}

func TestBuildFilters_Conjunction(t *testing.T) {
	start := int64(100)
	filters := BuildFilters(model.SearchParams{
		Types:          []model.ActivityType{model.ActivitySale},
		Contracts:      []string{"0xabc"},
		Users:          []string{"0x1"},
		StartTimestamp: &start,
	})

	// One conjunctive clause per present filter.
	assert.Len(t, filters, 4)
}
