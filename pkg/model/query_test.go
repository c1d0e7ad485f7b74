package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshal(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestTermQuery(t *testing.T) {
	q := TermQuery{Field: "contract", Value: "0xabc"}
	assert.JSONEq(t, `{"term":{"contract":"0xabc"}}`, marshal(t, q))
}

func TestTermsQuery(t *testing.T) {
	q := StringTerms("type", []string{"sale", "mint"})
	assert.JSONEq(t, `{"terms":{"type":["sale","mint"]}}`, marshal(t, q))
}

func TestRangeQuery(t *testing.T) {
	tests := []struct {
		name string
		q    RangeQuery
		want string
	}{
		{
			name: "gte and lt",
			q:    RangeQuery{Field: "timestamp", Gte: int64(100), Lt: int64(200)},
			want: `{"range":{"timestamp":{"gte":100,"lt":200}}}`,
		},
		{
			name: "with format",
			q:    RangeQuery{Field: "timestamp", Gte: int64(100), Format: "epoch_second"},
			want: `{"range":{"timestamp":{"gte":100,"format":"epoch_second"}}}`,
		},
		{
			name: "only upper bound",
			q:    RangeQuery{Field: "timestamp", Lt: int64(5)},
			want: `{"range":{"timestamp":{"lt":5}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.want, marshal(t, tt.q))
		})
	}
}

func TestBoolQuery(t *testing.T) {
	q := BoolQuery{
		Filter: []Query{
			TermQuery{Field: "contract", Value: "0xabc"},
		},
		Should: []Query{
			TermQuery{Field: "fromAddress", Value: "0x1"},
			TermQuery{Field: "toAddress", Value: "0x1"},
		},
		MinimumShouldMatch: 1,
	}

	want := `{"bool":{
		"filter":[{"term":{"contract":"0xabc"}}],
		"should":[{"term":{"fromAddress":"0x1"}},{"term":{"toAddress":"0x1"}}],
		"minimum_should_match":1
	}}`
	assert.JSONEq(t, want, marshal(t, q))
}

func TestBoolQuery_OmitsEmptyClauses(t *testing.T) {
	assert.JSONEq(t, `{"bool":{}}`, marshal(t, BoolQuery{}))
}

func TestExistsQuery(t *testing.T) {
	q := ExistsQuery{Field: "collection.image"}
	assert.JSONEq(t, `{"exists":{"field":"collection.image"}}`, marshal(t, q))
}

func TestSort(t *testing.T) {
	s := Sort{Field: "timestamp", Desc: true, Format: "epoch_second"}
	assert.JSONEq(t, `{"timestamp":{"order":"desc","format":"epoch_second"}}`, marshal(t, s))

	s = Sort{Field: "id"}
	assert.JSONEq(t, `{"id":{"order":"asc"}}`, marshal(t, s))
}

func TestTermsAgg(t *testing.T) {
	a := TermsAgg{
		Field:     "collection.id",
		Size:      10,
		OrderBy:   "volume",
		OrderDesc: true,
		Aggs: map[string]Agg{
			"volume": SumAgg{Field: "pricing.valueDecimal"},
		},
	}

	want := `{
		"terms":{"field":"collection.id","size":10,"order":{"volume":"desc"}},
		"aggs":{"volume":{"sum":{"field":"pricing.valueDecimal"}}}
	}`
	assert.JSONEq(t, want, marshal(t, a))
}

func TestFilterAgg(t *testing.T) {
	a := FilterAgg{
		Filter: RangeQuery{Field: "timestamp", Gte: int64(100)},
		Aggs: map[string]Agg{
			"volume": SumAgg{Field: "pricing.valueDecimal"},
		},
	}

	want := `{
		"filter":{"range":{"timestamp":{"gte":100}}},
		"aggs":{"volume":{"sum":{"field":"pricing.valueDecimal"}}}
	}`
	assert.JSONEq(t, want, marshal(t, a))
}

func TestTopHitsAgg(t *testing.T) {
	a := TopHitsAgg{
		Size:   8,
		Sort:   []Sort{{Field: "timestamp", Desc: true}},
		Source: []string{"collection", "pricing"},
	}

	want := `{"top_hits":{
		"size":8,
		"sort":[{"timestamp":{"order":"desc"}}],
		"_source":["collection","pricing"]
	}}`
	assert.JSONEq(t, want, marshal(t, a))
}
