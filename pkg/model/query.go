package model

import (
	"encoding/json"
)

// Query is a node of the filter tree sent to the document store. The tree is
// inert data: building it performs no store calls, and serialization to the
// store's wire format happens only when a request is submitted.
type Query interface {
	json.Marshaler
	isQuery()
}

// TermQuery matches documents whose field holds exactly the given value.
type TermQuery struct {
	Field string
	Value interface{}
}

func (TermQuery) isQuery() {}

func (q TermQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"term": map[string]interface{}{q.Field: q.Value},
	})
}

// TermsQuery matches documents whose field holds any of the given values.
type TermsQuery struct {
	Field  string
	Values []interface{}
}

func (TermsQuery) isQuery() {}

func (q TermsQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"terms": map[string]interface{}{q.Field: q.Values},
	})
}

// StringTerms builds a TermsQuery from string values.
func StringTerms(field string, values []string) TermsQuery {
	vals := make([]interface{}, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return TermsQuery{Field: field, Values: vals}
}

// RangeQuery matches documents whose field falls inside the given bounds.
// Nil bounds are omitted. Format, when set, tells the store how to read the
// bound values (e.g. epoch_second for date fields).
type RangeQuery struct {
	Field  string
	Gte    interface{}
	Gt     interface{}
	Lte    interface{}
	Lt     interface{}
	Format string
}

func (RangeQuery) isQuery() {}

func (q RangeQuery) MarshalJSON() ([]byte, error) {
	bounds := map[string]interface{}{}
	if q.Gte != nil {
		bounds["gte"] = q.Gte
	}
	if q.Gt != nil {
		bounds["gt"] = q.Gt
	}
	if q.Lte != nil {
		bounds["lte"] = q.Lte
	}
	if q.Lt != nil {
		bounds["lt"] = q.Lt
	}
	if q.Format != "" {
		bounds["format"] = q.Format
	}
	return json.Marshal(map[string]interface{}{
		"range": map[string]interface{}{q.Field: bounds},
	})
}

// ExistsQuery matches documents that have any value for the field.
type ExistsQuery struct {
	Field string
}

func (ExistsQuery) isQuery() {}

func (q ExistsQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"exists": map[string]interface{}{"field": q.Field},
	})
}

// BoolQuery combines sub-queries. Filter clauses are conjunctive, Should
// clauses disjunctive, MustNot clauses negated.
type BoolQuery struct {
	Filter             []Query
	Should             []Query
	MustNot            []Query
	MinimumShouldMatch int
}

func (BoolQuery) isQuery() {}

func (q BoolQuery) MarshalJSON() ([]byte, error) {
	body := map[string]interface{}{}
	if len(q.Filter) > 0 {
		body["filter"] = q.Filter
	}
	if len(q.Should) > 0 {
		body["should"] = q.Should
	}
	if len(q.MustNot) > 0 {
		body["must_not"] = q.MustNot
	}
	if q.MinimumShouldMatch > 0 {
		body["minimum_should_match"] = q.MinimumShouldMatch
	}
	return json.Marshal(map[string]interface{}{"bool": body})
}

// MatchAllQuery matches every document. Used when a caller supplies no filters.
type MatchAllQuery struct{}

func (MatchAllQuery) isQuery() {}

func (MatchAllQuery) MarshalJSON() ([]byte, error) {
	return []byte(`{"match_all":{}}`), nil
}

// Sort is one component of a sort specification.
type Sort struct {
	Field  string
	Desc   bool
	Format string
}

func (s Sort) MarshalJSON() ([]byte, error) {
	order := "asc"
	if s.Desc {
		order = "desc"
	}
	body := map[string]interface{}{"order": order}
	if s.Format != "" {
		body["format"] = s.Format
	}
	return json.Marshal(map[string]interface{}{s.Field: body})
}
