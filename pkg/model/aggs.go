package model

import "encoding/json"

// Agg is a node of an aggregation tree. Like Query nodes, aggregations are
// inert data serialized to the store's wire format on submission.
type Agg interface {
	json.Marshaler
	isAgg()
}

// SumAgg sums a numeric field over the matched documents.
type SumAgg struct {
	Field string
}

func (SumAgg) isAgg() {}

func (a SumAgg) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"sum": map[string]interface{}{"field": a.Field},
	})
}

// CardinalityAgg estimates the distinct-value count of a field.
type CardinalityAgg struct {
	Field string
}

func (CardinalityAgg) isAgg() {}

func (a CardinalityAgg) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"cardinality": map[string]interface{}{"field": a.Field},
	})
}

// ValueCountAgg counts the documents carrying the field.
type ValueCountAgg struct {
	Field string
}

func (ValueCountAgg) isAgg() {}

func (a ValueCountAgg) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"value_count": map[string]interface{}{"field": a.Field},
	})
}

// TermsAgg buckets documents by field value. When OrderBy names a sub
// aggregation, buckets are ordered by that aggregation's value.
type TermsAgg struct {
	Field     string
	Size      int
	OrderBy   string
	OrderDesc bool
	Aggs      map[string]Agg
}

func (TermsAgg) isAgg() {}

func (a TermsAgg) MarshalJSON() ([]byte, error) {
	terms := map[string]interface{}{"field": a.Field}
	if a.Size > 0 {
		terms["size"] = a.Size
	}
	if a.OrderBy != "" {
		dir := "asc"
		if a.OrderDesc {
			dir = "desc"
		}
		terms["order"] = map[string]string{a.OrderBy: dir}
	}
	body := map[string]interface{}{"terms": terms}
	if len(a.Aggs) > 0 {
		body["aggs"] = a.Aggs
	}
	return json.Marshal(body)
}

// TopHitsAgg returns representative documents per bucket.
type TopHitsAgg struct {
	Size   int
	Sort   []Sort
	Source []string
}

func (TopHitsAgg) isAgg() {}

func (a TopHitsAgg) MarshalJSON() ([]byte, error) {
	hits := map[string]interface{}{}
	if a.Size > 0 {
		hits["size"] = a.Size
	}
	if len(a.Sort) > 0 {
		hits["sort"] = a.Sort
	}
	if len(a.Source) > 0 {
		hits["_source"] = a.Source
	}
	return json.Marshal(map[string]interface{}{"top_hits": hits})
}

// FilterAgg scopes sub-aggregations to the documents matching Filter.
type FilterAgg struct {
	Filter Query
	Aggs   map[string]Agg
}

func (FilterAgg) isAgg() {}

func (a FilterAgg) MarshalJSON() ([]byte, error) {
	body := map[string]interface{}{"filter": a.Filter}
	if len(a.Aggs) > 0 {
		body["aggs"] = a.Aggs
	}
	return json.Marshal(body)
}
