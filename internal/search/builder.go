// Package search implements cursor-paginated activity search: filter-tree
// construction, continuation encoding and the search engine itself.
package search

import (
	"strings"

	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// BuildFilters translates structured search parameters into a conjunctive
// filter list. Each present filter becomes one clause; values within a filter
// match disjunctively. Absent filters add no clause at all.
func BuildFilters(params model.SearchParams) []model.Query {
	var filters []model.Query

	if len(params.Types) > 0 {
		values := make([]interface{}, len(params.Types))
		for i, t := range params.Types {
			values[i] = string(t)
		}
		filters = append(filters, model.TermsQuery{Field: "type", Values: values})
	}

	if len(params.Tokens) > 0 {
		filters = append(filters, tokensFilter(params.Tokens))
	}

	if len(params.Contracts) > 0 {
		filters = append(filters, model.StringTerms("contract", params.Contracts))
	}

	if len(params.Collections) > 0 {
		filters = append(filters, model.StringTerms("collection.id", params.Collections))
	}

	if len(params.Sources) > 0 {
		filters = append(filters, model.StringTerms("order.sourceId", params.Sources))
	}

	if len(params.Users) > 0 {
		users := make([]string, len(params.Users))
		for i, u := range params.Users {
			users[i] = strings.ToLower(u)
		}
		// A user matches as sender or receiver.
		filters = append(filters, model.BoolQuery{
			Should: []model.Query{
				model.StringTerms("fromAddress", users),
				model.StringTerms("toAddress", users),
			},
			MinimumShouldMatch: 1,
		})
	}

	if params.StartTimestamp != nil || params.EndTimestamp != nil {
		r := model.RangeQuery{Field: "timestamp", Format: "epoch_second"}
		if params.StartTimestamp != nil {
			r.Gte = *params.StartTimestamp
		}
		if params.EndTimestamp != nil {
			r.Lt = *params.EndTimestamp
		}
		filters = append(filters, r)
	}

	return filters
}

// tokensFilter builds the token clause. A search confined to one contract
// flattens to a terms clause on token id; mixed contracts expand to a
// disjunction of (contract AND tokenId) pairs.
func tokensFilter(tokens []model.TokenRef) model.Query {
	contract := tokens[0].Contract
	sameContract := true
	for _, tok := range tokens[1:] {
		if tok.Contract != contract {
			sameContract = false
			break
		}
	}

	if sameContract {
		ids := make([]interface{}, len(tokens))
		for i, tok := range tokens {
			ids[i] = tok.TokenID
		}
		return model.BoolQuery{
			Filter: []model.Query{
				model.TermQuery{Field: "contract", Value: contract},
				model.TermsQuery{Field: "token.id", Values: ids},
			},
		}
	}

	pairs := make([]model.Query, len(tokens))
	for i, tok := range tokens {
		pairs[i] = model.BoolQuery{
			Filter: []model.Query{
				model.TermQuery{Field: "contract", Value: tok.Contract},
				model.TermQuery{Field: "token.id", Value: tok.TokenID},
			},
		}
	}
	return model.BoolQuery{Should: pairs, MinimumShouldMatch: 1}
}
