package index

import "encoding/json"

// Named mapping configurations, selectable per deployment. The default
// carries the full field set; the light variant skips token and collection
// display metadata for deployments that only serve raw event queries.

const defaultMapping = `{
	"properties": {
		"id": {"type": "keyword"},
		"type": {"type": "keyword"},
		"contract": {"type": "keyword"},
		"fromAddress": {"type": "keyword"},
		"toAddress": {"type": "keyword"},
		"amount": {"type": "keyword"},
		"token": {
			"properties": {
				"id": {"type": "keyword"},
				"name": {"type": "keyword"},
				"image": {"type": "keyword"},
				"media": {"type": "keyword"}
			}
		},
		"collection": {
			"properties": {
				"id": {"type": "keyword"},
				"name": {"type": "keyword"},
				"image": {"type": "keyword"}
			}
		},
		"pricing": {
			"properties": {
				"price": {"type": "keyword"},
				"priceDecimal": {"type": "double"},
				"currency": {"type": "keyword"},
				"value": {"type": "keyword"},
				"valueDecimal": {"type": "double"},
				"normalizedValue": {"type": "keyword"}
			}
		},
		"order": {
			"properties": {
				"id": {"type": "keyword"},
				"sourceId": {"type": "keyword"},
				"side": {"type": "keyword"}
			}
		},
		"event": {
			"properties": {
				"txHash": {"type": "keyword"},
				"blockHash": {"type": "keyword"},
				"logIndex": {"type": "integer"}
			}
		},
		"timestamp": {"type": "date", "format": "epoch_second"},
		"createdAt": {"type": "date"},
		"indexedAt": {"type": "date"}
	}
}`

const lightMapping = `{
	"properties": {
		"id": {"type": "keyword"},
		"type": {"type": "keyword"},
		"contract": {"type": "keyword"},
		"fromAddress": {"type": "keyword"},
		"toAddress": {"type": "keyword"},
		"token": {
			"properties": {
				"id": {"type": "keyword"}
			}
		},
		"collection": {
			"properties": {
				"id": {"type": "keyword"}
			}
		},
		"pricing": {
			"properties": {
				"valueDecimal": {"type": "double"}
			}
		},
		"order": {
			"properties": {
				"sourceId": {"type": "keyword"}
			}
		},
		"event": {
			"properties": {
				"txHash": {"type": "keyword"}
			}
		},
		"timestamp": {"type": "date", "format": "epoch_second"},
		"createdAt": {"type": "date"},
		"indexedAt": {"type": "date"}
	}
}`

var mappings = map[string]string{
	"default": defaultMapping,
	"light":   lightMapping,
}

// Mapping resolves a named mapping configuration.
func Mapping(name string) (json.RawMessage, bool) {
	m, ok := mappings[name]
	if !ok {
		return nil, false
	}
	return json.RawMessage(m), true
}

// MappingNames lists the available mapping configurations.
func MappingNames() []string {
	names := make([]string, 0, len(mappings))
	for name := range mappings {
		names = append(names, name)
	}
	return names
}
