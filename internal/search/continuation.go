package search

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// continuationSep joins sort-tuple components before encoding. Document ids
// embed the activity type, and cancel types (bid_cancel, ask_cancel) contain
// the separator, so decoding splits on the first occurrence only: the tuple
// is always a leading sort value plus the id tie-break.
const continuationSep = "_"

// EncodeContinuation packs an ordered sort tuple into an opaque cursor. The
// cursor is valid only for the sort order and filter set that produced it.
func EncodeContinuation(values []interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = stringifySortValue(v)
	}
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(parts, continuationSep)))
}

// DecodeContinuation unpacks a cursor into its ordered string components. An
// undecodable cursor fails with ErrMalformedContinuation; it never silently
// yields an empty result set.
func DecodeContinuation(cursor string) ([]string, error) {
	if cursor == "" {
		return nil, fmt.Errorf("%w: empty cursor", model.ErrMalformedContinuation)
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrMalformedContinuation, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty cursor", model.ErrMalformedContinuation)
	}
	return strings.SplitN(string(raw), continuationSep, 2), nil
}

// stringifySortValue renders a sort-tuple component the way the store
// emitted it. Numeric sort values arrive as float64 from the wire.
func stringifySortValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
