// Package codec implements bidirectional value encoding for values crossing
// the database boundary: datetimes normalize to UTC ISO-8601, binary values
// base64, and at JSON depth >= 1 both are wrapped in a one-key marker map so
// they can be told apart from a plain string on the way back out. It is
// grounded on internal/tools/sqlite/sqlitesql.Invoke's row decoding (the
// "handle JSON data" branch that tries json.Unmarshal on every string
// column) and on internal/tools/mysql/mysqllisttables' use of nested
// JSON_OBJECT/JSON_ARRAYAGG to carry structured values through a single
// column.
package codec

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	datetimeKey = "datetime"
	bytesKey    = "bytes"
)

// EncodeTop encodes a single top-level (column-level) value for storage.
// Top-level datetime/binary values use the driver's native representation
// (time.Time, []byte) rather than the wrapped JSON form; only values nested
// inside a JSON column get wrapped, which EncodeJSON handles.
func EncodeTop(v any) (any, error) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), nil
	case map[string]any, []any, nil:
		return EncodeJSON(val)
	default:
		return v, nil
	}
}

// DecodeTop is the inverse of EncodeTop for values read back from a
// top-level column.
func DecodeTop(v any) (any, error) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), nil
	default:
		return v, nil
	}
}

// EncodeJSON recursively prepares v (destined for a JSON column, or for
// nesting inside one) so that every datetime and []byte value at depth >= 1
// is replaced with its marker-wrapped form, making the result safe to
// marshal with encoding/json.
func EncodeJSON(v any) (any, error) {
	switch val := v.(type) {
	case time.Time:
		return map[string]any{datetimeKey: val.UTC().Format(time.RFC3339Nano)}, nil
	case []byte:
		return map[string]any{bytesKey: base64.StdEncoding.EncodeToString(val)}, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			enc, err := EncodeJSON(e)
			if err != nil {
				return nil, fmt.Errorf("encoding key %q: %w", k, err)
			}
			out[k] = enc
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			enc, err := EncodeJSON(e)
			if err != nil {
				return nil, fmt.Errorf("encoding index %d: %w", i, err)
			}
			out[i] = enc
		}
		return out, nil
	default:
		return v, nil
	}
}

// DecodeJSON is the inverse of EncodeJSON: it recursively replaces every
// {"datetime": "..."} / {"bytes": "..."} marker map with the native
// time.Time / []byte value it represents. Maps that don't match a known
// marker shape pass through unchanged, so an unrecognized wrapper added by
// a future version round-trips as plain data instead of erroring.
func DecodeJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 1 {
			if s, ok := val[datetimeKey].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return t.UTC()
				}
			}
			if s, ok := val[bytesKey].(string); ok {
				if b, err := base64.StdEncoding.DecodeString(s); err == nil {
					return b
				}
			}
		}
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = DecodeJSON(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = DecodeJSON(e)
		}
		return out
	default:
		return v
	}
}
