// Package interp renders {{name}} placeholders in template strings and
// structured template values with runtime data.
package interp

import (
	"encoding/hex"
	"math/rand/v2"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Interpolate replaces every {{name}} in s with the context value for name,
// or a built-in value. Unknown placeholders are left literal.
//
// Built-ins: timestamp (current UTC ISO 8601), request_id and random_id
// (freshly minted 128-bit hex), random_int (uniform in [1000, 999999]),
// response_time_ms (uniform in [1, 50]).
func Interpolate(s string, ctx map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-2]
		if ctx != nil {
			if v, ok := ctx[name]; ok {
				return v
			}
		}
		if v, ok := builtin(name); ok {
			return v
		}
		return match
	})
}

// Value applies Interpolate recursively over a structured template value:
// strings are rendered, maps and slices are walked, everything else passes
// through unchanged.
func Value(v any, ctx map[string]string) any {
	switch t := v.(type) {
	case string:
		return Interpolate(t, ctx)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = Value(vv, ctx)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = Value(vv, ctx)
		}
		return out
	default:
		return v
	}
}

func builtin(name string) (string, bool) {
	switch name {
	case "timestamp":
		return time.Now().UTC().Format(time.RFC3339), true
	case "request_id", "random_id":
		return newHexID(), true
	case "random_int":
		return strconv.Itoa(1000 + rand.IntN(999000)), true
	case "response_time_ms":
		return strconv.Itoa(1 + rand.IntN(50)), true
	}
	return "", false
}

// newHexID returns 32 hex characters (128 bits) with no separators.
func newHexID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
