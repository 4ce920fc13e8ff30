// Package gwselect implements the rule-set compiler and selector hot path:
// predicate matchers over a request context, a compiler that turns
// declarative rule records into an immutable snapshot, and the selector
// that evaluates that snapshot to pick a downstream payment gateway.
package gwselect

import "strings"

// Context is the heterogeneous request mapping matchers and the selector
// read from. Keys are free-form; recognized ones include api_user_id,
// pix_key, pix_key_type, amount, now, and env, plus nested maps.
type Context map[string]any

// field resolves a dotted path ("a.b.c") against ctx. A missing segment,
// or a non-map encountered mid-path, yields (nil, false) rather than a
// panic or error — matchers treat that as "no value".
func field(ctx Context, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var cur any = map[string]any(ctx)
	for _, seg := range segments {
		if seg == "" {
			return nil, false
		}
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		v, present := m[seg]
		if !present {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// asMap normalizes the handful of map shapes a context can nest
// (map[string]any, Context) into a single lookup surface.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Context:
		return map[string]any(m), true
	default:
		return nil, false
	}
}
