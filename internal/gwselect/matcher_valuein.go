package gwselect

import "fmt"

func init() {
	registerMatcher("VALUE_IN", "v1", buildValueIn)
}

// ValueIn matches when ctx[field], after coercion, is a member of a
// build-time-fixed value set. Missing field, or a coercion failure,
// evaluates to false rather than erroring.
type ValueIn struct {
	Field  string
	Coerce string
	set    map[any]struct{}
}

func (v ValueIn) Evaluate(ctx Context) bool {
	raw, ok := field(ctx, v.Field)
	if !ok {
		return false
	}
	coerced, ok := coerceScalar(raw, v.Coerce)
	if !ok {
		return false
	}
	_, found := v.set[coerced]
	return found
}

func (ValueIn) Kind() string { return "VALUE_IN" }

func buildValueIn(node map[string]any) (Matcher, error) {
	fieldName, ok := node["field"].(string)
	if !ok || fieldName == "" {
		return nil, fmt.Errorf("gwselect: VALUE_IN.field is required")
	}

	coerce := coerceNone
	if raw, present := node["coerce"]; present {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("gwselect: VALUE_IN.coerce must be a string")
		}
		switch s {
		case coerceNone, coerceInt, coerceStr, coerceLowerStr:
			coerce = s
		default:
			return nil, fmt.Errorf("gwselect: VALUE_IN.coerce invalid: %q", s)
		}
	}

	rawValues, ok := node["values"].([]any)
	if !ok {
		return nil, fmt.Errorf("gwselect: VALUE_IN.values must be a list")
	}

	set := make(map[any]struct{}, len(rawValues))
	for _, rv := range rawValues {
		coerced, ok := coerceScalar(rv, coerce)
		if !ok {
			return nil, fmt.Errorf("gwselect: VALUE_IN.values entry %v cannot be coerced as %s", rv, coerce)
		}
		set[coerced] = struct{}{}
	}

	return ValueIn{Field: fieldName, Coerce: coerce, set: set}, nil
}
