package gwselect

import (
	"fmt"
	"strconv"
	"strings"
)

// coerceMode enumerates the value-coercion strategies shared by ValueIn
// and the sticky-key stringification used by weighted dispatch.
const (
	coerceNone     = "none"
	coerceInt      = "int"
	coerceStr      = "str"
	coerceLowerStr = "lower-str"
)

// coerceScalar applies mode to v, returning a comparable value (int64 or
// string) suitable for set membership or equality. ok is false when the
// coercion cannot be performed (e.g. a non-numeric string under "int").
func coerceScalar(v any, mode string) (any, bool) {
	switch mode {
	case coerceInt, "":
		if mode == "" {
			mode = coerceNone
		}
		if mode == coerceInt {
			return toInt64(v)
		}
		return v, true
	case coerceStr:
		return stringifyScalar(v), true
	case coerceLowerStr:
		return strings.ToLower(stringifyScalar(v)), true
	case coerceNone:
		return v, true
	default:
		return nil, false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case bool:
		return 0, false
	default:
		return 0, false
	}
}

// stringifyScalar renders v as a string using the canonical rules from
// §6/§9: decimal integers in base 10, booleans lowercase, everything else
// its natural string form. stickyKey screens out composite values
// (maps/slices) before calling here; ValueIn and Regex do not, so a
// composite value reaching them is rendered with fmt's %v form.
func stringifyScalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// isComposite reports whether v is a map or slice — values that must
// never be used as a sticky-routing key (§6).
func isComposite(v any) bool {
	switch v.(type) {
	case map[string]any, Context, []any:
		return true
	}
	return false
}
