package gwselect

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func init() {
	registerMatcher("AMOUNT_RANGE", "v1", buildAmountRange)
}

// AmountRange matches a numeric field against an inclusive-by-default
// bound using arbitrary-precision decimal arithmetic — amounts are
// money and must never be compared as binary floats.
type AmountRange struct {
	Field         string
	Coerce        string // "int" or "decimal"
	Scale         int32
	Min           *decimal.Decimal
	Max           *decimal.Decimal
	MinInclusive  bool
	MaxInclusive  bool
}

func (a AmountRange) Evaluate(ctx Context) bool {
	raw, ok := field(ctx, a.Field)
	if !ok {
		return false
	}

	var v decimal.Decimal
	if a.Coerce == "int" {
		n, ok := toInt64(raw)
		if !ok {
			return false
		}
		v = decimal.New(n, -a.Scale)
	} else {
		d, ok := toDecimal(raw)
		if !ok {
			return false
		}
		v = d
	}

	if a.Min != nil {
		cmp := v.Cmp(*a.Min)
		if cmp < 0 || (cmp == 0 && !a.MinInclusive) {
			return false
		}
	}
	if a.Max != nil {
		cmp := v.Cmp(*a.Max)
		if cmp > 0 || (cmp == 0 && !a.MaxInclusive) {
			return false
		}
	}
	return true
}

func (AmountRange) Kind() string { return "AMOUNT_RANGE" }

// toDecimal converts common scalar shapes to decimal.Decimal, mirroring
// the original's Decimal(str(val)) conversion via string round-tripping.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt32(t), true
	case int64:
		return decimal.NewFromInt(t), true
	case float64:
		return decimal.NewFromFloat(t), true
	default:
		return decimal.Decimal{}, false
	}
}

func buildAmountRange(node map[string]any) (Matcher, error) {
	fieldName, _ := node["field"].(string)
	if fieldName == "" {
		fieldName = "amount"
	}

	coerce := "decimal"
	if raw, present := node["coerce"]; present {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("gwselect: AMOUNT_RANGE.coerce must be a string")
		}
		switch s {
		case "int", "decimal":
			coerce = s
		default:
			return nil, fmt.Errorf("gwselect: AMOUNT_RANGE.coerce invalid: %q", s)
		}
	}

	scale := int32(0)
	if raw, present := node["scale"]; present {
		n, ok := toInt64(raw)
		if !ok || n < 0 {
			return nil, fmt.Errorf("gwselect: AMOUNT_RANGE.scale must be a non-negative integer")
		}
		scale = int32(n)
	}

	minV, err := parseOptionalDecimal(node["min"], "min")
	if err != nil {
		return nil, err
	}
	maxV, err := parseOptionalDecimal(node["max"], "max")
	if err != nil {
		return nil, err
	}
	if minV != nil && maxV != nil && maxV.Cmp(*minV) < 0 {
		return nil, fmt.Errorf("gwselect: AMOUNT_RANGE.max must be >= min")
	}

	minInclusive := true
	if raw, present := node["min_inclusive"]; present {
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("gwselect: AMOUNT_RANGE.min_inclusive must be a bool")
		}
		minInclusive = b
	}
	maxInclusive := true
	if raw, present := node["max_inclusive"]; present {
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("gwselect: AMOUNT_RANGE.max_inclusive must be a bool")
		}
		maxInclusive = b
	}

	return AmountRange{
		Field:        fieldName,
		Coerce:       coerce,
		Scale:        scale,
		Min:          minV,
		Max:          maxV,
		MinInclusive: minInclusive,
		MaxInclusive: maxInclusive,
	}, nil
}

func parseOptionalDecimal(raw any, name string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, ok := toDecimal(raw)
	if !ok {
		return nil, fmt.Errorf("gwselect: AMOUNT_RANGE.%s is not a valid number", name)
	}
	return &d, nil
}
