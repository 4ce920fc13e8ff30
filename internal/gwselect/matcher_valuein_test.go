package gwselect

import "testing"

func TestValueInMatchesCoercedMembership(t *testing.T) {
	m, err := buildValueIn(map[string]any{
		"type":   "VALUE_IN",
		"field":  "pix_key_type",
		"coerce": "str",
		"values": []any{"EVP", "CPF"},
	})
	if err != nil {
		t.Fatalf("buildValueIn: %v", err)
	}
	if !m.Evaluate(Context{"pix_key_type": "EVP"}) {
		t.Fatalf("expected EVP to match")
	}
	if m.Evaluate(Context{"pix_key_type": "PHONE"}) {
		t.Fatalf("expected PHONE not to match")
	}
}

func TestValueInMissingFieldIsFalse(t *testing.T) {
	m, err := buildValueIn(map[string]any{
		"type": "VALUE_IN", "field": "user_id", "values": []any{"1"},
	})
	if err != nil {
		t.Fatalf("buildValueIn: %v", err)
	}
	if m.Evaluate(Context{}) {
		t.Fatalf("expected missing field to evaluate false")
	}
}

func TestValueInIntCoercion(t *testing.T) {
	m, err := buildValueIn(map[string]any{
		"type": "VALUE_IN", "field": "api_user_id", "coerce": "int", "values": []any{42},
	})
	if err != nil {
		t.Fatalf("buildValueIn: %v", err)
	}
	if !m.Evaluate(Context{"api_user_id": int64(42)}) {
		t.Fatalf("expected int64(42) to match coerced int 42")
	}
	if !m.Evaluate(Context{"api_user_id": float64(42)}) {
		t.Fatalf("expected float64(42) to coerce to int and match")
	}
}

func TestValueInRejectsNonListValues(t *testing.T) {
	_, err := buildValueIn(map[string]any{"type": "VALUE_IN", "field": "x", "values": "not-a-list"})
	if err == nil {
		t.Fatalf("expected error for non-list values")
	}
}

func TestValueInRejectsMissingField(t *testing.T) {
	_, err := buildValueIn(map[string]any{"type": "VALUE_IN", "values": []any{"a"}})
	if err == nil {
		t.Fatalf("expected error for missing field")
	}
}

func TestValueInRejectsBadCoerceValue(t *testing.T) {
	_, err := buildValueIn(map[string]any{"type": "VALUE_IN", "field": "x", "coerce": "nonsense", "values": []any{"a"}})
	if err == nil {
		t.Fatalf("expected error for invalid coerce")
	}
}
