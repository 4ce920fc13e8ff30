package gwselect

import "testing"

func valueInNode(field string, values ...any) map[string]any {
	return map[string]any{"type": "VALUE_IN", "field": field, "values": values}
}

func TestCompilePredicateRejectsMultipleCompositeKeys(t *testing.T) {
	_, err := CompilePredicate(map[string]any{
		"all": []any{}, "any": []any{},
	}, "ROOT", CompileOptions{})
	if err == nil {
		t.Fatalf("expected error for multiple composite keys")
	}
}

func TestCompilePredicateRejectsEmptyNode(t *testing.T) {
	_, err := CompilePredicate(map[string]any{}, "ROOT", CompileOptions{})
	if err == nil {
		t.Fatalf("expected error for empty node")
	}
}

func TestFoldAllDropsConstTrueAndCollapsesOnFalse(t *testing.T) {
	allTrue := foldAll([]Matcher{ConstTrue, ConstTrue})
	if allTrue != ConstTrue {
		t.Fatalf("expected all-true children to fold to ConstTrue, got %#v", allTrue)
	}

	withFalse := foldAll([]Matcher{ConstTrue, ConstFalse})
	if withFalse != ConstFalse {
		t.Fatalf("expected any ConstFalse child to collapse to ConstFalse, got %#v", withFalse)
	}
}

func TestFoldAllUnwrapsSingleChild(t *testing.T) {
	leaf, err := buildValueIn(valueInNode("x", "a"))
	if err != nil {
		t.Fatalf("buildValueIn: %v", err)
	}
	folded := foldAll([]Matcher{leaf})
	if folded != leaf {
		t.Fatalf("expected single-child All to unwrap, got %#v", folded)
	}
}

func TestFoldAnyCollapsesOnConstTrue(t *testing.T) {
	folded := foldAny([]Matcher{ConstFalse, ConstTrue})
	if folded != ConstTrue {
		t.Fatalf("expected ConstTrue child to collapse Any, got %#v", folded)
	}
}

func TestFoldNoneRules(t *testing.T) {
	if foldNone(ConstTrue) != ConstFalse {
		t.Fatalf("expected None(ConstTrue) == ConstFalse")
	}
	if foldNone(ConstFalse) != ConstTrue {
		t.Fatalf("expected None(ConstFalse) == ConstTrue")
	}
	leaf, err := buildValueIn(valueInNode("x", "a"))
	if err != nil {
		t.Fatalf("buildValueIn: %v", err)
	}
	folded := foldNone(leaf)
	not, ok := folded.(Not)
	if !ok || not.Child != leaf {
		t.Fatalf("expected Not wrapping the unfolded child, got %#v", folded)
	}
}

func TestFlattenAllCollapsesNestedAll(t *testing.T) {
	inner := All{Children: []Matcher{ConstTrue, ConstFalse}}
	flattened := flattenAll([]Matcher{inner, ConstTrue})
	if len(flattened) != 3 {
		t.Fatalf("expected nested All to flatten into 3 children, got %d", len(flattened))
	}
}

// Property 5: flattening/folding never changes the evaluated result
// relative to a naive (unfolded) tree evaluation.
func TestCompilePredicateFoldingPreservesSemantics(t *testing.T) {
	node := map[string]any{
		"all": []any{
			valueInNode("a", "x"),
			map[string]any{"any": []any{valueInNode("b", "y"), valueInNode("b", "z")}},
		},
	}
	compiled, err := CompilePredicate(node, "ROOT", CompileOptions{})
	if err != nil {
		t.Fatalf("CompilePredicate: %v", err)
	}

	cases := []struct {
		ctx  Context
		want bool
	}{
		{Context{"a": "x", "b": "y"}, true},
		{Context{"a": "x", "b": "z"}, true},
		{Context{"a": "x", "b": "q"}, false},
		{Context{"a": "q", "b": "y"}, false},
	}
	for _, tc := range cases {
		if got := compiled.Evaluate(tc.ctx); got != tc.want {
			t.Fatalf("ctx %v: expected %v, got %v", tc.ctx, tc.want, got)
		}
	}
}

// Property 1: compiling identical inputs twice yields snapshots that
// decide identically for all contexts.
func TestCompilePredicateIdempotent(t *testing.T) {
	node := map[string]any{
		"any": []any{valueInNode("k", "1"), valueInNode("k", "2")},
	}
	first, err := CompilePredicate(node, "ROOT", CompileOptions{})
	if err != nil {
		t.Fatalf("CompilePredicate: %v", err)
	}
	second, err := CompilePredicate(node, "ROOT", CompileOptions{})
	if err != nil {
		t.Fatalf("CompilePredicate: %v", err)
	}
	for _, v := range []string{"1", "2", "3"} {
		ctx := Context{"k": v}
		if first.Evaluate(ctx) != second.Evaluate(ctx) {
			t.Fatalf("expected idempotent compiles to agree for %v", ctx)
		}
	}
}

func TestCompilePredicateDebugWrapsInDebugTrace(t *testing.T) {
	compiled, err := CompilePredicate(valueInNode("x", "a"), "ROOT", CompileOptions{Debug: true})
	if err != nil {
		t.Fatalf("CompilePredicate: %v", err)
	}
	if _, ok := compiled.(DebugTrace); !ok {
		t.Fatalf("expected DebugTrace wrapper when Debug is enabled, got %T", compiled)
	}
}
