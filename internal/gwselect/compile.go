package gwselect

import (
	"fmt"
	"log/slog"
)

// CompileOptions controls optional tracing behavior of the predicate
// compiler. The zero value compiles with tracing disabled.
type CompileOptions struct {
	Debug          bool
	Logger         *slog.Logger
	CaptureCtxKeys bool
}

var compositeKeys = [...]string{"all", "any", "none"}

// CompilePredicate recursively compiles a node (§4.C) into a Matcher,
// applying flattening and constant folding bottom-up. path labels the
// node's position for debug tracing (e.g. "ROOT.ALL[0]").
func CompilePredicate(node map[string]any, path string, opts CompileOptions) (Matcher, error) {
	if len(node) == 0 {
		return nil, fmt.Errorf("gwselect: %s: empty or invalid node", path)
	}

	present := 0
	var compositeKey string
	for _, k := range compositeKeys {
		if _, ok := node[k]; ok {
			present++
			compositeKey = k
		}
	}
	if present > 1 {
		return nil, fmt.Errorf("gwselect: %s: node has more than one composite key", path)
	}

	var matcher Matcher
	var err error
	if present == 1 {
		matcher, err = compileComposite(node, compositeKey, path, opts)
	} else {
		matcher, err = buildLeaf(node)
	}
	if err != nil {
		return nil, err
	}

	if opts.Debug {
		matcher = DebugTrace{Inner: matcher, Path: path, Logger: opts.Logger, CaptureCtxKeys: opts.CaptureCtxKeys}
	}
	return matcher, nil
}

func compileComposite(node map[string]any, key, path string, opts CompileOptions) (Matcher, error) {
	rawList, ok := node[key].([]any)
	if !ok {
		return nil, fmt.Errorf("gwselect: %s.%s: composite body must be a list", path, key)
	}

	switch key {
	case "all":
		children, err := compileChildren(rawList, path, "ALL", opts)
		if err != nil {
			return nil, err
		}
		return foldAll(flattenAll(children)), nil
	case "any":
		children, err := compileChildren(rawList, path, "ANY", opts)
		if err != nil {
			return nil, err
		}
		return foldAny(flattenAny(children)), nil
	default: // "none"
		children, err := compileChildren(rawList, path, "NONE", opts)
		if err != nil {
			return nil, err
		}
		return foldNone(foldAny(flattenAny(children))), nil
	}
}

func compileChildren(rawList []any, path, label string, opts CompileOptions) ([]Matcher, error) {
	children := make([]Matcher, 0, len(rawList))
	for i, raw := range rawList {
		childNode, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("gwselect: %s.%s[%d]: node must be an object", path, label, i)
		}
		childPath := fmt.Sprintf("%s.%s[%d]", path, label, i)
		child, err := CompilePredicate(childNode, childPath, opts)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// flattenAll collapses nested All nodes into their parent's child list
// (invariant 4: no All directly inside All).
func flattenAll(children []Matcher) []Matcher {
	out := make([]Matcher, 0, len(children))
	for _, c := range children {
		if nested, ok := c.(All); ok {
			out = append(out, nested.Children...)
		} else {
			out = append(out, c)
		}
	}
	return out
}

func flattenAny(children []Matcher) []Matcher {
	out := make([]Matcher, 0, len(children))
	for _, c := range children {
		if nested, ok := c.(Any); ok {
			out = append(out, nested.Children...)
		} else {
			out = append(out, c)
		}
	}
	return out
}

// foldAll drops ConstTrue children; a ConstFalse child collapses the
// whole node; an empty result is identity (ConstTrue); a single
// remaining child is returned unwrapped.
func foldAll(children []Matcher) Matcher {
	kept := make([]Matcher, 0, len(children))
	for _, c := range children {
		if c == ConstFalse {
			return ConstFalse
		}
		if c == ConstTrue {
			continue
		}
		kept = append(kept, c)
	}
	switch len(kept) {
	case 0:
		return ConstTrue
	case 1:
		return kept[0]
	default:
		return All{Children: kept}
	}
}

// foldAny drops ConstFalse children; a ConstTrue child collapses the
// whole node; an empty result is identity (ConstFalse); a single
// remaining child is returned unwrapped.
func foldAny(children []Matcher) Matcher {
	kept := make([]Matcher, 0, len(children))
	for _, c := range children {
		if c == ConstTrue {
			return ConstTrue
		}
		if c == ConstFalse {
			continue
		}
		kept = append(kept, c)
	}
	switch len(kept) {
	case 0:
		return ConstFalse
	case 1:
		return kept[0]
	default:
		return Any{Children: kept}
	}
}

// foldNone defines None as Not(Any(children)), folded accordingly:
// None([]) -> ConstTrue, None(ConstTrue) -> ConstFalse,
// None(ConstFalse) -> ConstTrue, else Not(anyNode).
func foldNone(anyNode Matcher) Matcher {
	switch anyNode {
	case ConstTrue:
		return ConstFalse
	case ConstFalse:
		return ConstTrue
	default:
		return Not{Child: anyNode}
	}
}
