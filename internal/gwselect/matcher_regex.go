package gwselect

import (
	"fmt"
	"regexp"
	"strings"
)

func init() {
	registerMatcher("REGEX", "v1", buildRegex)
}

const (
	regexModeSearch    = "search"
	regexModeMatch     = "match"
	regexModeFullmatch = "fullmatch"
)

// Regex matches a string field against a precompiled pattern. Unlike
// Python's `regex` module, Go's regexp package offers no per-match
// timeout, so engine_timeout_ms is accepted for config compatibility
// but has no runtime effect beyond being recorded (see DESIGN.md).
type Regex struct {
	Field          string
	Coerce         string
	Mode           string
	MaxLen         int
	EngineTimeoutMs int
	compiled       *regexp.Regexp
}

func (r Regex) Evaluate(ctx Context) bool {
	raw, ok := field(ctx, r.Field)
	if !ok {
		return false
	}

	var s string
	switch r.Coerce {
	case coerceStr:
		s = stringifyScalar(raw)
	case coerceLowerStr:
		s = strings.ToLower(stringifyScalar(raw))
	default:
		str, ok := raw.(string)
		if !ok {
			return false
		}
		s = str
	}

	if r.MaxLen > 0 && len(s) > r.MaxLen {
		return false
	}

	switch r.Mode {
	case regexModeFullmatch:
		loc := r.compiled.FindStringIndex(s)
		return loc != nil && loc[0] == 0 && loc[1] == len(s)
	case regexModeMatch:
		loc := r.compiled.FindStringIndex(s)
		return loc != nil && loc[0] == 0
	default: // regexModeSearch
		return r.compiled.MatchString(s)
	}
}

func (Regex) Kind() string { return "REGEX" }

func buildRegex(node map[string]any) (Matcher, error) {
	fieldName, ok := node["field"].(string)
	if !ok || fieldName == "" {
		return nil, fmt.Errorf("gwselect: REGEX.field is required")
	}

	pattern, ok := node["pattern"].(string)
	if !ok || pattern == "" {
		return nil, fmt.Errorf("gwselect: REGEX.pattern is required")
	}

	mode := regexModeSearch
	if raw, present := node["mode"]; present {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("gwselect: REGEX.mode must be a string")
		}
		switch s {
		case regexModeSearch, regexModeMatch, regexModeFullmatch:
			mode = s
		default:
			return nil, fmt.Errorf("gwselect: REGEX.mode invalid: %q", s)
		}
	}

	coerce := coerceStr
	if raw, present := node["coerce"]; present {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("gwselect: REGEX.coerce must be a string")
		}
		switch s {
		case coerceStr, coerceLowerStr, coerceNone:
			coerce = s
		default:
			return nil, fmt.Errorf("gwselect: REGEX.coerce invalid: %q", s)
		}
	}

	maxLen := 0
	if raw, present := node["max_len"]; present {
		n, ok := toInt64(raw)
		if !ok || n <= 0 {
			return nil, fmt.Errorf("gwselect: REGEX.max_len must be a positive integer")
		}
		maxLen = int(n)
	}

	timeoutMs := 0
	if raw, present := node["engine_timeout_ms"]; present {
		n, ok := toInt64(raw)
		if !ok || n <= 0 {
			return nil, fmt.Errorf("gwselect: REGEX.engine_timeout_ms must be a positive integer")
		}
		timeoutMs = int(n)
	}

	flagPrefix, verbose, err := composeRegexFlags(node["flags"])
	if err != nil {
		return nil, err
	}
	if verbose {
		pattern = stripVerbosePattern(pattern)
	}

	compiled, err := regexp.Compile(flagPrefix + pattern)
	if err != nil {
		return nil, fmt.Errorf("gwselect: REGEX.pattern invalid: %w", err)
	}

	return Regex{
		Field:           fieldName,
		Coerce:          coerce,
		Mode:            mode,
		MaxLen:          maxLen,
		EngineTimeoutMs: timeoutMs,
		compiled:        compiled,
	}, nil
}

// composeRegexFlags translates the declarative flag names into a Go
// regexp inline-flag prefix, e.g. "(?is)", plus whether VERBOSE
// (free-spacing) mode was requested. ASCII is accepted but contributes
// no letter: RE2's \w, \d, \s and \b already match ASCII-only by
// default (Unicode classes require the explicit \p{...} syntax), which
// is exactly what Python's re.ASCII/regex.ASCII flag narrows \w/\d/\s
// down to, so Go's default behavior already satisfies the flag without
// any inline-flag support of its own (see DESIGN.md).
func composeRegexFlags(raw any) (string, bool, error) {
	if raw == nil {
		return "", false, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return "", false, fmt.Errorf("gwselect: REGEX.flags must be a list")
	}

	var letters strings.Builder
	verbose := false
	for _, item := range list {
		name, ok := item.(string)
		if !ok {
			return "", false, fmt.Errorf("gwselect: REGEX.flags entries must be strings")
		}
		switch strings.ToUpper(name) {
		case "IGNORECASE":
			letters.WriteByte('i')
		case "MULTILINE":
			letters.WriteByte('m')
		case "DOTALL":
			letters.WriteByte('s')
		case "ASCII":
			// no-op: RE2 is already ASCII-only for \w/\d/\s/\b.
		case "VERBOSE":
			verbose = true
		default:
			return "", false, fmt.Errorf("gwselect: REGEX.flags unknown flag %q", name)
		}
	}
	if letters.Len() == 0 {
		return "", verbose, nil
	}
	return "(?" + letters.String() + ")", verbose, nil
}

// stripVerbosePattern approximates Python's VERBOSE/X mode: unescaped
// whitespace is removed and "#" starts a comment running to end of
// line, both outside character classes where whitespace and "#" stay
// literal.
func stripVerbosePattern(pattern string) string {
	var out strings.Builder
	inClass := false
	escaped := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if escaped {
			out.WriteByte(c)
			escaped = false
			continue
		}
		switch c {
		case '\\':
			out.WriteByte(c)
			escaped = true
		case '[':
			inClass = true
			out.WriteByte(c)
		case ']':
			inClass = false
			out.WriteByte(c)
		case '#':
			if inClass {
				out.WriteByte(c)
				continue
			}
			for i < len(pattern) && pattern[i] != '\n' {
				i++
			}
		case ' ', '\t', '\n', '\r':
			if inClass {
				out.WriteByte(c)
			}
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}
