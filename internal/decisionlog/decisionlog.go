// Package decisionlog renders human-readable log lines from a
// gwselect.Decision without ever touching the decision value itself.
// It exists purely as a logging-side projection: the selector's result
// is final the moment Select returns, and nothing here feeds back into
// routing.
package decisionlog

import (
	"fmt"
	"strings"

	"github.com/kamipay/gwselector/internal/gwselect"
	"github.com/kamipay/gwselector/internal/templates"
)

const defaultFormat = `gateway={{ .Gateway | default "-" }} reason={{ .Reason }} route={{ .Route | default "-" }} rule={{ .MatchedRuleID | default "-" }}`

// Renderer compiles a decision message template once and reuses it for
// every Select call. It is safe for concurrent use.
type Renderer struct {
	tmpl *templates.Template
}

// view is the data handed to the template; it flattens gwselect.Decision
// into template-friendly scalars (pointers become their dereferenced
// value or the zero value, never a *int64 a template author has to nil-check).
type view struct {
	MatchedRuleID string
	Route         string
	Gateway       string
	Reason        string
}

// NewRenderer compiles the supplied inline template source. An empty
// source falls back to the default one-line format.
func NewRenderer(source string) (*Renderer, error) {
	if strings.TrimSpace(source) == "" {
		source = defaultFormat
	}
	r := templates.NewRenderer(nil)
	tmpl, err := r.CompileInline("decision", source)
	if err != nil {
		return nil, fmt.Errorf("decisionlog: compile template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// NewFileRenderer loads the decision template from templateFile,
// resolved through a templates.Sandbox rooted at templateDir so a
// misconfigured path can never read outside the operator-chosen
// directory. allowEnv/allowedEnv gate the template's env/expandenv
// helpers the same way the sandbox gates them for any other template,
// letting a decision-log format embed operator-approved environment
// values (e.g. a deployment region) without exposing the full process
// environment.
func NewFileRenderer(templateDir, templateFile string, allowEnv bool, allowedEnv []string) (*Renderer, error) {
	sandbox, err := templates.NewSandbox(templateDir, allowEnv, allowedEnv)
	if err != nil {
		return nil, fmt.Errorf("decisionlog: sandbox: %w", err)
	}
	r := templates.NewRenderer(sandbox)
	tmpl, err := r.CompileFile(templateFile)
	if err != nil {
		return nil, fmt.Errorf("decisionlog: compile template file: %w", err)
	}
	if tmpl == nil {
		return nil, fmt.Errorf("decisionlog: template file %q is empty", templateFile)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the log line for a single decision. ctxKeys, when
// non-empty, is appended as a " ctx_keys=a,b" suffix listing the context key
// names observed during evaluation (never values), mirroring the
// compiler's debug-trace policy of never logging raw ctx content.
func (r *Renderer) Render(decision gwselect.Decision, ctxKeys []string) (string, error) {
	if r == nil || r.tmpl == nil {
		return "", fmt.Errorf("decisionlog: renderer not initialized")
	}
	v := view{
		Route:   string(decision.Route),
		Gateway: decision.Gateway,
		Reason:  string(decision.Reason),
	}
	if decision.MatchedRuleID != nil {
		v.MatchedRuleID = fmt.Sprintf("%d", *decision.MatchedRuleID)
	}
	line, err := r.tmpl.Render(v)
	if err != nil {
		return "", fmt.Errorf("decisionlog: render: %w", err)
	}
	if len(ctxKeys) > 0 {
		line = fmt.Sprintf("%s ctx_keys=%s", line, strings.Join(ctxKeys, ","))
	}
	return line, nil
}

// Hook adapts the renderer into a gwselect.DecisionHook that logs each
// rendered line via the supplied sink. A nil sink disables logging
// while still allowing the hook to be installed unconditionally.
func (r *Renderer) Hook(sink func(line string)) gwselect.DecisionHook {
	return func(decision gwselect.Decision, ctx gwselect.Context) {
		if sink == nil || r == nil {
			return
		}
		keys := make([]string, 0, len(ctx))
		for k := range ctx {
			keys = append(keys, k)
		}
		line, err := r.Render(decision, keys)
		if err != nil {
			return
		}
		sink(line)
	}
}
