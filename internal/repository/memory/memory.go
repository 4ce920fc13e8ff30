// Package memory implements gwselect.Repository directly over maps
// held in process memory, for tests and local rule-set validation.
package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/kamipay/gwselector/internal/gwselect"
)

// Repo is a Repository backed entirely by in-memory maps. It supports
// a single loaded rule set at a time, matching the validation-tool use
// case it is grounded on: load one candidate rule set, compile it,
// inspect the result.
type Repo struct {
	ruleSet  gwselect.RuleSet
	rules    []gwselect.Rule
	gateways map[string]gwselect.GatewayConfig
}

// New builds a Repo from already-parsed records. rules need not be
// pre-sorted; GetRulesForRuleSet sorts by priority on every call.
func New(ruleSet gwselect.RuleSet, rules []gwselect.Rule, gateways map[string]gwselect.GatewayConfig) *Repo {
	cp := make([]gwselect.Rule, len(rules))
	copy(cp, rules)
	gws := make(map[string]gwselect.GatewayConfig, len(gateways))
	for k, v := range gateways {
		gws[k] = v
	}
	return &Repo{ruleSet: ruleSet, rules: cp, gateways: gws}
}

func (r *Repo) GetActiveRuleSet(ctx context.Context) (*gwselect.RuleSet, error) {
	if !r.ruleSet.IsActive {
		return nil, nil
	}
	rs := r.ruleSet
	return &rs, nil
}

func (r *Repo) GetRuleSetByID(ctx context.Context, id int64) (*gwselect.RuleSet, error) {
	if r.ruleSet.ID != id {
		return nil, nil
	}
	rs := r.ruleSet
	return &rs, nil
}

func (r *Repo) GetRulesForRuleSet(ctx context.Context, ruleSetID int64) ([]gwselect.Rule, error) {
	if ruleSetID != r.ruleSet.ID {
		return nil, fmt.Errorf("memory: unknown rule set %d", ruleSetID)
	}
	out := make([]gwselect.Rule, len(r.rules))
	copy(out, r.rules)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (r *Repo) GetGatewaysMap(ctx context.Context) (map[string]gwselect.GatewayConfig, error) {
	out := make(map[string]gwselect.GatewayConfig, len(r.gateways))
	for k, v := range r.gateways {
		out[k] = v
	}
	return out, nil
}
