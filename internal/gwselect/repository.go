package gwselect

import "context"

// Repository is the abstract accessor the rule-set compiler depends on
// (§4.G). Implementations may be in-memory, file-backed, or
// cache-wrapped; the compiler makes no transactional assumptions
// across the four calls and treats them as eventually consistent.
type Repository interface {
	// GetActiveRuleSet returns the currently active rule set, or nil if
	// none is active.
	GetActiveRuleSet(ctx context.Context) (*RuleSet, error)
	// GetRuleSetByID returns the rule set with the given id, or nil if
	// it does not exist.
	GetRuleSetByID(ctx context.Context, id int64) (*RuleSet, error)
	// GetRulesForRuleSet returns the rules belonging to ruleSetID,
	// ordered by priority ascending.
	GetRulesForRuleSet(ctx context.Context, ruleSetID int64) ([]Rule, error)
	// GetGatewaysMap returns every known gateway keyed by name.
	GetGatewaysMap(ctx context.Context) (map[string]GatewayConfig, error)
}
