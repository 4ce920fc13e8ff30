package gwselect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CompilerOptions configures a single compile run.
type CompilerOptions struct {
	// RuleSetID, if non-zero, compiles that specific rule set instead
	// of the active one.
	RuleSetID int64

	Debug          bool
	Logger         *slog.Logger
	CaptureCtxKeys bool
}

// CompileRuleSet runs the full rule-set compiler pipeline (§4.D): fetch
// rule set, gateways and rules from repo, resolve each rule's
// predicate JSON, compile it, validate its action, and assemble an
// immutable snapshot. Any single rule failure aborts the whole compile
// — a broken rule set never becomes partially active.
func CompileRuleSet(ctx context.Context, repo Repository, opts CompilerOptions) (*CompiledRuleSet, error) {
	start := time.Now()

	ruleSet, err := fetchRuleSet(ctx, repo, opts.RuleSetID)
	if err != nil {
		return nil, err
	}

	gateways, err := repo.GetGatewaysMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("gwselect: fetch gateways: %w", err)
	}
	if len(gateways) == 0 {
		return nil, fmt.Errorf("gwselect: no gateways configured")
	}

	rawRules, err := repo.GetRulesForRuleSet(ctx, ruleSet.ID)
	if err != nil {
		return nil, fmt.Errorf("gwselect: fetch rules: %w", err)
	}

	compileOpts := CompileOptions{Debug: opts.Debug, Logger: opts.Logger, CaptureCtxKeys: opts.CaptureCtxKeys}

	compiled := make([]CompiledRule, 0, len(rawRules))
	for _, raw := range rawRules {
		conditionJSON, err := resolveConditionJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("gwselect: rule %d: %w", raw.ID, err)
		}

		predicate, err := CompilePredicate(conditionJSON, fmt.Sprintf("rule[%d].ROOT", raw.ID), compileOpts)
		if err != nil {
			return nil, fmt.Errorf("gwselect: rule %d: %w", raw.ID, err)
		}

		action, err := ValidateAction(raw.Action, gateways)
		if err != nil {
			return nil, fmt.Errorf("gwselect: rule %d: %w", raw.ID, err)
		}

		compiled = append(compiled, CompiledRule{
			ID:        raw.ID,
			Priority:  raw.Priority,
			Enabled:   raw.Enabled,
			Name:      raw.Name,
			Predicate: predicate,
			Action:    action,
		})
	}

	// Defensive re-sort: the compiler never trusts the store's
	// ordering even though it asked for priority-ascending.
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority < compiled[j].Priority
	})

	if ruleSet.DefaultGateway != "" {
		if _, known := gateways[ruleSet.DefaultGateway]; !known {
			return nil, fmt.Errorf("gwselect: default_gateway %q not present in gateways", ruleSet.DefaultGateway)
		}
	}

	if opts.Logger != nil {
		opts.Logger.Info("gwselect ruleset compiled",
			slog.Int64("ruleset_id", ruleSet.ID),
			slog.Int64("version", ruleSet.Version),
			slog.Int("total_rules", len(compiled)),
		)
	}

	return &CompiledRuleSet{
		RulesetID:      ruleSet.ID,
		Version:        ruleSet.Version,
		Name:           ruleSet.Name,
		StickySalt:     ruleSet.StickySalt,
		Rules:          compiled,
		Gateways:       gateways,
		DefaultGateway: ruleSet.DefaultGateway,
		LoadedAtMs:     float64(time.Since(start).Microseconds()) / 1000.0,
		TotalRules:     len(compiled),
	}, nil
}

func fetchRuleSet(ctx context.Context, repo Repository, ruleSetID int64) (*RuleSet, error) {
	if ruleSetID != 0 {
		rs, err := repo.GetRuleSetByID(ctx, ruleSetID)
		if err != nil {
			return nil, fmt.Errorf("gwselect: fetch rule set %d: %w", ruleSetID, err)
		}
		if rs == nil {
			return nil, fmt.Errorf("gwselect: rule set not found")
		}
		return rs, nil
	}

	rs, err := repo.GetActiveRuleSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("gwselect: fetch active rule set: %w", err)
	}
	if rs == nil {
		return nil, fmt.Errorf("gwselect: no active rule set")
	}
	return rs, nil
}

// resolveConditionJSON expands a rule's condition_type shorthand into
// predicate JSON (D.1), or passes condition_json through unchanged for
// ADVANCED rules.
func resolveConditionJSON(rule Rule) (map[string]any, error) {
	switch rule.ConditionType {
	case ConditionAdvanced:
		if rule.ConditionJSON == nil {
			return nil, fmt.Errorf("ADVANCED condition requires condition_json")
		}
		return rule.ConditionJSON, nil

	case ConditionUser:
		n, err := strconv.ParseInt(strings.TrimSpace(rule.ConditionValue), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("USER condition_value must be an integer: %w", err)
		}
		return map[string]any{
			"type":   "VALUE_IN",
			"field":  "api_user_id",
			"values": []any{n},
			"coerce": coerceInt,
		}, nil

	case ConditionPixKey:
		return map[string]any{
			"type":   "VALUE_IN",
			"field":  "pix_key",
			"values": []any{rule.ConditionValue},
			"coerce": coerceStr,
		}, nil

	case ConditionPixKeyType:
		keyType, err := ParsePixKeyType(rule.ConditionValue)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"type":   "VALUE_IN",
			"field":  "pix_key_type",
			"values": []any{string(keyType)},
		}, nil

	default:
		return nil, fmt.Errorf("unknown condition_type %q", rule.ConditionType)
	}
}
