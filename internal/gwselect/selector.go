package gwselect

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"sort"

	"github.com/google/uuid"
)

// Reason is the closed vocabulary of decision outcomes (§4.F).
type Reason string

const (
	ReasonMatched           Reason = "matched"
	ReasonDenied            Reason = "denied"
	ReasonNoRule            Reason = "no_rule"
	ReasonFallback          Reason = "fallback"
	ReasonNoAvailableGW     Reason = "no_available_gw"
	ReasonFixedUnavailable  Reason = "fixed_unavailable"
	ReasonWeightedUnavailable Reason = "weighted_unavailable"
	ReasonUnknownRoute      Reason = "unknown_route"
)

// Decision is the structured outcome of a Select call.
type Decision struct {
	MatchedRuleID *int64
	Route         Route
	Gateway       string
	Reason        Reason
}

// DecisionHook observes a decision without ever altering it. Failure to
// invoke it (e.g. a panic recovered by the caller) is not a hard error.
type DecisionHook func(d Decision, ctx Context)

// SelectOptions configures one Select call.
type SelectOptions struct {
	AllowFallback bool
	OnDecision    DecisionHook
}

// Select runs the selector hot path (§4.F): ordered evaluation over the
// snapshot's rules, action resolution, weighted sticky dispatch, and
// fallback. It performs no I/O and never blocks.
func Select(ctx Context, snapshot *CompiledRuleSet, opts SelectOptions) (string, Decision) {
	anyEnabled := false

	for i := range snapshot.Rules {
		rule := &snapshot.Rules[i]
		if !rule.Enabled {
			continue
		}
		anyEnabled = true

		if !rule.Predicate.Evaluate(ctx) {
			continue
		}

		gw, reason := resolveAction(rule, snapshot, ctx)
		ruleID := rule.ID

		if rule.Action.Route == RouteDeny {
			d := Decision{MatchedRuleID: &ruleID, Route: rule.Action.Route, Reason: reason}
			notify(opts.OnDecision, d, ctx)
			return "", d
		}
		if gw != "" {
			d := Decision{MatchedRuleID: &ruleID, Route: rule.Action.Route, Gateway: gw, Reason: reason}
			notify(opts.OnDecision, d, ctx)
			return gw, d
		}
		// unresolvable FIXED/WEIGHTED/unknown route: continue to the
		// next rule (rule-to-rule fallback).
	}

	if opts.AllowFallback && snapshot.DefaultGateway != "" {
		if gwCfg, ok := snapshot.Gateways[snapshot.DefaultGateway]; ok && gwCfg.Available() {
			d := Decision{Gateway: snapshot.DefaultGateway, Reason: ReasonFallback}
			notify(opts.OnDecision, d, ctx)
			return snapshot.DefaultGateway, d
		}
	}

	reason := ReasonNoRule
	if anyEnabled {
		reason = ReasonNoAvailableGW
	}
	d := Decision{Reason: reason}
	notify(opts.OnDecision, d, ctx)
	return "", d
}

func notify(hook DecisionHook, d Decision, ctx Context) {
	if hook == nil {
		return
	}
	defer func() { _ = recover() }()
	hook(d, ctx)
}

// resolveAction resolves a matched rule's action (§4.F.1).
func resolveAction(rule *CompiledRule, snapshot *CompiledRuleSet, ctx Context) (string, Reason) {
	switch rule.Action.Route {
	case RouteFixed:
		gw, ok := snapshot.Gateways[rule.Action.Gateway]
		if ok && gw.Available() {
			return rule.Action.Gateway, ReasonMatched
		}
		return "", ReasonFixedUnavailable

	case RouteWeighted:
		seed := fmt.Sprintf("%d:%d:%s:%d", snapshot.RulesetID, snapshot.Version, snapshot.StickySalt, rule.ID)
		return pickWeighted(rule.Action.Weights, rule.Action.StickyBy, snapshot.Gateways, ctx, seed)

	case RouteDeny:
		return "", ReasonDenied

	default:
		return "", ReasonUnknownRoute
	}
}

// pickWeighted implements §4.F.2.
func pickWeighted(weights map[string]int64, stickyBy string, gateways map[string]GatewayConfig, ctx Context, seed string) (string, Reason) {
	available := make(map[string]int64, len(weights))
	for name, w := range weights {
		gw, ok := gateways[name]
		if !ok || !gw.Available() {
			continue
		}
		available[name] = w
	}
	if len(available) == 0 {
		return "", ReasonWeightedUnavailable
	}

	normalized := normalizeWeights(available)
	if len(normalized) == 0 {
		return "", ReasonWeightedUnavailable
	}

	key := stickyKey(ctx, stickyBy)
	bucket := stickyBucket(key, seed)

	names := make([]string, 0, len(normalized))
	for name := range normalized {
		names = append(names, name)
	}
	sort.Strings(names)

	cumulative := int64(0)
	for _, name := range names {
		cumulative += normalized[name]
		if bucket < cumulative {
			return name, ReasonMatched
		}
	}
	// defensive fallback: floating point / rounding could in principle
	// leave a residual bucket above the last cumulative boundary.
	return names[len(names)-1], ReasonMatched
}

// normalizeWeights clamps negatives to zero, drops zeros, and rescales
// the remainder to sum to exactly 100 using deterministic
// (name-sorted) proportional rounding, per D.5.
func normalizeWeights(weights map[string]int64) map[string]int64 {
	cleaned := make(map[string]int64, len(weights))
	var total int64
	for name, w := range weights {
		if w < 0 {
			w = 0
		}
		if w == 0 {
			continue
		}
		cleaned[name] = w
		total += w
	}
	if total == 0 {
		return nil
	}
	if total == 100 {
		return cleaned
	}

	names := make([]string, 0, len(cleaned))
	for name := range cleaned {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]int64, len(names))
	var acc int64
	for i, name := range names {
		if i == len(names)-1 {
			out[name] = 100 - acc
			continue
		}
		share := int64(roundHalfAwayFromZero(float64(cleaned[name]) * 100.0 / float64(total)))
		out[name] = share
		acc += share
	}

	var sum int64
	for _, v := range out {
		sum += v
	}
	if diff := 100 - sum; diff != 0 {
		out[names[len(names)-1]] += diff
	}
	return out
}

func roundHalfAwayFromZero(v float64) float64 {
	if v < 0 {
		return -roundHalfAwayFromZero(-v)
	}
	whole := float64(int64(v))
	frac := v - whole
	if frac >= 0.5 {
		return whole + 1
	}
	return whole
}

func stickyKey(ctx Context, stickyBy string) string {
	if stickyBy == "" {
		return uuid.NewString()
	}
	raw, ok := field(ctx, stickyBy)
	if !ok || raw == nil || isComposite(raw) {
		return uuid.NewString()
	}
	return stringifyScalar(raw)
}

func stickyBucket(key, seed string) int64 {
	sum := sha256.Sum256([]byte(key + ":" + seed))
	n := new(big.Int).SetBytes(sum[:])
	mod := new(big.Int).Mod(n, big.NewInt(100))
	return mod.Int64()
}
