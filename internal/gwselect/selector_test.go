package gwselect

import (
	"math"
	"testing"
	"time"
)

func gatewayMap(names ...string) map[string]GatewayConfig {
	out := make(map[string]GatewayConfig, len(names))
	for _, n := range names {
		out[n] = GatewayConfig{Name: n, IsEnabled: true}
	}
	return out
}

// S1 — Priority wins.
func TestSelectPriorityWins(t *testing.T) {
	snapshot := &CompiledRuleSet{
		Gateways: gatewayMap("A", "B"),
		Rules: []CompiledRule{
			{ID: 1, Priority: 5, Enabled: true, Predicate: ConstTrue, Action: Action{Route: RouteFixed, Gateway: "A"}},
			{ID: 2, Priority: 10, Enabled: true, Predicate: ConstTrue, Action: Action{Route: RouteFixed, Gateway: "B"}},
		},
	}
	gw, decision := Select(Context{}, snapshot, SelectOptions{})
	if gw != "A" {
		t.Fatalf("expected gateway A, got %q", gw)
	}
	if decision.MatchedRuleID == nil || *decision.MatchedRuleID != 1 {
		t.Fatalf("expected matched_rule_id=1, got %v", decision.MatchedRuleID)
	}
	if decision.Reason != ReasonMatched {
		t.Fatalf("expected reason matched, got %q", decision.Reason)
	}
}

// S2 — Weighted distribution.
func TestSelectWeightedDistribution(t *testing.T) {
	snapshot := &CompiledRuleSet{
		RulesetID: 1,
		Version:   1,
		Gateways:  gatewayMap("A", "B"),
		Rules: []CompiledRule{
			{
				ID: 1, Priority: 1, Enabled: true, Predicate: ConstTrue,
				Action: Action{Route: RouteWeighted, Weights: map[string]int64{"A": 80, "B": 20}, StickyBy: "api_user_id"},
			},
		},
	}

	countA := 0
	const n = 10000
	for i := 0; i < n; i++ {
		gw, _ := Select(Context{"api_user_id": i}, snapshot, SelectOptions{})
		if gw == "A" {
			countA++
		}
	}
	share := float64(countA) / float64(n)
	tolerance := 5 * math.Sqrt(0.16/float64(n))
	if diff := math.Abs(share - 0.80); diff > tolerance {
		t.Fatalf("expected share near 0.80 (tolerance %.4f), got %.4f", tolerance, share)
	}
}

// S3 — FIXED unavailable falls through to the next rule.
func TestSelectFixedUnavailableFallsThrough(t *testing.T) {
	gateways := gatewayMap("A", "B")
	a := gateways["A"]
	a.IsEnabled = false
	gateways["A"] = a

	snapshot := &CompiledRuleSet{
		Gateways: gateways,
		Rules: []CompiledRule{
			{ID: 1, Priority: 5, Enabled: true, Predicate: ConstTrue, Action: Action{Route: RouteFixed, Gateway: "A"}},
			{ID: 2, Priority: 10, Enabled: true, Predicate: ConstTrue, Action: Action{Route: RouteFixed, Gateway: "B"}},
		},
	}
	gw, decision := Select(Context{}, snapshot, SelectOptions{})
	if gw != "B" {
		t.Fatalf("expected gateway B, got %q", gw)
	}
	if decision.MatchedRuleID == nil || *decision.MatchedRuleID != 2 {
		t.Fatalf("expected matched_rule_id=2, got %v", decision.MatchedRuleID)
	}
}

// S4 — DENY short-circuits fallback.
func TestSelectDenyShortCircuits(t *testing.T) {
	snapshot := &CompiledRuleSet{
		Gateways:       gatewayMap("C"),
		DefaultGateway: "C",
		Rules: []CompiledRule{
			{ID: 1, Priority: 1, Enabled: true, Predicate: ConstTrue, Action: Action{Route: RouteDeny}},
		},
	}
	gw, decision := Select(Context{}, snapshot, SelectOptions{AllowFallback: true})
	if gw != "" {
		t.Fatalf("expected no gateway, got %q", gw)
	}
	if decision.Reason != ReasonDenied {
		t.Fatalf("expected reason denied, got %q", decision.Reason)
	}
	if decision.MatchedRuleID == nil || *decision.MatchedRuleID != 1 {
		t.Fatalf("expected matched_rule_id=1, got %v", decision.MatchedRuleID)
	}
}

// S5 — No rule matches; fallback used.
func TestSelectFallbackWhenNoRuleMatches(t *testing.T) {
	snapshot := &CompiledRuleSet{
		Gateways:       gatewayMap("D"),
		DefaultGateway: "D",
		Rules: []CompiledRule{
			{ID: 1, Priority: 1, Enabled: true, Predicate: ConstFalse, Action: Action{Route: RouteFixed, Gateway: "D"}},
		},
	}
	gw, decision := Select(Context{}, snapshot, SelectOptions{AllowFallback: true})
	if gw != "D" {
		t.Fatalf("expected gateway D, got %q", gw)
	}
	if decision.Reason != ReasonFallback {
		t.Fatalf("expected reason fallback, got %q", decision.Reason)
	}
	if decision.MatchedRuleID != nil {
		t.Fatalf("expected no matched rule id, got %v", *decision.MatchedRuleID)
	}
}

// S6 — Overnight time window.
func TestSelectOvernightTimeWindow(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	tw, err := buildTimeWindow(map[string]any{
		"type":  "TIME_WINDOW",
		"tz":    "America/Sao_Paulo",
		"start": "22:00",
		"end":   "06:00",
	})
	if err != nil {
		t.Fatalf("buildTimeWindow: %v", err)
	}
	snapshot := &CompiledRuleSet{
		Gateways: gatewayMap("A"),
		Rules: []CompiledRule{
			{ID: 1, Priority: 1, Enabled: true, Predicate: tw, Action: Action{Route: RouteFixed, Gateway: "A"}},
		},
	}

	matches := time.Date(2023, 1, 1, 5, 0, 0, 0, loc)
	gw, _ := Select(Context{"now": matches}, snapshot, SelectOptions{})
	if gw != "A" {
		t.Fatalf("expected overnight window to match at 05:00, got %q", gw)
	}

	noMatch := time.Date(2023, 1, 1, 12, 0, 0, 0, loc)
	gw, _ = Select(Context{"now": noMatch}, snapshot, SelectOptions{})
	if gw != "" {
		t.Fatalf("expected no match at 12:00, got %q", gw)
	}
}

// Property 6 — sticky determinism.
func TestSelectStickyDeterminism(t *testing.T) {
	snapshot := &CompiledRuleSet{
		RulesetID: 9,
		Version:   3,
		Gateways:  gatewayMap("A", "B"),
		Rules: []CompiledRule{
			{ID: 1, Priority: 1, Enabled: true, Predicate: ConstTrue,
				Action: Action{Route: RouteWeighted, Weights: map[string]int64{"A": 50, "B": 50}, StickyBy: "user_id"}},
		},
	}
	ctx := Context{"user_id": "abc-123"}
	gw1, _ := Select(ctx, snapshot, SelectOptions{})
	gw2, _ := Select(ctx, snapshot, SelectOptions{})
	if gw1 != gw2 {
		t.Fatalf("expected deterministic gateway, got %q then %q", gw1, gw2)
	}
}

// Property 8 — fallback gate.
func TestSelectNeverFallsBackWhenDisallowed(t *testing.T) {
	snapshot := &CompiledRuleSet{
		Gateways:       gatewayMap("D"),
		DefaultGateway: "D",
		Rules: []CompiledRule{
			{ID: 1, Priority: 1, Enabled: true, Predicate: ConstFalse, Action: Action{Route: RouteFixed, Gateway: "D"}},
		},
	}
	_, decision := Select(Context{}, snapshot, SelectOptions{AllowFallback: false})
	if decision.Reason == ReasonFallback {
		t.Fatalf("expected no fallback reason, got %q", decision.Reason)
	}
	if decision.Reason != ReasonNoAvailableGW {
		t.Fatalf("expected no_available_gw, got %q", decision.Reason)
	}
}

func TestSelectNoRuleReasonWhenNoneEnabled(t *testing.T) {
	snapshot := &CompiledRuleSet{
		Gateways: gatewayMap("D"),
		Rules: []CompiledRule{
			{ID: 1, Priority: 1, Enabled: false, Predicate: ConstTrue, Action: Action{Route: RouteFixed, Gateway: "D"}},
		},
	}
	_, decision := Select(Context{}, snapshot, SelectOptions{})
	if decision.Reason != ReasonNoRule {
		t.Fatalf("expected no_rule, got %q", decision.Reason)
	}
}

func TestDecisionHookPanicDoesNotPropagate(t *testing.T) {
	snapshot := &CompiledRuleSet{
		Gateways: gatewayMap("A"),
		Rules: []CompiledRule{
			{ID: 1, Priority: 1, Enabled: true, Predicate: ConstTrue, Action: Action{Route: RouteFixed, Gateway: "A"}},
		},
	}
	hook := func(Decision, Context) { panic("boom") }
	gw, _ := Select(Context{}, snapshot, SelectOptions{OnDecision: hook})
	if gw != "A" {
		t.Fatalf("expected select to complete despite hook panic, got %q", gw)
	}
}

func TestNormalizeWeightsRescalesDeterministically(t *testing.T) {
	out := normalizeWeights(map[string]int64{"A": 1, "B": 1, "C": 1})
	var sum int64
	for _, v := range out {
		sum += v
	}
	if sum != 100 {
		t.Fatalf("expected normalized weights to sum to 100, got %d", sum)
	}
	// Name-sorted rounding: A and B get round(33.33) each, C absorbs the rest.
	if out["A"] != 33 || out["B"] != 33 || out["C"] != 34 {
		t.Fatalf("expected A=33 B=33 C=34, got %+v", out)
	}
}

func TestNormalizeWeightsKeepsWeightsAlreadySummingTo100(t *testing.T) {
	weights := map[string]int64{"A": 80, "B": 20}
	normalized := normalizeWeights(weights)
	if normalized["A"] != 80 || normalized["B"] != 20 {
		t.Fatalf("expected weights unchanged at sum 100, got %+v", normalized)
	}
}
