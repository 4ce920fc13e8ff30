package gwselect

import "fmt"

// ValidateAction checks a raw action map against the known gateway set
// (§4.E) and returns its validated, tagged form. Weights are not
// normalized here; normalization happens lazily at dispatch time
// (§4.F.2).
func ValidateAction(raw map[string]any, gateways map[string]GatewayConfig) (Action, error) {
	routeRaw, ok := raw["route"].(string)
	if !ok || routeRaw == "" {
		return Action{}, fmt.Errorf("gwselect: action.route is required")
	}

	switch Route(routeRaw) {
	case RouteFixed:
		gw, ok := raw["gateway"].(string)
		if !ok || gw == "" {
			return Action{}, fmt.Errorf("gwselect: FIXED action requires a string gateway")
		}
		if _, known := gateways[gw]; !known {
			return Action{}, fmt.Errorf("gwselect: FIXED action references unknown gateway %q", gw)
		}
		return Action{Route: RouteFixed, Gateway: gw}, nil

	case RouteWeighted:
		rawWeights, ok := raw["weights"].(map[string]any)
		if !ok || len(rawWeights) == 0 {
			return Action{}, fmt.Errorf("gwselect: WEIGHTED action requires a non-empty weights map")
		}
		weights := make(map[string]int64, len(rawWeights))
		anyPositive := false
		for gw, rawV := range rawWeights {
			if _, known := gateways[gw]; !known {
				return Action{}, fmt.Errorf("gwselect: WEIGHTED action references unknown gateway %q", gw)
			}
			v, ok := toInt64(rawV)
			if !ok || v < 0 {
				return Action{}, fmt.Errorf("gwselect: WEIGHTED weight for %q must be a non-negative integer", gw)
			}
			if v > 0 {
				anyPositive = true
			}
			weights[gw] = v
		}
		if !anyPositive {
			return Action{}, fmt.Errorf("gwselect: WEIGHTED action requires at least one positive weight")
		}
		stickyBy, _ := raw["sticky_by"].(string)
		return Action{Route: RouteWeighted, Weights: weights, StickyBy: stickyBy}, nil

	case RouteDeny:
		reasonCode := ""
		if rawReason, present := raw["reason_code"]; present {
			s, ok := rawReason.(string)
			if !ok {
				return Action{}, fmt.Errorf("gwselect: DENY.reason_code must be a string")
			}
			reasonCode = s
		}
		return Action{Route: RouteDeny, ReasonCode: reasonCode}, nil

	default:
		return Action{}, fmt.Errorf("gwselect: action.route must be FIXED, WEIGHTED, or DENY, got %q", routeRaw)
	}
}
