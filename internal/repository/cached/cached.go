// Package cached wraps any gwselect.Repository with a TTL cache,
// mirroring the Python original's DatabaseRepoWithCache: each method
// checks the cache first, falls through to the wrapped repository on
// miss, and writes the result back with its own TTL. This is a
// write-through-on-miss cache, not a transactional one — consistent
// with the repository contract's eventual-consistency assumption.
package cached

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kamipay/gwselector/internal/cache"
	"github.com/kamipay/gwselector/internal/gwselect"
)

// TTLConfig sets the per-call cache lifetime. Zero values fall back to
// a 300-second default, matching the original's per-method default.
type TTLConfig struct {
	ActiveRuleSet time.Duration
	RuleSetByID   time.Duration
	Rules         time.Duration
	Gateways      time.Duration
}

func (c TTLConfig) resolve(d time.Duration) time.Duration {
	if d <= 0 {
		return 300 * time.Second
	}
	return d
}

// Repo decorates an inner gwselect.Repository with a cache.Cache.
type Repo struct {
	inner gwselect.Repository
	cache cache.Cache
	ttl   TTLConfig
}

// New wraps inner with c, using ttl for per-method cache lifetimes.
func New(inner gwselect.Repository, c cache.Cache, ttl TTLConfig) *Repo {
	return &Repo{inner: inner, cache: c, ttl: ttl}
}

func (r *Repo) GetActiveRuleSet(ctx context.Context) (*gwselect.RuleSet, error) {
	const key = "gwselect:ruleset:active"
	if rs, ok := lookup[gwselect.RuleSet](ctx, r.cache, key); ok {
		return rs, nil
	}
	rs, err := r.inner.GetActiveRuleSet(ctx)
	if err != nil {
		return nil, err
	}
	store(ctx, r.cache, key, rs, r.ttl.resolve(r.ttl.ActiveRuleSet))
	return rs, nil
}

func (r *Repo) GetRuleSetByID(ctx context.Context, id int64) (*gwselect.RuleSet, error) {
	key := fmt.Sprintf("gwselect:ruleset:%d", id)
	if rs, ok := lookup[gwselect.RuleSet](ctx, r.cache, key); ok {
		return rs, nil
	}
	rs, err := r.inner.GetRuleSetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	store(ctx, r.cache, key, rs, r.ttl.resolve(r.ttl.RuleSetByID))
	return rs, nil
}

func (r *Repo) GetRulesForRuleSet(ctx context.Context, ruleSetID int64) ([]gwselect.Rule, error) {
	key := fmt.Sprintf("gwselect:rules:%d", ruleSetID)
	if raw, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		var rules []gwselect.Rule
		if err := json.Unmarshal(raw, &rules); err == nil {
			return rules, nil
		}
	}
	rules, err := r.inner.GetRulesForRuleSet(ctx, ruleSetID)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(rules); err == nil {
		_ = r.cache.Set(ctx, key, payload, r.ttl.resolve(r.ttl.Rules))
	}
	return rules, nil
}

func (r *Repo) GetGatewaysMap(ctx context.Context) (map[string]gwselect.GatewayConfig, error) {
	const key = "gwselect:gateways"
	if raw, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		var gateways map[string]gwselect.GatewayConfig
		if err := json.Unmarshal(raw, &gateways); err == nil {
			return gateways, nil
		}
	}
	gateways, err := r.inner.GetGatewaysMap(ctx)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(gateways); err == nil {
		_ = r.cache.Set(ctx, key, payload, r.ttl.resolve(r.ttl.Gateways))
	}
	return gateways, nil
}

func lookup[T any](ctx context.Context, c cache.Cache, key string) (*T, bool) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return &v, true
}

func store[T any](ctx context.Context, c cache.Cache, key string, v *T, ttl time.Duration) {
	if v == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.Set(ctx, key, payload, ttl)
}
