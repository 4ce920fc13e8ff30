// Package file implements gwselect.Repository over a single YAML/JSON
// rule-definition file loaded with koanf, with an optional fsnotify
// watcher that notifies a caller-supplied callback on change. The
// watcher never recompiles or swaps a snapshot itself — per the
// system's non-goal that hot-reload is the caller's decision, it only
// reloads the raw records and reports "the file changed".
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kamipay/gwselector/internal/gwselect"
)

type gatewayRecord struct {
	ID            int64  `koanf:"id"`
	Name          string `koanf:"name"`
	IsEnabled     bool   `koanf:"is_enabled"`
	InMaintenance bool   `koanf:"in_maintenance"`
}

type ruleSetRecord struct {
	ID             int64  `koanf:"id"`
	Name           string `koanf:"name"`
	IsActive       bool   `koanf:"is_active"`
	StickySalt     string `koanf:"sticky_salt"`
	DefaultGateway string `koanf:"default_gateway"`
	Version        int64  `koanf:"version"`
}

type ruleRecord struct {
	ID             int64          `koanf:"id"`
	RuleSetID      int64          `koanf:"rule_set_id"`
	Priority       int64          `koanf:"priority"`
	Name           string         `koanf:"name"`
	Enabled        bool           `koanf:"enabled"`
	ConditionType  string         `koanf:"condition_type"`
	ConditionValue string         `koanf:"condition_value"`
	ConditionJSON  map[string]any `koanf:"condition_json"`
	Action         map[string]any `koanf:"action"`
}

type bundleRecord struct {
	Gateways []gatewayRecord `koanf:"gateways"`
	RuleSets []ruleSetRecord `koanf:"rule_sets"`
	Rules    []ruleRecord    `koanf:"rules"`
}

type bundle struct {
	ruleSets map[int64]gwselect.RuleSet
	active   int64 // 0 if none active
	rules    map[int64][]gwselect.Rule
	gateways map[string]gwselect.GatewayConfig
}

// Repo is a Repository backed by a single rule-definition file. Reload
// replaces the in-memory bundle atomically; concurrent repository
// calls always observe a fully-loaded bundle.
type Repo struct {
	path string

	mu     sync.RWMutex
	bundle bundle
}

// New loads path once and returns a ready Repo.
func New(path string) (*Repo, error) {
	r := &Repo{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the file from disk and swaps the in-memory bundle.
// It never swaps a gwselect snapshot — that remains the caller's job.
func (r *Repo) Reload() error {
	b, err := loadBundle(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.bundle = b
	r.mu.Unlock()
	return nil
}

func loadBundle(path string) (bundle, error) {
	k := koanf.New(".")

	var parser koanf.Parser
	switch filepath.Ext(path) {
	case ".json":
		parser = json.Parser()
	default:
		parser = yaml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return bundle{}, fmt.Errorf("file: load %s: %w", path, err)
	}

	var raw bundleRecord
	if err := k.Unmarshal("", &raw); err != nil {
		return bundle{}, fmt.Errorf("file: unmarshal %s: %w", path, err)
	}

	b := bundle{
		ruleSets: make(map[int64]gwselect.RuleSet, len(raw.RuleSets)),
		rules:    make(map[int64][]gwselect.Rule),
		gateways: make(map[string]gwselect.GatewayConfig, len(raw.Gateways)),
	}

	for _, g := range raw.Gateways {
		b.gateways[g.Name] = gwselect.GatewayConfig{
			ID: g.ID, Name: g.Name, IsEnabled: g.IsEnabled, InMaintenance: g.InMaintenance,
		}
	}

	for _, rs := range raw.RuleSets {
		b.ruleSets[rs.ID] = gwselect.RuleSet{
			ID: rs.ID, Name: rs.Name, IsActive: rs.IsActive,
			StickySalt: rs.StickySalt, DefaultGateway: rs.DefaultGateway, Version: rs.Version,
		}
		if rs.IsActive {
			b.active = rs.ID
		}
	}

	for _, rule := range raw.Rules {
		b.rules[rule.RuleSetID] = append(b.rules[rule.RuleSetID], gwselect.Rule{
			ID: rule.ID, RuleSetID: rule.RuleSetID, Priority: rule.Priority, Name: rule.Name,
			Enabled: rule.Enabled, ConditionType: gwselect.ConditionType(rule.ConditionType),
			ConditionValue: rule.ConditionValue, ConditionJSON: rule.ConditionJSON, Action: rule.Action,
		})
	}

	return b, nil
}

func (r *Repo) GetActiveRuleSet(ctx context.Context) (*gwselect.RuleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.bundle.active == 0 {
		return nil, nil
	}
	rs := r.bundle.ruleSets[r.bundle.active]
	return &rs, nil
}

func (r *Repo) GetRuleSetByID(ctx context.Context, id int64) (*gwselect.RuleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.bundle.ruleSets[id]
	if !ok {
		return nil, nil
	}
	return &rs, nil
}

func (r *Repo) GetRulesForRuleSet(ctx context.Context, ruleSetID int64) ([]gwselect.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.bundle.rules[ruleSetID]
	out := make([]gwselect.Rule, len(src))
	copy(out, src)
	return out, nil
}

func (r *Repo) GetGatewaysMap(ctx context.Context) (map[string]gwselect.GatewayConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]gwselect.GatewayConfig, len(r.bundle.gateways))
	for k, v := range r.bundle.gateways {
		out[k] = v
	}
	return out, nil
}

// Watcher monitors the repository's backing file and invokes onChange
// whenever it is written. It calls Repo.Reload itself — refreshing the
// raw records the compiler will next read — but deliberately never
// triggers a gwselect compile or snapshot swap; that decision belongs
// to the caller that owns the atomic snapshot pointer.
type Watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// Watch starts watching r's backing file for changes, debounced by
// 25ms, reloading the bundle and invoking onChange on every settled
// change. onError receives filesystem and reload errors.
func Watch(ctx context.Context, r *Repo, onChange func(), onError func(error)) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("file: watch requires a change callback")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("file: watch: %w", err)
	}

	target, err := filepath.Abs(r.path)
	if err != nil {
		target = r.path
	}
	target = filepath.Clean(target)
	if err := fsw.Add(filepath.Dir(target)); err != nil {
		cancel()
		_ = fsw.Close()
		return nil, fmt.Errorf("file: watch add %s: %w", filepath.Dir(target), err)
	}

	done := make(chan struct{})
	watcher := &Watcher{cancel: cancel, done: done}

	go func() {
		defer close(done)
		defer fsw.Close()

		const debounce = 25 * time.Millisecond
		var timer *time.Timer
		var timerC <-chan time.Time
		schedule := func() {
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
			timerC = timer.C
		}

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-timerC:
				timerC = nil
				if err := r.Reload(); err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				onChange()
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) == 0 {
					continue
				}
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if onError != nil {
						onError(fmt.Errorf("file: watched file %s removed or renamed", target))
					}
					continue
				}
				if _, err := os.Stat(target); err != nil {
					continue
				}
				schedule()
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(fmt.Errorf("file: watch error: %w", err))
				}
			}
		}
	}()

	return watcher, nil
}
