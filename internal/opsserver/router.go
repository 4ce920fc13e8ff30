package opsserver

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/kamipay/gwselector/internal/gwselect"
	"github.com/kamipay/gwselector/internal/metrics"
)

// SnapshotSource exposes the currently active compiled rule set so the
// ops router can report its version without depending on the compiler
// or repository packages. This is not a PIX transport surface: no
// routing decisions are ever served over HTTP here, only observability
// about the snapshot currently loaded in memory.
type SnapshotSource interface {
	Load() *gwselect.CompiledRuleSet
}

// atomicSnapshot adapts atomic.Pointer[gwselect.CompiledRuleSet] to
// SnapshotSource without forcing callers to import sync/atomic.
type atomicSnapshot struct {
	ptr *atomic.Pointer[gwselect.CompiledRuleSet]
}

// NewSnapshotSource wraps an atomic snapshot pointer for use by the
// health handler.
func NewSnapshotSource(ptr *atomic.Pointer[gwselect.CompiledRuleSet]) SnapshotSource {
	return atomicSnapshot{ptr: ptr}
}

func (a atomicSnapshot) Load() *gwselect.CompiledRuleSet {
	if a.ptr == nil {
		return nil
	}
	return a.ptr.Load()
}

// healthResponse is the /healthz payload. It never includes rule
// content, only enough to confirm a snapshot is loaded and current.
type healthResponse struct {
	Status     string `json:"status"`
	RulesetID  int64  `json:"ruleset_id,omitempty"`
	Version    int64  `json:"version,omitempty"`
	TotalRules int    `json:"total_rules,omitempty"`
}

// NewHandler wires /healthz and the metrics endpoint into a single
// mux. Anything else 404s.
func NewHandler(source SnapshotSource, recorder *metrics.Recorder) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		serveHealth(w, source)
	})
	return mux
}

func serveHealth(w http.ResponseWriter, source SnapshotSource) {
	w.Header().Set("Content-Type", "application/json")
	if source == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "unavailable"})
		return
	}
	snapshot := source.Load()
	if snapshot == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "no_snapshot"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:     "ok",
		RulesetID:  snapshot.RulesetID,
		Version:    snapshot.Version,
		TotalRules: snapshot.TotalRules,
	})
}
