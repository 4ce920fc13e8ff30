package metrics

import (
	"math"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestRecorderObserveCompile(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveCompile("ok", 250*time.Millisecond)

	families := gather(t, rec, "gwselector_compiler_compiles_total", "gwselector_compiler_compile_duration_seconds")

	counter := findMetric(t, families["gwselector_compiler_compiles_total"], map[string]string{
		"outcome": "ok",
	})
	if counter.GetCounter() == nil {
		t.Fatalf("expected counter metric for compiles")
	}
	if got := counter.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}

	histMetric := findMetric(t, families["gwselector_compiler_compile_duration_seconds"], map[string]string{
		"outcome": "ok",
	})
	hist := histMetric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for compile latency")
	}
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected histogram count 1, got %d", hist.GetSampleCount())
	}
	want := 0.25
	if diff := math.Abs(hist.GetSampleSum() - want); diff > 0.001 {
		t.Fatalf("expected histogram sum near %v, got %v", want, hist.GetSampleSum())
	}
}

func TestRecorderObserveDecision(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveDecision("matched", "fixed")

	families := gather(t, rec, "gwselector_selector_decisions_total")

	metric := findMetric(t, families["gwselector_selector_decisions_total"], map[string]string{
		"reason": "matched",
		"route":  "fixed",
	})
	if metric.GetCounter() == nil {
		t.Fatalf("expected counter metric for decisions")
	}
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}
}

func TestRecorderObserveWeightedBucket(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveWeightedBucket("42", 57)

	families := gather(t, rec, "gwselector_selector_weighted_bucket")

	metric := findMetric(t, families["gwselector_selector_weighted_bucket"], map[string]string{
		"rule_id": "42",
	})
	hist := metric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for weighted bucket")
	}
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected histogram count 1, got %d", hist.GetSampleCount())
	}
	if diff := math.Abs(hist.GetSampleSum() - 57); diff > 0.001 {
		t.Fatalf("expected histogram sum near 57, got %v", hist.GetSampleSum())
	}
}

func TestRecorderObserveCacheOperations(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveCacheLookup(CacheLookupHit)
	rec.ObserveCacheStore(CacheStoreStored)

	families := gather(t, rec, "gwselector_repository_cache_operations_total")

	lookupMetric := findMetric(t, families["gwselector_repository_cache_operations_total"], map[string]string{
		"operation": "lookup",
		"result":    string(CacheLookupHit),
	})
	if lookupMetric.GetCounter() == nil {
		t.Fatalf("expected counter metric for cache lookup")
	}
	if got := lookupMetric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected lookup counter 1, got %v", got)
	}

	storeMetric := findMetric(t, families["gwselector_repository_cache_operations_total"], map[string]string{
		"operation": "store",
		"result":    string(CacheStoreStored),
	})
	if storeMetric.GetCounter() == nil {
		t.Fatalf("expected counter metric for cache store")
	}
	if got := storeMetric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected store counter 1, got %v", got)
	}
}

func TestRecorderHandler(t *testing.T) {
	rec := NewRecorder(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	rec.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200 response, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("expected response body")
	}
}

func gather(t *testing.T, rec *Recorder, names ...string) map[string][]*dto.Metric {
	t.Helper()
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	families, err := rec.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	collected := make(map[string][]*dto.Metric, len(names))
	for _, mf := range families {
		if !wanted[mf.GetName()] {
			continue
		}
		collected[mf.GetName()] = append(collected[mf.GetName()], mf.GetMetric()...)
	}
	for _, name := range names {
		if len(collected[name]) == 0 {
			t.Fatalf("metric %q not collected", name)
		}
	}
	return collected
}

func findMetric(t *testing.T, metrics []*dto.Metric, labels map[string]string) *dto.Metric {
	t.Helper()
	for _, metric := range metrics {
		if matchLabels(metric, labels) {
			return metric
		}
	}
	t.Fatalf("metric with labels %v not found", labels)
	return nil
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	for key, expected := range labels {
		found := false
		for _, label := range metric.GetLabel() {
			if label.GetName() == key && label.GetValue() == expected {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
