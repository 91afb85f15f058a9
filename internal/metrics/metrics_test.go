package metrics

import (
	"testing"
	"time"

	"github.com/deusflow/hotpush/internal/dedup"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.AddCollected(10, 1)
	m.RecordDedup(dedup.Stats{TotalProcessed: 10, TotalDuplicates: 4})
	m.AddAlreadyPushed(2)
	m.AddPushed(4)
	m.RecordProcessingTime(2 * time.Second)
	m.RecordProcessingTime(4 * time.Second)

	s := m.GetStats()
	if s["items_collected"] != int64(10) || s["source_failures"] != int64(1) {
		t.Errorf("collection counters: %v", s)
	}
	if s["duplicates_filtered"] != int64(4) || s["already_pushed"] != int64(2) || s["items_pushed"] != int64(4) {
		t.Errorf("pipeline counters: %v", s)
	}
	if s["cycles_run"] != int64(2) || s["average_processing_time_ms"] != int64(3000) {
		t.Errorf("timing: %v", s)
	}
	if s["last_duplicate_rate"] != 40.0 {
		t.Errorf("duplicate rate = %v", s["last_duplicate_rate"])
	}
}

func TestMetrics_Health(t *testing.T) {
	m := New()
	if !m.Healthy() {
		t.Fatal("new metrics should be healthy")
	}
	m.SetError("push failed")
	if m.Healthy() || m.GetStats()["last_error"] != "push failed" {
		t.Error("error not recorded")
	}
	m.SetLastRun()
	if !m.Healthy() {
		t.Error("successful run should restore health")
	}
}

func TestMetrics_LastDedup(t *testing.T) {
	m := New()
	if _, ok := m.LastDedup(); ok {
		t.Fatal("no snapshot expected before the first cycle")
	}
	m.RecordDedup(dedup.Stats{TotalProcessed: 3})
	if s, ok := m.LastDedup(); !ok || s.TotalProcessed != 3 {
		t.Errorf("LastDedup = %+v, %v", s, ok)
	}
}

type fixedBudget map[string]interface{}

func (f fixedBudget) GetStats() map[string]interface{} { return f }

func TestMetrics_TrackBudget(t *testing.T) {
	m := New()
	if _, ok := m.GetStats()["ai_budget"]; ok {
		t.Error("no budget tracked yet")
	}
	m.TrackBudget(fixedBudget{"used": 2, "limit": 3})
	b, ok := m.GetStats()["ai_budget"].(map[string]interface{})
	if !ok || b["used"] != 2 || b["limit"] != 3 {
		t.Errorf("ai_budget = %v", m.GetStats()["ai_budget"])
	}
}
