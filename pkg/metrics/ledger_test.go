package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLedgerMetricsRecordsCallsAndTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.ObserveCall("submit_payment", "complete", 120*time.Millisecond)
	m.ObserveCall("submit_payment", "complete", 80*time.Millisecond)
	m.ObserveCall("check_status", "", time.Millisecond)
	m.IncTransition("completed")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "donorledger_ledger_calls_total", "result", "complete"); err != nil || got != 2 {
		t.Fatalf("expected 2 complete calls, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "donorledger_ledger_calls_total", "result", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected empty result normalized to unknown, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "donorledger_ledger_call_duration_seconds", "operation", "submit_payment"); err != nil || got <= 0 {
		t.Fatalf("expected latency sum > 0, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "donorledger_donation_transitions_total", "to", "completed"); err != nil || got != 1 {
		t.Fatalf("expected one completed transition, got %f err=%v", got, err)
	}
}

func TestNilLedgerMetricsIsSafe(t *testing.T) {
	var m *LedgerMetrics
	m.ObserveCall("submit_payment", "error", time.Second)
	m.IncTransition("failed")
	NewLedgerMetrics(nil).IncTransition("failed")
}
