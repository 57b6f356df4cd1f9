package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRecordWithoutPanicking(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.UpdateQueueDepth(3)
	m.UpdateInflightTasks(2)
	m.RecordTaskLatency("step", "completed", 15*time.Millisecond)
	m.IncrementCatchesFired("*")
	m.IncrementCacheEvictions()
	m.IncrementRetries("act", "error")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one metric family registered")
	}
}
