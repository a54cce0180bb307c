package metrics

import (
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()

	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	m.AddDropped("bad_timestamp", 2)
	m.AddDuplicates(3)
	m.AddLookups(LookupFetched, 4)
	m.IncRateLimited()
	m.ObserveBatch(0.2)
	m.IncRuns(StatusSuccess)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := make(map[string]*dto.MetricFamily)
	for _, f := range families {
		found[f.GetName()] = f
	}
	for _, name := range []string{
		MetricRecordsDroppedTotal,
		MetricDuplicatesRemovedTotal,
		MetricEnrichLookupsTotal,
		MetricEnrichRateLimitedTotal,
		MetricEnrichBatchDuration,
		MetricPipelineRunsTotal,
	} {
		if _, ok := found[name]; !ok {
			t.Errorf("metric %s not gathered", name)
		}
	}

	dup := found[MetricDuplicatesRemovedTotal].GetMetric()[0].GetCounter().GetValue()
	if dup != 3 {
		t.Errorf("%s = %v, want 3", MetricDuplicatesRemovedTotal, dup)
	}
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := NewMetrics().Register(reg); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if err := NewMetrics().Register(reg); err == nil {
		t.Error("second Register() on the same registry should fail")
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.AddDropped("x", 1)
	m.AddDuplicates(1)
	m.AddLookups(LookupFailed, 1)
	m.IncRateLimited()
	m.ObserveBatch(1)
	m.IncRuns(StatusFailure)
}

func TestMetrics_WriteToTextfile(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	m.IncRuns(StatusSuccess)

	path := filepath.Join(t.TempDir(), "wrapped.prom")
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		t.Fatalf("WriteToTextfile() error = %v", err)
	}
}
