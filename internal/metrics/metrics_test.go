package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecords(t *testing.T) {
	c := New()

	c.ObservationEvaluated("wifi")
	c.ObservationEvaluated("wifi")
	c.ObservationEvaluated("gnss")
	c.AnomalyEmitted("wifi", "literal", "HIGH")
	c.Suppressed("cellular")
	c.RuleFailed("heuristic")
	c.HandlerFailed()
	c.Dropped()
	c.Dropped()
	c.SetRules("custom", 3)
	c.SetRules("custom", 2)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"observations wifi", testutil.ToFloat64(c.ObservationsTotal.WithLabelValues("wifi")), 2},
		{"observations gnss", testutil.ToFloat64(c.ObservationsTotal.WithLabelValues("gnss")), 1},
		{"anomalies", testutil.ToFloat64(c.AnomaliesTotal.WithLabelValues("wifi", "literal", "HIGH")), 1},
		{"suppressed", testutil.ToFloat64(c.SuppressedTotal.WithLabelValues("cellular")), 1},
		{"rule failures", testutil.ToFloat64(c.RuleFailures.WithLabelValues("heuristic")), 1},
		{"handler failures", testutil.ToFloat64(c.HandlerFailures), 1},
		{"dropped", testutil.ToFloat64(c.QueueDropped), 2},
		{"rules loaded", testutil.ToFloat64(c.RulesLoaded.WithLabelValues("custom")), 2},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObservationEvaluated("wifi")
	c.AnomalyEmitted("wifi", "literal", "LOW")
	c.Suppressed("wifi")
	c.RuleFailed("literal")
	c.HandlerFailed()
	c.Dropped()
	c.SetRules("builtin", 1)
}

func TestHandler(t *testing.T) {
	c := New()
	c.ObservationEvaluated("bluetooth")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), `sentinel_observations_total{domain="bluetooth"} 1`) {
		t.Errorf("metrics output missing observation counter:\n%s", body)
	}
	if n := testutil.CollectAndCount(c.ObservationsTotal); n != 1 {
		t.Errorf("CollectAndCount = %d, want 1", n)
	}
}
