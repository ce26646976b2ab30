package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter_SameNameSameInstance(t *testing.T) {
	c := NewMetricsCollector()
	a := c.Counter("relay_test_total", "help", "")
	b := c.Counter("relay_test_total", "help", "")
	a.Inc()
	b.Add(2)
	if a.Value() != 3 {
		t.Fatalf("expected shared counter value 3, got %d", a.Value())
	}
}

func TestHandler_Exposition(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("relay_sends_total", "Messages sent", `role="doctor"`).Inc()
	c.Gauge("relay_contexts", "Attached contexts", "").Set(2)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"carerelay_uptime_seconds",
		`relay_sends_total{role="doctor"} 1`,
		"relay_contexts 2",
		"# TYPE relay_sends_total counter",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %q:\n%s", want, body)
		}
	}
}
