package observability

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestObservePoolStatsSetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newForTest(reg)

	m.ObservePoolStats("optuna", 3, 4, 7)

	body := scrape(t, m)
	if !strings.Contains(body, `barforge_worker_pool_utilization_ratio{pool="optuna"} 0.75`) {
		t.Fatalf("expected utilization gauge in output, got:\n%s", body)
	}
	if !strings.Contains(body, `barforge_worker_pool_queue_depth{pool="optuna"} 7`) {
		t.Fatalf("expected queue depth gauge in output, got:\n%s", body)
	}
}

func TestObservePoolStatsIgnoresZeroTotal(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newForTest(reg)

	m.ObservePoolStats("empty", 0, 0, 0)

	body := scrape(t, m)
	if strings.Contains(body, `pool="empty"`) {
		t.Fatalf("expected no gauge emitted for a zero-capacity pool, got:\n%s", body)
	}
}

func TestCounterIncrementsAreObservable(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newForTest(reg)

	m.StudiesSubmittedTotal.WithLabelValues("optuna").Inc()
	m.StudiesFailedTotal.WithLabelValues("wfa").Inc()

	body := scrape(t, m)
	if !strings.Contains(body, `barforge_studies_submitted_total{mode="optuna"} 1`) {
		t.Fatalf("expected submitted counter in output, got:\n%s", body)
	}
	if !strings.Contains(body, `barforge_studies_failed_total{mode="wfa"} 1`) {
		t.Fatalf("expected failed counter in output, got:\n%s", body)
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rr, req)
	return rr.Body.String()
}
