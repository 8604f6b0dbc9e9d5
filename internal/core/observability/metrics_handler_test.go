package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsHandler_Smoke(t *testing.T) {
	ExposeBuildInfo("test")
	ObserveHTTP("GET", "/search", 200, 0.001)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "app_build_info") && !strings.Contains(body, "http_requests_total") {
		t.Fatalf("metrics payload did not contain expected metric names; got:\n%s", body)
	}
}

func TestSearchMetrics_Labels(t *testing.T) {
	ObserveStoreQuery("sentinel-2", nil, 0.004)
	ObserveStoreQuery("sentinel-2", errors.New("boom"), 0.010)
	IncSearchPage(true)
	IncRefresh("conflict")
	SetRegistrySize(3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)
	body := rr.Body.String()

	for _, s := range []string{
		`store_query_duration_seconds_count{collection="sentinel-2",outcome="error"} 1`,
		`search_pages_total{has_next="true"} `,
		`collections_refresh_total{outcome="conflict"} `,
		`collections_registry_size 3`,
	} {
		if !strings.Contains(body, s) {
			t.Fatalf("expected metrics to contain %q;\n%s", s, body)
		}
	}
}

func TestInit_IsIdempotentPerRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	Init(reg, true)
	Init(nil, true)

	IncKafkaConsumerError("decode")
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "kafka_consumer_errors_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("kafka_consumer_errors_total not exposed on the custom registry")
	}
}
