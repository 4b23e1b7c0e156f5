package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetrics_CountsRequestsAndErrors(t *testing.T) {
	metrics = newMetricsStore()
	h := NewHandler(Options{Service: newTestService(t)})

	// 1) ok request
	{
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("healthz status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 2) error request
	{
		rr := doJSON(t, h, http.MethodPost, "/api/configs", map[string]string{"config": "not-a-known-scheme"})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("add status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 3) metrics snapshot (the /metrics request itself isn't counted inside its own response).
	{
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("metrics status=%d body=%q", rr.Code, rr.Body.String())
		}

		body := rr.Body.String()

		if !strings.Contains(body, "v2raymvp_http_requests_total 2\n") {
			t.Fatalf("metrics body missing total requests=2, got:\n%s", body)
		}
		if !strings.Contains(body, `pattern="GET /healthz",status="200"} 1`) {
			t.Fatalf("metrics body missing healthz counter, got:\n%s", body)
		}
		if !strings.Contains(body, `pattern="POST /api/configs",status="422"} 1`) {
			t.Fatalf("metrics body missing import 422 counter, got:\n%s", body)
		}
		if !strings.Contains(body, `v2raymvp_app_errors_total{stage="convert",code="UNSUPPORTED_FORMAT"} 1`) {
			t.Fatalf("metrics body missing app error counter, got:\n%s", body)
		}
		if !strings.Contains(body, `v2raymvp_imports_total{result="UNSUPPORTED_FORMAT"} 1`) {
			t.Fatalf("metrics body missing import counter, got:\n%s", body)
		}
		if !strings.Contains(body, "v2raymvp_connected 0\n") {
			t.Fatalf("metrics body missing connected gauge, got:\n%s", body)
		}
	}
}

func TestMetrics_ConnectedGaugeAndPing(t *testing.T) {
	metrics = newMetricsStore()
	svc := newTestService(t)
	rec, err := svc.Add(testSSLink)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	h := NewHandler(Options{Service: svc})

	for _, path := range []string{"/api/configs/" + rec.ID + "/connect", "/api/configs/" + rec.ID + "/ping"} {
		if rr := doJSON(t, h, http.MethodPost, path, nil); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}

	rr := doJSON(t, h, http.MethodGet, "/metrics", nil)
	body := rr.Body.String()
	for _, want := range []string{
		"v2raymvp_connected 1\n",
		`v2raymvp_pings_total{result="ok"} 1`,
		"v2raymvp_ping_last_latency_ms 15\n",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics body missing %q, got:\n%s", want, body)
		}
	}
}

func TestPromLabelEscape(t *testing.T) {
	if got := promLabelEscape("a\"b\\c\nd"); got != `a\"b\\c\nd` {
		t.Fatalf("got=%q", got)
	}
}
