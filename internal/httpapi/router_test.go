package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/John-Robertt/v2ray-mvp/internal/model"
)

func TestMux_Healthz(t *testing.T) {
	mux := NewMux(Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestMux_Index(t *testing.T) {
	mux := NewMux(Options{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("Content-Type=%q", rr.Header().Get("Content-Type"))
	}
}

func TestMux_NoService(t *testing.T) {
	mux := NewMux(Options{})
	req := httptest.NewRequest(http.MethodGet, "/api/configs", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if got, want := rr.Code, http.StatusServiceUnavailable; got != want {
		t.Fatalf("status = %d, want %d", got, want)
	}

	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nbody=%q", err, rr.Body.String())
	}
	if resp.Error.Code != "SERVICE_UNAVAILABLE" {
		t.Fatalf("code = %q, want %q", resp.Error.Code, "SERVICE_UNAVAILABLE")
	}
}

func TestMux_MethodNotAllowed(t *testing.T) {
	mux := NewMux(Options{})
	req := httptest.NewRequest(http.MethodPut, "/api/configs", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d, want=%d", rr.Code, http.StatusMethodNotAllowed)
	}
}
