package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/John-Robertt/v2ray-mvp/internal/probe"
	"github.com/John-Robertt/v2ray-mvp/internal/service"
	"github.com/John-Robertt/v2ray-mvp/internal/store"
)

const testSSLink = "ss://YWVzLTI1Ni1nY206cGFzcw==@example.com:8443#MyNode"

type nopEngine struct{ running bool }

func (e *nopEngine) Start(ctx context.Context, configJSON string) (int32, error) {
	e.running = true
	return 7, nil
}

func (e *nopEngine) Stop(ctx context.Context) error {
	e.running = false
	return nil
}

type nopProxy struct{}

func (nopProxy) Enable(ctx context.Context) error  { return nil }
func (nopProxy) Disable(ctx context.Context) error { return nil }

func newTestService(t *testing.T) *service.Service {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return service.New(st, &nopEngine{}, nopProxy{}, service.Options{
		Prober: func(ctx context.Context, opt probe.Options) (time.Duration, error) {
			return 15 * time.Millisecond, nil
		},
	})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
