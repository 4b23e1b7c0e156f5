package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/v2ray-mvp/internal/convert"
)

func TestDeriveHealthzURL_FromListenAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"127.0.0.1:25500", "http://127.0.0.1:25500/healthz"},
		{"0.0.0.0:25500", "http://127.0.0.1:25500/healthz"},
		{":25500", "http://127.0.0.1:25500/healthz"},
		{"25500", "http://127.0.0.1:25500/healthz"},
		{"http://127.0.0.1:25500", "http://127.0.0.1:25500/healthz"},
		{"[::]:25500", "http://127.0.0.1:25500/healthz"},
	}
	for _, tt := range tests {
		got, err := deriveHealthzURL(tt.in)
		if err != nil {
			t.Fatalf("deriveHealthzURL(%q) unexpected err: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("deriveHealthzURL(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeriveHealthzURL_Empty(t *testing.T) {
	if _, err := deriveHealthzURL("  "); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunHealthcheck_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	defer ts.Close()

	if err := runHealthcheck(ts.URL+"/healthz", 200*time.Millisecond); err != nil {
		t.Fatalf("runHealthcheck unexpected err: %v", err)
	}
}

func TestRunHealthcheck_StatusNotOK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	err := runHealthcheck(ts.URL, 200*time.Millisecond)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "unexpected status") {
		t.Fatalf("err=%q, want contains %q", err.Error(), "unexpected status")
	}
}

func TestRunConvert_FromArgs(t *testing.T) {
	var out bytes.Buffer
	link := "vless://11111111-2222-3333-4444-555555555555@host.example:443?sni=example.org#Node1"
	if err := runConvert([]string{link}, strings.NewReader(""), &out); err != nil {
		t.Fatalf("runConvert: %v", err)
	}
	got := out.String()
	if !strings.HasPrefix(got, "name:   Node1\nserver: host.example\n") {
		t.Fatalf("output=%q", got)
	}
	if !strings.Contains(got, `"serverName":"example.org"`) {
		t.Fatalf("output missing runtime config: %q", got)
	}
}

func TestRunConvert_FromStdin(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("ss://YWVzLTI1Ni1nY206cGFzcw==@example.com:8443#MyNode\n")
	if err := runConvert(nil, in, &out); err != nil {
		t.Fatalf("runConvert: %v", err)
	}
	if !strings.Contains(out.String(), `"protocol":"shadowsocks"`) {
		t.Fatalf("output=%q", out.String())
	}
}

func TestRunConvert_UsesConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("conversion:\n  inbound-port: 2080\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	var out bytes.Buffer
	link := "ss://YWVzLTI1Ni1nY206cGFzcw==@example.com:8443"
	if err := runConvert([]string{"-config", path, link}, strings.NewReader(""), &out); err != nil {
		t.Fatalf("runConvert: %v", err)
	}
	if !strings.Contains(out.String(), `"port":2080`) {
		t.Fatalf("output=%q", out.String())
	}
}

func TestRunConvert_UnsupportedStillPrintsDisplay(t *testing.T) {
	var out bytes.Buffer
	err := runConvert([]string{"trojan://pw@t.example:443#T1"}, strings.NewReader(""), &out)
	if !errors.Is(err, convert.ErrUnsupportedFormat) {
		t.Fatalf("err=%v, want unsupported format", err)
	}
	if out.String() != "name:   T1\nserver: t.example\n" {
		t.Fatalf("output=%q", out.String())
	}
}

func TestRunConvert_Empty(t *testing.T) {
	if err := runConvert(nil, strings.NewReader("  \n"), &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error")
	}
}
