package httpapi

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
)

const metricsPrefix = "v2raymvp_"

// counterVec is a counter keyed by its rendered label set, e.g.
// `stage="convert",code="UNSUPPORTED_FORMAT"`.
type counterVec map[string]uint64

// metricsStore holds the process-wide series rendered by GET /metrics in
// the Prometheus text format.
type metricsStore struct {
	mu sync.Mutex

	httpRequestsTotal uint64
	httpByPattern     counterVec
	appErrors         counterVec
	imports           counterVec
	pings             counterVec

	lastPingMS uint64
}

func newMetricsStore() *metricsStore {
	return &metricsStore{
		httpByPattern: counterVec{},
		appErrors:     counterVec{},
		imports:       counterVec{},
		pings:         counterVec{},
	}
}

var metrics = newMetricsStore()

func labels(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(kv[i])
		b.WriteString(`="`)
		b.WriteString(promLabelEscape(orUnknown(kv[i+1])))
		b.WriteByte('"')
	}
	return b.String()
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "(unknown)"
	}
	return s
}

func metricsIncRequest(pattern string, status int) {
	if status == 0 {
		status = http.StatusOK
	}
	key := labels("pattern", pattern, "status", strconv.Itoa(status))

	metrics.mu.Lock()
	metrics.httpRequestsTotal++
	metrics.httpByPattern[key]++
	metrics.mu.Unlock()
}

func metricsIncAppError(stage, code string) {
	key := labels("stage", stage, "code", code)

	metrics.mu.Lock()
	metrics.appErrors[key]++
	metrics.mu.Unlock()
}

// metricsIncImport counts POST /api/configs outcomes: "ok" or the error
// code that rejected the link.
func metricsIncImport(result string) {
	key := labels("result", result)

	metrics.mu.Lock()
	metrics.imports[key]++
	metrics.mu.Unlock()
}

func metricsObservePing(result string, ms uint64) {
	key := labels("result", result)

	metrics.mu.Lock()
	metrics.pings[key]++
	if result == "ok" {
		metrics.lastPingMS = ms
	}
	metrics.mu.Unlock()
}

func writeCounter(b *strings.Builder, name, help string, total *uint64, vec counterVec) {
	b.WriteString("# HELP " + metricsPrefix + name + " " + help + "\n")
	b.WriteString("# TYPE " + metricsPrefix + name + " counter\n")
	if total != nil {
		b.WriteString(metricsPrefix + name + " " + strconv.FormatUint(*total, 10) + "\n")
	}
	keys := make([]string, 0, len(vec))
	for k := range vec {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.WriteString(metricsPrefix + name + "{" + k + "} " + strconv.FormatUint(vec[k], 10) + "\n")
	}
}

func writeGauge(b *strings.Builder, name, help string, v uint64) {
	b.WriteString("# HELP " + metricsPrefix + name + " " + help + "\n")
	b.WriteString("# TYPE " + metricsPrefix + name + " gauge\n")
	b.WriteString(metricsPrefix + name + " " + strconv.FormatUint(v, 10) + "\n")
}

// handleMetrics renders the counters plus the connection gauge, which is
// read from the service at scrape time.
func (h *apiHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var connected uint64
	if h.opt.Service != nil && h.opt.Service.Status().Connected {
		connected = 1
	}

	var b strings.Builder
	metrics.mu.Lock()
	total := metrics.httpRequestsTotal
	writeCounter(&b, "http_requests_total", "Total HTTP requests.", &total, nil)
	writeCounter(&b, "http_requests_by_pattern_total", "HTTP requests by ServeMux pattern and status.", nil, metrics.httpByPattern)
	writeCounter(&b, "app_errors_total", "Application errors returned to clients.", nil, metrics.appErrors)
	writeCounter(&b, "imports_total", "Link imports by result.", nil, metrics.imports)
	writeCounter(&b, "pings_total", "Ping probes by result.", nil, metrics.pings)
	writeGauge(&b, "ping_last_latency_ms", "Latency of the last successful ping in milliseconds.", metrics.lastPingMS)
	metrics.mu.Unlock()
	writeGauge(&b, "connected", "1 while an engine connection is active.", connected)

	WriteText(w, http.StatusOK, b.String())
}

func promLabelEscape(s string) string {
	// Prometheus label value escaping: backslash, double quote, newline.
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
