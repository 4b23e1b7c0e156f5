package httpapi

import "net/http"

func NewMux(opt Options) *http.ServeMux {
	opt = opt.withDefaults()
	h := newAPIHandler(opt)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handleIndex)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /metrics", h.handleMetrics)

	mux.HandleFunc("GET /api/configs", h.handleList)
	mux.HandleFunc("POST /api/configs", h.handleAdd)
	mux.HandleFunc("DELETE /api/configs/{id}", h.handleRemove)
	mux.HandleFunc("GET /api/configs/{id}/export", h.handleExport)
	mux.HandleFunc("POST /api/configs/{id}/connect", h.handleConnect)
	mux.HandleFunc("POST /api/configs/{id}/ping", h.handlePing)
	mux.HandleFunc("POST /api/disconnect", h.handleDisconnect)
	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("POST /api/inspect", h.handleInspect)
	return mux
}
