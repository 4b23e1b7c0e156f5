package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/juju/ratelimit"

	"github.com/John-Robertt/v2ray-mvp/internal/model"
)

type apiHandler struct {
	opt     Options
	imports *ratelimit.Bucket
}

func newAPIHandler(opt Options) *apiHandler {
	h := &apiHandler{opt: opt}
	if opt.ImportsPerMinute > 0 {
		h.imports = ratelimit.NewBucketWithRate(opt.ImportsPerMinute/60, opt.ImportBurst)
	}
	return h
}

type configRequest struct {
	Config string `json:"config"`
}

type inspectResponse struct {
	Kind       string          `json:"kind,omitempty"`
	Name       string          `json:"name"`
	Server     string          `json:"server"`
	ConfigJSON string          `json:"config_json,omitempty"`
	Error      *model.AppError `json:"error,omitempty"`
}

type pingResponse struct {
	LatencyMS uint64 `json:"latency_ms"`
}

func (h *apiHandler) service() (Commands, error) {
	if h.opt.Service == nil {
		return nil, apiError(http.StatusServiceUnavailable, model.AppError{
			Code:    "SERVICE_UNAVAILABLE",
			Message: "服务未初始化",
			Stage:   "internal",
		}, nil)
	}
	return h.opt.Service, nil
}

func (h *apiHandler) handleList(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service()
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, svc.List())
}

func (h *apiHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service()
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	if h.imports != nil && h.imports.TakeAvailable(1) == 0 {
		w.Header().Set("Retry-After", "60")
		WriteError(w, http.StatusTooManyRequests, model.AppError{
			Code:    "RATE_LIMITED",
			Message: "导入过于频繁，请稍后再试",
			Stage:   "validate_request",
		})
		return
	}
	body, err := h.decodeConfigRequest(w, r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	rec, err := svc.Add(body.Config)
	if err != nil {
		_, app := appErrorFromErr(err)
		metricsIncImport(app.Code)
		writeErrorFromErr(w, err)
		return
	}
	metricsIncImport("ok")
	WriteJSON(w, http.StatusCreated, rec)
}

func (h *apiHandler) handleRemove(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service()
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	if err := svc.Remove(r.PathValue("id")); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service()
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	rec, err := svc.Get(r.PathValue("id"))
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	name, err := exportFileName(r.URL.Query().Get("fileName"), rec.Name)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", contentDispositionAttachment(name))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rec.ConfigJSON)
}

func (h *apiHandler) handleConnect(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service()
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.opt.RequestTimeout)
	defer cancel()
	if err := svc.Connect(ctx, r.PathValue("id")); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, svc.Status())
}

func (h *apiHandler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service()
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.opt.RequestTimeout)
	defer cancel()
	if err := svc.Disconnect(ctx); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, svc.Status())
}

func (h *apiHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service()
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, svc.Status())
}

func (h *apiHandler) handlePing(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service()
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.opt.RequestTimeout)
	defer cancel()
	ms, err := svc.Ping(ctx, r.PathValue("id"))
	if err != nil {
		_, app := appErrorFromErr(err)
		metricsObservePing(app.Code, 0)
		writeErrorFromErr(w, err)
		return
	}
	metricsObservePing("ok", ms)
	WriteJSON(w, http.StatusOK, pingResponse{LatencyMS: ms})
}

func (h *apiHandler) handleInspect(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service()
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	body, err := h.decodeConfigRequest(w, r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	in := svc.Inspect(body.Config)
	resp := inspectResponse{
		Kind:       in.Kind,
		Name:       in.Display.Name,
		Server:     in.Display.Server,
		ConfigJSON: in.ConfigJSON,
	}
	if in.Err != nil {
		_, app := appErrorFromErr(in.Err)
		resp.Error = &app
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *apiHandler) decodeConfigRequest(w http.ResponseWriter, r *http.Request) (configRequest, error) {
	var body configRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.opt.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return configRequest{}, apiError(http.StatusRequestEntityTooLarge, model.AppError{
				Code:    "TOO_LARGE",
				Message: "请求体过大",
				Stage:   "validate_request",
			}, err)
		}
		return configRequest{}, requestError("INVALID_ARGUMENT", "JSON body 解析失败", err.Error())
	}
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return configRequest{}, requestError("INVALID_ARGUMENT", "JSON body 不允许多段", "")
	} else if !errors.Is(err, io.EOF) {
		return configRequest{}, requestError("INVALID_ARGUMENT", "JSON body 解析失败", err.Error())
	}
	if strings.TrimSpace(body.Config) == "" {
		return configRequest{}, requestError("INVALID_ARGUMENT", "config 不能为空", `expected: {"config":"<link>"}`)
	}
	return body, nil
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteText(w, http.StatusOK, "ok\n")
}
