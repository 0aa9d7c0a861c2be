package proxy

import (
	"encoding/json"
	"net/http"
	"net/url"

	"kvrelay/monitoring"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Handlers struct {
	proxy *Proxy
}

func NewHandlers(p *Proxy) *Handlers {
	return &Handlers{proxy: p}
}

// PutHandler forwards PUT /put to the leader
func (h *Handlers) PutHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key   *string `json:"key"`
		Value *string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid JSON: "+err.Error())
		return
	}
	if req.Key == nil || req.Value == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Both key and value are required.")
		return
	}

	resp, err := h.proxy.RoutePut(r.Context(), *req.Key, *req.Value, r.Header.Get("Authorization"))
	relay(w, resp, err)
}

// DeleteHandler forwards DELETE /delete/{key} to the leader
func (h *Handlers) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := keyVar(w, r)
	if !ok {
		return
	}
	resp, err := h.proxy.RouteDelete(r.Context(), key, r.Header.Get("Authorization"))
	relay(w, resp, err)
}

// GetHandler forwards GET /get/{key} to the read target
func (h *Handlers) GetHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := keyVar(w, r)
	if !ok {
		return
	}
	resp, err := h.proxy.RouteGet(r.Context(), key, r.Header.Get("Authorization"))
	relay(w, resp, err)
}

// relay writes the upstream answer unchanged, or 500 when there was none.
func relay(w http.ResponseWriter, resp *Response, err error) {
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Request failed: "+err.Error())
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

func keyVar(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := url.PathUnescape(mux.Vars(r)["key"])
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid key encoding.")
		return "", false
	}
	return key, true
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"detail": detail}); err != nil {
		logrus.WithError(err).Debug("Failed to write response")
	}
}

type RouterOptions struct {
	Metrics *monitoring.Metrics
	Health  *monitoring.HealthChecker
}

func NewRouter(h *Handlers, opts RouterOptions) *mux.Router {
	router := mux.NewRouter().UseEncodedPath()

	router.HandleFunc("/health", monitoring.LivenessHandler).Methods(http.MethodGet)
	if opts.Health != nil {
		router.HandleFunc("/health/details", opts.Health.Handler).Methods(http.MethodGet)
	}
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	router.HandleFunc("/put", h.PutHandler).Methods(http.MethodPut)
	router.HandleFunc("/delete/{key}", h.DeleteHandler).Methods(http.MethodDelete)
	router.HandleFunc("/get/{key}", h.GetHandler).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})

	router.Use(monitoring.LoggerMiddleware)
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware)
	}
	return router
}
