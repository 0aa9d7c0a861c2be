package api

import (
	"fmt"
	"net/http"

	"kvrelay/auth"
	"kvrelay/monitoring"

	"github.com/gorilla/mux"
)

type RouterOptions struct {
	// nil disables authentication
	Validator auth.Validator
	Metrics   *monitoring.Metrics
	Health    *monitoring.HealthChecker
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

	guard := func(role auth.Role) []mux.MiddlewareFunc {
		if opts.Validator == nil {
			return []mux.MiddlewareFunc{auth.PublicMiddleware}
		}
		return []mux.MiddlewareFunc{auth.AuthMiddleware(opts.Validator), auth.RBACMiddleware(role)}
	}

	writes := router.PathPrefix("").Subrouter()
	writes.Use(guard(auth.RoleWrite)...)
	writes.HandleFunc("/put", h.PutHandler).Methods(http.MethodPut)
	writes.HandleFunc("/delete/{key}", h.DeleteHandler).Methods(http.MethodDelete)

	reads := router.PathPrefix("").Subrouter()
	reads.Use(guard(auth.RoleRead)...)
	reads.HandleFunc("/get/{key}", h.GetHandler).Methods(http.MethodGet)
	reads.HandleFunc("/keys", h.GetAllHandler).Methods(http.MethodGet)

	internal := router.PathPrefix("/internal").Subrouter()
	internal.Use(guard(auth.RoleReplicator)...)
	internal.HandleFunc("/put", h.InternalPutHandler).Methods(http.MethodPut)
	internal.HandleFunc("/delete/{key}", h.InternalDeleteHandler).Methods(http.MethodDelete)
	internal.HandleFunc("/get/{key}", h.InternalGetHandler).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed", r.Method))
	})

	router.Use(monitoring.LoggerMiddleware)
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware)
	}

	return router
}
