package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"kvrelay/cluster"
	"kvrelay/replication"
	"kvrelay/storage"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	msgKeyNotFound = "Key not found."
)

type Handlers struct {
	storage      storage.Storage
	replicator   replication.Notifier
	identity     cluster.Identity
	replicaCount int

	// tracks detached replication cycles
	inflight sync.WaitGroup
}

func NewHandlers(store storage.Storage, replicator replication.Notifier, identity cluster.Identity, replicaCount int) *Handlers {
	return &Handlers{
		storage:      store,
		replicator:   replicator,
		identity:     identity,
		replicaCount: replicaCount,
	}
}

type putRequest struct {
	Key   *string `json:"key"`
	Value *string `json:"value"`
}

// ShouldReplicate is fixed for the lifetime of the node.
func (h *Handlers) ShouldReplicate() bool {
	return h.replicator != nil && h.identity.IsLeader() && h.replicaCount > 1
}

// Wait blocks until every replication cycle started so far has finished.
func (h *Handlers) Wait() {
	h.inflight.Wait()
}

// replicate runs fn detached from the request; its result is only logged.
func (h *Handlers) replicate(op replication.Op, key string, fn func(context.Context) replication.Result) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		result := fn(context.Background())
		if result.Failed > 0 {
			logrus.WithFields(logrus.Fields{
				"op":        op,
				"key":       key,
				"succeeded": result.Succeeded,
				"failed":    result.Failed,
			}).Warn("Replication cycle finished with failures")
		}
	}()
}

// PutHandler handles PUT /put
func (h *Handlers) PutHandler(w http.ResponseWriter, r *http.Request) {
	key, value, ok := decodePut(w, r)
	if !ok {
		return
	}

	h.storage.Put(key, value)

	if h.ShouldReplicate() {
		h.replicate(replication.OpPut, key, func(ctx context.Context) replication.Result {
			return h.replicator.ReplicatePut(ctx, key, value)
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Key '%s' added/updated successfully.", key),
	})
}

// GetHandler handles GET /get/{key}
func (h *Handlers) GetHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := keyVar(w, r)
	if !ok {
		return
	}

	value, err := h.storage.Get(key)
	if err != nil {
		writeDetail(w, http.StatusNotFound, msgKeyNotFound)
		return
	}

	writeJSON(w, http.StatusOK, storage.KeyValue{Key: key, Value: value})
}

// DeleteHandler handles DELETE /delete/{key}
func (h *Handlers) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := keyVar(w, r)
	if !ok {
		return
	}

	if !h.storage.Delete(key) {
		writeDetail(w, http.StatusNotFound, msgKeyNotFound)
		return
	}

	if h.ShouldReplicate() {
		h.replicate(replication.OpDelete, key, func(ctx context.Context) replication.Result {
			return h.replicator.ReplicateDelete(ctx, key)
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Key '%s' deleted successfully.", key),
	})
}

// GetAllHandler lists the local store
func (h *Handlers) GetAllHandler(w http.ResponseWriter, r *http.Request) {
	items := h.storage.GetAll()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}

// InternalPutHandler applies a replicated put without replicating further
func (h *Handlers) InternalPutHandler(w http.ResponseWriter, r *http.Request) {
	key, value, ok := decodePut(w, r)
	if !ok {
		return
	}

	h.storage.Put(key, value)
	w.WriteHeader(http.StatusNoContent)
}

// InternalDeleteHandler applies a replicated delete. An absent key is not an error here.
func (h *Handlers) InternalDeleteHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := keyVar(w, r)
	if !ok {
		return
	}

	h.storage.Delete(key)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) InternalGetHandler(w http.ResponseWriter, r *http.Request) {
	h.GetHandler(w, r)
}

func decodePut(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	var req putRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid JSON: "+err.Error())
		return "", "", false
	}
	if req.Key == nil || req.Value == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Both key and value are required.")
		return "", "", false
	}
	return *req.Key, *req.Value, true
}

// keyVar reads {key}; the router keeps paths encoded so keys may contain '/'.
func keyVar(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := url.PathUnescape(mux.Vars(r)["key"])
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid key encoding.")
		return "", false
	}
	return key, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("Failed to write response")
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
