package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"kvrelay/cluster"
	"kvrelay/replication"
	"kvrelay/storage"
	"kvrelay/testutils"
)

func newTestNode(leader bool, replicaCount int, replicator replication.Notifier) (*Handlers, http.Handler, *storage.MemoryStorage) {
	name := "kvstore-1"
	if leader {
		name = "kvstore-0"
	}
	store := storage.NewMemoryStorage()
	h := NewHandlers(store, replicator, cluster.NewIdentity(name, "0"), replicaCount)
	return h, NewRouter(h, RouterOptions{}), store
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var response map[string]string
	json.Unmarshal(rr.Body.Bytes(), &response)
	return rr, response
}

func TestHandlers(t *testing.T) {
	mockReplicator := testutils.NewMockReplicator([]string{"http://kvstore-1:8000", "http://kvstore-2:8000"})
	handlers, router, store := newTestNode(true, 3, mockReplicator)

	t.Run("PutHandler", func(t *testing.T) {
		rr, response := do(t, router, "PUT", "/put", storage.KeyValue{Key: "test-key", Value: "test-value"})

		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rr.Code)
		}
		if response["message"] != "Key 'test-key' added/updated successfully." {
			t.Errorf("Unexpected message: %q", response["message"])
		}

		value, err := store.Get("test-key")
		if err != nil || value != "test-value" {
			t.Errorf("Expected 'test-value' stored, got %q, %v", value, err)
		}

		handlers.Wait()
		calls := mockReplicator.Calls()
		if len(calls) != 1 {
			t.Fatalf("Expected 1 replication call, got %d", len(calls))
		}
		if calls[0] != (testutils.ReplicationCall{Op: replication.OpPut, Key: "test-key", Value: "test-value"}) {
			t.Errorf("Unexpected replication call: %+v", calls[0])
		}
	})

	t.Run("GetHandler", func(t *testing.T) {
		store.Put("get-test", "get-value")

		rr, response := do(t, router, "GET", "/get/get-test", nil)

		if rr.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", rr.Code)
		}
		if response["value"] != "get-value" || response["key"] != "get-test" {
			t.Errorf("Unexpected response: %v", response)
		}
	})

	t.Run("GetHandler_NotFound", func(t *testing.T) {
		rr, response := do(t, router, "GET", "/get/non-existent", nil)

		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", rr.Code)
		}
		if response["detail"] != "Key not found." {
			t.Errorf("Unexpected detail: %q", response["detail"])
		}
	})

	t.Run("DeleteHandler", func(t *testing.T) {
		store.Put("delete-me", "v")
		before := len(mockReplicator.Calls())

		rr, response := do(t, router, "DELETE", "/delete/delete-me", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rr.Code)
		}
		if response["message"] != "Key 'delete-me' deleted successfully." {
			t.Errorf("Unexpected message: %q", response["message"])
		}

		handlers.Wait()
		calls := mockReplicator.Calls()
		if len(calls) != before+1 || calls[len(calls)-1].Op != replication.OpDelete {
			t.Errorf("Expected one delete replication, got %+v", calls[before:])
		}

		rr, _ = do(t, router, "GET", "/get/delete-me", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected 404 after delete, got %d", rr.Code)
		}
	})

	t.Run("DeleteHandler_NotFoundDoesNotReplicate", func(t *testing.T) {
		before := len(mockReplicator.Calls())

		rr, response := do(t, router, "DELETE", "/delete/never-written", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", rr.Code)
		}
		if response["detail"] != "Key not found." {
			t.Errorf("Unexpected detail: %q", response["detail"])
		}

		handlers.Wait()
		if len(mockReplicator.Calls()) != before {
			t.Error("Delete of absent key must not replicate")
		}
	})

	t.Run("PutHandler_InvalidBody", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/put", strings.NewReader("{not json"))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("Expected 422 for invalid JSON, got %d", rr.Code)
		}

		rr, _ = do(t, router, "PUT", "/put", map[string]string{"key": "only-key"})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("Expected 422 for missing value, got %d", rr.Code)
		}

		rr, _ = do(t, router, "PUT", "/put", map[string]string{"value": "only-value"})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("Expected 422 for missing key, got %d", rr.Code)
		}
	})

	t.Run("PutHandler_EmptyKeyAllowed", func(t *testing.T) {
		_, local, localStore := newTestNode(false, 1, nil)
		rr, _ := do(t, local, "PUT", "/put", map[string]string{"key": "", "value": "x"})
		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200 for empty key, got %d", rr.Code)
		}
		if v, err := localStore.Get(""); err != nil || v != "x" {
			t.Errorf("Expected empty key stored, got %q, %v", v, err)
		}
	})

	t.Run("PutHandler_EmptyValueAllowed", func(t *testing.T) {
		rr, _ := do(t, router, "PUT", "/put", map[string]string{"key": "empty", "value": ""})
		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200 for empty value, got %d", rr.Code)
		}
	})

	t.Run("EncodedKey", func(t *testing.T) {
		do(t, router, "PUT", "/put", map[string]string{"key": "a/b c", "value": "slash"})

		rr, response := do(t, router, "GET", "/get/a%2Fb%20c", nil)
		if rr.Code != http.StatusOK || response["key"] != "a/b c" {
			t.Errorf("Expected encoded key lookup to succeed, got %d %v", rr.Code, response)
		}
	})

	t.Run("GetAllHandler", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest("GET", "/keys", nil))

		var response struct {
			Count int                `json:"count"`
			Items []storage.KeyValue `json:"items"`
		}
		json.NewDecoder(rr.Body).Decode(&response)
		if response.Count != store.Len() || len(response.Items) != store.Len() {
			t.Errorf("Expected %d items, got %+v", store.Len(), response)
		}
	})
}

func TestHandlers_ReplicationGate(t *testing.T) {
	tests := []struct {
		name         string
		leader       bool
		replicaCount int
		want         bool
	}{
		{"leader with replicas", true, 3, true},
		{"leader with two replicas", true, 2, true},
		{"leader single replica", true, 1, false},
		{"leader zero replicas", true, 0, false},
		{"follower", false, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutils.NewMockReplicator([]string{"http://r:1"})
			handlers, router, _ := newTestNode(tt.leader, tt.replicaCount, mock)

			if handlers.ShouldReplicate() != tt.want {
				t.Errorf("ShouldReplicate: expected %v", tt.want)
			}

			do(t, router, "PUT", "/put", map[string]string{"key": "k", "value": "v"})
			do(t, router, "DELETE", "/delete/k", nil)
			handlers.Wait()

			calls := len(mock.Calls())
			if tt.want && calls != 2 {
				t.Errorf("Expected put and delete to replicate, got %d calls", calls)
			}
			if !tt.want && calls != 0 {
				t.Errorf("Expected no replication, got %d calls", calls)
			}
		})
	}
}

func TestHandlers_NilReplicator(t *testing.T) {
	_, router, _ := newTestNode(true, 3, nil)

	rr, _ := do(t, router, "PUT", "/put", map[string]string{"key": "k", "value": "v"})
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 without a replicator, got %d", rr.Code)
	}
}

func TestHandlers_ReplicationFailureDoesNotAffectResponse(t *testing.T) {
	mock := testutils.NewMockReplicator([]string{"http://down:1", "http://down:2"})
	mock.Fail = true
	handlers, router, _ := newTestNode(true, 3, mock)

	rr, _ := do(t, router, "PUT", "/put", map[string]string{"key": "k", "value": "v"})
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 despite replication failure, got %d", rr.Code)
	}
	rr, _ = do(t, router, "DELETE", "/delete/k", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 despite replication failure, got %d", rr.Code)
	}
	handlers.Wait()
}

func TestHandlers_ConcurrentPuts(t *testing.T) {
	_, router, store := newTestNode(false, 0, nil)
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			do(t, router, "PUT", "/put", map[string]string{
				"key":   fmt.Sprintf("key-%d", i),
				"value": fmt.Sprintf("value-%d", i),
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		rr, response := do(t, router, "GET", fmt.Sprintf("/get/key-%d", i), nil)
		if rr.Code != http.StatusOK || response["value"] != fmt.Sprintf("value-%d", i) {
			t.Errorf("key-%d: got %d %v", i, rr.Code, response)
		}
	}
	if store.Len() != n {
		t.Errorf("Expected %d keys, got %d", n, store.Len())
	}
}

func TestHandlers_IdempotentDelete(t *testing.T) {
	_, router, _ := newTestNode(true, 0, nil)

	do(t, router, "PUT", "/put", map[string]string{"key": "a", "value": "1"})

	rr, response := do(t, router, "GET", "/get/a", nil)
	if rr.Code != http.StatusOK || response["key"] != "a" || response["value"] != "1" {
		t.Fatalf("Expected {a 1}, got %d %v", rr.Code, response)
	}

	if rr, _ := do(t, router, "DELETE", "/delete/a", nil); rr.Code != http.StatusOK {
		t.Errorf("First delete: expected 200, got %d", rr.Code)
	}
	if rr, _ := do(t, router, "GET", "/get/a", nil); rr.Code != http.StatusNotFound {
		t.Errorf("Get after delete: expected 404, got %d", rr.Code)
	}
	if rr, _ := do(t, router, "DELETE", "/delete/a", nil); rr.Code != http.StatusNotFound {
		t.Errorf("Second delete: expected 404, got %d", rr.Code)
	}
}
