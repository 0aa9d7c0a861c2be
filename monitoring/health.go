package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

type ComponentHealth struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// CheckFunc reports the health of one component.
type CheckFunc func() ComponentHealth

type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]CheckFunc)}
}

func (h *HealthChecker) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func Healthy(details string) ComponentHealth {
	return ComponentHealth{Status: "healthy", Details: details}
}

func Unhealthy(details string) ComponentHealth {
	return ComponentHealth{Status: "unhealthy", Details: details}
}

// Check runs all registered checks concurrently.
func (h *HealthChecker) Check() HealthStatus {
	status := HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, check := range h.checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			start := time.Now()
			result := check()
			if result.Latency == "" {
				result.Latency = time.Since(start).String()
			}

			mu.Lock()
			defer mu.Unlock()
			status.Components[name] = result
			if result.Status != "healthy" {
				status.Status = "degraded"
			}
		}(name, check)
	}

	wg.Wait()
	return status
}

func (h *HealthChecker) Handler(w http.ResponseWriter, r *http.Request) {
	status := h.Check()

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// LivenessHandler answers /health.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
