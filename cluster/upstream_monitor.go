package cluster

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type UpstreamStatus struct {
	Name     string        `json:"name"`
	URL      string        `json:"url"`
	Online   bool          `json:"online"`
	LastSeen time.Time     `json:"last_seen"`
	Latency  time.Duration `json:"latency"`
	Checked  bool          `json:"checked"`
}

// UpstreamMonitor probes /health of named upstreams. Its results are only
// reported, never used to pick a destination.
type UpstreamMonitor struct {
	mu       sync.RWMutex
	status   map[string]*UpstreamStatus
	client   *http.Client
	interval time.Duration
}

func NewUpstreamMonitor(upstreams map[string]string, interval, timeout time.Duration) *UpstreamMonitor {
	m := &UpstreamMonitor{
		status:   make(map[string]*UpstreamStatus, len(upstreams)),
		client:   &http.Client{Timeout: timeout},
		interval: interval,
	}
	for name, url := range upstreams {
		m.status[name] = &UpstreamStatus{Name: name, URL: url}
	}
	return m
}

// Run checks all upstreams every interval until ctx is done.
func (m *UpstreamMonitor) Run(ctx context.Context) {
	if m.interval <= 0 {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.CheckAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// Periodic reports whether Run refreshes the status in the background.
func (m *UpstreamMonitor) Periodic() bool { return m.interval > 0 }

// Check probes one upstream now and returns its fresh status.
func (m *UpstreamMonitor) Check(ctx context.Context, name string) (UpstreamStatus, bool) {
	m.mu.RLock()
	s, ok := m.status[name]
	var url string
	if ok {
		url = s.URL
	}
	m.mu.RUnlock()
	if !ok {
		return UpstreamStatus{Name: name}, false
	}

	m.check(ctx, name, url)

	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.status[name], true
}

func (m *UpstreamMonitor) CheckAll(ctx context.Context) {
	m.mu.RLock()
	targets := make(map[string]string, len(m.status))
	for name, s := range m.status {
		targets[name] = s.URL
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for name, url := range targets {
		wg.Add(1)
		go func(name, url string) {
			defer wg.Done()
			m.check(ctx, name, url)
		}(name, url)
	}
	wg.Wait()
}

func (m *UpstreamMonitor) check(ctx context.Context, name, url string) {
	start := time.Now()
	online := false

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/health", nil)
	if err == nil {
		var resp *http.Response
		resp, err = m.client.Do(req)
		if err == nil {
			online = resp.StatusCode == http.StatusOK
			resp.Body.Close()
		}
	}
	latency := time.Since(start)

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.status[name]
	if s.Checked && s.Online != online {
		logrus.WithFields(logrus.Fields{
			"upstream": name,
			"url":      url,
			"online":   online,
		}).Warn("Upstream availability changed")
	}
	s.Checked = true
	s.Online = online
	s.Latency = latency
	if online {
		s.LastSeen = time.Now()
	}
}

// Status returns a snapshot ordered by upstream name.
func (m *UpstreamMonitor) Status() []UpstreamStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]UpstreamStatus, 0, len(m.status))
	for _, s := range m.status {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
