package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	UpstreamLeader = "leader"
	UpstreamRead   = "read"

	OutcomeSuccess     = "success"
	OutcomeUnavailable = "unavailable"
)

// Observer receives one call per forwarded request.
type Observer interface {
	ObserveUpstream(upstream, outcome string, duration time.Duration)
}

// Response is an upstream answer relayed verbatim.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Proxy forwards writes to the leader and reads to the read target. It keeps
// no data and never picks a replica itself.
type Proxy struct {
	leaderURL string
	readURL   string
	client    *http.Client
	observer  Observer
}

type Option func(*Proxy)

func WithObserver(o Observer) Option {
	return func(p *Proxy) { p.observer = o }
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Proxy) { p.client = c }
}

func New(leaderURL, readURL string, timeout time.Duration, opts ...Option) *Proxy {
	p := &Proxy{
		leaderURL: leaderURL,
		readURL:   readURL,
		client:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Proxy) LeaderURL() string { return p.leaderURL }
func (p *Proxy) ReadURL() string   { return p.readURL }

func (p *Proxy) RoutePut(ctx context.Context, key, value, authorization string) (*Response, error) {
	body, err := json.Marshal(map[string]string{"key": key, "value": value})
	if err != nil {
		return nil, err
	}
	return p.forward(ctx, UpstreamLeader, p.leaderURL, http.MethodPut, "/put", body, authorization)
}

func (p *Proxy) RouteDelete(ctx context.Context, key, authorization string) (*Response, error) {
	return p.forward(ctx, UpstreamLeader, p.leaderURL, http.MethodDelete, "/delete/"+url.PathEscape(key), nil, authorization)
}

func (p *Proxy) RouteGet(ctx context.Context, key, authorization string) (*Response, error) {
	return p.forward(ctx, UpstreamRead, p.readURL, http.MethodGet, "/get/"+url.PathEscape(key), nil, authorization)
}

func (p *Proxy) forward(ctx context.Context, upstream, base, method, path string, body []byte, authorization string) (*Response, error) {
	start := time.Now()
	resp, err := p.do(ctx, base, method, path, body, authorization)

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeUnavailable
		logrus.WithFields(logrus.Fields{
			"upstream": upstream,
			"url":      base + path,
			"method":   method,
		}).WithError(err).Warn("Upstream request failed")
	}
	if p.observer != nil {
		p.observer.ObserveUpstream(upstream, outcome, time.Since(start))
	}
	return resp, err
}

func (p *Proxy) do(ctx context.Context, base, method, path string, body []byte, authorization string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUpstreamUnavailable, err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
