package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Op string

const (
	OpPut    Op = "put"
	OpDelete Op = "delete"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type ReplicationRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Result summarizes one fan-out cycle.
type Result struct {
	Op        Op
	Succeeded int
	Failed    int
	Errors    []error
}

type Replicator struct {
	replicas   []string
	httpClient *http.Client
	timeout    time.Duration
	tokens     TokenSource
	observer   Observer
}

type Option func(*Replicator)

// WithTimeout bounds each replica request. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Replicator) { r.timeout = d }
}

func WithHTTPClient(c *http.Client) Option {
	return func(r *Replicator) { r.httpClient = c }
}

func WithTokenSource(ts TokenSource) Option {
	return func(r *Replicator) { r.tokens = ts }
}

func WithObserver(o Observer) Option {
	return func(r *Replicator) { r.observer = o }
}

// NewReplicator takes base URLs such as http://kvstore-1:8000. The slice is
// copied and never changes afterwards.
func NewReplicator(replicas []string, opts ...Option) *Replicator {
	r := &Replicator{
		replicas:   append([]string(nil), replicas...),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Replicator) Replicas() []string {
	return append([]string(nil), r.replicas...)
}

func (r *Replicator) ReplicatePut(ctx context.Context, key, value string) Result {
	body, err := json.Marshal(ReplicationRequest{Key: key, Value: value})
	if err != nil {
		return Result{Op: OpPut, Failed: len(r.replicas), Errors: []error{err}}
	}

	return r.fanOut(ctx, OpPut, key, func(ctx context.Context, base string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, base+"/internal/put", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

func (r *Replicator) ReplicateDelete(ctx context.Context, key string) Result {
	return r.fanOut(ctx, OpDelete, key, func(ctx context.Context, base string) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, base+"/internal/delete/"+url.PathEscape(key), nil)
	})
}

// fanOut sends one request per replica concurrently and waits for all of them.
func (r *Replicator) fanOut(ctx context.Context, op Op, key string, build func(context.Context, string) (*http.Request, error)) Result {
	errs := make([]error, len(r.replicas))

	var wg sync.WaitGroup
	for i, replica := range r.replicas {
		wg.Add(1)
		go func(i int, replica string) {
			defer wg.Done()

			start := time.Now()
			err := r.send(ctx, replica, build)
			if r.observer != nil {
				outcome := OutcomeSuccess
				if err != nil {
					outcome = OutcomeFailure
				}
				r.observer.ObserveReplication(op, outcome, time.Since(start))
			}

			entry := logrus.WithFields(logrus.Fields{
				"op":      op,
				"key":     key,
				"replica": replica,
			})
			if err != nil {
				errs[i] = fmt.Errorf("%w: %s: %v", ErrReplicationFailed, replica, err)
				entry.WithError(err).Warn("Replication request failed")
				return
			}
			entry.Debug("Replicated")
		}(i, replica)
	}
	wg.Wait()

	result := Result{Op: op}
	for _, err := range errs {
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err)
		} else {
			result.Succeeded++
		}
	}
	return result
}

func (r *Replicator) send(ctx context.Context, replica string, build func(context.Context, string) (*http.Request, error)) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := build(ctx, replica)
	if err != nil {
		return err
	}

	if r.tokens != nil {
		token, err := r.tokens()
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}
