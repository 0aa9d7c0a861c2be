package replication

import (
	"context"
	"time"
)

// Notifier propagates a local mutation to the replica set. Outcomes are
// reported in the Result only; callers never fail because of them.
type Notifier interface {
	ReplicatePut(ctx context.Context, key, value string) Result
	ReplicateDelete(ctx context.Context, key string) Result
	Replicas() []string
}

// Observer receives one call per replica request.
type Observer interface {
	ObserveReplication(op Op, outcome string, duration time.Duration)
}

// TokenSource returns a bearer token attached to replica requests.
type TokenSource func() (string, error)

// Ensure Replicator implements Notifier
var _ Notifier = (*Replicator)(nil)
