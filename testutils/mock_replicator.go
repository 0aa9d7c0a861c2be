package testutils

import (
	"context"
	"sync"

	"kvrelay/replication"
)

type ReplicationCall struct {
	Op    replication.Op
	Key   string
	Value string
}

// MockReplicator records calls and reports every replica as failed when Fail is set.
type MockReplicator struct {
	mu    sync.Mutex
	Nodes []string
	Fail  bool
	calls []ReplicationCall
}

func NewMockReplicator(nodes []string) *MockReplicator {
	return &MockReplicator{Nodes: append([]string{}, nodes...)}
}

func (m *MockReplicator) ReplicatePut(ctx context.Context, key, value string) replication.Result {
	return m.record(ReplicationCall{Op: replication.OpPut, Key: key, Value: value})
}

func (m *MockReplicator) ReplicateDelete(ctx context.Context, key string) replication.Result {
	return m.record(ReplicationCall{Op: replication.OpDelete, Key: key})
}

func (m *MockReplicator) Replicas() []string { return append([]string{}, m.Nodes...) }

func (m *MockReplicator) Calls() []ReplicationCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ReplicationCall{}, m.calls...)
}

func (m *MockReplicator) record(call ReplicationCall) replication.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)

	result := replication.Result{Op: call.Op}
	if m.Fail {
		result.Failed = len(m.Nodes)
		return result
	}
	result.Succeeded = len(m.Nodes)
	return result
}

var _ replication.Notifier = (*MockReplicator)(nil)
