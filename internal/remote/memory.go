package remote

import (
	"context"
	"fmt"
	"sync"
)

// Call is one creation request received by a MemoryStore.
type Call struct {
	Kind  Kind
	ID    string // empty when the call failed
	Input any    // one of the *Input structs, by value
}

// FailFunc decides whether a call should fail. It runs before an ID is
// assigned; a non-nil error is returned to the caller unchanged.
type FailFunc func(kind Kind, input any) error

// MemoryStore is a Boundary that keeps everything in process. IDs are
// "<kind>-<n>" with n counted per kind from 1.
type MemoryStore struct {
	mu       sync.Mutex
	calls    []Call
	counters map[Kind]int
	fail     FailFunc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[Kind]int)}
}

// FailWhen installs fn as the failure hook. Pass nil to clear it.
func (m *MemoryStore) FailWhen(fn FailFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fn
}

// Calls returns a copy of the call log in arrival order.
func (m *MemoryStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Count returns the number of successful calls of kind.
func (m *MemoryStore) Count(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[kind]
}

func (m *MemoryStore) record(ctx context.Context, kind Kind, input any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	fail := m.fail
	m.mu.Unlock()
	if fail != nil {
		if err := fail(kind, input); err != nil {
			m.mu.Lock()
			m.calls = append(m.calls, Call{Kind: kind, Input: input})
			m.mu.Unlock()
			return "", err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[kind]++
	id := fmt.Sprintf("%s-%d", kind, m.counters[kind])
	m.calls = append(m.calls, Call{Kind: kind, ID: id, Input: input})
	return id, nil
}

func (m *MemoryStore) CreateFolder(ctx context.Context, in FolderInput) (string, error) {
	return m.record(ctx, KindFolder, in)
}

func (m *MemoryStore) CreateEndpoint(ctx context.Context, in EndpointInput) (string, error) {
	return m.record(ctx, KindEndpoint, in)
}

func (m *MemoryStore) CreateParameter(ctx context.Context, in ParameterInput) (string, error) {
	return m.record(ctx, KindParameter, in)
}

func (m *MemoryStore) CreateHeader(ctx context.Context, in HeaderInput) (string, error) {
	return m.record(ctx, KindHeader, in)
}

func (m *MemoryStore) CreateBody(ctx context.Context, in BodyInput) (string, error) {
	return m.record(ctx, KindBody, in)
}

func (m *MemoryStore) CreateResponse(ctx context.Context, in ResponseInput) (string, error) {
	return m.record(ctx, KindResponse, in)
}
