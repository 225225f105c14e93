package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store, used in tests and for short-lived demo
// rounds. It is safe for concurrent use.
type MemStore struct {
	mu     sync.RWMutex
	blobs  map[string]map[string][]byte
	rounds []string
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string]map[string][]byte)}
}

func (m *MemStore) NewRound(ctx context.Context) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw := uuid.New()
	id := hex.EncodeToString(raw[:])
	m.blobs[id] = make(map[string][]byte)
	m.rounds = append(m.rounds, id)
	return Handle{RoundID: id}, nil
}

func (m *MemStore) PutBlob(ctx context.Context, h Handle, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.blobs[h.RoundID]
	if !ok {
		return ErrNotFound
	}
	cp := append([]byte(nil), data...)
	ns[key] = cp
	return nil
}

func (m *MemStore) PutJSON(ctx context.Context, h Handle, key string, obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return m.PutBlob(ctx, h, key, data)
}

func (m *MemStore) GetBlob(ctx context.Context, h Handle, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, ok := m.blobs[h.RoundID]
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := ns[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemStore) GetJSON(ctx context.Context, h Handle, key string, out any) error {
	data, err := m.GetBlob(ctx, h, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (m *MemStore) ListRounds(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.rounds))
	copy(out, m.rounds)
	return out, nil
}

func (m *MemStore) CommitManifest(ctx context.Context, h Handle, obj any) error {
	return m.PutJSON(ctx, h, "manifest.json", obj)
}
