package storage

import (
	"sync"
)

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps blobs in a map and records the order of saves. Save
// failures can be injected per blob name.
type MemoryBackend struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	saves   []string
	saveErr func(name string) error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: make(map[string][]byte)}
}

func (m *MemoryBackend) Load(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.blobs[name]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryBackend) Save(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		if err := m.saveErr(name); err != nil {
			return err
		}
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	m.blobs[name] = stored
	m.saves = append(m.saves, name)

	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}

// SetSaveErrorFunc makes Save fail whenever fn returns an error for the blob name.
func (m *MemoryBackend) SetSaveErrorFunc(fn func(name string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveErr = fn
}

// Saves returns the names of all successful saves in order.
func (m *MemoryBackend) Saves() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.saves))
	copy(out, m.saves)
	return out
}
