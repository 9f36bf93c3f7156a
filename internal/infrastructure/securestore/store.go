package securestore

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned by Read when no item exists.
	ErrNotFound = errors.New("secure item not found")
	// ErrTampered is returned when a stored value fails to open.
	ErrTampered = errors.New("secure item failed integrity check")
)

// Store reads and writes sealed items.
type Store interface {
	Read(ctx context.Context, service, account string) ([]byte, error)
	Write(ctx context.Context, service, account string, data []byte) error
}

// label binds a sealed value to its address.
func label(service, account string) []byte {
	return []byte(service + "\x00" + account)
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Read(ctx context.Context, service, account string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.items[string(label(service, account))]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Write(ctx context.Context, service, account string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[string(label(service, account))] = append([]byte(nil), data...)
	return nil
}

// Len returns the number of stored items.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
