package ledgerstore

import (
	"context"
	"sync"
)

type cellKey struct {
	entity EntityID
	offset uint8
}

// Memory is an in-memory TxStore for tests and the seed tool.
type Memory struct {
	mu    sync.Mutex
	cells map[cellKey]Value
}

func NewMemory() *Memory {
	return &Memory{cells: make(map[cellKey]Value)}
}

func (m *Memory) Get(ctx context.Context, entity EntityID, offset uint8) (Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cells[cellKey{entity, offset}], nil
}

func (m *Memory) Set(ctx context.Context, entity EntityID, offset uint8, value Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[cellKey{entity, offset}] = value
	return nil
}

// RunInTx stages writes in an overlay and applies them only if fn succeeds.
// The namespace mutex is held for the duration, so transactions serialize.
func (m *Memory) RunInTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{base: m.cells, overlay: make(map[cellKey]Value)}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.overlay {
		m.cells[k] = v
	}
	return nil
}

type memoryTx struct {
	base    map[cellKey]Value
	overlay map[cellKey]Value
}

func (t *memoryTx) Get(ctx context.Context, entity EntityID, offset uint8) (Value, error) {
	k := cellKey{entity, offset}
	if v, ok := t.overlay[k]; ok {
		return v, nil
	}
	return t.base[k], nil
}

func (t *memoryTx) Set(ctx context.Context, entity EntityID, offset uint8, value Value) error {
	t.overlay[cellKey{entity, offset}] = value
	return nil
}

// MemoryFactory hands out one Memory store per namespace.
type MemoryFactory struct {
	mu         sync.Mutex
	namespaces map[string]*Memory
}

func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{namespaces: make(map[string]*Memory)}
}

func (f *MemoryFactory) Namespace(name string) TxStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.namespaces[name]; ok {
		return s
	}
	s := NewMemory()
	f.namespaces[name] = s
	return s
}
