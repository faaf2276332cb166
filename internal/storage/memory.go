package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Storage backend. A non-zero quota makes Set fail
// with ErrQuotaExceeded once total stored bytes would pass it, mirroring how
// browser storage rejects oversized writes.
type Memory struct {
	mu    sync.RWMutex
	data  map[string]string
	quota int
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// NewMemoryWithQuota caps total stored bytes at quota.
func NewMemoryWithQuota(quota int) *Memory {
	return &Memory{data: make(map[string]string), quota: quota}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quota > 0 {
		total := len(key) + len(value)
		for k, v := range m.data {
			if k == key {
				continue
			}
			total += len(k) + len(v)
		}
		if total > m.quota {
			return ErrQuotaExceeded
		}
	}
	m.data[key] = value
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
