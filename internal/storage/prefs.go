// Package storage persists the client-side preferences: the session token,
// the goals text and the profile form.
package storage

import (
	"context"
	"sort"
	"sync"
)

// Preference keys.
const (
	KeyAuthToken = "auth_token"
	KeyGoals     = "user_goals"
	KeyProfile   = "user_profile"
)

// Prefs is a string key/value store. A missing key is not an error.
type Prefs interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryPrefs keeps preferences in process memory.
type MemoryPrefs struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryPrefs() *MemoryPrefs {
	return &MemoryPrefs{values: make(map[string]string)}
}

func (m *MemoryPrefs) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryPrefs) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryPrefs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Keys returns the stored keys in sorted order.
func (m *MemoryPrefs) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.values))
	for k := range m.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
