package kv

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store. It backs tests and rehearsal runs over a
// snapshot.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
	sets map[string]map[string]struct{}
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string][]byte),
		sets: make(map[string]map[string]struct{}),
	}
}

func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	re, err := GlobRegexp(pattern)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.docs {
		if re.MatchString(k) {
			keys = append(keys, k)
		}
	}
	for k := range m.sets {
		if re.MatchString(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, ok := m.docs[key]; ok {
		return append([]byte(nil), v...), nil
	}
	if _, ok := m.sets[key]; ok {
		return nil, ErrWrongType
	}
	return nil, ErrNotFound
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sets, key)
	m.docs[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, k := range keys {
		if _, ok := m.docs[k]; ok {
			delete(m.docs, k)
			n++
		}
		if _, ok := m.sets[k]; ok {
			delete(m.sets, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Members(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.docs[key]; ok {
		return nil, ErrWrongType
	}
	set := m.sets[key]
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) AddMembers(_ context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[key]; ok {
		return ErrWrongType
	}
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{}, len(members))
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
