package cache

import (
	"context"
	"sort"
	"sync"
)

// Memory keeps generations in process memory.
type Memory struct {
	mu          sync.RWMutex
	generations map[string]*memoryGeneration
}

func NewMemory() *Memory {
	return &Memory{generations: map[string]*memoryGeneration{}}
}

func (m *Memory) Open(_ context.Context, name string) (Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.generations[name]
	if !ok {
		gen = &memoryGeneration{name: name, entries: map[Key]Entry{}}
		m.generations[name] = gen
	}
	return gen, nil
}

func (m *Memory) Has(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.generations[name]
	return ok, nil
}

func (m *Memory) Names(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.generations))
	for name := range m.generations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.generations[name]
	if !ok {
		return false, nil
	}
	delete(m.generations, name)
	gen.clear()
	return true, nil
}

type memoryGeneration struct {
	name    string
	mu      sync.RWMutex
	entries map[Key]Entry
}

func (g *memoryGeneration) Name() string { return g.name }

func (g *memoryGeneration) Match(_ context.Context, key Key) (Entry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	entry, ok := g.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry.Clone(), nil
}

func (g *memoryGeneration) Put(_ context.Context, key Key, entry Entry) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[key] = entry.Clone()
	return nil
}

func (g *memoryGeneration) Keys(_ context.Context) ([]Key, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	keys := make([]Key, 0, len(g.entries))
	for k := range g.entries {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys, nil
}

// clear drops entries so handles held by in-flight requests stop serving
// data from a deleted generation.
func (g *memoryGeneration) clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = map[Key]Entry{}
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].URL != keys[j].URL {
			return keys[i].URL < keys[j].URL
		}
		return keys[i].Method < keys[j].Method
	})
}
