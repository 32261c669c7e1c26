package mapping

import (
	"sync/atomic"
)

var emptyIndex = BuildIndex(nil, nil)

// Engine publishes Index snapshots. Readers always see a complete snapshot;
// a rebuild constructs a new Index and swaps it in atomically.
type Engine struct {
	current atomic.Pointer[Index]
	version atomic.Uint64
}

// NewEngine creates an engine serving idx. A nil idx serves an empty index.
func NewEngine(idx *Index) *Engine {
	e := &Engine{}
	if idx != nil {
		e.Publish(idx)
	}
	return e
}

// Publish installs idx as the current snapshot and returns the previous one.
func (e *Engine) Publish(idx *Index) *Index {
	if idx == nil {
		idx = emptyIndex
	}
	old := e.current.Swap(idx)
	e.version.Add(1)
	return old
}

// Rebuild builds a new index from table and registry and publishes it.
func (e *Engine) Rebuild(table Table, registry Registry) *Index {
	idx := BuildIndex(table, registry)
	e.Publish(idx)
	return idx
}

// Snapshot returns the current index. It never returns nil.
func (e *Engine) Snapshot() *Index {
	if idx := e.current.Load(); idx != nil {
		return idx
	}
	return emptyIndex
}

// Version counts successful publications.
func (e *Engine) Version() uint64 {
	return e.version.Load()
}

// Resolve resolves against the current snapshot.
func (e *Engine) Resolve(key, app string, held []string) (Resolved, bool) {
	return e.Snapshot().Resolve(key, app, held)
}

// IsModifier tests key against the current snapshot's registry.
func (e *Engine) IsModifier(key string) bool {
	return e.Snapshot().IsModifier(key)
}

// Enumerate lists the current snapshot's rows.
func (e *Engine) Enumerate() []Entry {
	return e.Snapshot().Enumerate()
}
