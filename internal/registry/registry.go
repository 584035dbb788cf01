// Package registry maps connection ids to their outbound delivery handles.
package registry

import "sync"

// Registry is safe for concurrent use. A single handle may be stored under
// several ids (a generated id plus any registered aliases).
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
}

func New() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Put inserts or overwrites the mapping for id.
func (r *Registry) Put(id string, h *Handle) {
	r.mu.Lock()
	r.handles[id] = h
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.RLock()
	h, ok := r.handles[id]
	r.mu.RUnlock()
	return h, ok
}

// Remove deletes id. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
}

// RemoveIf deletes id only while it still maps to h, and reports whether it
// did. An alias re-claimed by another connection survives.
func (r *Registry) RemoveIf(id string, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.handles[id]; ok && cur == h {
		delete(r.handles, id)
		return true
	}
	return false
}

// Len returns the number of ids, counting aliases separately.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
