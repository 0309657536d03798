package native

import "sync"

// Registry maps Handles to backend objects. Handles are never reused.
type Registry[T any] struct {
	mu   sync.Mutex
	next Handle
	m    map[Handle]T
}

// Put stores v and returns its new handle.
func (r *Registry[T]) Put(v T) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		r.m = make(map[Handle]T)
	}
	r.next++
	r.m[r.next] = v
	return r.next
}

// Get returns the object for h.
func (r *Registry[T]) Get(h Handle) (T, bool) {
	r.mu.Lock()
	v, ok := r.m[h]
	r.mu.Unlock()
	return v, ok
}

// Take removes h and returns the object it referred to.
func (r *Registry[T]) Take(h Handle) (T, bool) {
	r.mu.Lock()
	v, ok := r.m[h]
	if ok {
		delete(r.m, h)
	}
	r.mu.Unlock()
	return v, ok
}

// Len reports the number of live handles.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
