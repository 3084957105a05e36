package envelope

import (
	"sync"

	"github.com/stregato/owndata/internal/core"
)

// Handle references a live resource across the envelope boundary. The
// low 32 bits locate the slot, the high 32 bits carry the slot's
// generation: a handle kept after its resource was closed no longer
// matches the generation and is rejected instead of hitting whatever
// resource reused the slot.
type Handle uint64

func makeHandle(index int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index+1))
}

func (h Handle) index() int  { return int(uint32(h)) - 1 }
func (h Handle) gen() uint32 { return uint32(h >> 32) }

type slot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Registry tracks resources of one kind. It is safe for concurrent
// use.
type Registry[T any] struct {
	mu    sync.Mutex
	slots []slot[T]
	free  []int
	kind  string
}

func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind}
}

// Add stores a resource and hands out its handle.
func (r *Registry[T]) Add(v T) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[idx].value = v
		r.slots[idx].live = true
		return makeHandle(idx, r.slots[idx].gen)
	}
	r.slots = append(r.slots, slot[T]{value: v, live: true})
	return makeHandle(len(r.slots)-1, 0)
}

// Get resolves a handle. Stale or unknown handles yield NotFound.
func (r *Registry[T]) Get(h Handle) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	idx := h.index()
	if idx < 0 || idx >= len(r.slots) {
		return zero, core.Errf(core.CodeNotFound, "invalid %s handle %d", r.kind, h)
	}
	s := r.slots[idx]
	if !s.live || s.gen != h.gen() {
		return zero, core.Errf(core.CodeNotFound, "stale %s handle %d", r.kind, h)
	}
	return s.value, nil
}

// Remove releases a handle's slot and bumps its generation. Removing a
// stale or unknown handle is a no-op, so double close is harmless.
func (r *Registry[T]) Remove(h Handle) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	idx := h.index()
	if idx < 0 || idx >= len(r.slots) {
		return zero, false
	}
	s := &r.slots[idx]
	if !s.live || s.gen != h.gen() {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.live = false
	s.gen++
	r.free = append(r.free, idx)
	return v, true
}
