package jserror

import (
	"math"
	"sync"
	"sync/atomic"
)

// HandleStore holds rooted values. Everything stored here is reported to the
// collector as a root until it is deleted.
type HandleStore struct {
	handles sync.Map     // map[int32]Value
	nextID  atomic.Int32 // atomic ID generation to avoid locks
}

// NewHandleStore creates a new handle store
func NewHandleStore() *HandleStore {
	hs := &HandleStore{}
	hs.nextID.Store(1) // start from 1, 0 is reserved as invalid
	return hs
}

// Store roots a value and returns its int32 ID.
func (hs *HandleStore) Store(value Value) int32 {
	id := hs.nextID.Add(1)

	if id <= 0 || id == math.MaxInt32 {
		panic("jserror: HandleStore ID overflow, too many rooted values")
	}

	hs.handles.Store(id, value)
	return id
}

// Load loads value by ID
func (hs *HandleStore) Load(id int32) (Value, bool) {
	if value, ok := hs.handles.Load(id); ok {
		return value.(Value), true
	}
	return Value{}, false
}

// Delete unroots the value stored under id.
func (hs *HandleStore) Delete(id int32) bool {
	_, ok := hs.handles.LoadAndDelete(id)
	return ok
}

// Range calls fn for every rooted value until fn returns false.
func (hs *HandleStore) Range(fn func(id int32, value Value) bool) {
	hs.handles.Range(func(key, value interface{}) bool {
		return fn(key.(int32), value.(Value))
	})
}

// Clear drops all roots (called on Runtime.Close)
func (hs *HandleStore) Clear() {
	hs.handles.Range(func(key, _ interface{}) bool {
		hs.handles.Delete(key)
		return true
	})
}

// Count returns number of stored handles (for debugging)
func (hs *HandleStore) Count() int {
	count := 0
	hs.handles.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// Handle is a rooted reference to a value. The value survives RunGC until
// the handle is released.
type Handle struct {
	rt *Runtime
	id int32
}

// Value returns the rooted value.
func (h Handle) Value() Value {
	v, _ := h.rt.handles.Load(h.id)
	return v
}

// Release unroots the value.
func (h Handle) Release() {
	h.rt.handles.Delete(h.id)
}

// gcScope roots temporaries for the duration of a native operation that may
// run user code or allocate.
type gcScope struct {
	rt  *Runtime
	ids []int32
}

func (rt *Runtime) newGCScope() *gcScope {
	return &gcScope{rt: rt}
}

func (s *gcScope) root(v Value) Value {
	if v.IsObject() {
		s.ids = append(s.ids, s.rt.handles.Store(v))
	}
	return v
}

func (s *gcScope) close() {
	for _, id := range s.ids {
		s.rt.handles.Delete(id)
	}
	s.ids = nil
}
