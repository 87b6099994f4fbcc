package jserror

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleStore_Basic(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	ctx := rt.NewContext()

	hs := NewHandleStore()
	require.NotNil(t, hs)
	assert.Equal(t, 0, hs.Count())

	id := hs.Store(ctx.String("test value"))
	assert.Greater(t, id, int32(0))
	assert.Equal(t, 1, hs.Count())

	value, ok := hs.Load(id)
	assert.True(t, ok)
	assert.Equal(t, "test value", value.String())

	assert.True(t, hs.Delete(id))
	assert.False(t, hs.Delete(id))
	assert.Equal(t, 0, hs.Count())

	value, ok = hs.Load(id)
	assert.False(t, ok)
	assert.True(t, value.IsUndefined())
}

func TestHandleStore_RangeAndClear(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	ctx := rt.NewContext()

	hs := NewHandleStore()
	ids := make([]int32, 5)
	for i := range ids {
		ids[i] = hs.Store(ctx.Int32(int32(i)))
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}

	seen := 0
	hs.Range(func(_ int32, v Value) bool {
		assert.True(t, v.IsNumber())
		seen++
		return seen < 3
	})
	assert.Equal(t, 3, seen)

	hs.Clear()
	assert.Equal(t, 0, hs.Count())
}

func TestHandleStore_Concurrent(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	ctx := rt.NewContext()
	v := ctx.Bool(true)

	hs := NewHandleStore()
	const workers, perWorker = 8, 100

	var wg sync.WaitGroup
	var mu sync.Mutex
	unique := make(map[int32]bool, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := hs.Store(v)
				mu.Lock()
				unique[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, unique, workers*perWorker)
	assert.Equal(t, workers*perWorker, hs.Count())
}

func TestGCScopeRoots(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	ctx := rt.NewContext()

	obj := ctx.newObject(ctx.objectProto, classObject)
	scope := rt.newGCScope()
	scope.root(obj.Value())
	scope.root(ctx.Int32(1))
	assert.Equal(t, 1, rt.handles.Count())

	rt.RunGC()
	assert.True(t, inHeap(rt, obj))

	scope.close()
	assert.Equal(t, 0, rt.handles.Count())
	rt.RunGC()
	assert.False(t, inHeap(rt, obj))
}

func inHeap(rt *Runtime, obj *Object) bool {
	for _, o := range rt.heap {
		if o == obj {
			return true
		}
	}
	return false
}
