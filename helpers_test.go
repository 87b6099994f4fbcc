package jserror_test

import (
	"testing"

	"github.com/buke/jserror"
	"github.com/stretchr/testify/require"
)

const fnSize = 16

func newTestContext(t *testing.T, opts ...jserror.Option) (*jserror.Runtime, *jserror.Context) {
	t.Helper()
	rt := jserror.NewRuntime(opts...)
	t.Cleanup(rt.Close)
	return rt, rt.NewContext()
}

// throwBoom throws a new Error("boom") from the frame's current offset.
func throwBoom(fr *jserror.Frame) (jserror.Value, error) {
	return jserror.Value{}, fr.Throw(fr.Context().NewError("boom"))
}

// catchAll runs fn and returns the caught value.
func catchAll(t *testing.T, fn func() (jserror.Value, error)) jserror.Value {
	t.Helper()
	_, err := fn()
	require.Error(t, err)
	thrown, ok := jserror.Catch(err)
	require.True(t, ok, "uncatchable: %v", err)
	return thrown
}

// recurse loads url with a function r that calls itself until depth frames
// of r are live, then runs leaf at offset 8. The global code calls r at
// offset 4.
//
//	r:      offset 0 -> 2:3, offset 8 -> 3:5
//	global: offset 0 -> 1:1
func recurse(t *testing.T, ctx *jserror.Context, url string, depth int, leaf jserror.Body) *jserror.RuntimeModule {
	t.Helper()
	mb := jserror.NewModuleBuilder(url)

	var r jserror.Value
	n := 0
	rcb := mb.Function("r", fnSize, func(fr *jserror.Frame) (jserror.Value, error) {
		n++
		if n < depth {
			return fr.At(4).Call(r, fr.Context().Undefined())
		}
		return leaf(fr.At(8))
	},
		jserror.SourceLocation{Address: 0, Line: 2, Column: 3},
		jserror.SourceLocation{Address: 8, Line: 3, Column: 5},
	)
	mb.Global(fnSize, func(fr *jserror.Frame) (jserror.Value, error) {
		n = 0
		return fr.At(4).Call(r, fr.Context().Undefined())
	}, jserror.SourceLocation{Line: 1, Column: 1})

	m, err := ctx.LoadModule(mb)
	require.NoError(t, err)
	r = ctx.Closure(rcb)
	return m
}

// stackOf reads the stack property of v.
func stackOf(t *testing.T, v jserror.Value) jserror.Value {
	t.Helper()
	s, err := v.Get("stack")
	require.NoError(t, err)
	return s
}

func errorCtor(t *testing.T, ctx *jserror.Context) jserror.Value {
	t.Helper()
	ctor, ok := ctx.ErrorConstructor("Error")
	require.True(t, ok)
	return ctor
}

func setHook(t *testing.T, ctx *jserror.Context, fn jserror.NativeFunc) {
	t.Helper()
	var v jserror.Value
	if fn == nil {
		v = ctx.Undefined()
	} else {
		v = ctx.Function("prepareStackTrace", fn)
	}
	require.NoError(t, errorCtor(t, ctx).Set("prepareStackTrace", v))
}
