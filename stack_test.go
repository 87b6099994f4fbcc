package jserror_test

import (
	"strings"
	"testing"

	"github.com/buke/jserror"
	"github.com/stretchr/testify/require"
)

// simpleModule loads a module whose global code calls a at offset 4 and
// catches what it throws. a runs body at offset 6.
func simpleModule(t *testing.T, ctx *jserror.Context, url, name string, body jserror.Body) *jserror.RuntimeModule {
	t.Helper()
	mb := jserror.NewModuleBuilder(url)
	var a jserror.Value
	acb := mb.Function(name, fnSize, func(fr *jserror.Frame) (jserror.Value, error) {
		return body(fr.At(6))
	}, jserror.SourceLocation{Address: 0, Line: 2, Column: 3})
	mb.Global(fnSize, func(fr *jserror.Frame) (jserror.Value, error) {
		_, err := fr.At(4).Call(a, fr.Context().Undefined())
		if thrown, ok := jserror.Catch(err); ok {
			return thrown, nil
		}
		return jserror.Value{}, err
	}, jserror.SourceLocation{Line: 1, Column: 1})
	m, err := ctx.LoadModule(mb)
	require.NoError(t, err)
	a = ctx.Closure(acb)
	return m
}

func TestSimpleTrace(t *testing.T) {
	_, ctx := newTestContext(t)
	m := simpleModule(t, ctx, "s1.js", "a", throwBoom)

	e, err := m.Run()
	require.NoError(t, err)
	require.True(t, e.IsError())

	require.EqualValues(t,
		"Error: boom\n"+
			"    at a (s1.js:2:3)\n"+
			"    at global (s1.js:1:1)",
		stackOf(t, e).String())
}

func TestAnonymousFunction(t *testing.T) {
	_, ctx := newTestContext(t)
	m := simpleModule(t, ctx, "s2.js", "", func(fr *jserror.Frame) (jserror.Value, error) {
		errVal, err := fr.Construct(errorCtor(t, fr.Context()))
		if err != nil {
			return jserror.Value{}, err
		}
		return jserror.Value{}, fr.Throw(errVal)
	})

	e, err := m.Run()
	require.NoError(t, err)

	stack := stackOf(t, e).String()
	require.True(t, strings.HasPrefix(stack, "Error\n    at anonymous ("), stack)
}

func TestPrepareStackTraceHook(t *testing.T) {
	_, ctx := newTestContext(t)
	setHook(t, ctx, func(ctx *jserror.Context, this jserror.Value, args []jserror.Value) (jserror.Value, error) {
		require.True(t, this.IsNull())
		require.Len(t, args, 2)
		require.True(t, args[0].IsError())
		require.True(t, args[1].IsArray())
		return ctx.Int64(args[1].Len()), nil
	})

	m := simpleModule(t, ctx, "s3.js", "a", throwBoom)
	e, err := m.Run()
	require.NoError(t, err)

	stack := stackOf(t, e)
	require.True(t, stack.IsNumber())
	require.EqualValues(t, 2, stack.ToInt32())
}

func TestHookReturningObject(t *testing.T) {
	_, ctx := newTestContext(t)
	setHook(t, ctx, func(_ *jserror.Context, _ jserror.Value, args []jserror.Value) (jserror.Value, error) {
		return args[1], nil
	})

	m := simpleModule(t, ctx, "obj.js", "a", throwBoom)
	e, err := m.Run()
	require.NoError(t, err)

	stack := stackOf(t, e)
	require.True(t, stack.IsArray())
	require.EqualValues(t, 2, stack.Len())
	first, err := stack.GetIdx(0)
	require.NoError(t, err)
	require.True(t, first.IsCallSite())
}

func TestStackMemoized(t *testing.T) {
	_, ctx := newTestContext(t)
	m := simpleModule(t, ctx, "s4.js", "a", throwBoom)
	e, err := m.Run()
	require.NoError(t, err)

	desc, ok := e.Object().GetOwnProperty("stack")
	require.True(t, ok)
	require.True(t, desc.Accessor)
	require.False(t, desc.Enumerable)
	require.True(t, desc.Configurable)

	a := stackOf(t, e)
	b := stackOf(t, e)
	require.True(t, a.StrictEquals(b))

	desc, ok = e.Object().GetOwnProperty("stack")
	require.True(t, ok)
	require.False(t, desc.Accessor)
	require.True(t, desc.Writable)
	require.False(t, desc.Enumerable)
	require.True(t, desc.Configurable)

	calls := 0
	setHook(t, ctx, func(ctx *jserror.Context, _ jserror.Value, _ []jserror.Value) (jserror.Value, error) {
		calls++
		return ctx.String("changed"), nil
	})
	require.True(t, stackOf(t, e).StrictEquals(a))
	require.Zero(t, calls)
}

func TestStackSetterWins(t *testing.T) {
	_, ctx := newTestContext(t)
	calls := 0
	setHook(t, ctx, func(ctx *jserror.Context, _ jserror.Value, _ []jserror.Value) (jserror.Value, error) {
		calls++
		return ctx.String("hook"), nil
	})

	e := ctx.NewError("x")
	require.NoError(t, e.Set("stack", ctx.Int32(42)))
	stack := stackOf(t, e)
	require.True(t, stack.IsNumber())
	require.EqualValues(t, 42, stack.ToInt32())

	desc, ok := e.Object().GetOwnProperty("stack")
	require.True(t, ok)
	require.False(t, desc.Accessor)
	require.False(t, desc.Enumerable)

	// a thrown error assigned before the first read keeps the assignment
	m := simpleModule(t, ctx, "set.js", "a", func(fr *jserror.Frame) (jserror.Value, error) {
		errVal := fr.Context().NewError("y")
		if err := errVal.Set("stack", fr.Context().String("X")); err != nil {
			return jserror.Value{}, err
		}
		return jserror.Value{}, fr.Throw(errVal)
	})
	thrown, err := m.Run()
	require.NoError(t, err)
	require.EqualValues(t, "X", stackOf(t, thrown).String())
	require.Zero(t, calls)
}

func TestTruncatedTrace(t *testing.T) {
	_, ctx := newTestContext(t)

	mb := jserror.NewModuleBuilder("s6.js")
	var ping, pong jserror.Value
	live := 0
	step := func(next *jserror.Value) jserror.Body {
		return func(fr *jserror.Frame) (jserror.Value, error) {
			live++
			if live == 149 {
				return throwBoom(fr.At(8))
			}
			return fr.At(4).Call(*next, fr.Context().Undefined())
		}
	}
	pingCB := mb.Function("ping", fnSize, step(&pong), jserror.SourceLocation{Line: 10, Column: 1})
	pongCB := mb.Function("pong", fnSize, step(&ping), jserror.SourceLocation{Line: 20, Column: 1})
	mb.Global(fnSize, func(fr *jserror.Frame) (jserror.Value, error) {
		return fr.At(4).Call(ping, fr.Context().Undefined())
	}, jserror.SourceLocation{Line: 1, Column: 1})
	m, err := ctx.LoadModule(mb)
	require.NoError(t, err)
	ping, pong = ctx.Closure(pingCB), ctx.Closure(pongCB)

	e := catchAll(t, m.Run)
	require.Len(t, e.Object().ErrorRecord().StackTrace(), 150)

	lines := strings.Split(stackOf(t, e).String(), "\n")
	require.Len(t, lines, 1+50+1+50)

	skipping := 0
	for i, line := range lines {
		if strings.Contains(line, "skipping") {
			skipping++
			require.EqualValues(t, 51, i)
			require.EqualValues(t, "    ... skipping 50 frames", line)
		}
	}
	require.EqualValues(t, 1, skipping)
	require.EqualValues(t, "    at global (s6.js:1:1)", lines[len(lines)-1])
}

func TestTruncationBoundaries(t *testing.T) {
	testCases := []struct {
		name     string
		depth    int
		frames   int
		lines    int
		skipping string
	}{
		{"exactly 100 frames", 99, 100, 100, ""},
		{"101 frames", 100, 101, 101, "    ... skipping 1 frames"},
		{"250 frames", 249, 250, 101, "    ... skipping 150 frames"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, ctx := newTestContext(t)
			m := recurse(t, ctx, "deep.js", tc.depth, throwBoom)
			e := catchAll(t, m.Run)
			require.Len(t, e.Object().ErrorRecord().StackTrace(), tc.frames)

			lines := strings.Split(stackOf(t, e).String(), "\n")
			require.EqualValues(t, "Error: boom", lines[0])
			require.Len(t, lines, 1+tc.lines)
			require.EqualValues(t, "    at r (deep.js:3:5)", lines[1])
			require.EqualValues(t, "    at global (deep.js:1:1)", lines[len(lines)-1])
			if tc.skipping == "" {
				require.NotContains(t, strings.Join(lines, "\n"), "skipping")
			} else {
				require.EqualValues(t, tc.skipping, lines[51])
			}
		})
	}
}

func TestNeverThrownErrorHasEmptyStack(t *testing.T) {
	_, ctx := newTestContext(t)
	e := ctx.NewError("later")
	require.EqualValues(t, "", stackOf(t, e).String())

	// the accessor stays until a trace exists
	desc, ok := e.Object().GetOwnProperty("stack")
	require.True(t, ok)
	require.True(t, desc.Accessor)

	m := simpleModule(t, ctx, "later.js", "a", func(fr *jserror.Frame) (jserror.Value, error) {
		return jserror.Value{}, fr.Throw(e)
	})
	_, err := m.Run()
	require.NoError(t, err)
	require.EqualValues(t,
		"Error: later\n    at a (later.js:2:3)\n    at global (later.js:1:1)",
		stackOf(t, e).String())
}

func TestStackGetterTargets(t *testing.T) {
	_, ctx := newTestContext(t)
	m := simpleModule(t, ctx, "target.js", "a", throwBoom)
	e, err := m.Run()
	require.NoError(t, err)

	t.Run("inheriting object", func(t *testing.T) {
		child := ctx.Object()
		child.Object().SetPrototype(e.Object())
		require.NoError(t, child.Set("message", ctx.String("child")))

		stack := stackOf(t, child).String()
		require.True(t, strings.HasPrefix(stack, "Error: child\n    at a (target.js:2:3)"), stack)
		require.True(t, child.Object().HasOwnProperty("stack"))

		desc, ok := e.Object().GetOwnProperty("stack")
		require.True(t, ok)
		require.True(t, desc.Accessor)
	})

	t.Run("unrelated receiver", func(t *testing.T) {
		desc, ok := e.Object().GetOwnProperty("stack")
		require.True(t, ok)
		res, err := desc.Getter.Execute(ctx.Object())
		require.NoError(t, err)
		require.True(t, res.IsUndefined())

		res, err = desc.Getter.Execute(ctx.Int32(1))
		require.NoError(t, err)
		require.True(t, res.IsUndefined())
	})

	t.Run("setter on primitive receiver", func(t *testing.T) {
		desc, ok := e.Object().GetOwnProperty("stack")
		require.True(t, ok)
		res, err := desc.Setter.Execute(ctx.Int32(1), ctx.String("x"))
		require.NoError(t, err)
		require.True(t, res.IsUndefined())

		_, err = desc.Setter.Execute(ctx.Null(), ctx.String("x"))
		thrown, ok := jserror.Catch(err)
		require.True(t, ok)
		require.Contains(t, thrown.String(), "TypeError")
	})
}

func TestHookRecursionGuard(t *testing.T) {
	rt, ctx := newTestContext(t)
	inner := simpleModule(t, ctx, "inner.js", "innerFn", throwBoom)
	innerErr, err := inner.Run()
	require.NoError(t, err)

	hookCalls := 0
	setHook(t, ctx, func(ctx *jserror.Context, _ jserror.Value, args []jserror.Value) (jserror.Value, error) {
		hookCalls++
		require.True(t, ctx.Runtime().FormattingStackTrace())
		// reading another stack from inside the hook uses the plain formatter
		return innerErr.Get("stack")
	})

	outer := simpleModule(t, ctx, "outer.js", "outerFn", throwBoom)
	outerErr, err := outer.Run()
	require.NoError(t, err)

	stack := stackOf(t, outerErr).String()
	require.EqualValues(t, 1, hookCalls)
	require.EqualValues(t, "Error: boom\n    at innerFn (inner.js:2:3)\n    at global (inner.js:1:1)", stack)
	require.EqualValues(t, stack, stackOf(t, innerErr).String())
	require.False(t, rt.FormattingStackTrace())
}

func TestHookThrowPropagates(t *testing.T) {
	rt, ctx := newTestContext(t)
	setHook(t, ctx, func(ctx *jserror.Context, _ jserror.Value, _ []jserror.Value) (jserror.Value, error) {
		return jserror.Value{}, ctx.ThrowTypeError("hook failed")
	})

	m := simpleModule(t, ctx, "hook.js", "a", throwBoom)
	e, err := m.Run()
	require.NoError(t, err)

	_, err = e.Get("stack")
	thrown, ok := jserror.Catch(err)
	require.True(t, ok)
	require.EqualValues(t, "TypeError: hook failed", thrown.String())
	require.False(t, rt.FormattingStackTrace())

	desc, ok := e.Object().GetOwnProperty("stack")
	require.True(t, ok)
	require.True(t, desc.Accessor)

	// without the hook the trace formats normally
	setHook(t, ctx, nil)
	require.True(t, strings.HasPrefix(stackOf(t, e).String(), "Error: boom\n    at a (hook.js:2:3)"))
}

func TestStackTooLong(t *testing.T) {
	_, ctx := newTestContext(t, jserror.WithMaxStringLength(40))
	m := simpleModule(t, ctx, "long.js", "a", throwBoom)
	e, err := m.Run()
	require.NoError(t, err)

	require.EqualValues(t, "<stacktrace too long>", stackOf(t, e).String())
	desc, ok := e.Object().GetOwnProperty("stack")
	require.True(t, ok)
	require.False(t, desc.Accessor)
}

func TestStackOnFrozenError(t *testing.T) {
	_, ctx := newTestContext(t)
	m := simpleModule(t, ctx, "frozen.js", "a", throwBoom)
	e, err := m.Run()
	require.NoError(t, err)
	e.Object().Freeze()

	_, err = e.Get("stack")
	thrown, ok := jserror.Catch(err)
	require.True(t, ok)
	require.Contains(t, thrown.String(), "Cannot redefine property: stack")
}
