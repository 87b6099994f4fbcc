package jserror

import (
	"codeberg.org/gruf/go-byteutil"
)

// callSite is the state of a CallSite object: its Error and an absolute
// frame index into the Error's trace.
type callSite struct {
	err   *Object
	index uint32
}

func (cs *callSite) entry() StackTraceEntry {
	return cs.err.err.trace[cs.index]
}

// CallSitesArray returns a dense array with one CallSite per exposed frame
// of errObj.
func (ctx *Context) CallSitesArray(errObj *Object) (Value, error) {
	rec := errObj.err
	n := 0
	if rec != nil && rec.captured {
		n = len(rec.trace) - int(rec.firstExposed)
	}
	arr, err := ctx.newArray(n)
	if err != nil {
		return Value{}, err
	}
	if n == 0 {
		return arr.Value(), nil
	}

	scope := ctx.rt.newGCScope()
	defer scope.close()
	scope.root(arr.Value())

	count := 0
	for i := 0; i < n; i++ {
		site := ctx.newObject(ctx.callSiteProto, classCallSite)
		site.site = &callSite{err: errObj, index: uint32(i) + rec.firstExposed}
		arr.elements = append(arr.elements, site.Value())
		count++
	}
	if err := arr.defineValue(AtomLength, ctx.Int32(int32(count)), propWritable); err != nil {
		return Value{}, err
	}
	return arr.Value(), nil
}

// initCallSite creates the CallSite prototype.
func (ctx *Context) initCallSite() {
	proto := ctx.newObject(ctx.objectProto, classObject)
	ctx.callSiteProto = proto

	method := func(name string, fn func(ctx *Context, cs *callSite) (Value, error)) {
		native := ctx.newNative(name, func(ctx *Context, this Value, _ []Value) (Value, error) {
			if !this.IsCallSite() {
				return Value{}, ctx.ThrowTypeError("CallSite method %s called on a non-CallSite object", name)
			}
			return fn(ctx, this.obj.site)
		})
		proto.mustDefine(ctx.rt.Atom(name), native.Value(), flagsNonEnumerable)
	}
	constant := func(name string, v Value) {
		method(name, func(*Context, *callSite) (Value, error) { return v, nil })
	}

	method("getFunctionName", func(ctx *Context, cs *callSite) (Value, error) {
		if name := functionNameAt(cs.err.err, int(cs.index)); name != "" {
			return ctx.String(name), nil
		}
		return ctx.Null(), nil
	})
	method("getFileName", func(ctx *Context, cs *callSite) (Value, error) {
		loc := locate(cs.entry(), make(virtualOffsets))
		if loc.native {
			return ctx.Null(), nil
		}
		return ctx.String(loc.file), nil
	})
	method("getLineNumber", func(ctx *Context, cs *callSite) (Value, error) {
		loc := locate(cs.entry(), make(virtualOffsets))
		if loc.native {
			return ctx.Null(), nil
		}
		return ctx.Uint32(loc.line), nil
	})
	method("getColumnNumber", func(ctx *Context, cs *callSite) (Value, error) {
		loc := locate(cs.entry(), make(virtualOffsets))
		if loc.native {
			return ctx.Null(), nil
		}
		return ctx.Uint32(loc.column), nil
	})
	method("getScriptNameOrSourceURL", func(ctx *Context, cs *callSite) (Value, error) {
		cb := cs.entry().CodeBlock
		if cb == nil {
			return ctx.Null(), nil
		}
		if url := cb.module.sourceURL; url != "" {
			return ctx.String(url), nil
		}
		return ctx.Null(), nil
	})
	method("getBytecodeAddress", func(ctx *Context, cs *callSite) (Value, error) {
		e := cs.entry()
		if e.CodeBlock == nil {
			return ctx.Null(), nil
		}
		return ctx.Uint32(e.BytecodeOffset + e.CodeBlock.VirtualOffset()), nil
	})
	method("isNative", func(ctx *Context, cs *callSite) (Value, error) {
		return ctx.Bool(cs.entry().IsNative()), nil
	})
	method("toString", func(ctx *Context, cs *callSite) (Value, error) {
		var buf byteutil.Buffer
		if name := functionNameAt(cs.err.err, int(cs.index)); name != "" {
			buf.WriteString(name)
		} else {
			buf.WriteString("anonymous")
		}
		loc := locate(cs.entry(), make(virtualOffsets))
		if loc.native {
			buf.WriteString(" (native)")
		} else {
			buf.WriteString(" (")
			loc.appendTo(&buf)
			buf.WriteByte(')')
		}
		return ctx.String(buf.String()), nil
	})

	constant("isConstructor", ctx.Bool(false))
	constant("isEval", ctx.Bool(false))
	constant("isAsync", ctx.Bool(false))
	constant("isPromiseAll", ctx.Bool(false))
	constant("isToplevel", ctx.Null())
	constant("getThis", ctx.Undefined())
	constant("getTypeName", ctx.Null())
	constant("getMethodName", ctx.Null())
	constant("getEvalOrigin", ctx.Undefined())
	constant("getPromiseIndex", ctx.Null())
}
