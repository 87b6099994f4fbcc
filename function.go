package jserror

import "github.com/pkg/errors"

// NativeFunc is the Go implementation of a native function.
type NativeFunc func(ctx *Context, this Value, args []Value) (Value, error)

type boundFunction struct {
	target *Object
	this   Value
	args   []Value
}

// Closure returns a new function object for the code block.
func (ctx *Context) Closure(cb *CodeBlock) Value {
	fn := ctx.newObject(ctx.functionProto, classFunction)
	fn.code = cb
	fn.mustDefine(AtomName, ctx.String(cb.name), propConfigurable)
	proto := ctx.newObject(ctx.objectProto, classObject)
	proto.mustDefine(AtomConstructor, fn.Value(), flagsNonEnumerable)
	fn.mustDefine(AtomPrototype, proto.Value(), propWritable)
	return fn.Value()
}

// Function returns a native function value.
func (ctx *Context) Function(name string, fn NativeFunc) Value {
	return ctx.newNative(name, fn).Value()
}

func (ctx *Context) newNative(name string, fn NativeFunc) *Object {
	obj := ctx.newObject(ctx.functionProto, classNative)
	obj.native = fn
	obj.mustDefine(AtomName, ctx.String(name), propConfigurable)
	return obj
}

// Bind returns a bound function, as Function.prototype.bind does.
func (ctx *Context) Bind(fn Value, this Value, args ...Value) (Value, error) {
	if !fn.IsFunction() {
		return Value{}, ctx.ThrowTypeError("Bind must be called on a function")
	}
	obj := ctx.newObject(fn.obj.proto, classBound)
	obj.bound = &boundFunction{target: fn.obj, this: this, args: append([]Value(nil), args...)}
	name := ""
	if v, err := fn.Get("name"); err == nil && v.IsString() {
		name = v.str
	}
	obj.mustDefine(AtomName, ctx.String("bound "+name), propConfigurable)
	return obj.Value(), nil
}

// NewProxy returns a Proxy for target with the given handler. The get, set
// and apply traps are honoured.
func (ctx *Context) NewProxy(target, handler Value) (Value, error) {
	if !target.IsObject() || !handler.IsObject() {
		return Value{}, ctx.ThrowTypeError("Cannot create proxy with a non-object as target or handler")
	}
	obj := ctx.newObject(nil, classProxy)
	obj.proxy = &proxyData{target: target.obj, handler: handler.obj}
	return obj.Value(), nil
}

// HostObject returns an object whose properties are served by h.
func (ctx *Context) HostObject(h HostObject) Value {
	obj := ctx.newObject(ctx.objectProto, classHost)
	obj.host = h
	return obj.Value()
}

// Invoke invokes a function with given this value and arguments.
func (ctx *Context) Invoke(fn Value, this Value, args ...Value) (Value, error) {
	return ctx.call(fn, this, args, Value{})
}

// Construct calls ctor as a constructor.
func (ctx *Context) Construct(ctor Value, args ...Value) (Value, error) {
	if !ctor.IsFunction() {
		return Value{}, ctx.ThrowTypeError("%s is not a constructor", ctor.String())
	}
	return ctx.call(ctor, ctx.Undefined(), args, ctor)
}

// call dispatches a call from the innermost live frame. Bound wrappers are
// resolved to their ultimate target first and do not get frames of their own.
func (ctx *Context) call(fn Value, this Value, args []Value, newTarget Value) (Value, error) {
	obj := fn.obj
	if obj == nil || !obj.isCallable() {
		return Value{}, ctx.ThrowTypeError("%s is not a function", fn.String())
	}
	rt := ctx.rt
	caller := rt.top

	bound := false
	for obj.class == classBound {
		b := obj.bound
		if newTarget.IsUndefined() {
			this = b.this
		} else if newTarget.obj == obj {
			newTarget = b.target.Value()
		}
		if len(b.args) > 0 {
			args = append(append([]Value(nil), b.args...), args...)
		}
		obj = b.target
		bound = true
	}

	if rt.depth >= rt.maxStackSize {
		return Value{}, ctx.raiseStackOverflow(caller)
	}

	fr := &Frame{
		ctx:       obj.ctx,
		prev:      caller,
		callee:    obj.Value(),
		this:      this,
		args:      args,
		newTarget: newTarget,
	}
	if obj.class == classFunction {
		fr.codeBlock = obj.code
	}
	if caller != nil && caller.codeBlock != nil {
		fr.savedIP, fr.hasSavedIP = caller.ip, true
		if !bound {
			fr.savedCodeBlock = caller.codeBlock
		}
	}
	return obj.ctx.execute(fr, obj)
}

func (ctx *Context) execute(fr *Frame, obj *Object) (Value, error) {
	rt := ctx.rt
	if obj.class != classFunction {
		if !rt.enterNative() {
			return Value{}, ctx.raiseNativeStackOverflow()
		}
		defer rt.exitNative()
	}

	rt.top = fr
	rt.depth++
	defer func() {
		rt.top = fr.prev
		rt.depth--
	}()

	construct := !fr.newTarget.IsUndefined()
	switch obj.class {
	case classFunction:
		if construct {
			proto, err := ctx.prototypeFrom(fr.newTarget, ctx.objectProto)
			if err != nil {
				return Value{}, err
			}
			fr.this = ctx.newObject(proto, classObject).Value()
		}
		res, err := obj.code.body(fr)
		if err != nil {
			return Value{}, ctx.unwind(fr, obj.code, err)
		}
		if construct && !res.IsObject() {
			return fr.this, nil
		}
		if res.ctx == nil && res.obj == nil {
			res.ctx = ctx
		}
		return res, nil

	case classNative:
		res, err := obj.native(ctx, fr.this, fr.args)
		if err != nil {
			return Value{}, err
		}
		if res.ctx == nil && res.obj == nil {
			res.ctx = ctx
		}
		return res, nil

	case classProxy:
		handler := obj.proxy.handler
		trap, err := handler.get(AtomApply, handler.Value())
		if err != nil {
			return Value{}, err
		}
		if construct || !trap.IsFunction() {
			return ctx.call(obj.proxy.target.Value(), fr.this, fr.args, fr.newTarget)
		}
		argArray := ctx.Array(fr.args...)
		return ctx.call(trap, handler.Value(), []Value{obj.proxy.target.Value(), fr.this, argArray}, Value{})
	}
	return Value{}, ctx.ThrowTypeError("not a function")
}

// runCodeBlock runs a raw code block; the frame has no callee closure.
func (ctx *Context) runCodeBlock(cb *CodeBlock, this Value) (Value, error) {
	rt := ctx.rt
	caller := rt.top
	if rt.depth >= rt.maxStackSize {
		return Value{}, ctx.raiseStackOverflow(caller)
	}
	fr := &Frame{ctx: ctx, prev: caller, codeBlock: cb, this: this}
	if caller != nil && caller.codeBlock != nil {
		fr.savedCodeBlock, fr.savedIP, fr.hasSavedIP = caller.codeBlock, caller.ip, true
	}
	rt.top = fr
	rt.depth++
	defer func() {
		rt.top = fr.prev
		rt.depth--
	}()
	res, err := cb.body(fr)
	if err != nil {
		return Value{}, ctx.unwind(fr, cb, err)
	}
	return res, nil
}

// unwind records the trace of an Error leaving a script frame without one,
// at the frame's current offset. Errors thrown by the runtime while script
// is on top are captured here.
func (ctx *Context) unwind(fr *Frame, cb *CodeBlock, err error) error {
	var exc *Exception
	if !errors.As(err, &exc) || !exc.val.IsError() || exc.val.obj.err.captured {
		return err
	}
	if rerr := ctx.RecordStackTrace(exc.val.obj, false, cb, fr.ip); rerr != nil {
		ctx.rt.logger.WithError(rerr).Debug("stack trace not recorded on unwind")
	}
	return err
}

// prototypeFrom reads newTarget.prototype, falling back to def.
func (ctx *Context) prototypeFrom(newTarget Value, def *Object) (*Object, error) {
	if !newTarget.IsObject() {
		return def, nil
	}
	p, err := newTarget.obj.get(AtomPrototype, newTarget)
	if err != nil {
		return nil, err
	}
	if p.IsObject() {
		return p.obj, nil
	}
	return def, nil
}

// raiseStackOverflow throws a catchable RangeError for script recursion that
// exceeded the call depth limit. Its trace is recorded at the caller's offset.
func (ctx *Context) raiseStackOverflow(caller *Frame) error {
	errObj := ctx.newErrorObject(ctx.rangeErrorProto, true)
	_ = ctx.SetMessage(errObj, ctx.String("Maximum call stack size exceeded"))
	var cb *CodeBlock
	var ip uint32
	if caller != nil {
		cb, ip = caller.codeBlock, caller.ip
	}
	return ctx.raise(errObj, cb, ip)
}

// raiseNativeStackOverflow throws an uncatchable RangeError.
func (ctx *Context) raiseNativeStackOverflow() error {
	errObj := ctx.newErrorObject(ctx.rangeErrorProto, false)
	_ = ctx.SetMessage(errObj, ctx.String("Maximum call stack size exceeded (native stack depth)"))
	return ctx.raise(errObj, nil, 0)
}

// raise records the trace of a runtime-created error and throws it.
func (ctx *Context) raise(errObj *Object, cb *CodeBlock, ip uint32) error {
	if err := ctx.RecordStackTrace(errObj, false, cb, ip); err != nil {
		ctx.rt.logger.WithError(err).Debug("stack trace not recorded on raise")
	}
	return newException(errObj.Value())
}
