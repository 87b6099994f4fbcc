package jserror

import "github.com/sirupsen/logrus"

// stackTraceTooLong replaces a formatted trace that exceeds the maximum
// string length.
const stackTraceTooLong = "<stacktrace too long>"

// initStackAccessors creates the shared getter and setter installed as the
// stack accessor of every Error.
func (ctx *Context) initStackAccessors() {
	ctx.stackGetter = ctx.newNative("stack", errorStackGetter)
	ctx.stackSetter = ctx.newNative("stack", errorStackSetter)
}

// setupStack installs the stack accessor on obj.
func (ctx *Context) setupStack(obj *Object) error {
	return obj.defineOwn(AtomStack, property{
		getter: ctx.stackGetter,
		setter: ctx.stackSetter,
		flags:  propAccessor | propConfigurable,
	})
}

// errorFromStackTarget walks the prototype chain of target for a captured
// Error slot or an Error object.
func errorFromStackTarget(target *Object) *Object {
	for obj := target; obj != nil; obj = obj.proto {
		if p := obj.props[atomCapturedError]; p != nil && p.value.IsError() {
			return p.value.obj
		}
		if obj.err != nil {
			return obj
		}
	}
	return nil
}

// errorStackGetter formats the trace once and replaces the accessor with a
// data property holding the result.
func errorStackGetter(ctx *Context, this Value, _ []Value) (Value, error) {
	rt := ctx.rt
	target := this.obj
	errObj := errorFromStackTarget(target)
	if errObj == nil {
		return ctx.Undefined(), nil
	}
	if !errObj.err.captured {
		return ctx.String(""), nil
	}

	restore := rt.reserveNativeHeadroom()
	defer restore()

	scope := rt.newGCScope()
	defer scope.close()
	scope.root(this)
	scope.root(errObj.Value())

	hook, err := ctx.errorCtor.get(AtomPrepareStackTrace, ctx.errorCtor.Value())
	if err != nil {
		return Value{}, err
	}
	scope.root(hook)

	var formatted Value
	if hook.IsFunction() && !rt.formattingStackTrace {
		formatted, err = ctx.runPrepareStackTrace(hook, target, errObj)
		if err != nil {
			return Value{}, err
		}
	} else {
		s, err := ctx.BuildTraceString(errObj, target)
		if err != nil {
			return Value{}, err
		}
		formatted, err = ctx.newString(s)
		if err != nil {
			if IsUncatchable(err) {
				return Value{}, err
			}
			rt.logger.WithFields(logrus.Fields{"length": len(s), "limit": rt.maxStringLen}).Debug("stack trace too long")
			formatted = ctx.String(stackTraceTooLong)
		}
	}

	if err := target.defineValue(AtomStack, formatted, flagsNonEnumerable); err != nil {
		return Value{}, err
	}
	return formatted, nil
}

// runPrepareStackTrace calls the user hook with the recursion guard set.
func (ctx *Context) runPrepareStackTrace(hook Value, target, errObj *Object) (Value, error) {
	rt := ctx.rt
	rt.formattingStackTrace = true
	defer func() { rt.formattingStackTrace = false }()

	sites, err := ctx.CallSitesArray(errObj)
	if err != nil {
		return Value{}, err
	}
	return ctx.call(hook, ctx.Null(), []Value{target.Value(), sites}, Value{})
}

// errorStackSetter replaces the accessor with a data property holding the
// assigned value.
func errorStackSetter(ctx *Context, this Value, args []Value) (Value, error) {
	obj, err := ctx.toObject(this)
	if err != nil {
		return Value{}, err
	}
	v := ctx.Undefined()
	if len(args) > 0 {
		v = args[0]
	}
	if err := obj.defineValue(AtomStack, v, flagsNonEnumerable); err != nil {
		return Value{}, err
	}
	return ctx.Undefined(), nil
}
