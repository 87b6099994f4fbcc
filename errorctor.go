package jserror

// nativeErrorNames lists the Error subclasses every context defines.
var nativeErrorNames = [...]string{
	"TypeError",
	"RangeError",
	"ReferenceError",
	"SyntaxError",
	"EvalError",
	"URIError",
}

// initErrors creates Error, its subclasses and their prototypes, and
// defines the constructors on the global object.
func (ctx *Context) initErrors() {
	ctx.errorCtors = make(map[string]*Object, len(nativeErrorNames)+1)

	ctx.errorProto = ctx.newObject(ctx.objectProto, classObject)
	ctx.errorCtor = ctx.defineErrorClass("Error", ctx.errorProto, ctx.functionProto)

	ctx.errorProto.mustDefine(AtomMessage, ctx.String(""), flagsNonEnumerable)
	toString := ctx.newNative("toString", func(ctx *Context, this Value, _ []Value) (Value, error) {
		if !this.IsObject() {
			return Value{}, ctx.ThrowTypeError("Error.prototype.toString called on non-object")
		}
		s, err := ctx.ErrorToString(this.obj)
		if err != nil {
			return Value{}, err
		}
		return ctx.String(s), nil
	})
	ctx.errorProto.mustDefine(AtomToString, toString.Value(), flagsNonEnumerable)

	capture := ctx.newNative("captureStackTrace", errorCaptureStackTrace)
	ctx.errorCtor.mustDefine(ctx.rt.Atom("captureStackTrace"), capture.Value(), flagsNonEnumerable)

	for _, name := range nativeErrorNames {
		proto := ctx.newObject(ctx.errorProto, classObject)
		proto.mustDefine(AtomMessage, ctx.String(""), flagsNonEnumerable)
		ctx.defineErrorClass(name, proto, ctx.errorCtor)
		switch name {
		case "TypeError":
			ctx.typeErrorProto = proto
		case "RangeError":
			ctx.rangeErrorProto = proto
		case "ReferenceError":
			ctx.referenceErrorProto = proto
		case "SyntaxError":
			ctx.syntaxErrorProto = proto
		}
	}
}

func (ctx *Context) defineErrorClass(name string, proto, ctorProto *Object) *Object {
	ctor := ctx.newNative(name, errorConstructor(proto))
	ctor.proto = ctorProto
	ctor.mustDefine(AtomPrototype, proto.Value(), 0)
	proto.mustDefine(AtomConstructor, ctor.Value(), flagsNonEnumerable)
	proto.mustDefine(AtomName, ctx.String(name), flagsNonEnumerable)
	ctx.globals.mustDefine(ctx.rt.Atom(name), ctor.Value(), flagsNonEnumerable)
	ctx.errorCtors[name] = ctor
	return ctor
}

// ErrorConstructor returns the named native Error constructor, such as
// "Error" or "TypeError".
func (ctx *Context) ErrorConstructor(name string) (Value, bool) {
	ctor, ok := ctx.errorCtors[name]
	if !ok {
		return Value{}, false
	}
	return ctor.Value(), true
}

// errorConstructor implements Error(message, options) for one class. The
// trace is recorded when the Error is thrown, not here.
func errorConstructor(defaultProto *Object) NativeFunc {
	return func(ctx *Context, _ Value, args []Value) (Value, error) {
		proto := defaultProto
		if fr := ctx.rt.top; fr != nil && !fr.newTarget.IsUndefined() {
			p, err := ctx.prototypeFrom(fr.newTarget, defaultProto)
			if err != nil {
				return Value{}, err
			}
			proto = p
		}
		errObj := ctx.newErrorObject(proto, true)

		scope := ctx.rt.newGCScope()
		defer scope.close()
		scope.root(errObj.Value())

		if len(args) > 0 && !args[0].IsUndefined() {
			if err := ctx.SetMessage(errObj, args[0]); err != nil {
				return Value{}, err
			}
		}
		if len(args) > 1 && args[1].IsObject() {
			opts := args[1].obj
			if holder, _ := opts.getNamedDescriptor(AtomCause); holder != nil {
				cause, err := opts.get(AtomCause, args[1])
				if err != nil {
					return Value{}, err
				}
				if err := errObj.defineValue(AtomCause, cause, flagsNonEnumerable); err != nil {
					return Value{}, err
				}
			}
		}
		return errObj.Value(), nil
	}
}

// errorCaptureStackTrace implements Error.captureStackTrace(target, fn). The
// trace skips the call itself, then every frame up to and including fn.
func errorCaptureStackTrace(ctx *Context, _ Value, args []Value) (Value, error) {
	if len(args) == 0 || !args[0].IsObject() {
		return Value{}, ctx.ThrowTypeError("Invalid argument")
	}
	target := args[0].obj

	scope := ctx.rt.newGCScope()
	defer scope.close()

	errObj := ctx.newErrorObject(ctx.errorProto, true)
	scope.root(errObj.Value())
	if err := ctx.RecordStackTrace(errObj, true, nil, 0); err != nil {
		return Value{}, err
	}
	if len(args) > 1 && args[1].IsFunction() {
		ctx.PopFramesUntilInclusive(errObj, args[1])
	}

	if err := target.defineValue(atomCapturedError, errObj.Value(), flagsNonEnumerable); err != nil {
		return Value{}, err
	}
	if err := ctx.setupStack(target); err != nil {
		return Value{}, err
	}
	return ctx.Undefined(), nil
}
