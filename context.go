package jserror

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Context represents a Javascript context (or Realm). Each Context has its own
// global object and intrinsics. Several contexts can share one Runtime.
type Context struct {
	rt      *Runtime
	globals *Object

	objectProto   *Object
	functionProto *Object
	arrayProto    *Object

	errorProto *Object
	errorCtor  *Object

	typeErrorProto      *Object
	rangeErrorProto     *Object
	referenceErrorProto *Object
	syntaxErrorProto    *Object

	// native constructors by name, Error included.
	errorCtors map[string]*Object

	callSiteProto *Object

	stackGetter *Object
	stackSetter *Object
}

// init creates the realm's intrinsics.
func (ctx *Context) init() {
	ctx.objectProto = ctx.newObject(nil, classObject)
	ctx.functionProto = ctx.newObject(ctx.objectProto, classObject)
	ctx.arrayProto = ctx.newObject(ctx.objectProto, classObject)
	ctx.globals = ctx.newObject(ctx.objectProto, classObject)

	ctx.initErrors()
	ctx.initStackAccessors()
	ctx.initCallSite()
}

// Runtime returns the runtime of the context.
func (ctx *Context) Runtime() *Runtime {
	return ctx.rt
}

// Close detaches the context from its runtime. Objects it owns are
// reclaimed by the next RunGC unless rooted.
func (ctx *Context) Close() {
	rt := ctx.rt
	for i, c := range rt.contexts {
		if c == ctx {
			rt.contexts = append(rt.contexts[:i], rt.contexts[i+1:]...)
			break
		}
	}
}

// Globals returns the context's global object.
func (ctx *Context) Globals() Value {
	return ctx.globals.Value()
}

// Null return a null value.
func (ctx *Context) Null() Value {
	return Value{ctx: ctx, kind: kindNull}
}

// Undefined return a undefined value.
func (ctx *Context) Undefined() Value {
	return Value{ctx: ctx, kind: kindUndefined}
}

// Bool returns a bool value with given bool.
func (ctx *Context) Bool(b bool) Value {
	return Value{ctx: ctx, kind: kindBool, b: b}
}

// Int32 returns a int32 value with given int32.
func (ctx *Context) Int32(v int32) Value {
	return ctx.Float64(float64(v))
}

// Int64 returns a number value with given int64.
func (ctx *Context) Int64(v int64) Value {
	return ctx.Float64(float64(v))
}

// Uint32 returns a number value with given uint32.
func (ctx *Context) Uint32(v uint32) Value {
	return ctx.Float64(float64(v))
}

// Float64 returns a float64 value with given float64.
func (ctx *Context) Float64(v float64) Value {
	return Value{ctx: ctx, kind: kindNumber, num: v}
}

// NaN returns the NaN number value.
func (ctx *Context) NaN() Value {
	return ctx.Float64(math.NaN())
}

// String returns a string value with given string. Strings created from Go
// are not subject to the runtime's string length limit.
func (ctx *Context) String(v string) Value {
	return Value{ctx: ctx, kind: kindString, str: v}
}

// newString creates a string primitive built by the runtime, failing with a
// RangeError when it exceeds the maximum string length.
func (ctx *Context) newString(s string) (Value, error) {
	if len(s) > ctx.rt.maxStringLen {
		return Value{}, ctx.ThrowRangeError("String length exceeds limit")
	}
	return ctx.String(s), nil
}

// Object returns a new empty object.
func (ctx *Context) Object() Value {
	return ctx.newObject(ctx.objectProto, classObject).Value()
}

// Array returns a new array holding elems.
func (ctx *Context) Array(elems ...Value) Value {
	arr := ctx.newObject(ctx.arrayProto, classArray)
	arr.elements = append([]Value(nil), elems...)
	return arr.Value()
}

// newArray allocates a dense array with capacity for n elements. The element
// storage is charged against the memory limit.
func (ctx *Context) newArray(n int) (*Object, error) {
	if err := ctx.rt.alloc(arrayStorageHeaderSize + n*arrayStorageSlotSize); err != nil {
		return nil, err
	}
	arr := ctx.newObject(ctx.arrayProto, classArray)
	arr.elements = make([]Value, 0, n)
	arr.size += arrayStorageHeaderSize + n*arrayStorageSlotSize
	return arr, nil
}

// newObject allocates a managed object tracked by the heap.
func (ctx *Context) newObject(proto *Object, class objectClass) *Object {
	obj := &Object{ctx: ctx, proto: proto, class: class, size: objectCellSize}
	ctx.rt.heap = append(ctx.rt.heap, obj)
	ctx.rt.heapUsage += objectCellSize
	return obj
}

// Error returns a new Error object with the message of err.
func (ctx *Context) Error(err error) Value {
	return ctx.NewError(err.Error())
}

// NewError returns a new Error object with the given message. No stack trace
// is recorded until it is thrown.
func (ctx *Context) NewError(message string) Value {
	return ctx.newTypedError(ctx.errorProto, message)
}

// NewTypeError returns a new TypeError object with the given message.
func (ctx *Context) NewTypeError(message string) Value {
	return ctx.newTypedError(ctx.typeErrorProto, message)
}

// NewRangeError returns a new RangeError object with the given message.
func (ctx *Context) NewRangeError(message string) Value {
	return ctx.newTypedError(ctx.rangeErrorProto, message)
}

func (ctx *Context) newTypedError(proto *Object, message string) Value {
	errObj := ctx.newErrorObject(proto, true)
	errObj.mustDefine(AtomMessage, ctx.String(message), flagsNonEnumerable)
	return errObj.Value()
}

// newErrorObject allocates an Error with an empty record and installs the
// stack accessor on it.
func (ctx *Context) newErrorObject(proto *Object, catchable bool) *Object {
	errObj := ctx.newObject(proto, classError)
	errObj.err = &ErrorRecord{catchable: catchable}
	_ = ctx.setupStack(errObj)
	return errObj
}

// Throw throws v from native code. An Error value gets its trace recorded
// when the innermost frame is native; when script is running, the thrower's
// offset is unknown and the trace is recorded as the error leaves the script
// frame.
func (ctx *Context) Throw(v Value) error {
	if v.IsError() {
		return ctx.raise(v.obj, nil, 0)
	}
	return newException(v)
}

// ThrowError throws a new Error with the message of err.
func (ctx *Context) ThrowError(err error) error {
	return ctx.Throw(ctx.Error(err))
}

// ThrowTypeError throws a new TypeError with the formatted message.
func (ctx *Context) ThrowTypeError(format string, args ...interface{}) error {
	return ctx.Throw(ctx.newTypedError(ctx.typeErrorProto, fmt.Sprintf(format, args...)))
}

// ThrowRangeError throws a new RangeError with the formatted message.
func (ctx *Context) ThrowRangeError(format string, args ...interface{}) error {
	return ctx.Throw(ctx.newTypedError(ctx.rangeErrorProto, fmt.Sprintf(format, args...)))
}

// ThrowReferenceError throws a new ReferenceError with the formatted message.
func (ctx *Context) ThrowReferenceError(format string, args ...interface{}) error {
	return ctx.Throw(ctx.newTypedError(ctx.referenceErrorProto, fmt.Sprintf(format, args...)))
}

// ThrowSyntaxError throws a new SyntaxError with the formatted message.
func (ctx *Context) ThrowSyntaxError(format string, args ...interface{}) error {
	return ctx.Throw(ctx.newTypedError(ctx.syntaxErrorProto, fmt.Sprintf(format, args...)))
}

// ToString implements the ToString abstract operation. Objects are converted
// through their toString or valueOf methods, which may run script and throw.
func (ctx *Context) ToString(v Value) (string, error) {
	if v.kind != kindObject {
		return v.String(), nil
	}
	for _, a := range [...]Atom{AtomToString, AtomValueOf} {
		fn, err := v.obj.get(a, v)
		if err != nil {
			return "", err
		}
		if !fn.IsFunction() {
			continue
		}
		res, err := ctx.call(fn, v, nil, Value{})
		if err != nil {
			return "", err
		}
		if !res.IsObject() {
			return res.String(), nil
		}
	}
	return "", ctx.ThrowTypeError("Cannot convert object to primitive value")
}

// toObject implements the ToObject abstract operation for receivers.
func (ctx *Context) toObject(v Value) (*Object, error) {
	if v.obj != nil {
		return v.obj, nil
	}
	if v.IsNullish() {
		return nil, ctx.ThrowTypeError("Cannot convert %s to object", v.String())
	}
	// primitive wrappers are not modelled; a fresh plain object stands in.
	return ctx.newObject(ctx.objectProto, classObject), nil
}

// errNoContext is returned by operations on values that carry no context.
var errNoContext = errors.New("value has no context")
