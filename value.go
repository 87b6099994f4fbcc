package jserror

import (
	"math"
	"strconv"
	"strings"
)

type valueKind uint8

const (
	kindUndefined valueKind = iota
	kindNull
	kindBool
	kindNumber
	kindString
	kindObject
)

// Value represents a Javascript value which can be a primitive type or an object.
// The zero Value is undefined.
type Value struct {
	ctx  *Context
	kind valueKind
	b    bool
	num  float64
	str  string
	obj  *Object
}

// Context returns the context the value was created in.
func (v Value) Context() *Context {
	if v.obj != nil {
		return v.obj.ctx
	}
	return v.ctx
}

func (v Value) IsUndefined() bool { return v.kind == kindUndefined }
func (v Value) IsNull() bool      { return v.kind == kindNull }
func (v Value) IsBool() bool      { return v.kind == kindBool }
func (v Value) IsNumber() bool    { return v.kind == kindNumber }
func (v Value) IsString() bool    { return v.kind == kindString }
func (v Value) IsObject() bool    { return v.kind == kindObject }
func (v Value) IsNullish() bool   { return v.kind == kindUndefined || v.kind == kindNull }

// IsFunction returns true if the value is callable.
func (v Value) IsFunction() bool { return v.obj != nil && v.obj.isCallable() }

// IsError returns true if the value is an Error object.
func (v Value) IsError() bool { return v.obj != nil && v.obj.err != nil }

// IsArray returns true if the value is an Array object.
func (v Value) IsArray() bool { return v.obj != nil && v.obj.class == classArray }

// IsCallSite returns true if the value is a CallSite object.
func (v Value) IsCallSite() bool { return v.obj != nil && v.obj.site != nil }

// Object returns the underlying object, or nil for primitives.
func (v Value) Object() *Object { return v.obj }

// ToBool returns the boolean value of the value.
func (v Value) ToBool() bool {
	switch v.kind {
	case kindBool:
		return v.b
	case kindNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case kindString:
		return v.str != ""
	case kindObject:
		return true
	}
	return false
}

// ToFloat64 returns the float64 value of a primitive value.
func (v Value) ToFloat64() float64 {
	switch v.kind {
	case kindNumber:
		return v.num
	case kindBool:
		if v.b {
			return 1
		}
		return 0
	case kindNull:
		return 0
	case kindString:
		s := strings.TrimSpace(v.str)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

// ToInt64 returns the int64 value of the value.
func (v Value) ToInt64() int64 {
	f := v.ToFloat64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}

// ToInt32 returns the int32 value of the value.
func (v Value) ToInt32() int32 {
	return int32(v.ToInt64())
}

// String returns a debug representation of the value. It never runs script;
// use Context.ToString for the coercing abstract operation.
// This method implements the fmt.Stringer interface.
func (v Value) String() string {
	switch v.kind {
	case kindUndefined:
		return "undefined"
	case kindNull:
		return "null"
	case kindBool:
		return strconv.FormatBool(v.b)
	case kindNumber:
		return formatNumber(v.num)
	case kindString:
		return v.str
	}
	switch {
	case v.obj.err != nil:
		name, _ := v.obj.ownDataString(AtomName)
		msg, _ := v.obj.ownDataString(AtomMessage)
		if name == "" {
			name = v.obj.protoDataString(AtomName)
		}
		return joinNameMessage(name, msg)
	case v.obj.isCallable():
		return "function"
	case v.obj.class == classArray:
		return "[object Array]"
	}
	return "[object Object]"
}

// StrictEquals implements the === comparison.
func (v Value) StrictEquals(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case kindUndefined, kindNull:
		return true
	case kindBool:
		return v.b == o.b
	case kindNumber:
		return v.num == o.num
	case kindString:
		return v.str == o.str
	}
	return v.obj == o.obj
}

// Get returns the value of the property with the given name.
// Getters run and may throw.
func (v Value) Get(name string) (Value, error) {
	if v.obj == nil {
		return Value{}, v.notObject("read property '" + name + "'")
	}
	return v.obj.Get(name)
}

// GetIdx returns the value of the property with the given index.
func (v Value) GetIdx(idx int64) (Value, error) {
	return v.Get(strconv.FormatInt(idx, 10))
}

// Set sets the value of the property with the given name.
func (v Value) Set(name string, val Value) error {
	if v.obj == nil {
		return v.notObject("set property '" + name + "'")
	}
	return v.obj.Set(name, val)
}

// Len returns the length of the array.
func (v Value) Len() int64 {
	if v.obj != nil && v.obj.class == classArray {
		return int64(len(v.obj.elements))
	}
	l, err := v.Get("length")
	if err != nil {
		return 0
	}
	return l.ToInt64()
}

// Call calls the method with the given name, using the value as this.
func (v Value) Call(fname string, args ...Value) (Value, error) {
	fn, err := v.Get(fname)
	if err != nil {
		return Value{}, err
	}
	return v.obj.ctx.Invoke(fn, v, args...)
}

// Execute calls the function with the given this and arguments.
func (v Value) Execute(this Value, args ...Value) (Value, error) {
	ctx := v.Context()
	if ctx == nil {
		ctx = this.Context()
	}
	if ctx == nil {
		return Value{}, errNoContext
	}
	return ctx.Invoke(v, this, args...)
}

// ToError converts an Error object into a Go error. It returns nil for any
// other value.
func (v Value) ToError() error {
	if !v.IsError() {
		return nil
	}

	err := &Error{}

	name, e := v.Get("name")
	if e == nil && !name.IsUndefined() {
		err.Name = name.String()
	}

	message, e := v.Get("message")
	if e == nil && !message.IsUndefined() {
		err.Message = message.String()
	}

	cause, e := v.Get("cause")
	if e == nil && !cause.IsUndefined() {
		err.Cause = cause.String()
	}

	stack, e := v.Get("stack")
	if e == nil && !stack.IsUndefined() {
		err.Stack = stack.String()
	}

	return err
}

func (v Value) notObject(what string) error {
	ctx := v.Context()
	if ctx == nil {
		return errNoContext
	}
	return ctx.ThrowTypeError("Cannot %s of %s", what, v.String())
}

// formatNumber renders a float64 the way Number.prototype.toString does.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[0]
	exp = strings.TrimLeft(exp[1:], "0")
	return mant + "e" + string(sign) + exp
}

func joinNameMessage(name, msg string) string {
	switch {
	case name == "":
		return msg
	case msg == "":
		return name
	}
	return name + ": " + msg
}
