package jserror

import (
	"strconv"

	"github.com/pkg/errors"
)

type objectClass uint8

const (
	classObject objectClass = iota
	classFunction
	classNative
	classBound
	classProxy
	classHost
	classError
	classArray
	classCallSite
)

type propFlags uint8

const (
	propWritable propFlags = 1 << iota
	propEnumerable
	propConfigurable
	propAccessor
)

const (
	flagsDefault       = propWritable | propEnumerable | propConfigurable
	flagsNonEnumerable = propWritable | propConfigurable
)

type property struct {
	value  Value
	getter *Object
	setter *Object
	flags  propFlags
}

// HostObject is implemented by Go values exposed to script as objects whose
// properties are served by Go code.
type HostObject interface {
	Get(name string) (Value, error)
	Set(name string, v Value) error
}

// PropertyDescriptor describes an own property.
type PropertyDescriptor struct {
	Value        Value
	Getter       Value
	Setter       Value
	Accessor     bool
	Writable     bool
	Enumerable   bool
	Configurable bool
}

// Object is a managed object. Every object is tracked by the runtime heap
// and finalized by RunGC once unreachable.
type Object struct {
	ctx           *Context
	proto         *Object
	class         objectClass
	props         map[Atom]*property
	keys          []Atom
	nonExtensible bool

	code     *CodeBlock
	native   NativeFunc
	bound    *boundFunction
	proxy    *proxyData
	host     HostObject
	err      *ErrorRecord
	elements []Value
	site     *callSite

	mark uint32
	size int // managed bytes charged for the object
}

type proxyData struct {
	target  *Object
	handler *Object
}

// namedDescriptor is the result of a prototype-chain descriptor lookup that
// never runs script.
type namedDescriptor struct {
	prop        *property
	proxyObject bool
	hostObject  bool
}

// Value returns the object as a Value.
func (o *Object) Value() Value {
	return Value{ctx: o.ctx, kind: kindObject, obj: o}
}

// Prototype returns the object's [[Prototype]].
func (o *Object) Prototype() *Object { return o.proto }

// SetPrototype replaces the object's [[Prototype]].
func (o *Object) SetPrototype(proto *Object) { o.proto = proto }

// ErrorRecord returns the internal stack-trace state of an Error object, or
// nil for other objects.
func (o *Object) ErrorRecord() *ErrorRecord { return o.err }

// Get returns the value of the named property, running getters.
func (o *Object) Get(name string) (Value, error) {
	v := o.Value()
	return o.get(o.ctx.rt.Atom(name), v)
}

// Set assigns the named property, running setters.
func (o *Object) Set(name string, val Value) error {
	return o.set(o.ctx.rt.Atom(name), val, o.Value())
}

// HasOwnProperty reports whether the object has the named own property.
func (o *Object) HasOwnProperty(name string) bool {
	return o.getOwn(o.ctx.rt.Atom(name)) != nil
}

// GetOwnProperty returns the descriptor of the named own property.
func (o *Object) GetOwnProperty(name string) (PropertyDescriptor, bool) {
	p := o.getOwn(o.ctx.rt.Atom(name))
	if p == nil {
		return PropertyDescriptor{}, false
	}
	d := PropertyDescriptor{
		Enumerable:   p.flags&propEnumerable != 0,
		Configurable: p.flags&propConfigurable != 0,
	}
	if p.flags&propAccessor != 0 {
		d.Accessor = true
		if p.getter != nil {
			d.Getter = p.getter.Value()
		}
		if p.setter != nil {
			d.Setter = p.setter.Value()
		}
		return d, true
	}
	d.Value = p.value
	d.Writable = p.flags&propWritable != 0
	return d, true
}

// DefineOwnProperty defines or redefines the named own property.
func (o *Object) DefineOwnProperty(name string, desc PropertyDescriptor) error {
	p := property{}
	if desc.Enumerable {
		p.flags |= propEnumerable
	}
	if desc.Configurable {
		p.flags |= propConfigurable
	}
	if desc.Accessor {
		p.flags |= propAccessor
		p.getter = desc.Getter.obj
		p.setter = desc.Setter.obj
	} else {
		p.value = desc.Value
		if desc.Writable {
			p.flags |= propWritable
		}
	}
	return o.defineOwn(o.ctx.rt.Atom(name), p)
}

// Keys returns the names of the own enumerable properties in definition order.
func (o *Object) Keys() []string {
	var keys []string
	for i := range o.elements {
		keys = append(keys, strconv.Itoa(i))
	}
	for _, a := range o.keys {
		if a.isInternal() || o.props[a].flags&propEnumerable == 0 {
			continue
		}
		keys = append(keys, o.ctx.rt.AtomString(a))
	}
	return keys
}

// Freeze makes every own property non-configurable (and data properties
// non-writable) and prevents extensions.
func (o *Object) Freeze() {
	for _, p := range o.props {
		p.flags &^= propConfigurable
		if p.flags&propAccessor == 0 {
			p.flags &^= propWritable
		}
	}
	o.nonExtensible = true
}

func (o *Object) isCallable() bool {
	switch o.class {
	case classFunction, classNative, classBound:
		return true
	case classProxy:
		return o.proxy.target.isCallable()
	}
	return false
}

func (o *Object) arrayIndex(a Atom) (int, bool) {
	if o.class != classArray {
		return 0, false
	}
	i, err := strconv.Atoi(o.ctx.rt.AtomString(a))
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func (o *Object) getOwn(a Atom) *property {
	if o.class == classArray {
		if a == AtomLength {
			return &property{value: o.ctx.Float64(float64(len(o.elements))), flags: propWritable}
		}
		if i, ok := o.arrayIndex(a); ok {
			if i < len(o.elements) {
				return &property{value: o.elements[i], flags: flagsDefault}
			}
			return nil
		}
	}
	return o.props[a]
}

// getNamedDescriptor walks the prototype chain for a without running script.
// Proxies and host objects stop the walk and are reported through the flags.
func (o *Object) getNamedDescriptor(a Atom) (*Object, namedDescriptor) {
	for obj := o; obj != nil; obj = obj.proto {
		switch obj.class {
		case classProxy:
			return obj, namedDescriptor{proxyObject: true}
		case classHost:
			return obj, namedDescriptor{hostObject: true}
		}
		if p := obj.getOwn(a); p != nil {
			return obj, namedDescriptor{prop: p}
		}
	}
	return nil, namedDescriptor{}
}

func (o *Object) get(a Atom, receiver Value) (Value, error) {
	rt := o.ctx.rt
	for obj := o; obj != nil; obj = obj.proto {
		switch obj.class {
		case classProxy:
			return obj.proxyGet(a, receiver)
		case classHost:
			return obj.host.Get(rt.AtomString(a))
		}
		p := obj.getOwn(a)
		if p == nil {
			continue
		}
		if p.flags&propAccessor == 0 {
			return p.value, nil
		}
		if p.getter == nil {
			return o.ctx.Undefined(), nil
		}
		return o.ctx.call(p.getter.Value(), receiver, nil, Value{})
	}
	return o.ctx.Undefined(), nil
}

func (o *Object) set(a Atom, v Value, receiver Value) error {
	rt := o.ctx.rt
	for obj := o; obj != nil; obj = obj.proto {
		switch obj.class {
		case classProxy:
			return obj.proxySet(a, v, receiver)
		case classHost:
			return obj.host.Set(rt.AtomString(a), v)
		}
		p := obj.getOwn(a)
		if p == nil {
			continue
		}
		if p.flags&propAccessor != 0 {
			if p.setter == nil {
				return o.ctx.ThrowTypeError("Cannot set property '%s' which has only a getter", rt.AtomString(a))
			}
			_, err := o.ctx.call(p.setter.Value(), receiver, []Value{v}, Value{})
			return err
		}
		if p.flags&propWritable == 0 {
			return o.ctx.ThrowTypeError("Cannot assign to read-only property '%s'", rt.AtomString(a))
		}
		break
	}
	target := receiver.obj
	if target == nil {
		return o.ctx.ThrowTypeError("Cannot create property '%s' on %s", rt.AtomString(a), receiver.String())
	}
	if p := target.getOwn(a); p != nil && p.flags&propAccessor == 0 {
		if p.flags&propWritable == 0 {
			return o.ctx.ThrowTypeError("Cannot assign to read-only property '%s'", rt.AtomString(a))
		}
		return target.defineOwn(a, property{value: v, flags: p.flags})
	}
	return target.defineOwn(a, property{value: v, flags: flagsDefault})
}

func (o *Object) defineOwn(a Atom, p property) error {
	rt := o.ctx.rt
	if o.class == classProxy {
		return o.proxy.target.defineOwn(a, p)
	}
	if o.class == classArray {
		if a == AtomLength {
			n := int(p.value.ToInt64())
			if n < 0 || p.flags&propAccessor != 0 {
				return o.ctx.ThrowRangeError("Invalid array length")
			}
			o.setLength(n)
			return nil
		}
		if i, ok := o.arrayIndex(a); ok && p.flags&propAccessor == 0 {
			if i >= len(o.elements) {
				o.setLength(i + 1)
			}
			o.elements[i] = p.value
			return nil
		}
	}
	if old, ok := o.props[a]; ok {
		if old.flags&propConfigurable == 0 {
			return o.ctx.ThrowTypeError("Cannot redefine property: %s", rt.AtomString(a))
		}
		*old = p
		return nil
	}
	if o.nonExtensible {
		return o.ctx.ThrowTypeError("Cannot add property %s, object is not extensible", rt.AtomString(a))
	}
	if o.props == nil {
		o.props = make(map[Atom]*property, 4)
	}
	np := p
	o.props[a] = &np
	o.keys = append(o.keys, a)
	return nil
}

// defineValue is the common defineOwnProperty of a data property.
func (o *Object) defineValue(a Atom, v Value, flags propFlags) error {
	return o.defineOwn(a, property{value: v, flags: flags})
}

// mustDefine defines a data property on an intrinsic under construction.
// Such objects are fresh and extensible, so a failure is a programming error.
func (o *Object) mustDefine(a Atom, v Value, flags propFlags) {
	if err := o.defineValue(a, v, flags); err != nil {
		panic(errors.Wrapf(err, "defining intrinsic property %s", o.ctx.rt.AtomString(a)))
	}
}

func (o *Object) setLength(n int) {
	switch {
	case n < len(o.elements):
		o.elements = o.elements[:n]
	case n > len(o.elements):
		for len(o.elements) < n {
			o.elements = append(o.elements, o.ctx.Undefined())
		}
	}
}

func (o *Object) proxyGet(a Atom, receiver Value) (Value, error) {
	trap, err := o.proxy.handler.get(AtomGet, o.proxy.handler.Value())
	if err != nil {
		return Value{}, err
	}
	if !trap.IsFunction() {
		return o.proxy.target.get(a, receiver)
	}
	name := o.ctx.String(o.ctx.rt.AtomString(a))
	return o.ctx.call(trap, o.proxy.handler.Value(), []Value{o.proxy.target.Value(), name, receiver}, Value{})
}

func (o *Object) proxySet(a Atom, v Value, receiver Value) error {
	trap, err := o.proxy.handler.get(AtomSet, o.proxy.handler.Value())
	if err != nil {
		return err
	}
	if !trap.IsFunction() {
		return o.proxy.target.set(a, v, receiver)
	}
	name := o.ctx.String(o.ctx.rt.AtomString(a))
	_, err = o.ctx.call(trap, o.proxy.handler.Value(), []Value{o.proxy.target.Value(), name, v, receiver}, Value{})
	return err
}

// ownDataString reads an own string-valued data property without running
// script.
func (o *Object) ownDataString(a Atom) (string, bool) {
	p := o.getOwn(a)
	if p == nil || p.flags&propAccessor != 0 || !p.value.IsString() {
		return "", false
	}
	return p.value.str, true
}

func (o *Object) protoDataString(a Atom) string {
	for obj := o.proto; obj != nil; obj = obj.proto {
		if s, ok := obj.ownDataString(a); ok {
			return s
		}
	}
	return ""
}
