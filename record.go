package jserror

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// StackTraceEntry is one captured frame. A nil CodeBlock marks a native frame.
type StackTraceEntry struct {
	CodeBlock      *CodeBlock
	BytecodeOffset uint32
}

// IsNative reports whether the entry is a native frame.
func (e StackTraceEntry) IsNative() bool { return e.CodeBlock == nil }

// StackTrace is a captured call stack, leaf first.
type StackTrace []StackTraceEntry

// ErrorRecord is the internal stack-trace state of an Error object.
type ErrorRecord struct {
	trace    StackTrace
	captured bool

	// names parallels trace; nil when name collection failed.
	names []Value

	// domains pin the modules of every code block in trace.
	domains []*Domain

	firstExposed uint32
	catchable    bool

	// managed bytes charged for the domain list and name table.
	charged int
}

// HasStackTrace reports whether a trace was captured.
func (r *ErrorRecord) HasStackTrace() bool { return r.captured }

// StackTrace returns the captured trace, or nil.
func (r *ErrorRecord) StackTrace() StackTrace { return r.trace }

// FunctionNames returns the name table parallel to the trace, or nil when it
// is absent.
func (r *ErrorRecord) FunctionNames() []Value { return r.names }

// Domains returns the domains pinned by the record.
func (r *ErrorRecord) Domains() []*Domain { return r.domains }

// FirstExposedFrameIndex returns the index of the first frame user code may
// observe.
func (r *ErrorRecord) FirstExposedFrameIndex() uint32 { return r.firstExposed }

// ExposedFrames returns the frames user code may observe.
func (r *ErrorRecord) ExposedFrames() StackTrace {
	return r.trace[r.firstExposed:]
}

// Catchable reports whether a throw of the Error can be caught by script.
func (r *ErrorRecord) Catchable() bool { return r.catchable }

// MallocSize returns the external memory owned by the record.
func (r *ErrorRecord) MallocSize() int {
	if !r.captured {
		return 0
	}
	return stackTraceHeaderSize + cap(r.trace)*stackTraceEntrySize
}

// nameAt returns the collected name of frame i, or undefined.
func (r *ErrorRecord) nameAt(i int) Value {
	if r.names == nil || i >= len(r.names) {
		return Value{}
	}
	return r.names[i]
}

// finalize releases everything the record owns.
func (r *ErrorRecord) finalize(rt *Runtime) {
	rt.externalUsage -= r.MallocSize()
	rt.free(r.charged)
	r.trace, r.names, r.domains = nil, nil, nil
	r.captured, r.charged = false, 0
}

// domainList is the growable pin list built during capture. Every push past
// capacity is a managed allocation and may fail.
type domainList struct {
	rt      *Runtime
	list    []*Domain
	charged int
}

func newDomainList(rt *Runtime) (*domainList, error) {
	size := arrayStorageHeaderSize + arrayStorageSlotSize
	if err := rt.alloc(size); err != nil {
		return nil, err
	}
	return &domainList{rt: rt, list: make([]*Domain, 0, 1), charged: size}, nil
}

// add appends the domain of cb unless it equals the last one added.
func (l *domainList) add(cb *CodeBlock) error {
	d := cb.module.domain
	if n := len(l.list); n > 0 && l.list[n-1] == d {
		return nil
	}
	if len(l.list) == cap(l.list) {
		grow := cap(l.list) * arrayStorageSlotSize
		if err := l.rt.alloc(grow); err != nil {
			return err
		}
		l.charged += grow
		l.list = append(make([]*Domain, 0, 2*cap(l.list)), l.list...)
	}
	l.list = append(l.list, d)
	return nil
}

func (l *domainList) discard() {
	l.rt.free(l.charged)
	l.list, l.charged = nil, 0
}

// RecordStackTrace captures the live call stack into the Error's record.
//
// A record that already holds a trace is left alone. When skipTop is false
// and no leaf code block is given while script is running, nothing is
// recorded since the leaf offset is unknown. The leaf entry is (cb, ip) when
// cb is given, else a native entry. The returned error is ErrOutOfMemory
// when the domain list cannot grow; the record stays empty in that case.
func (ctx *Context) RecordStackTrace(errObj *Object, skipTop bool, cb *CodeBlock, ip uint32) error {
	if errObj == nil || errObj.err == nil {
		return errors.New("not an Error object")
	}
	rec := errObj.err
	if rec.captured {
		return nil
	}
	rt := ctx.rt
	top := rt.top
	if !skipTop && cb == nil && top != nil && top.calleeCodeBlock() != nil {
		return nil
	}

	domains, err := newDomainList(rt)
	if err != nil {
		return err
	}

	var trace StackTrace
	if !skipTop {
		if cb != nil {
			trace = append(trace, StackTraceEntry{CodeBlock: cb, BytecodeOffset: cb.OffsetOf(ip)})
			if err := domains.add(cb); err != nil {
				domains.discard()
				return err
			}
		} else {
			trace = append(trace, StackTraceEntry{})
		}
	}

	// Each frame describes its caller: use the previous frame's callee code
	// block with this frame's saved IP. Bound calls have no saved code block.
	for fr := top; fr != nil; fr = fr.prev {
		saved := fr.savedCodeBlock
		if fr.prev != nil {
			if parent := fr.prev.calleeCodeBlock(); parent != nil {
				saved = parent
			}
		}
		if saved == nil || !fr.hasSavedIP {
			trace = append(trace, StackTraceEntry{})
			continue
		}
		trace = append(trace, StackTraceEntry{CodeBlock: saved, BytecodeOffset: saved.OffsetOf(fr.savedIP)})
		if err := domains.add(saved); err != nil {
			domains.discard()
			return err
		}
	}

	// The outermost frame has no caller.
	if len(trace) > 0 {
		trace = trace[:len(trace)-1]
	}

	names, namesCharge := ctx.callStackFunctionNames(skipTop, len(trace))

	rec.trace = trace
	rec.captured = true
	rec.names = names
	rec.domains = domains.list
	rec.charged = domains.charged + namesCharge
	rt.externalUsage += rec.MallocSize()

	rt.logger.WithFields(logrus.Fields{
		"frames":  len(trace),
		"domains": len(rec.domains),
		"names":   names != nil,
	}).Debug("stack trace recorded")
	return nil
}

// callStackFunctionNames collects a display name per live frame, skipping the
// top frame when asked. It never runs script: accessors and host objects
// yield undefined and proxies yield a placeholder. On allocation failure the
// whole table is dropped.
func (ctx *Context) callStackFunctionNames(skipTop bool, sizeHint int) ([]Value, int) {
	rt := ctx.rt
	charge := arrayStorageHeaderSize + sizeHint*arrayStorageSlotSize
	if err := rt.alloc(charge); err != nil {
		rt.logger.WithError(err).Debug("function names dropped")
		return nil, 0
	}

	names := make([]Value, 0, sizeHint)
	first := true
	for fr := rt.top; fr != nil; fr = fr.prev {
		if first {
			first = false
			if skipTop {
				continue
			}
		}
		names = append(names, frameFunctionName(fr))
	}
	return names, charge
}

func frameFunctionName(fr *Frame) Value {
	if callee := fr.callee.obj; callee != nil && callee.isCallable() {
		holder, desc := callee.getNamedDescriptor(AtomDisplayName)
		if holder == nil {
			holder, desc = callee.getNamedDescriptor(AtomName)
		}
		switch {
		case desc.proxyObject:
			return callee.ctx.String(proxyTrapName)
		case holder != nil && !desc.hostObject && desc.prop.flags&propAccessor == 0:
			return desc.prop.value
		}
		return Value{}
	}
	if fr.callee.IsUndefined() && fr.codeBlock != nil && fr.codeBlock.name != "" {
		return fr.ctx.String(fr.codeBlock.name)
	}
	return Value{}
}

// proxyTrapName replaces the name of a frame whose callee resolves names
// through a Proxy.
const proxyTrapName = "<proxy trap>"

// PopFramesUntilInclusive hides every frame up to and including the
// innermost one running callable's ultimate target. When no frame matches,
// all frames are hidden.
func (ctx *Context) PopFramesUntilInclusive(errObj *Object, callable Value) {
	rec := errObj.err
	if rec == nil || !rec.captured {
		return
	}
	rec.firstExposed = uint32(len(rec.trace))
	cb := leafCodeBlock(callable.obj)
	if cb == nil {
		return
	}
	for i, e := range rec.trace {
		if e.CodeBlock == cb {
			rec.firstExposed = uint32(i + 1)
			return
		}
	}
}

// leafCodeBlock resolves bound functions to the code block of their
// ultimate target.
func leafCodeBlock(fn *Object) *CodeBlock {
	for fn != nil && fn.class == classBound {
		fn = fn.bound.target
	}
	if fn != nil && fn.class == classFunction {
		return fn.code
	}
	return nil
}
