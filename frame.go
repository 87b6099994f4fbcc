package jserror

// Frame is a live activation on the runtime's call stack. Script bodies
// receive their own frame and use it to move the program counter, call
// other functions and throw.
type Frame struct {
	ctx  *Context
	prev *Frame

	// callee is the callable object being run; it is undefined when a raw
	// code block (module global code) is running.
	callee    Value
	codeBlock *CodeBlock

	// caller-side state saved at call time.
	savedCodeBlock *CodeBlock
	savedIP        uint32
	hasSavedIP     bool

	ip        uint32
	this      Value
	args      []Value
	newTarget Value
}

// Context returns the context of the running function.
func (fr *Frame) Context() *Context { return fr.ctx }

// Caller returns the previous frame, or nil for the outermost frame.
func (fr *Frame) Caller() *Frame { return fr.prev }

// Callee returns the function being run; undefined for raw code blocks.
func (fr *Frame) Callee() Value { return fr.callee }

// CodeBlock returns the code block being run, or nil for native frames.
func (fr *Frame) CodeBlock() *CodeBlock { return fr.codeBlock }

// IsNative reports whether the frame runs native code.
func (fr *Frame) IsNative() bool { return fr.codeBlock == nil }

// This returns the this value of the call.
func (fr *Frame) This() Value { return fr.this }

// Args returns the call arguments.
func (fr *Frame) Args() []Value { return fr.args }

// Arg returns the i-th argument, or undefined.
func (fr *Frame) Arg(i int) Value {
	if i < len(fr.args) {
		return fr.args[i]
	}
	return fr.ctx.Undefined()
}

// NewTarget returns new.target; undefined for plain calls.
func (fr *Frame) NewTarget() Value { return fr.newTarget }

// IP returns the current bytecode offset of the frame.
func (fr *Frame) IP() uint32 { return fr.ip }

// At moves the frame's program counter to offset.
func (fr *Frame) At(offset uint32) *Frame {
	fr.ip = offset
	return fr
}

// Call calls fn from the frame's current offset.
func (fr *Frame) Call(fn Value, this Value, args ...Value) (Value, error) {
	return fr.ctx.call(fn, this, args, Value{})
}

// Construct calls ctor as a constructor from the frame's current offset.
func (fr *Frame) Construct(ctor Value, args ...Value) (Value, error) {
	return fr.ctx.Construct(ctor, args...)
}

// Closure creates a function object for cb.
func (fr *Frame) Closure(cb *CodeBlock) Value {
	return fr.ctx.Closure(cb)
}

// Throw throws v from the frame's current offset. An Error value gets its
// stack trace recorded here if it has none yet.
func (fr *Frame) Throw(v Value) error {
	if v.IsError() {
		if err := fr.ctx.RecordStackTrace(v.obj, false, fr.codeBlock, fr.ip); err != nil {
			fr.ctx.rt.logger.WithError(err).Debug("stack trace not recorded on throw")
		}
	}
	return newException(v)
}

// calleeCodeBlock returns the code block of the callee, for script frames.
func (fr *Frame) calleeCodeBlock() *CodeBlock {
	return fr.codeBlock
}
