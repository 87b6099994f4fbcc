package jserror

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxStackSize     = 10000
	defaultNativeStackLimit = 1024
	defaultMaxStringLength  = 1<<28 - 1
	nativeStackHeadroom     = 64
	objectCellSize          = 48
	moduleCellSize          = 128
	codeBlockCellSize       = 64
	domainCellSize          = 32
	arrayStorageHeaderSize  = 16
	arrayStorageSlotSize    = 8
	stackTraceHeaderSize    = 24
	stackTraceEntrySize     = 16
	unlimitedMemory         = 0
)

// Runtime represents a Javascript runtime corresponding to an object heap.
// Several runtimes can exist at the same time but they cannot exchange objects.
// Inside a given runtime, no multi-threading is supported.
type Runtime struct {
	logger   logrus.FieldLogger
	atoms    *atomTable
	handles  *HandleStore
	contexts []*Context

	// live frame chain, innermost first through Frame.prev.
	top   *Frame
	depth int

	heap    []*Object
	domains []*Domain
	nextDom uint64
	gcEpoch uint32

	memoryLimit    int
	heapUsage      int
	externalUsage  int
	maxStackSize   int
	maxStringLen   int
	nativeLimit    int
	nativeDepth    int
	nativeHeadroom bool

	formattingStackTrace bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithMaxStackSize sets the maximum script call depth; 0 keeps the default.
func WithMaxStackSize(size int) Option {
	return func(rt *Runtime) {
		if size > 0 {
			rt.maxStackSize = size
		}
	}
}

// WithNativeStackLimit sets the maximum depth of nested native operations
// (native calls, trace formatting); 0 keeps the default.
func WithNativeStackLimit(limit int) Option {
	return func(rt *Runtime) {
		if limit > 0 {
			rt.nativeLimit = limit
		}
	}
}

// WithMemoryLimit sets the managed heap limit in bytes; 0 means unlimited.
func WithMemoryLimit(limit int) Option {
	return func(rt *Runtime) {
		rt.memoryLimit = limit
	}
}

// WithMaxStringLength sets the longest string primitive the runtime can create.
func WithMaxStringLength(n int) Option {
	return func(rt *Runtime) {
		if n > 0 {
			rt.maxStringLen = n
		}
	}
}

// WithLogger sets the logger used for runtime diagnostics.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// NewRuntime creates a new runtime.
func NewRuntime(opts ...Option) *Runtime {
	rt := &Runtime{
		logger:       logrus.StandardLogger(),
		atoms:        newAtomTable(),
		handles:      NewHandleStore(),
		memoryLimit:  unlimitedMemory,
		maxStackSize: defaultMaxStackSize,
		maxStringLen: defaultMaxStringLength,
		nativeLimit:  defaultNativeStackLimit,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// NewContext creates a new JavaScript context with its own global object and intrinsics.
func (rt *Runtime) NewContext() *Context {
	ctx := &Context{rt: rt}
	ctx.init()
	rt.contexts = append(rt.contexts, ctx)
	return ctx
}

// Close drops every root and context; the runtime must not be used afterwards.
func (rt *Runtime) Close() {
	rt.handles.Clear()
	rt.contexts = nil
	rt.top = nil
	rt.depth = 0
	rt.RunGC()
}

// SetMemoryLimit sets the managed heap limit; 0 means unlimited.
func (rt *Runtime) SetMemoryLimit(limit int) {
	rt.memoryLimit = limit
}

// SetMaxStackSize sets the maximum script call depth.
func (rt *Runtime) SetMaxStackSize(size int) {
	if size > 0 {
		rt.maxStackSize = size
	}
}

// Pin roots v until the returned handle is released.
func (rt *Runtime) Pin(v Value) Handle {
	return Handle{rt: rt, id: rt.handles.Store(v)}
}

// Handles returns the runtime's root set.
func (rt *Runtime) Handles() *HandleStore {
	return rt.handles
}

// Domains returns the currently loaded domains.
func (rt *Runtime) Domains() []*Domain {
	return rt.domains
}

// CurrentFrame returns the innermost live frame, or nil when no code is running.
func (rt *Runtime) CurrentFrame() *Frame {
	return rt.top
}

// FormattingStackTrace reports whether a prepareStackTrace hook is running.
func (rt *Runtime) FormattingStackTrace() bool {
	return rt.formattingStackTrace
}

// MemoryUsage describes the runtime's accounted memory.
type MemoryUsage struct {
	Heap     int // managed cells: objects, modules, domain lists, name tables
	External int // malloc'ed buffers owned by cells, such as stack traces
	Limit    int // 0 when unlimited
}

// MemoryUsage returns the runtime's accounted memory.
func (rt *Runtime) MemoryUsage() MemoryUsage {
	return MemoryUsage{Heap: rt.heapUsage, External: rt.externalUsage, Limit: rt.memoryLimit}
}

// ErrOutOfMemory is returned when a managed allocation exceeds the memory limit.
// Script cannot catch it.
var ErrOutOfMemory = errors.New("out of memory")

func (rt *Runtime) alloc(size int) error {
	if rt.memoryLimit != unlimitedMemory && rt.heapUsage+size > rt.memoryLimit {
		return errors.Wrapf(ErrOutOfMemory, "allocating %d bytes with %d of %d in use", size, rt.heapUsage, rt.memoryLimit)
	}
	rt.heapUsage += size
	return nil
}

func (rt *Runtime) free(size int) {
	rt.heapUsage -= size
	if rt.heapUsage < 0 {
		rt.heapUsage = 0
	}
}

func (rt *Runtime) newDomain() *Domain {
	rt.nextDom++
	d := &Domain{id: rt.nextDom, rt: rt}
	rt.heapUsage += domainCellSize
	rt.domains = append(rt.domains, d)
	return d
}

// enterNative guards a nested native operation against unbounded recursion.
func (rt *Runtime) enterNative() bool {
	limit := rt.nativeLimit
	if rt.nativeHeadroom {
		limit += nativeStackHeadroom
	}
	if rt.nativeDepth >= limit {
		return false
	}
	rt.nativeDepth++
	return true
}

func (rt *Runtime) exitNative() {
	rt.nativeDepth--
}

// reserveNativeHeadroom grants extra native depth once, so that a stack
// overflow error can still format its own trace. The returned func restores it.
func (rt *Runtime) reserveNativeHeadroom() func() {
	if rt.nativeHeadroom {
		return func() {}
	}
	rt.nativeHeadroom = true
	return func() { rt.nativeHeadroom = false }
}
