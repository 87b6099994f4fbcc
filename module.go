package jserror

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// DOMAINS, MODULES AND CODE BLOCKS
// =============================================================================

// Domain is the unit of lifetime management for compiled code. It owns one
// or more RuntimeModules; the modules stay loaded while anything reachable
// (a closure, a live frame, a captured stack trace) references the domain.
type Domain struct {
	id       uint64
	rt       *Runtime
	modules  []*RuntimeModule
	unloaded bool
	mark     uint32
}

// ID returns the runtime-unique id of the domain.
func (d *Domain) ID() uint64 { return d.id }

// Loaded reports whether the domain's modules are still loaded.
func (d *Domain) Loaded() bool { return !d.unloaded }

// Modules returns the modules owned by the domain.
func (d *Domain) Modules() []*RuntimeModule { return d.modules }

// RuntimeModule is a loaded bytecode module.
type RuntimeModule struct {
	ctx       *Context
	domain    *Domain
	sourceURL string
	segmentID uint32
	functions []*CodeBlock
	global    *CodeBlock
	debugInfo *DebugInfo
}

// Domain returns the owning domain.
func (m *RuntimeModule) Domain() *Domain { return m.domain }

// SourceURL returns the module's source URL, possibly empty.
func (m *RuntimeModule) SourceURL() string { return m.sourceURL }

// SegmentID returns the bytecode segment the module was loaded from.
func (m *RuntimeModule) SegmentID() uint32 { return m.segmentID }

// Functions returns the module's function table in bytecode order.
func (m *RuntimeModule) Functions() []*CodeBlock { return m.functions }

// DebugInfo returns the module's debug info, or nil when stripped.
func (m *RuntimeModule) DebugInfo() *DebugInfo { return m.debugInfo }

// Body is the executable body of a code block.
type Body func(fr *Frame) (Value, error)

// CodeBlock is a compiled function body within a module.
type CodeBlock struct {
	module      *RuntimeModule
	functionID  uint32
	name        string
	size        uint32
	body        Body
	debugOffset int // index into the module's location tables, -1 if none
	locations   []SourceLocation
}

// Name returns the symbolic name of the code block; empty when anonymous.
func (cb *CodeBlock) Name() string { return cb.name }

// Module returns the module that owns the code block.
func (cb *CodeBlock) Module() *RuntimeModule { return cb.module }

// FunctionID returns the index of the code block in its module's function table.
func (cb *CodeBlock) FunctionID() uint32 { return cb.functionID }

// Size returns the bytecode length of the code block.
func (cb *CodeBlock) Size() uint32 { return cb.size }

// OffsetOf returns the bytecode offset of ip within the code block.
// Instruction pointers are already block-relative offsets; the value is
// clamped to the block.
func (cb *CodeBlock) OffsetOf(ip uint32) uint32 {
	if cb.size > 0 && ip >= cb.size {
		return cb.size - 1
	}
	return ip
}

// VirtualOffset returns the offset of the code block within the module's
// concatenated bytecode. It scans the function table.
func (cb *CodeBlock) VirtualOffset() uint32 {
	var off uint32
	for _, f := range cb.module.functions {
		if f == cb {
			return off
		}
		off += f.size
	}
	return off
}

// DebugSourceLocation maps a bytecode address to a source position.
type DebugSourceLocation struct {
	Address    uint32
	Line       uint32
	Column     uint32
	FilenameID uint32
}

// DebugInfo holds a module's filename table and per-function location tables.
type DebugInfo struct {
	filenames []string
	tables    [][]DebugSourceLocation
}

// FilenameByID returns the filename registered under id.
func (d *DebugInfo) FilenameByID(id uint32) string {
	if int(id) < len(d.filenames) {
		return d.filenames[id]
	}
	return ""
}

// LocationForAddress returns the last location in the table at offset whose
// address does not exceed addr.
func (d *DebugInfo) LocationForAddress(offset int, addr uint32) (DebugSourceLocation, bool) {
	if d == nil || offset < 0 || offset >= len(d.tables) {
		return DebugSourceLocation{}, false
	}
	table := d.tables[offset]
	i := sort.Search(len(table), func(i int) bool { return table[i].Address > addr })
	if i == 0 {
		return DebugSourceLocation{}, false
	}
	return table[i-1], true
}

// =============================================================================
// MODULE BUILDER API
// =============================================================================

// SourceLocation is a debug location supplied to the ModuleBuilder.
type SourceLocation struct {
	Address uint32
	Line    uint32
	Column  uint32
	File    string // defaults to the module's source URL
}

// ModuleBuilder provides a fluent API for building bytecode modules.
type ModuleBuilder struct {
	sourceURL  string
	segmentID  uint32
	domain     *Domain
	stripDebug bool
	functions  []*CodeBlock
	global     *CodeBlock
}

// NewModuleBuilder creates a new ModuleBuilder for a module with the given source URL.
func NewModuleBuilder(sourceURL string) *ModuleBuilder {
	return &ModuleBuilder{sourceURL: sourceURL}
}

// Segment sets the bytecode segment id of the module.
func (mb *ModuleBuilder) Segment(id uint32) *ModuleBuilder {
	mb.segmentID = id
	return mb
}

// InDomain loads the module into an existing domain instead of a fresh one.
func (mb *ModuleBuilder) InDomain(d *Domain) *ModuleBuilder {
	mb.domain = d
	return mb
}

// StripDebugInfo drops all source locations at load time.
func (mb *ModuleBuilder) StripDebugInfo(strip bool) *ModuleBuilder {
	mb.stripDebug = strip
	return mb
}

// Function adds a function to the module's function table and returns its
// code block. The code block can be referenced by other bodies before the
// module is loaded.
func (mb *ModuleBuilder) Function(name string, size uint32, body Body, locs ...SourceLocation) *CodeBlock {
	cb := &CodeBlock{
		functionID:  uint32(len(mb.functions)),
		name:        name,
		size:        size,
		body:        body,
		debugOffset: -1,
		locations:   locs,
	}
	mb.functions = append(mb.functions, cb)
	return cb
}

// Global adds the module's top-level code block, named "global".
func (mb *ModuleBuilder) Global(size uint32, body Body, locs ...SourceLocation) *CodeBlock {
	mb.global = mb.Function("global", size, body, locs...)
	return mb.global
}

// validateModuleBuilder validates ModuleBuilder configuration
func validateModuleBuilder(mb *ModuleBuilder) error {
	if len(mb.functions) == 0 {
		return errors.New("module has no functions")
	}
	for _, cb := range mb.functions {
		if cb.module != nil {
			return errors.Errorf("function %q already belongs to a loaded module", cb.name)
		}
		if cb.body == nil {
			return errors.Errorf("function %q has no body", cb.name)
		}
		if cb.size == 0 {
			return errors.Errorf("function %q has zero size", cb.name)
		}
	}
	if mb.domain != nil && mb.domain.unloaded {
		return errors.Errorf("domain %d is unloaded", mb.domain.id)
	}
	return nil
}

// buildDebugInfo assigns filename ids and location tables.
func (mb *ModuleBuilder) buildDebugInfo() *DebugInfo {
	if mb.stripDebug {
		return nil
	}
	di := &DebugInfo{}
	fileIDs := make(map[string]uint32)
	for _, cb := range mb.functions {
		if len(cb.locations) == 0 {
			continue
		}
		table := make([]DebugSourceLocation, 0, len(cb.locations))
		for _, loc := range cb.locations {
			file := loc.File
			if file == "" {
				file = mb.sourceURL
			}
			id, ok := fileIDs[file]
			if !ok {
				id = uint32(len(di.filenames))
				di.filenames = append(di.filenames, file)
				fileIDs[file] = id
			}
			table = append(table, DebugSourceLocation{
				Address:    loc.Address,
				Line:       loc.Line,
				Column:     loc.Column,
				FilenameID: id,
			})
		}
		sort.SliceStable(table, func(i, j int) bool { return table[i].Address < table[j].Address })
		cb.debugOffset = len(di.tables)
		di.tables = append(di.tables, table)
	}
	if len(di.tables) == 0 {
		return nil
	}
	return di
}

// LoadModule loads the built module into the context's runtime.
func (ctx *Context) LoadModule(mb *ModuleBuilder) (*RuntimeModule, error) {
	if err := validateModuleBuilder(mb); err != nil {
		return nil, errors.Wrap(err, "invalid module")
	}
	rt := ctx.rt

	size := moduleCellSize + len(mb.functions)*codeBlockCellSize
	if err := rt.alloc(size); err != nil {
		return nil, err
	}

	domain := mb.domain
	if domain == nil {
		domain = rt.newDomain()
	}
	m := &RuntimeModule{
		ctx:       ctx,
		domain:    domain,
		sourceURL: mb.sourceURL,
		segmentID: mb.segmentID,
		functions: mb.functions,
		global:    mb.global,
	}
	m.debugInfo = mb.buildDebugInfo()
	for _, cb := range mb.functions {
		cb.module = m
		if m.debugInfo == nil {
			cb.debugOffset = -1
		}
	}
	domain.modules = append(domain.modules, m)

	rt.logger.WithFields(logrus.Fields{
		"sourceURL": m.sourceURL,
		"segment":   m.segmentID,
		"functions": len(m.functions),
		"domain":    domain.id,
	}).Debug("module loaded")
	return m, nil
}

// Run executes the module's global code block. The frame's callee is the
// raw code block, not a closure.
func (m *RuntimeModule) Run() (Value, error) {
	if m.global == nil {
		return Value{}, errors.Errorf("module %q has no global code", m.sourceURL)
	}
	if m.domain.unloaded {
		return Value{}, errors.Errorf("module %q is unloaded", m.sourceURL)
	}
	return m.ctx.runCodeBlock(m.global, m.ctx.globals.Value())
}

// Closure returns a new function object for the named code block.
func (m *RuntimeModule) Closure(name string) (Value, error) {
	if m.domain.unloaded {
		return Value{}, errors.Errorf("module %q is unloaded", m.sourceURL)
	}
	for _, cb := range m.functions {
		if cb.name == name {
			return m.ctx.Closure(cb), nil
		}
	}
	return Value{}, errors.Errorf("module %q has no function %q", m.sourceURL, name)
}
