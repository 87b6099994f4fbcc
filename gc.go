package jserror

import (
	"codeberg.org/gruf/go-bytesize"
	"github.com/sirupsen/logrus"
)

// RunGC runs a full mark and sweep over the runtime heap.
//
// Roots are the handle store, every open context's intrinsics and the live
// frames. Unreached objects are finalized; Error records release their trace
// buffers. Domains no longer referenced by a closure, a live frame or an
// Error record are unloaded.
func (rt *Runtime) RunGC() {
	rt.gcEpoch++
	m := &marker{epoch: rt.gcEpoch}

	rt.handles.Range(func(_ int32, v Value) bool {
		m.value(v)
		return true
	})
	for _, ctx := range rt.contexts {
		m.context(ctx)
	}
	for fr := rt.top; fr != nil; fr = fr.prev {
		m.frame(fr)
	}
	m.drain()

	heapBefore, externalBefore := rt.heapUsage, rt.externalUsage

	live := rt.heap[:0]
	finalized := 0
	for _, obj := range rt.heap {
		if obj.mark == m.epoch {
			live = append(live, obj)
			continue
		}
		if obj.err != nil {
			obj.err.finalize(rt)
		}
		rt.free(obj.size)
		finalized++
	}
	for i := len(live); i < len(rt.heap); i++ {
		rt.heap[i] = nil
	}
	rt.heap = live

	loaded := rt.domains[:0]
	for _, d := range rt.domains {
		if d.mark == m.epoch {
			loaded = append(loaded, d)
			continue
		}
		rt.unloadDomain(d)
	}
	for i := len(loaded); i < len(rt.domains); i++ {
		rt.domains[i] = nil
	}
	rt.domains = loaded

	rt.logger.WithFields(logrus.Fields{
		"finalized":     finalized,
		"live":          len(rt.heap),
		"domains":       len(rt.domains),
		"heapFreed":     bytesize.Size(heapBefore - rt.heapUsage).String(),
		"externalFreed": bytesize.Size(externalBefore - rt.externalUsage).String(),
		"heap":          bytesize.Size(rt.heapUsage).String(),
	}).Debug("gc cycle")
}

func (rt *Runtime) unloadDomain(d *Domain) {
	d.unloaded = true
	size := domainCellSize
	for _, m := range d.modules {
		size += moduleCellSize + len(m.functions)*codeBlockCellSize
	}
	rt.free(size)
	rt.logger.WithFields(logrus.Fields{
		"domain":  d.id,
		"modules": len(d.modules),
		"freed":   bytesize.Size(size).String(),
	}).Debug("domain unloaded")
}

// marker is the mark phase state. Objects are greyed onto a work list so
// deep prototype or trace graphs do not recurse.
type marker struct {
	epoch uint32
	grey  []*Object
}

func (m *marker) value(v Value) {
	if v.obj != nil {
		m.object(v.obj)
	}
}

func (m *marker) object(o *Object) {
	if o == nil || o.mark == m.epoch {
		return
	}
	o.mark = m.epoch
	m.grey = append(m.grey, o)
}

func (m *marker) domain(d *Domain) {
	if d != nil {
		d.mark = m.epoch
	}
}

func (m *marker) codeBlock(cb *CodeBlock) {
	if cb != nil && cb.module != nil {
		m.domain(cb.module.domain)
	}
}

func (m *marker) context(ctx *Context) {
	for _, o := range [...]*Object{
		ctx.globals,
		ctx.objectProto,
		ctx.functionProto,
		ctx.arrayProto,
		ctx.errorProto,
		ctx.errorCtor,
		ctx.typeErrorProto,
		ctx.rangeErrorProto,
		ctx.referenceErrorProto,
		ctx.syntaxErrorProto,
		ctx.callSiteProto,
		ctx.stackGetter,
		ctx.stackSetter,
	} {
		m.object(o)
	}
	for _, ctor := range ctx.errorCtors {
		m.object(ctor)
	}
}

func (m *marker) frame(fr *Frame) {
	m.value(fr.callee)
	m.value(fr.this)
	m.value(fr.newTarget)
	for _, a := range fr.args {
		m.value(a)
	}
	m.codeBlock(fr.codeBlock)
	m.codeBlock(fr.savedCodeBlock)
}

func (m *marker) drain() {
	for len(m.grey) > 0 {
		o := m.grey[len(m.grey)-1]
		m.grey = m.grey[:len(m.grey)-1]
		m.scan(o)
	}
}

// scan reports every reference owned by o.
func (m *marker) scan(o *Object) {
	m.object(o.proto)
	for _, p := range o.props {
		m.value(p.value)
		m.object(p.getter)
		m.object(p.setter)
	}
	for _, e := range o.elements {
		m.value(e)
	}
	m.codeBlock(o.code)
	if b := o.bound; b != nil {
		m.object(b.target)
		m.value(b.this)
		for _, a := range b.args {
			m.value(a)
		}
	}
	if p := o.proxy; p != nil {
		m.object(p.target)
		m.object(p.handler)
	}
	if o.site != nil {
		m.object(o.site.err)
	}
	if r := o.err; r != nil {
		for _, n := range r.names {
			m.value(n)
		}
		for _, d := range r.domains {
			m.domain(d)
		}
	}
}
