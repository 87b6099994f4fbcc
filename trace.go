package jserror

import (
	"strconv"

	"codeberg.org/gruf/go-byteutil"
)

const (
	printHead = 50
	printTail = 50
)

// frameLocation is the resolved source position of a captured frame.
type frameLocation struct {
	native bool

	// address locations are synthesized from the segment id and the
	// virtual bytecode offset when no debug info covers the frame.
	address bool

	file   string
	line   uint32
	column uint32
}

// virtualOffsets memoizes CodeBlock.VirtualOffset for one formatting pass.
type virtualOffsets map[*CodeBlock]uint32

func (c virtualOffsets) of(cb *CodeBlock) uint32 {
	off, ok := c[cb]
	if !ok {
		off = cb.VirtualOffset()
		c[cb] = off
	}
	return off
}

// locate resolves an entry to a source position.
func locate(e StackTraceEntry, cache virtualOffsets) frameLocation {
	cb := e.CodeBlock
	if cb == nil {
		return frameLocation{native: true}
	}
	m := cb.module
	if loc, ok := m.debugInfo.LocationForAddress(cb.debugOffset, e.BytecodeOffset); ok {
		return frameLocation{
			file:   m.debugInfo.FilenameByID(loc.FilenameID),
			line:   loc.Line,
			column: loc.Column,
		}
	}
	file := m.sourceURL
	if file == "" {
		file = "unknown"
	}
	return frameLocation{
		address: true,
		file:    file,
		line:    m.segmentID + 1,
		column:  e.BytecodeOffset + cache.of(cb),
	}
}

func (l frameLocation) appendTo(buf *byteutil.Buffer) {
	if l.address {
		buf.WriteString("address at ")
	}
	buf.WriteString(l.file)
	buf.WriteByte(':')
	buf.B = strconv.AppendUint(buf.B, uint64(l.line), 10)
	buf.WriteByte(':')
	buf.B = strconv.AppendUint(buf.B, uint64(l.column), 10)
}

// functionNameAt returns the display name of frame i: the collected name if
// it is a non-empty string, else the code block's name, else "".
func functionNameAt(rec *ErrorRecord, i int) string {
	if v := rec.nameAt(i); v.IsString() && v.str != "" {
		return v.str
	}
	if cb := rec.trace[i].CodeBlock; cb != nil {
		return cb.name
	}
	return ""
}

// BuildTraceString formats the trace recorded in errObj, using target for
// the header line. Only a native stack overflow or another uncatchable
// error fails; failures converting the header to a string are rendered
// inline.
func (ctx *Context) BuildTraceString(errObj, target *Object) (string, error) {
	rt := ctx.rt
	if !rt.enterNative() {
		return "", ctx.raiseNativeStackOverflow()
	}
	defer rt.exitNative()

	scope := rt.newGCScope()
	defer scope.close()
	scope.root(errObj.Value())
	scope.root(target.Value())

	rec := errObj.err
	var buf byteutil.Buffer

	header, err := ctx.ErrorToString(target)
	threw := err != nil
	if err != nil {
		if thrown, ok := Catch(err); ok && thrown.IsObject() {
			scope.root(thrown)
			header, err = ctx.ErrorToString(thrown.obj)
		}
	}
	switch {
	case err != nil:
		if IsUncatchable(err) {
			return "", err
		}
		rt.logger.WithError(err).Debug("error header not convertible to string")
		buf.WriteString("<error>")
	case threw:
		buf.WriteString("<while converting error to string: ")
		buf.WriteString(header)
		buf.WriteByte('>')
	default:
		buf.WriteString(header)
	}

	if !rec.captured {
		return buf.String(), nil
	}

	cache := make(virtualOffsets)
	first := int(rec.firstExposed)
	exposed := len(rec.trace) - first
	for index := 0; index < exposed; index++ {
		if exposed > printHead+printTail {
			if index == printHead {
				buf.WriteString("\n    ... skipping ")
				buf.B = strconv.AppendInt(buf.B, int64(exposed-printHead-printTail), 10)
				buf.WriteString(" frames")
				continue
			}
			if index > printHead && index < exposed-printTail {
				index = exposed - printTail
			}
		}

		abs := index + first
		buf.WriteString("\n    at ")
		if name := functionNameAt(rec, abs); name != "" {
			buf.WriteString(name)
		} else {
			buf.WriteString("anonymous")
		}

		loc := locate(rec.trace[abs], cache)
		if loc.native {
			buf.WriteString(" (native)")
			continue
		}
		buf.WriteString(" (")
		loc.appendTo(&buf)
		buf.WriteByte(')')
	}
	return buf.String(), nil
}
