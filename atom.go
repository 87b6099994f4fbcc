package jserror

import "strconv"

// Atom represents an interned property name.
// Object property names are stored as Atoms (unique strings) to save memory and allow fast comparison.
// Internal atoms name hidden slots; they have no string form reachable from script.
type Atom uint32

const (
	atomInvalid Atom = iota
	AtomName
	AtomMessage
	AtomStack
	AtomDisplayName
	AtomPrepareStackTrace
	AtomLength
	AtomPrototype
	AtomConstructor
	AtomCause
	AtomToString
	AtomValueOf
	AtomGet
	AtomSet
	AtomApply

	// internal atoms, not reachable through Runtime.Atom.
	atomCapturedError

	atomPredefinedCount
)

var predefinedAtoms = [atomPredefinedCount]string{
	atomInvalid:           "",
	AtomName:              "name",
	AtomMessage:           "message",
	AtomStack:             "stack",
	AtomDisplayName:       "displayName",
	AtomPrepareStackTrace: "prepareStackTrace",
	AtomLength:            "length",
	AtomPrototype:         "prototype",
	AtomConstructor:       "constructor",
	AtomCause:             "cause",
	AtomToString:          "toString",
	AtomValueOf:           "valueOf",
	AtomGet:               "get",
	AtomSet:               "set",
	AtomApply:             "apply",
	atomCapturedError:     "[[CapturedError]]",
}

type atomTable struct {
	ids   map[string]Atom
	names []string
}

func newAtomTable() *atomTable {
	t := &atomTable{
		ids:   make(map[string]Atom, 64),
		names: make([]string, atomPredefinedCount, 64),
	}
	for a, name := range predefinedAtoms {
		t.names[a] = name
		if Atom(a) != atomInvalid && Atom(a) < atomCapturedError {
			t.ids[name] = Atom(a)
		}
	}
	return t
}

func (t *atomTable) intern(name string) Atom {
	if a, ok := t.ids[name]; ok {
		return a
	}
	a := Atom(len(t.names))
	t.names = append(t.names, name)
	t.ids[name] = a
	return a
}

func (t *atomTable) name(a Atom) string {
	if int(a) < len(t.names) {
		return t.names[a]
	}
	return ""
}

func (t *atomTable) index(i int) Atom {
	return t.intern(strconv.Itoa(i))
}

// isInternal reports whether the atom names a hidden slot.
func (a Atom) isInternal() bool {
	return a == atomCapturedError
}

// Atom returns the atom for the given property name.
func (rt *Runtime) Atom(name string) Atom {
	return rt.atoms.intern(name)
}

// AtomString returns the string representation of the atom.
func (rt *Runtime) AtomString(a Atom) string {
	return rt.atoms.name(a)
}
