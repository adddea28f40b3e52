package wasm

import (
	"bytes"
	"fmt"
	"io"
)

var (
	magic   = []byte{0x00, 0x61, 0x73, 0x6D}
	version = []byte{0x01, 0x00, 0x00, 0x00}
)

// Import describes a single entry of the import section: a
// (module-name, field-name, kind, descriptor) tuple.
type Import struct {
	Module, Name string
	Kind         ImportKind

	// Exactly one of the following is populated, selected by Kind. Memory
	// imports are rejected at parse time (see readImport), so there is no
	// Limits field here: spec §3 allows a module's single memory to come
	// from its own memory section only.
	FuncTypeIndex uint32
	Global        *GlobalType
}

// GlobalType is a value type plus a mutability flag.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// GlobalSegment is a module-defined global's declared type and constant
// initializer expression.
type GlobalSegment struct {
	Type *GlobalType
	Init *ConstExpr
}

// Export is a (name, kind, index) tuple naming an entry visible to the
// embedder.
type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

// Code is a parsed function body: the aggregate local count and the two
// parallel streams the interpreter dispatches over (see CodeSegment for
// the pre-decoding rationale).
type Code struct {
	LocalCount uint32
	LocalTypes []ValType // one entry per local; all locals are untyped 64-bit slots at runtime, so this is kept for validation/diagnostics rather than execution.
	Body       *CodeSegment
}

// Module is the immutable, decoded representation of a binary module. It
// is logically read-only and may be shared by any number of Instances.
type Module struct {
	TypeSection     []*FuncType
	ImportSection   []*Import
	FunctionSection []uint32 // type index per locally defined function
	MemorySection   []*Limits
	GlobalSection   []*GlobalSegment
	ExportSection   []*Export
	StartSection    *uint32
	CodeSection     []*Code
}

// DecodeModule parses a binary module, returning an error for any
// structural defect. Most such errors wrap one of the sentinels in
// errors.go.
func DecodeModule(data []byte) (*Module, error) {
	r := bytes.NewReader(data)

	var prefix [8]byte
	if n, err := io.ReadFull(r, prefix[:]); err != nil || n != 8 {
		return nil, fmt.Errorf("read module header: %w", ErrInvalidMagicNumber)
	}
	if !bytes.Equal(prefix[:4], magic) {
		return nil, fmt.Errorf("%w: got %#x", ErrInvalidMagicNumber, prefix[:4])
	}
	if !bytes.Equal(prefix[4:8], version) {
		return nil, fmt.Errorf("%w: got %#x", ErrInvalidVersion, prefix[4:8])
	}

	m := &Module{}
	if err := m.readSections(r); err != nil {
		return nil, err
	}

	if len(m.FunctionSection) != len(m.CodeSection) {
		return nil, fmt.Errorf("function and code section have inconsistent lengths: %d != %d",
			len(m.FunctionSection), len(m.CodeSection))
	}

	if err := m.validateIndices(); err != nil {
		return nil, err
	}

	return m, nil
}

// validateIndices rejects the obviously malformed cross-references that
// spec.md §1 says a parser should still catch: out of range type indices
// anywhere a type index is stored, and a start-function index referring
// outside the combined import+defined function space.
func (m *Module) validateIndices() error {
	numTypes := uint32(len(m.TypeSection))
	for i, idx := range m.FunctionSection {
		if idx >= numTypes {
			return fmt.Errorf("function %d: %w: type index %d", i, ErrIndexOutOfRange, idx)
		}
	}
	for _, imp := range m.ImportSection {
		if imp.Kind == ImportKindFunc && imp.FuncTypeIndex >= numTypes {
			return fmt.Errorf("import %s.%s: %w: type index %d", imp.Module, imp.Name, ErrIndexOutOfRange, imp.FuncTypeIndex)
		}
	}

	numFuncs := uint32(m.numImportedFuncs()) + uint32(len(m.FunctionSection))
	if m.StartSection != nil && *m.StartSection >= numFuncs {
		return fmt.Errorf("start section: %w: function index %d", ErrIndexOutOfRange, *m.StartSection)
	}

	numImportedGlobals := uint32(m.numImportedGlobals())
	for i, g := range m.GlobalSection {
		if g.Init.Kind == ConstExprGlobalGet && g.Init.GlobalIndex >= numImportedGlobals {
			return fmt.Errorf("global %d: %w: initializer references global index %d, only %d imported globals precede it",
				i, ErrIndexOutOfRange, g.Init.GlobalIndex, numImportedGlobals)
		}
	}

	for _, exp := range m.ExportSection {
		switch exp.Kind {
		case ExportKindFunc:
			if exp.Index >= numFuncs {
				return fmt.Errorf("export %q: %w: function index %d", exp.Name, ErrIndexOutOfRange, exp.Index)
			}
		case ExportKindGlobal:
			total := numImportedGlobals + uint32(len(m.GlobalSection))
			if exp.Index >= total {
				return fmt.Errorf("export %q: %w: global index %d", exp.Name, ErrIndexOutOfRange, exp.Index)
			}
		}
	}
	return nil
}

func (m *Module) numImportedFuncs() int {
	n := 0
	for _, imp := range m.ImportSection {
		if imp.Kind == ImportKindFunc {
			n++
		}
	}
	return n
}

func (m *Module) numImportedGlobals() int {
	n := 0
	for _, imp := range m.ImportSection {
		if imp.Kind == ImportKindGlobal {
			n++
		}
	}
	return n
}
