package wasm

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hugo-dc/fizzy/internal/utf8"
	"github.com/hugo-dc/fizzy/wasm/leb128"
)

// readSections walks the section stream until EOF, dispatching each one by
// its id. Every section (supported or not) is consumed by exactly its
// declared size; a handler that reads more or less than that is a parser
// bug caught here rather than silently desynchronizing the stream.
func (m *Module) readSections(r *bytes.Reader) error {
	for {
		idByte, err := r.ReadByte()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("read section id: %w", err)
		}
		id := SectionID(idByte)

		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("section %d size: %w", id, err)
		}

		start := int64(r.Size()) - int64(r.Len())
		payload := io.LimitReader(r, int64(size))

		var sectionErr error
		switch id {
		case SectionIDCustom:
			_, sectionErr = io.CopyN(io.Discard, payload, int64(size))
		case SectionIDType:
			sectionErr = m.readTypeSection(payload)
		case SectionIDImport:
			sectionErr = m.readImportSection(payload)
		case SectionIDFunction:
			sectionErr = m.readFunctionSection(payload)
		case SectionIDTable:
			sectionErr = skipSection(payload, size)
		case SectionIDMemory:
			sectionErr = m.readMemorySection(payload)
		case SectionIDGlobal:
			sectionErr = m.readGlobalSection(payload)
		case SectionIDExport:
			sectionErr = m.readExportSection(payload)
		case SectionIDStart:
			sectionErr = m.readStartSection(payload)
		case SectionIDElement:
			sectionErr = skipSection(payload, size)
		case SectionIDCode:
			sectionErr = m.readCodeSection(payload)
		case SectionIDData:
			sectionErr = skipSection(payload, size)
		default:
			sectionErr = fmt.Errorf("%w: %d", ErrInvalidSectionID, id)
		}
		if sectionErr != nil {
			return fmt.Errorf("section %d: %w", id, sectionErr)
		}

		consumed := (int64(r.Size()) - int64(r.Len())) - start
		if consumed != int64(size) {
			return fmt.Errorf("section %d: %w: declared %d, consumed %d", id, ErrSectionSizeMismatch, size, consumed)
		}
	}
}

func skipSection(r io.Reader, size uint32) error {
	_, err := io.CopyN(io.Discard, r, int64(size))
	return err
}

func readVectorSize(r io.Reader) (uint32, error) {
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return 0, fmt.Errorf("vector size: %w", err)
	}
	return n, nil
}

func readName(r io.Reader) (string, error) {
	size, err := readVectorSize(r)
	if err != nil {
		return "", fmt.Errorf("name size: %w", err)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("name bytes: %w", err)
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("%w: %q", ErrMalformedName, buf)
	}
	return string(buf), nil
}

func readValType(r io.Reader) (ValType, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read value type: %w", err)
	}
	switch vt := ValType(b[0]); vt {
	case ValTypeI32, ValTypeI64, ValTypeF32, ValTypeF64:
		return vt, nil
	default:
		return 0, fmt.Errorf("%w: value type %#x", ErrInvalidByte, b[0])
	}
}

func readValTypeVector(r io.Reader) ([]ValType, error) {
	n, err := readVectorSize(r)
	if err != nil {
		return nil, err
	}
	ret := make([]ValType, n)
	for i := range ret {
		if ret[i], err = readValType(r); err != nil {
			return nil, fmt.Errorf("%d-th value type: %w", i, err)
		}
	}
	return ret, nil
}

func (m *Module) readTypeSection(r io.Reader) error {
	n, err := readVectorSize(r)
	if err != nil {
		return err
	}
	m.TypeSection = make([]*FuncType, n)
	for i := range m.TypeSection {
		ft, err := readFuncType(r)
		if err != nil {
			return fmt.Errorf("%d-th function type: %w", i, err)
		}
		m.TypeSection[i] = ft
	}
	return nil
}

func readFuncType(r io.Reader) (*FuncType, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, fmt.Errorf("read form byte: %w", err)
	}
	if b[0] != 0x60 {
		return nil, fmt.Errorf("%w: function type form %#x != 0x60", ErrInvalidByte, b[0])
	}
	params, err := readValTypeVector(r)
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	results, err := readValTypeVector(r)
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	if len(results) > 1 {
		return nil, fmt.Errorf("multi-value results not supported: got %d", len(results))
	}
	return &FuncType{Params: params, Results: results}, nil
}

func readLimits(r io.Reader) (*Limits, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, fmt.Errorf("read limits flag: %w", err)
	}
	lim := &Limits{}
	var err error
	switch b[0] {
	case 0x00:
		lim.Min, _, err = leb128.DecodeUint32(r)
	case 0x01:
		if lim.Min, _, err = leb128.DecodeUint32(r); err != nil {
			break
		}
		var max uint32
		max, _, err = leb128.DecodeUint32(r)
		lim.Max = &max
	default:
		return nil, fmt.Errorf("%w: limits flag %#x", ErrInvalidByte, b[0])
	}
	if err != nil {
		return nil, fmt.Errorf("limits bounds: %w", err)
	}
	return lim, nil
}

func readMemoryLimits(r io.Reader) (*Limits, error) {
	lim, err := readLimits(r)
	if err != nil {
		return nil, err
	}
	if lim.Min > MaxPages {
		return nil, fmt.Errorf("memory min %d exceeds engine ceiling of %d pages", lim.Min, MaxPages)
	}
	if lim.Max != nil {
		if *lim.Max < lim.Min {
			return nil, fmt.Errorf("memory max %d is less than min %d", *lim.Max, lim.Min)
		}
		if *lim.Max > MaxPages {
			return nil, fmt.Errorf("memory max %d exceeds engine ceiling of %d pages", *lim.Max, MaxPages)
		}
	}
	return lim, nil
}

func readGlobalType(r io.Reader) (*GlobalType, error) {
	vt, err := readValType(r)
	if err != nil {
		return nil, fmt.Errorf("value type: %w", err)
	}
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, fmt.Errorf("read mutability: %w", err)
	}
	switch b[0] {
	case 0x00:
		return &GlobalType{ValType: vt}, nil
	case 0x01:
		return &GlobalType{ValType: vt, Mutable: true}, nil
	default:
		return nil, fmt.Errorf("%w: mutability %#x", ErrInvalidByte, b[0])
	}
}

func (m *Module) readImportSection(r io.Reader) error {
	n, err := readVectorSize(r)
	if err != nil {
		return err
	}
	m.ImportSection = make([]*Import, n)
	for i := range m.ImportSection {
		imp, err := readImport(r)
		if err != nil {
			return fmt.Errorf("%d-th import: %w", i, err)
		}
		m.ImportSection[i] = imp
	}
	return nil
}

func readImport(r io.Reader) (*Import, error) {
	moduleName, err := readName(r)
	if err != nil {
		return nil, fmt.Errorf("module name: %w", err)
	}
	fieldName, err := readName(r)
	if err != nil {
		return nil, fmt.Errorf("field name: %w", err)
	}
	var kindByte [1]byte
	if _, err := io.ReadFull(r, kindByte[:]); err != nil {
		return nil, fmt.Errorf("import kind: %w", err)
	}

	imp := &Import{Module: moduleName, Name: fieldName, Kind: ImportKind(kindByte[0])}
	switch imp.Kind {
	case ImportKindFunc:
		imp.FuncTypeIndex, _, err = leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("func type index: %w", err)
		}
	case ImportKindTable:
		return nil, fmt.Errorf("%w: table import %s.%s", ErrUnsupportedImport, moduleName, fieldName)
	case ImportKindMemory:
		return nil, fmt.Errorf("%w: memory import %s.%s", ErrUnsupportedImport, moduleName, fieldName)
	case ImportKindGlobal:
		imp.Global, err = readGlobalType(r)
		if err != nil {
			return nil, fmt.Errorf("global type: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnsupportedImport, kindByte[0])
	}
	return imp, nil
}

func (m *Module) readFunctionSection(r io.Reader) error {
	n, err := readVectorSize(r)
	if err != nil {
		return err
	}
	m.FunctionSection = make([]uint32, n)
	for i := range m.FunctionSection {
		m.FunctionSection[i], _, err = leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("%d-th type index: %w", i, err)
		}
	}
	return nil
}

func (m *Module) readMemorySection(r io.Reader) error {
	n, err := readVectorSize(r)
	if err != nil {
		return err
	}
	if n > 1 {
		return fmt.Errorf("at most one memory is supported, got %d", n)
	}
	m.MemorySection = make([]*Limits, n)
	for i := range m.MemorySection {
		if m.MemorySection[i], err = readMemoryLimits(r); err != nil {
			return fmt.Errorf("%d-th memory: %w", i, err)
		}
	}
	return nil
}

func (m *Module) readGlobalSection(r io.Reader) error {
	n, err := readVectorSize(r)
	if err != nil {
		return err
	}
	m.GlobalSection = make([]*GlobalSegment, n)
	for i := range m.GlobalSection {
		gt, err := readGlobalType(r)
		if err != nil {
			return fmt.Errorf("%d-th global type: %w", i, err)
		}
		init, err := readConstExpr(r)
		if err != nil {
			return fmt.Errorf("%d-th global initializer: %w", i, err)
		}
		m.GlobalSection[i] = &GlobalSegment{Type: gt, Init: init}
	}
	return nil
}

func (m *Module) readExportSection(r io.Reader) error {
	n, err := readVectorSize(r)
	if err != nil {
		return err
	}
	m.ExportSection = make([]*Export, n)
	seen := make(map[string]bool, n)
	for i := range m.ExportSection {
		name, err := readName(r)
		if err != nil {
			return fmt.Errorf("%d-th export name: %w", i, err)
		}
		if seen[name] {
			return fmt.Errorf("duplicate export name %q", name)
		}
		seen[name] = true

		var kindByte [1]byte
		if _, err := io.ReadFull(r, kindByte[:]); err != nil {
			return fmt.Errorf("%d-th export kind: %w", i, err)
		}
		kind := ExportKind(kindByte[0])
		switch kind {
		case ExportKindFunc, ExportKindTable, ExportKindMemory, ExportKindGlobal:
		default:
			return fmt.Errorf("%w: %#x", ErrUnsupportedExport, kindByte[0])
		}

		index, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("%d-th export index: %w", i, err)
		}
		m.ExportSection[i] = &Export{Name: name, Kind: kind, Index: index}
	}
	return nil
}

func (m *Module) readStartSection(r io.Reader) error {
	idx, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("start function index: %w", err)
	}
	m.StartSection = &idx
	return nil
}
