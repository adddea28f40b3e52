package wasm

import (
	"fmt"
	"io"

	"github.com/hugo-dc/fizzy/wasm/leb128"
)

// maxLocals bounds the declared local count of a single function body.
// WebAssembly permits up to 2^32-1 locals per function; no real module
// needs anywhere near that, and allowing it lets a hostile module make
// the parser allocate gigabytes from a few bytes of input.
const maxLocals = 1 << 20

// CodeSegment is a function body pre-decoded into two parallel streams:
// an opcode per instruction, and a flat buffer of that instruction's
// immediates (already LEB128-decoded). The interpreter's dispatch loop
// never re-parses an immediate; it reads Immediates[ImmOffsets[pc]:] for
// however many words the opcode at Opcodes[pc] is known to take. This
// trades a larger in-memory representation for a dispatch loop with no
// variable-length decoding in its hot path.
type CodeSegment struct {
	Opcodes    []Opcode
	ImmOffsets []uint32
	Immediates []uint64
}

// ImmediateCount returns how many uint64 immediate words follow a given
// opcode in the pre-decoded stream. Memory instructions carry two
// (alignment hint, offset); indexed and constant instructions carry one;
// everything else carries none. The interpreter uses this to slice
// Immediates at CodeSegment.ImmOffsets[pc].
func ImmediateCount(op Opcode) int {
	switch op {
	case OpI32Load, OpI64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U,
		OpI32Store, OpI64Store, OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		return 2
	case OpCall, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet,
		OpI32Const, OpI64Const, OpMemorySize, OpMemoryGrow:
		return 1
	default:
		return 0
	}
}

func (m *Module) readCodeSection(r io.Reader) error {
	n, err := readVectorSize(r)
	if err != nil {
		return err
	}
	m.CodeSection = make([]*Code, n)
	for i := range m.CodeSection {
		size, err := readVectorSize(r)
		if err != nil {
			return fmt.Errorf("%d-th code entry size: %w", i, err)
		}
		body := io.LimitReader(r, int64(size))
		code, err := readCode(body)
		if err != nil {
			return fmt.Errorf("%d-th code entry: %w", i, err)
		}
		m.CodeSection[i] = code
	}
	return nil
}

func readCode(r io.Reader) (*Code, error) {
	localTypes, err := readLocalDecls(r)
	if err != nil {
		return nil, fmt.Errorf("locals: %w", err)
	}
	body, err := readCodeSegment(r)
	if err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}
	return &Code{LocalCount: uint32(len(localTypes)), LocalTypes: localTypes, Body: body}, nil
}

func readLocalDecls(r io.Reader) ([]ValType, error) {
	numGroups, err := readVectorSize(r)
	if err != nil {
		return nil, fmt.Errorf("local group count: %w", err)
	}

	var total uint64
	groups := make([]struct {
		count uint32
		vt    ValType
	}, numGroups)
	for i := range groups {
		count, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("%d-th local group count: %w", i, err)
		}
		vt, err := readValType(r)
		if err != nil {
			return nil, fmt.Errorf("%d-th local group type: %w", i, err)
		}
		groups[i].count, groups[i].vt = count, vt
		total += uint64(count)
		if total > maxLocals {
			return nil, fmt.Errorf("%w: %d locals declared, max is %d", ErrLocalCountOverflow, total, maxLocals)
		}
	}

	locals := make([]ValType, 0, total)
	for _, g := range groups {
		for j := uint32(0); j < g.count; j++ {
			locals = append(locals, g.vt)
		}
	}
	return locals, nil
}

func readCodeSegment(r io.Reader) (*CodeSegment, error) {
	seg := &CodeSegment{}
	for {
		var opByte [1]byte
		if _, err := io.ReadFull(r, opByte[:]); err != nil {
			return nil, fmt.Errorf("read opcode: %w", err)
		}
		op := Opcode(opByte[0])
		if op == OpEnd {
			return seg, nil
		}

		imms, err := readImmediates(r, op)
		if err != nil {
			return nil, fmt.Errorf("opcode %#x immediates: %w", op, err)
		}

		seg.ImmOffsets = append(seg.ImmOffsets, uint32(len(seg.Immediates)))
		seg.Opcodes = append(seg.Opcodes, op)
		seg.Immediates = append(seg.Immediates, imms...)
	}
}

// readImmediates decodes the raw operand(s) that follow op in the binary
// stream, in binary-format order, returning them pre-widened to uint64 in
// the order the interpreter expects them.
func readImmediates(r io.Reader, op Opcode) ([]uint64, error) {
	switch op {
	case OpUnreachable, OpNop, OpDrop, OpSelect,
		OpI32Eqz, OpI32Eq, OpI32Ne, OpI32LtS, OpI32LtU, OpI32GtS, OpI32GtU, OpI32LeS, OpI32LeU, OpI32GeS, OpI32GeU,
		OpI64Eqz, OpI64Eq, OpI64Ne, OpI64LtS, OpI64LtU, OpI64GtS, OpI64GtU, OpI64LeS, OpI64LeU, OpI64GeS, OpI64GeU,
		OpI32Clz, OpI32Ctz, OpI32Popcnt, OpI32Add, OpI32Sub, OpI32Mul, OpI32DivS, OpI32DivU, OpI32RemS, OpI32RemU,
		OpI32And, OpI32Or, OpI32Xor, OpI32Shl, OpI32ShrS, OpI32ShrU, OpI32Rotl, OpI32Rotr,
		OpI64Clz, OpI64Ctz, OpI64Popcnt, OpI64Add, OpI64Sub, OpI64Mul, OpI64DivS, OpI64DivU, OpI64RemS, OpI64RemU,
		OpI64And, OpI64Or, OpI64Xor, OpI64Shl, OpI64ShrS, OpI64ShrU, OpI64Rotl, OpI64Rotr,
		OpI32WrapI64, OpI64ExtendI32S, OpI64ExtendI32U:
		return nil, nil

	case OpCall, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		return []uint64{uint64(idx)}, nil

	case OpI32Const:
		v, _, err := leb128.DecodeInt32(r)
		if err != nil {
			return nil, err
		}
		return []uint64{uint64(uint32(v))}, nil

	case OpI64Const:
		v, _, err := leb128.DecodeInt64(r)
		if err != nil {
			return nil, err
		}
		return []uint64{uint64(v)}, nil

	case OpMemorySize, OpMemoryGrow:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		if b[0] != 0x00 {
			return nil, fmt.Errorf("%w: reserved memory index byte %#x", ErrInvalidByte, b[0])
		}
		return []uint64{0}, nil

	case OpI32Load, OpI64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U,
		OpI32Store, OpI64Store, OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		align, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("align: %w", err)
		}
		offset, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("offset: %w", err)
		}
		return []uint64{uint64(align), uint64(offset)}, nil

	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnsupportedOpcode, byte(op))
	}
}
