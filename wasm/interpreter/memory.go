package interpreter

import (
	"encoding/binary"

	"github.com/hugo-dc/fizzy/wasm"
)

func registerMemoryOps() {
	register(wasm.OpI32Load, load(4, false, false))
	register(wasm.OpI64Load, load(8, false, true))
	register(wasm.OpI32Load8S, load(1, true, false))
	register(wasm.OpI32Load8U, load(1, false, false))
	register(wasm.OpI32Load16S, load(2, true, false))
	register(wasm.OpI32Load16U, load(2, false, false))
	register(wasm.OpI64Load8S, load(1, true, true))
	register(wasm.OpI64Load8U, load(1, false, true))
	register(wasm.OpI64Load16S, load(2, true, true))
	register(wasm.OpI64Load16U, load(2, false, true))
	register(wasm.OpI64Load32S, load(4, true, true))
	register(wasm.OpI64Load32U, load(4, false, true))

	register(wasm.OpI32Store, store(4))
	register(wasm.OpI64Store, store(8))
	register(wasm.OpI32Store8, store(1))
	register(wasm.OpI32Store16, store(2))
	register(wasm.OpI64Store8, store(1))
	register(wasm.OpI64Store16, store(2))
	register(wasm.OpI64Store32, store(4))

	register(wasm.OpMemorySize, opMemorySize)
	register(wasm.OpMemoryGrow, opMemoryGrow)
}

// effectiveAddress computes base+offset with overflow caught explicitly,
// since a wraparound could otherwise mask an out-of-bounds access as
// in-bounds.
func effectiveAddress(base uint32, offset uint32, width int, memLen int) int {
	ea := uint64(base) + uint64(offset)
	if ea+uint64(width) > uint64(memLen) {
		panic(trap(ErrOutOfBoundsMemory))
	}
	return int(ea)
}

func load(width int, signExtend bool, is64 bool) instrFunc {
	return func(m *vm, imm []uint64) {
		mem := m.active.fn.Owner.Memory
		if mem == nil {
			panic(trap(ErrOutOfBoundsMemory))
		}
		offset := uint32(imm[1])
		base := uint32(m.operands.pop())
		ea := effectiveAddress(base, offset, width, len(mem.Buffer))
		buf := mem.Buffer[ea : ea+width]

		var raw uint64
		switch width {
		case 1:
			raw = uint64(buf[0])
		case 2:
			raw = uint64(binary.LittleEndian.Uint16(buf))
		case 4:
			raw = uint64(binary.LittleEndian.Uint32(buf))
		case 8:
			raw = binary.LittleEndian.Uint64(buf)
		}

		if signExtend {
			switch width {
			case 1:
				raw = uint64(int64(int8(raw)))
			case 2:
				raw = uint64(int64(int16(raw)))
			case 4:
				raw = uint64(int64(int32(raw)))
			}
		}
		if !is64 {
			raw = uint64(uint32(raw))
		}
		m.operands.push(raw)
		m.active.pc++
	}
}

func store(width int) instrFunc {
	return func(m *vm, imm []uint64) {
		mem := m.active.fn.Owner.Memory
		if mem == nil {
			panic(trap(ErrOutOfBoundsMemory))
		}
		offset := uint32(imm[1])
		v := m.operands.pop()
		base := uint32(m.operands.pop())
		ea := effectiveAddress(base, offset, width, len(mem.Buffer))
		buf := mem.Buffer[ea : ea+width]

		switch width {
		case 1:
			buf[0] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(buf, uint16(v))
		case 4:
			binary.LittleEndian.PutUint32(buf, uint32(v))
		case 8:
			binary.LittleEndian.PutUint64(buf, v)
		}
		m.active.pc++
	}
}

func opMemorySize(m *vm, imm []uint64) {
	mem := m.active.fn.Owner.Memory
	if mem == nil {
		m.operands.push(0)
	} else {
		m.operands.push(uint64(len(mem.Buffer) / wasm.PageSize))
	}
	m.active.pc++
}

func opMemoryGrow(m *vm, imm []uint64) {
	mem := m.active.fn.Owner.Memory
	if mem == nil {
		m.operands.push(^uint64(0) & 0xffffffff)
		m.active.pc++
		return
	}
	current := uint32(len(mem.Buffer) / wasm.PageSize)
	delta := uint32(m.operands.pop())

	grown := uint64(current) + uint64(delta)
	if grown > wasm.MaxPages || (mem.Max != nil && grown > uint64(*mem.Max)) {
		m.operands.push(0xffffffff) // -1 as i32: grow refused, not a trap
		m.active.pc++
		return
	}
	mem.Buffer = append(mem.Buffer, make([]byte, uint64(delta)*wasm.PageSize)...)
	m.operands.push(uint64(current))
	m.active.pc++
}
