package interpreter

import (
	"math"
	"math/bits"

	"github.com/hugo-dc/fizzy/wasm"
)

func registerNumericOps() {
	register(wasm.OpI32Eqz, func(m *vm, _ []uint64) { m.operands.pushBool(int32(m.operands.pop()) == 0); m.active.pc++ })
	register(wasm.OpI32Eq, cmp32(func(a, b int32) bool { return a == b }, func(a, b uint32) bool { return a == b }, true))
	register(wasm.OpI32Ne, cmp32(func(a, b int32) bool { return a != b }, func(a, b uint32) bool { return a != b }, true))
	register(wasm.OpI32LtS, cmp32(func(a, b int32) bool { return a < b }, nil, false))
	register(wasm.OpI32LtU, cmp32(nil, func(a, b uint32) bool { return a < b }, false))
	register(wasm.OpI32GtS, cmp32(func(a, b int32) bool { return a > b }, nil, false))
	register(wasm.OpI32GtU, cmp32(nil, func(a, b uint32) bool { return a > b }, false))
	register(wasm.OpI32LeS, cmp32(func(a, b int32) bool { return a <= b }, nil, false))
	register(wasm.OpI32LeU, cmp32(nil, func(a, b uint32) bool { return a <= b }, false))
	register(wasm.OpI32GeS, cmp32(func(a, b int32) bool { return a >= b }, nil, false))
	register(wasm.OpI32GeU, cmp32(nil, func(a, b uint32) bool { return a >= b }, false))

	register(wasm.OpI64Eqz, func(m *vm, _ []uint64) { m.operands.pushBool(int64(m.operands.pop()) == 0); m.active.pc++ })
	register(wasm.OpI64Eq, cmp64(func(a, b int64) bool { return a == b }, func(a, b uint64) bool { return a == b }, true))
	register(wasm.OpI64Ne, cmp64(func(a, b int64) bool { return a != b }, func(a, b uint64) bool { return a != b }, true))
	register(wasm.OpI64LtS, cmp64(func(a, b int64) bool { return a < b }, nil, false))
	register(wasm.OpI64LtU, cmp64(nil, func(a, b uint64) bool { return a < b }, false))
	register(wasm.OpI64GtS, cmp64(func(a, b int64) bool { return a > b }, nil, false))
	register(wasm.OpI64GtU, cmp64(nil, func(a, b uint64) bool { return a > b }, false))
	register(wasm.OpI64LeS, cmp64(func(a, b int64) bool { return a <= b }, nil, false))
	register(wasm.OpI64LeU, cmp64(nil, func(a, b uint64) bool { return a <= b }, false))
	register(wasm.OpI64GeS, cmp64(func(a, b int64) bool { return a >= b }, nil, false))
	register(wasm.OpI64GeU, cmp64(nil, func(a, b uint64) bool { return a >= b }, false))

	register(wasm.OpI32Clz, func(m *vm, _ []uint64) { m.operands.push(uint64(bits.LeadingZeros32(uint32(m.operands.pop())))); m.active.pc++ })
	register(wasm.OpI32Ctz, func(m *vm, _ []uint64) { m.operands.push(uint64(bits.TrailingZeros32(uint32(m.operands.pop())))); m.active.pc++ })
	register(wasm.OpI32Popcnt, func(m *vm, _ []uint64) { m.operands.push(uint64(bits.OnesCount32(uint32(m.operands.pop())))); m.active.pc++ })
	register(wasm.OpI32Add, bin32(func(a, b uint32) uint32 { return a + b }))
	register(wasm.OpI32Sub, bin32(func(a, b uint32) uint32 { return a - b }))
	register(wasm.OpI32Mul, bin32(func(a, b uint32) uint32 { return a * b }))
	register(wasm.OpI32DivS, i32DivS)
	register(wasm.OpI32DivU, i32DivU)
	register(wasm.OpI32RemS, i32RemS)
	register(wasm.OpI32RemU, i32RemU)
	register(wasm.OpI32And, bin32(func(a, b uint32) uint32 { return a & b }))
	register(wasm.OpI32Or, bin32(func(a, b uint32) uint32 { return a | b }))
	register(wasm.OpI32Xor, bin32(func(a, b uint32) uint32 { return a ^ b }))
	register(wasm.OpI32Shl, bin32(func(a, b uint32) uint32 { return a << (b & 31) }))
	register(wasm.OpI32ShrS, func(m *vm, _ []uint64) {
		s := uint32(m.operands.pop()) & 31
		v := int32(m.operands.pop())
		m.operands.push(uint64(uint32(v >> s)))
		m.active.pc++
	})
	register(wasm.OpI32ShrU, bin32(func(a, b uint32) uint32 { return a >> (b & 31) }))
	register(wasm.OpI32Rotl, bin32(func(a, b uint32) uint32 { return bits.RotateLeft32(a, int(b)) }))
	register(wasm.OpI32Rotr, bin32(func(a, b uint32) uint32 { return bits.RotateLeft32(a, -int(b)) }))

	register(wasm.OpI64Clz, func(m *vm, _ []uint64) { m.operands.push(uint64(bits.LeadingZeros64(m.operands.pop()))); m.active.pc++ })
	register(wasm.OpI64Ctz, func(m *vm, _ []uint64) { m.operands.push(uint64(bits.TrailingZeros64(m.operands.pop()))); m.active.pc++ })
	register(wasm.OpI64Popcnt, func(m *vm, _ []uint64) { m.operands.push(uint64(bits.OnesCount64(m.operands.pop()))); m.active.pc++ })
	register(wasm.OpI64Add, bin64(func(a, b uint64) uint64 { return a + b }))
	register(wasm.OpI64Sub, bin64(func(a, b uint64) uint64 { return a - b }))
	register(wasm.OpI64Mul, bin64(func(a, b uint64) uint64 { return a * b }))
	register(wasm.OpI64DivS, i64DivS)
	register(wasm.OpI64DivU, i64DivU)
	register(wasm.OpI64RemS, i64RemS)
	register(wasm.OpI64RemU, i64RemU)
	register(wasm.OpI64And, bin64(func(a, b uint64) uint64 { return a & b }))
	register(wasm.OpI64Or, bin64(func(a, b uint64) uint64 { return a | b }))
	register(wasm.OpI64Xor, bin64(func(a, b uint64) uint64 { return a ^ b }))
	register(wasm.OpI64Shl, bin64(func(a, b uint64) uint64 { return a << (b & 63) }))
	register(wasm.OpI64ShrS, func(m *vm, _ []uint64) {
		s := m.operands.pop() & 63
		v := int64(m.operands.pop())
		m.operands.push(uint64(v >> s))
		m.active.pc++
	})
	register(wasm.OpI64ShrU, bin64(func(a, b uint64) uint64 { return a >> (b & 63) }))
	register(wasm.OpI64Rotl, bin64(func(a, b uint64) uint64 { return bits.RotateLeft64(a, int(b)) }))
	register(wasm.OpI64Rotr, bin64(func(a, b uint64) uint64 { return bits.RotateLeft64(a, -int(b)) }))

	register(wasm.OpI32WrapI64, func(m *vm, _ []uint64) { m.operands.push(uint64(uint32(m.operands.pop()))); m.active.pc++ })
	register(wasm.OpI64ExtendI32S, func(m *vm, _ []uint64) { m.operands.push(uint64(int64(int32(m.operands.pop())))); m.active.pc++ })
	register(wasm.OpI64ExtendI32U, func(m *vm, _ []uint64) { m.operands.push(uint64(uint32(m.operands.pop()))); m.active.pc++ })
}

func bin32(f func(a, b uint32) uint32) instrFunc {
	return func(m *vm, _ []uint64) {
		b := uint32(m.operands.pop())
		a := uint32(m.operands.pop())
		m.operands.push(uint64(f(a, b)))
		m.active.pc++
	}
}

func bin64(f func(a, b uint64) uint64) instrFunc {
	return func(m *vm, _ []uint64) {
		b := m.operands.pop()
		a := m.operands.pop()
		m.operands.push(f(a, b))
		m.active.pc++
	}
}

func cmp32(signed func(a, b int32) bool, unsigned func(a, b uint32) bool, symmetric bool) instrFunc {
	return func(m *vm, _ []uint64) {
		b := uint32(m.operands.pop())
		a := uint32(m.operands.pop())
		if signed != nil {
			m.operands.pushBool(signed(int32(a), int32(b)))
		} else {
			m.operands.pushBool(unsigned(a, b))
		}
		m.active.pc++
	}
}

func cmp64(signed func(a, b int64) bool, unsigned func(a, b uint64) bool, symmetric bool) instrFunc {
	return func(m *vm, _ []uint64) {
		b := m.operands.pop()
		a := m.operands.pop()
		if signed != nil {
			m.operands.pushBool(signed(int64(a), int64(b)))
		} else {
			m.operands.pushBool(unsigned(a, b))
		}
		m.active.pc++
	}
}

func i32DivS(m *vm, _ []uint64) {
	b := int32(m.operands.pop())
	a := int32(m.operands.pop())
	if b == 0 {
		panic(trap(ErrIntegerDivideByZero))
	}
	if a == math.MinInt32 && b == -1 {
		panic(trap(ErrIntegerOverflow))
	}
	m.operands.push(uint64(uint32(a / b)))
	m.active.pc++
}

func i32DivU(m *vm, _ []uint64) {
	b := uint32(m.operands.pop())
	a := uint32(m.operands.pop())
	if b == 0 {
		panic(trap(ErrIntegerDivideByZero))
	}
	m.operands.push(uint64(a / b))
	m.active.pc++
}

func i32RemS(m *vm, _ []uint64) {
	b := int32(m.operands.pop())
	a := int32(m.operands.pop())
	if b == 0 {
		panic(trap(ErrIntegerDivideByZero))
	}
	if a == math.MinInt32 && b == -1 {
		// INT32_MIN % -1 does not overflow: the quotient is undefined but
		// the result is always 0.
		m.operands.push(0)
		m.active.pc++
		return
	}
	m.operands.push(uint64(uint32(a % b)))
	m.active.pc++
}

func i32RemU(m *vm, _ []uint64) {
	b := uint32(m.operands.pop())
	a := uint32(m.operands.pop())
	if b == 0 {
		panic(trap(ErrIntegerDivideByZero))
	}
	m.operands.push(uint64(a % b))
	m.active.pc++
}

func i64DivS(m *vm, _ []uint64) {
	b := int64(m.operands.pop())
	a := int64(m.operands.pop())
	if b == 0 {
		panic(trap(ErrIntegerDivideByZero))
	}
	if a == math.MinInt64 && b == -1 {
		panic(trap(ErrIntegerOverflow))
	}
	m.operands.push(uint64(a / b))
	m.active.pc++
}

func i64DivU(m *vm, _ []uint64) {
	b := m.operands.pop()
	a := m.operands.pop()
	if b == 0 {
		panic(trap(ErrIntegerDivideByZero))
	}
	m.operands.push(a / b)
	m.active.pc++
}

func i64RemS(m *vm, _ []uint64) {
	b := int64(m.operands.pop())
	a := int64(m.operands.pop())
	if b == 0 {
		panic(trap(ErrIntegerDivideByZero))
	}
	if a == math.MinInt64 && b == -1 {
		m.operands.push(0)
		m.active.pc++
		return
	}
	m.operands.push(uint64(a % b))
	m.active.pc++
}

func i64RemU(m *vm, _ []uint64) {
	b := m.operands.pop()
	a := m.operands.pop()
	if b == 0 {
		panic(trap(ErrIntegerDivideByZero))
	}
	m.operands.push(a % b)
	m.active.pc++
}
