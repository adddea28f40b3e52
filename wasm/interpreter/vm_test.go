package interpreter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-dc/fizzy/wasm"
)

// straightLineFunc builds a FunctionInstance whose body is exactly the
// given opcodes/immediates, owned by a fresh instance with no globals or
// memory; callers attach those to the returned instance as needed. It is
// the interpreter package's equivalent of module_test.go's
// hand-assembled binary modules, skipping the parser entirely.
func straightLineFunc(t *testing.T, sig wasm.FuncType, numLocals uint32, opcodes []wasm.Opcode, immediates []uint64) (*wasm.Instance, *wasm.FunctionInstance) {
	t.Helper()

	offsets := make([]uint32, len(opcodes))
	cursor := uint32(0)
	immIdx := 0
	imms := make([]uint64, 0, len(immediates))
	for i, op := range opcodes {
		offsets[i] = cursor
		n := wasm.ImmediateCount(op)
		imms = append(imms, immediates[immIdx:immIdx+n]...)
		immIdx += n
		cursor += uint32(n)
	}
	require.Equal(t, len(immediates), immIdx, "test bug: immediates slice length must match opcodes' declared arity")

	code := &wasm.Code{
		LocalCount: numLocals,
		Body:       &wasm.CodeSegment{Opcodes: opcodes, ImmOffsets: offsets, Immediates: imms},
	}

	inst := &wasm.Instance{}
	fn := &wasm.FunctionInstance{Signature: &sig, Code: code, Owner: inst}
	inst.Functions = []*wasm.FunctionInstance{fn}
	return inst, fn
}

func i32sig(params, results int) wasm.FuncType {
	ft := wasm.FuncType{}
	for i := 0; i < params; i++ {
		ft.Params = append(ft.Params, wasm.ValTypeI32)
	}
	for i := 0; i < results; i++ {
		ft.Results = append(ft.Results, wasm.ValTypeI32)
	}
	return ft
}

func TestCall_arithmeticAdd(t *testing.T) {
	_, fn := straightLineFunc(t, i32sig(2, 1), 0,
		[]wasm.Opcode{wasm.OpLocalGet, wasm.OpLocalGet, wasm.OpI32Add},
		[]uint64{0, 1},
	)
	engine := New()
	result, hasResult, err := engine.Call(context.Background(), fn, []uint64{3, 4})
	require.NoError(t, err)
	assert.True(t, hasResult)
	assert.Equal(t, uint64(7), result)
}

func TestCall_unreachableTraps(t *testing.T) {
	_, fn := straightLineFunc(t, wasm.FuncType{}, 0,
		[]wasm.Opcode{wasm.OpUnreachable},
		nil,
	)
	engine := New()
	_, _, err := engine.Call(context.Background(), fn, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestCall_divideSignedOverflowTrapsButRemDoesNot(t *testing.T) {
	divFn2 := []wasm.Opcode{wasm.OpLocalGet, wasm.OpLocalGet, wasm.OpI32DivS}
	_, divFn := straightLineFunc(t, i32sig(2, 1), 0, divFn2, []uint64{0, 1})
	engine := New()
	_, _, err := engine.Call(context.Background(), divFn, []uint64{uint64(uint32(0x80000000)), uint64(uint32(0xffffffff))})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegerOverflow)

	remFn2 := []wasm.Opcode{wasm.OpLocalGet, wasm.OpLocalGet, wasm.OpI32RemS}
	_, remFn := straightLineFunc(t, i32sig(2, 1), 0, remFn2, []uint64{0, 1})
	result, hasResult, err := engine.Call(context.Background(), remFn, []uint64{uint64(uint32(0x80000000)), uint64(uint32(0xffffffff))})
	require.NoError(t, err)
	assert.True(t, hasResult)
	assert.Equal(t, uint64(0), result)
}

func TestCall_divideByZeroTraps(t *testing.T) {
	_, fn := straightLineFunc(t, i32sig(2, 1), 0,
		[]wasm.Opcode{wasm.OpLocalGet, wasm.OpLocalGet, wasm.OpI32DivU},
		[]uint64{0, 1},
	)
	engine := New()
	_, _, err := engine.Call(context.Background(), fn, []uint64{10, 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegerDivideByZero)
}

func TestCall_memoryLoadStoreAndOutOfBoundsTrap(t *testing.T) {
	sig := i32sig(0, 1)
	inst, fn := straightLineFunc(t, sig, 0,
		[]wasm.Opcode{wasm.OpI32Const, wasm.OpI32Const, wasm.OpI32Store, wasm.OpI32Const, wasm.OpI32Load},
		[]uint64{8, 42, 0, 0, 8, 0, 0},
	)
	inst.Memory = &wasm.MemoryInstance{Buffer: make([]byte, wasm.PageSize)}

	engine := New()
	result, hasResult, err := engine.Call(context.Background(), fn, nil)
	require.NoError(t, err)
	assert.True(t, hasResult)
	assert.Equal(t, uint64(42), result)

	_, oobFn := straightLineFunc(t, i32sig(0, 0), 0,
		[]wasm.Opcode{wasm.OpI32Const, wasm.OpI32Const, wasm.OpI32Store},
		[]uint64{uint64(wasm.PageSize - 2), 1, 0, 0},
	)
	oobFn.Owner = inst
	_, _, err = engine.Call(context.Background(), oobFn, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfBoundsMemory)
}

func TestCall_memoryGrow(t *testing.T) {
	sig := i32sig(0, 1)
	inst, fn := straightLineFunc(t, sig, 0,
		[]wasm.Opcode{wasm.OpI32Const, wasm.OpMemoryGrow},
		[]uint64{1, 0},
	)
	max := uint32(2)
	inst.Memory = &wasm.MemoryInstance{Buffer: make([]byte, wasm.PageSize), Max: &max}

	engine := New()
	result, hasResult, err := engine.Call(context.Background(), fn, nil)
	require.NoError(t, err)
	assert.True(t, hasResult)
	assert.Equal(t, uint64(1), result, "memory.grow returns the previous page count")
	assert.Equal(t, 2*wasm.PageSize, len(inst.Memory.Buffer))

	_, growAgainFn := straightLineFunc(t, sig, 0,
		[]wasm.Opcode{wasm.OpI32Const, wasm.OpMemoryGrow},
		[]uint64{1, 0},
	)
	growAgainFn.Owner = inst
	result, hasResult, err = engine.Call(context.Background(), growAgainFn, nil)
	require.NoError(t, err, "refusal is a regular i32 result, not a trap")
	assert.True(t, hasResult)
	assert.Equal(t, uint64(0xffffffff), result, "grow past the declared maximum is refused with -1")
	assert.Equal(t, 2*wasm.PageSize, len(inst.Memory.Buffer), "refused grow must not mutate the buffer")
}

func TestCall_memorySize(t *testing.T) {
	sig := i32sig(0, 1)
	inst, fn := straightLineFunc(t, sig, 0,
		[]wasm.Opcode{wasm.OpMemorySize},
		[]uint64{0},
	)
	inst.Memory = &wasm.MemoryInstance{Buffer: make([]byte, 3*wasm.PageSize)}

	engine := New()
	result, hasResult, err := engine.Call(context.Background(), fn, nil)
	require.NoError(t, err)
	assert.True(t, hasResult)
	assert.Equal(t, uint64(3), result)
}

func TestCall_globalGetSet(t *testing.T) {
	inst, fn := straightLineFunc(t, i32sig(0, 1), 0,
		[]wasm.Opcode{wasm.OpI32Const, wasm.OpGlobalSet, wasm.OpGlobalGet},
		[]uint64{99, 0, 0},
	)
	gt := wasm.GlobalType{ValType: wasm.ValTypeI32, Mutable: true}
	inst.Globals = []*wasm.GlobalInstance{{Type: &gt, Val: 0}}

	engine := New()
	result, hasResult, err := engine.Call(context.Background(), fn, nil)
	require.NoError(t, err)
	assert.True(t, hasResult)
	assert.Equal(t, uint64(99), result)
}

func TestCall_nestedCall(t *testing.T) {
	inst := &wasm.Instance{}
	addSig := i32sig(2, 1)
	addCode := &wasm.Code{Body: &wasm.CodeSegment{
		Opcodes:    []wasm.Opcode{wasm.OpLocalGet, wasm.OpLocalGet, wasm.OpI32Add},
		ImmOffsets: []uint32{0, 1, 2},
		Immediates: []uint64{0, 1},
	}}
	addFn := &wasm.FunctionInstance{Signature: &addSig, Code: addCode, Owner: inst}

	callerSig := i32sig(0, 1)
	callerCode := &wasm.Code{Body: &wasm.CodeSegment{
		Opcodes:    []wasm.Opcode{wasm.OpI32Const, wasm.OpI32Const, wasm.OpCall},
		ImmOffsets: []uint32{0, 1, 2},
		Immediates: []uint64{10, 32, 0},
	}}
	callerFn := &wasm.FunctionInstance{Signature: &callerSig, Code: callerCode, Owner: inst}

	inst.Functions = []*wasm.FunctionInstance{addFn, callerFn}

	engine := New()
	result, hasResult, err := engine.Call(context.Background(), callerFn, nil)
	require.NoError(t, err)
	assert.True(t, hasResult)
	assert.Equal(t, uint64(42), result)
}
