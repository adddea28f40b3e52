package wasm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-dc/fizzy/wasm"
	"github.com/hugo-dc/fizzy/wasm/interpreter"
)

func straightLine(opcodes []wasm.Opcode, immediates []uint64) *wasm.CodeSegment {
	offsets := make([]uint32, len(opcodes))
	cursor := uint32(0)
	idx := 0
	imms := make([]uint64, 0, len(immediates))
	for i, op := range opcodes {
		offsets[i] = cursor
		n := wasm.ImmediateCount(op)
		imms = append(imms, immediates[idx:idx+n]...)
		idx += n
		cursor += uint32(n)
	}
	return &wasm.CodeSegment{Opcodes: opcodes, ImmOffsets: offsets, Immediates: imms}
}

func TestInstantiate_startFunctionRunsAndGlobalFromImport(t *testing.T) {
	// globals: imported global #0 (mutable i32); defined global #1 initialized
	// from global.get 0 (the import).
	// start function: global.set 1 (global.get 1, i32.const 5, i32.add)
	module := &wasm.Module{
		TypeSection:     []*wasm.FuncType{{}},
		ImportSection:   []*wasm.Import{{Module: "env", Name: "base", Kind: wasm.ImportKindGlobal, Global: &wasm.GlobalType{ValType: wasm.ValTypeI32, Mutable: true}}},
		FunctionSection: []uint32{0},
		GlobalSection: []*wasm.GlobalSegment{
			{Type: &wasm.GlobalType{ValType: wasm.ValTypeI32, Mutable: true}, Init: &wasm.ConstExpr{Kind: wasm.ConstExprGlobalGet, GlobalIndex: 0}},
		},
		CodeSection: []*wasm.Code{
			{Body: straightLine(
				[]wasm.Opcode{wasm.OpGlobalGet, wasm.OpI32Const, wasm.OpI32Add, wasm.OpGlobalSet},
				[]uint64{1, 5, 1},
			)},
		},
		StartSection: func() *uint32 { i := uint32(0); return &i }(),
	}

	engine := interpreter.New()
	funcs := []wasm.ImportedFunction{}
	globals := []wasm.ImportedGlobal{{Type: wasm.GlobalType{ValType: wasm.ValTypeI32, Mutable: true}, Value: 10}}

	inst, err := wasm.Instantiate(context.Background(), module, engine, funcs, globals)
	require.NoError(t, err)
	require.Len(t, inst.Globals, 2)
	assert.Equal(t, uint64(10), inst.Globals[0].Val)
	assert.Equal(t, uint64(15), inst.Globals[1].Val, "defined global should be initialized from the imported global (10), then incremented by the start function (+5)")
}

func TestInstantiate_importArityMismatch(t *testing.T) {
	module := &wasm.Module{
		ImportSection: []*wasm.Import{{Module: "env", Name: "f", Kind: wasm.ImportKindFunc, FuncTypeIndex: 0}},
		TypeSection:   []*wasm.FuncType{{}},
	}
	_, err := wasm.Instantiate(context.Background(), module, interpreter.New(), nil, nil)
	require.Error(t, err)
}

func TestInstantiate_importTypeMismatch(t *testing.T) {
	module := &wasm.Module{
		ImportSection: []*wasm.Import{{Module: "env", Name: "f", Kind: wasm.ImportKindFunc, FuncTypeIndex: 0}},
		TypeSection:   []*wasm.FuncType{{Params: []wasm.ValType{wasm.ValTypeI32}}},
	}
	funcs := []wasm.ImportedFunction{{
		Type: wasm.FuncType{}, // no params: mismatch
		Func: func(ctx context.Context, args []uint64) (uint64, bool, error) { return 0, false, nil },
	}}
	_, err := wasm.Instantiate(context.Background(), module, interpreter.New(), funcs, nil)
	require.Error(t, err)
}

func TestInstantiate_callsImportedHostFunction(t *testing.T) {
	var called bool
	module := &wasm.Module{
		TypeSection:     []*wasm.FuncType{{Params: []wasm.ValType{wasm.ValTypeI32}}, {}},
		ImportSection:   []*wasm.Import{{Module: "env", Name: "observe", Kind: wasm.ImportKindFunc, FuncTypeIndex: 0}},
		FunctionSection: []uint32{1},
		CodeSection: []*wasm.Code{
			{Body: straightLine([]wasm.Opcode{wasm.OpI32Const, wasm.OpCall}, []uint64{42, 0})},
		},
		ExportSection: []*wasm.Export{{Name: "run", Kind: wasm.ExportKindFunc, Index: 1}},
	}
	funcs := []wasm.ImportedFunction{{
		Type: wasm.FuncType{Params: []wasm.ValType{wasm.ValTypeI32}},
		Func: func(ctx context.Context, args []uint64) (uint64, bool, error) {
			called = true
			assert.Equal(t, uint64(42), args[0])
			return 0, false, nil
		},
	}}

	inst, err := wasm.Instantiate(context.Background(), module, interpreter.New(), funcs, nil)
	require.NoError(t, err)

	idx, err := inst.FindExportedFunction("run")
	require.NoError(t, err)
	_, _, err = inst.Call(context.Background(), idx, nil)
	require.NoError(t, err)
	assert.True(t, called)
}
