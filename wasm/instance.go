package wasm

import (
	"context"
	"fmt"
)

// Engine is implemented by whatever executes function bodies. wasm/instance.go
// depends only on this interface, not on a concrete interpreter, so that the
// interpreter package can in turn depend on wasm without an import cycle.
type Engine interface {
	// Call invokes fn with the given arguments, returning its single result
	// (or no result, for a void-returning function) or a trap.
	Call(ctx context.Context, fn *FunctionInstance, args []uint64) (result uint64, hasResult bool, err error)
}

// ImportedFunction is a host function supplied to Instantiate for a single
// func import, matched to the module's declared imports strictly by
// position: the i-th func import in the module's import section is bound
// to the i-th ImportedFunction passed to Instantiate.
type ImportedFunction struct {
	Type FuncType
	Func func(ctx context.Context, args []uint64) (result uint64, hasResult bool, err error)
}

// ImportedGlobal is a host-supplied global value bound the same way:
// positionally, against the module's global imports in declaration order.
// Value is copied into the instance's global at instantiation; later
// changes to it on the host side are not seen by the instance.
type ImportedGlobal struct {
	Type  GlobalType
	Value uint64
}

// FunctionInstance is a single function in the combined (imported +
// defined) function index space of an instantiated module.
type FunctionInstance struct {
	Signature *FuncType
	Owner     *Instance // the instance this function's index space (call targets, globals, memory) resolves against

	// Exactly one of the following is set.
	HostFunc func(ctx context.Context, args []uint64) (result uint64, hasResult bool, err error)
	Code     *Code
}

// GlobalInstance is a single mutable storage cell in the global index
// space, already resolved to a concrete value.
type GlobalInstance struct {
	Type *GlobalType
	Val  uint64
}

// MemoryInstance is the module's single linear memory, if its memory
// section declared one (memory imports are rejected at parse time).
type MemoryInstance struct {
	Buffer []byte
	Max    *uint32
}

func (m *MemoryInstance) pages() uint32 { return uint32(len(m.Buffer) / PageSize) }

// Instance is a module bound to a concrete set of imports: every index
// space fully resolved, ready to have its exported functions called.
type Instance struct {
	Module *Module
	Engine Engine

	Functions []*FunctionInstance
	Globals   []*GlobalInstance
	Memory    *MemoryInstance // nil if the module declares no memory
}

// Instantiate resolves module against the given host imports, in the
// order laid out by spec §4.4: validate import arity and type, allocate
// memory, allocate and evaluate globals, build the function index space,
// then run the start function (if any). A returned error is always an
// *InstantiateError.
func Instantiate(ctx context.Context, module *Module, engine Engine, funcs []ImportedFunction, globals []ImportedGlobal) (*Instance, error) {
	inst := &Instance{Module: module, Engine: engine}

	if err := checkImportArity(module, funcs, globals); err != nil {
		return nil, instantiateErrorf("import arity", err)
	}

	importedFuncCount := module.numImportedFuncs()
	importedGlobalCount := module.numImportedGlobals()
	if err := checkImportTypes(module, funcs, globals); err != nil {
		return nil, instantiateErrorf("import types", err)
	}

	if err := inst.buildMemory(module); err != nil {
		return nil, instantiateErrorf("memory", err)
	}

	inst.buildGlobals(module, globals, importedGlobalCount)

	inst.buildFunctions(module, funcs, importedFuncCount)

	if module.StartSection != nil {
		idx := *module.StartSection
		fn := inst.Functions[idx]
		if len(fn.Signature.Params) != 0 || len(fn.Signature.Results) != 0 {
			return nil, instantiateErrorf("start function", fmt.Errorf("function %d has a non-empty signature", idx))
		}
		if _, _, err := engine.Call(ctx, fn, nil); err != nil {
			return nil, instantiateErrorf("start function trapped", err)
		}
	}

	return inst, nil
}

func checkImportArity(module *Module, funcs []ImportedFunction, globals []ImportedGlobal) error {
	wantFuncs, wantGlobals := module.numImportedFuncs(), module.numImportedGlobals()
	if len(funcs) != wantFuncs {
		return fmt.Errorf("module imports %d functions, got %d", wantFuncs, len(funcs))
	}
	if len(globals) != wantGlobals {
		return fmt.Errorf("module imports %d globals, got %d", wantGlobals, len(globals))
	}
	return nil
}

func checkImportTypes(module *Module, funcs []ImportedFunction, globals []ImportedGlobal) error {
	var funcIdx, globalIdx int
	for _, imp := range module.ImportSection {
		switch imp.Kind {
		case ImportKindFunc:
			want := module.TypeSection[imp.FuncTypeIndex]
			got := funcs[funcIdx].Type
			if !sameFuncType(want, &got) {
				return fmt.Errorf("%s.%s: signature mismatch: module declares %v, host provided %v", imp.Module, imp.Name, want, got)
			}
			funcIdx++
		case ImportKindGlobal:
			got := globals[globalIdx].Type
			if got.ValType != imp.Global.ValType || got.Mutable != imp.Global.Mutable {
				return fmt.Errorf("%s.%s: global type mismatch: module declares %+v, host provided %+v", imp.Module, imp.Name, imp.Global, got)
			}
			globalIdx++
		}
	}
	return nil
}

func sameFuncType(a, b *FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

func (inst *Instance) buildMemory(module *Module) error {
	if len(module.MemorySection) == 0 {
		return nil
	}
	lim := module.MemorySection[0]
	buf := make([]byte, uint64(lim.Min)*PageSize)
	inst.Memory = &MemoryInstance{Buffer: buf, Max: lim.Max}
	return nil
}

func (inst *Instance) buildGlobals(module *Module, imported []ImportedGlobal, importedCount int) {
	inst.Globals = make([]*GlobalInstance, importedCount+len(module.GlobalSection))
	for i, g := range imported {
		gt := g.Type
		inst.Globals[i] = &GlobalInstance{Type: &gt, Val: g.Value}
	}
	for i, seg := range module.GlobalSection {
		var val uint64
		switch seg.Init.Kind {
		case ConstExprI32Const, ConstExprI64Const:
			val = seg.Init.Value
		case ConstExprGlobalGet:
			val = inst.Globals[seg.Init.GlobalIndex].Val
		}
		inst.Globals[importedCount+i] = &GlobalInstance{Type: seg.Type, Val: val}
	}
}

func (inst *Instance) buildFunctions(module *Module, imported []ImportedFunction, importedCount int) {
	inst.Functions = make([]*FunctionInstance, importedCount+len(module.FunctionSection))
	for i, f := range imported {
		ft := f.Type
		inst.Functions[i] = &FunctionInstance{Signature: &ft, HostFunc: f.Func, Owner: inst}
	}
	for i, typeIdx := range module.FunctionSection {
		inst.Functions[importedCount+i] = &FunctionInstance{
			Signature: module.TypeSection[typeIdx],
			Code:      module.CodeSection[i],
			Owner:     inst,
		}
	}
}

// Call invokes an exported or directly indexed function by its position in
// the combined function index space.
func (inst *Instance) Call(ctx context.Context, index uint32, args []uint64) (result uint64, hasResult bool, err error) {
	if index >= uint32(len(inst.Functions)) {
		return 0, false, instantiateErrorf("call", fmt.Errorf("%w: function index %d", ErrIndexOutOfRange, index))
	}
	return inst.Engine.Call(ctx, inst.Functions[index], args)
}
