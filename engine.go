// Package fizzy is a minimal, embeddable WebAssembly execution engine
// restricted to the i32/i64 core: binary module parsing, instantiation
// against host-supplied imports, and a straight-line instruction
// interpreter. It has no text format, no floating point, no tables, and
// no multi-value returns.
package fizzy

import (
	"context"

	"github.com/hugo-dc/fizzy/wasm"
	"github.com/hugo-dc/fizzy/wasm/interpreter"
)

// Module is a parsed, unvalidated-against-any-host binary module. It may
// be instantiated any number of times.
type Module = wasm.Module

// Instance is a module bound to a concrete set of host imports.
type Instance = wasm.Instance

// ImportedFunction and ImportedGlobal describe the host side of an
// import, supplied positionally per import kind (see wasm.Instantiate).
type ImportedFunction = wasm.ImportedFunction
type ImportedGlobal = wasm.ImportedGlobal

// Parse decodes a binary module. The returned error, if non-nil, reports
// a structural defect in the input and is never a trap.
func Parse(data []byte) (*Module, error) {
	return wasm.DecodeModule(data)
}

// Instantiate binds a parsed module to host imports and, if the module
// declares a start function, runs it. It allocates a fresh interpreter
// for the returned Instance; the Instance is not safe for concurrent use.
func Instantiate(ctx context.Context, module *Module, funcs []ImportedFunction, globals []ImportedGlobal) (*Instance, error) {
	return wasm.Instantiate(ctx, module, interpreter.New(), funcs, globals)
}

// Execute calls an exported function by name with the given arguments.
func Execute(ctx context.Context, inst *Instance, funcName string, args []uint64) (result uint64, hasResult bool, err error) {
	idx, err := inst.FindExportedFunction(funcName)
	if err != nil {
		return 0, false, err
	}
	return inst.Call(ctx, idx, args)
}
