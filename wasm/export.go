package wasm

import "fmt"

// FindExportedFunction resolves an export by name, returning the function's
// index in the combined function index space.
func (inst *Instance) FindExportedFunction(name string) (index uint32, err error) {
	for _, exp := range inst.Module.ExportSection {
		if exp.Name == name {
			if exp.Kind != ExportKindFunc {
				return 0, fmt.Errorf("%w: export %q is not a function", ErrUnsupportedExport, name)
			}
			return exp.Index, nil
		}
	}
	return 0, fmt.Errorf("no exported function named %q", name)
}

// FindExportedGlobal resolves an export by name, returning the resolved
// global instance.
func (inst *Instance) FindExportedGlobal(name string) (*GlobalInstance, error) {
	for _, exp := range inst.Module.ExportSection {
		if exp.Name == name {
			if exp.Kind != ExportKindGlobal {
				return nil, fmt.Errorf("%w: export %q is not a global", ErrUnsupportedExport, name)
			}
			return inst.Globals[exp.Index], nil
		}
	}
	return nil, fmt.Errorf("no exported global named %q", name)
}
