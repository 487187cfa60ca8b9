package engine

import (
	"context"

	"github.com/wippyai/lazywasm/errors"
	"github.com/wippyai/lazywasm/host"
	"github.com/wippyai/lazywasm/interp"
	"github.com/wippyai/lazywasm/wasm"
)

// Instance is a module bound to its imports. It is not safe for
// concurrent use.
type Instance struct {
	module *Module
	store  *interp.Store
	// funcs is the function index space: imports first, then definitions.
	funcs []*Function
}

// Module returns the module inst was bound from.
func (inst *Instance) Module() *Module { return inst.module }

// Function returns the function at idx in the function index space, or nil.
func (inst *Instance) Function(idx uint32) *Function {
	if int(idx) >= len(inst.funcs) {
		return nil
	}
	return inst.funcs[idx]
}

// Memory returns the instance memory, or nil.
func (inst *Instance) Memory() *host.Memory { return inst.store.Memory }

// Export returns the named export: a *Function, *host.Memory, *host.Global
// or *host.Table.
func (inst *Instance) Export(name string) (any, bool) {
	for _, exp := range inst.module.wasm.Exports {
		if exp.Name != name {
			continue
		}
		switch exp.Kind {
		case wasm.KindFunc:
			return inst.funcs[exp.Idx], true
		case wasm.KindMemory:
			return inst.store.Memory, true
		case wasm.KindGlobal:
			return inst.store.Globals[exp.Idx], true
		case wasm.KindTable:
			return inst.store.Tables[exp.Idx], true
		}
	}
	return nil, false
}

// Exports returns every export keyed by name. The result can serve as an
// import module for another instance.
func (inst *Instance) Exports() host.Map {
	out := make(host.Map, len(inst.module.wasm.Exports))
	for _, exp := range inst.module.wasm.Exports {
		if v, ok := inst.Export(exp.Name); ok {
			out[exp.Name] = v
		}
	}
	return out
}

// ExportedFunctions returns the function exports in declaration order.
func (inst *Instance) ExportedFunctions() []*ExportedFunction {
	var out []*ExportedFunction
	for _, exp := range inst.module.wasm.Exports {
		if exp.Kind == wasm.KindFunc {
			out = append(out, &ExportedFunction{Export: exp.Name, Function: inst.funcs[exp.Idx]})
		}
	}
	return out
}

// ExportedFunction pairs an export name with its function.
type ExportedFunction struct {
	*Function
	Export string
}

// Call invokes the named function export through its type-level entry.
func (inst *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	v, ok := inst.Export(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
	}
	fn, ok := v.(*Function)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "export "+name+" is not a function")
	}
	return fn.Call(ctx, args...)
}

// Start runs the module's start function, if any, as an external call.
func (inst *Instance) Start(ctx context.Context) error {
	start := inst.module.wasm.Start
	if start == nil {
		return nil
	}
	_, err := inst.funcs[*start].Call(ctx)
	return err
}

// Stats returns a snapshot of every function owned by inst, in index order.
// Functions imported from other instances are reported by their owner.
func (inst *Instance) Stats() []FuncStats {
	out := make([]FuncStats, 0, len(inst.funcs))
	for _, fn := range inst.funcs {
		if fn.inst == inst {
			out = append(out, fn.Stats())
		}
	}
	return out
}

// RefBits returns the uint64 handle used for a reference value (a
// *Function, or any host value for externref) in calls to this instance.
func (inst *Instance) RefBits(v any) uint64 { return inst.store.RefBits(v) }

// Ref returns the reference behind a handle returned by a call.
func (inst *Instance) Ref(bits uint64) any { return inst.store.Ref(bits) }
