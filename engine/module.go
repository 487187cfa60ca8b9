package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/lazywasm/bytecode"
	"github.com/wippyai/lazywasm/errors"
	"github.com/wippyai/lazywasm/host"
	"github.com/wippyai/lazywasm/interp"
	"github.com/wippyai/lazywasm/wasm"
)

// Module is a parsed, validated module. It is immutable and may be bound
// to any number of import objects.
type Module struct {
	engine *Engine
	wasm   *wasm.Module
}

// Wasm returns the parsed module.
func (m *Module) Wasm() *wasm.Module { return m.wasm }

// Engine returns the engine that compiled m.
func (m *Module) Engine() *Engine { return m.engine }

// Defs returns the deferred-compilation records of the defined functions.
func (m *Module) Defs() []wasm.FuncDef {
	defs := make([]wasm.FuncDef, len(m.wasm.Code))
	for i := range defs {
		defs[i] = m.wasm.Def(i)
	}
	return defs
}

// Bind resolves imports against an import object and creates an instance.
// Every defined function starts on its trampolines; segments are applied
// but the start function is not run.
func (m *Module) Bind(_ context.Context, imports host.Object) (*Instance, error) {
	inst := &Instance{
		module: m,
		store: &interp.Store{
			Types:        m.wasm.Types,
			MaxCallDepth: m.engine.cfg.MaxCallDepth,
		},
	}

	if err := inst.bindImports(imports); err != nil {
		return nil, err
	}
	inst.defineFunctions()

	steps := []func() error{
		inst.initGlobals,
		inst.initMemory,
		inst.initTables,
		inst.initElements,
		inst.initData,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, errors.Instantiation(err)
		}
	}

	Logger().Debug("module bound",
		zap.Int("functions", len(inst.funcs)),
		zap.Int("globals", len(inst.store.Globals)),
		zap.Bool("memory", inst.store.Memory != nil))
	return inst, nil
}

// lookupImport returns the value at imports[module][name]. The reason is
// empty when the entry is simply absent.
func lookupImport(imports host.Object, module, name string) (host.Value, string, bool) {
	ns, ok := imports.Get(module)
	if !ok {
		return nil, "", false
	}
	obj, ok := ns.(host.Object)
	if !ok {
		return nil, fmt.Sprintf("import module %q is not an object", module), false
	}
	v, ok := obj.Get(name)
	if !ok {
		return nil, "", false
	}
	return v, "", true
}

func (inst *Instance) bindImports(imports host.Object) error {
	wm := inst.module.wasm
	s := inst.store
	missing := &errors.MissingImportsError{}

	for _, imp := range wm.Imports {
		v, reason, ok := lookupImport(imports, imp.Module, imp.Name)
		if !ok {
			missing.Add(imp.Module, imp.Name, reason)
			continue
		}

		switch imp.Desc.Kind {
		case wasm.KindFunc:
			want := wm.Types[imp.Desc.TypeIdx]
			idx := uint32(len(inst.funcs))
			switch f := v.(type) {
			case *host.Func:
				if !f.Type.Equal(want) {
					missing.Add(imp.Module, imp.Name, fmt.Sprintf("signature %s, want %s", f.Type, want))
					continue
				}
				inst.funcs = append(inst.funcs, newHostFunction(inst, idx, wm.FuncName(idx), f))
			case *Function:
				if !f.typ.Equal(want) {
					missing.Add(imp.Module, imp.Name, fmt.Sprintf("signature %s, want %s", f.typ, want))
					continue
				}
				inst.funcs = append(inst.funcs, f)
			case host.FuncAdapter:
				hf := f.Adapt(imp.Module+"."+imp.Name, want)
				inst.funcs = append(inst.funcs, newHostFunction(inst, idx, wm.FuncName(idx), hf))
			default:
				missing.Add(imp.Module, imp.Name, fmt.Sprintf("%T is not a function", v))
			}

		case wasm.KindMemory:
			mem, ok := v.(*host.Memory)
			if !ok {
				missing.Add(imp.Module, imp.Name, fmt.Sprintf("%T is not a memory", v))
				continue
			}
			if reason := checkLimits(imp.Desc.Memory.Limits, uint64(mem.Pages()), uint64(mem.Max())); reason != "" {
				missing.Add(imp.Module, imp.Name, reason)
				continue
			}
			s.Memory = mem

		case wasm.KindGlobal:
			g, ok := v.(*host.Global)
			if !ok {
				missing.Add(imp.Module, imp.Name, fmt.Sprintf("%T is not a global", v))
				continue
			}
			if g.Type != *imp.Desc.Global {
				missing.Add(imp.Module, imp.Name, fmt.Sprintf("global type %s (mutable=%t), want %s (mutable=%t)",
					g.Type.ValType, g.Type.Mutable, imp.Desc.Global.ValType, imp.Desc.Global.Mutable))
				continue
			}
			s.Globals = append(s.Globals, g)

		case wasm.KindTable:
			t, ok := v.(*host.Table)
			if !ok {
				missing.Add(imp.Module, imp.Name, fmt.Sprintf("%T is not a table", v))
				continue
			}
			want := imp.Desc.Table
			if t.Type.ElemType != want.ElemType {
				missing.Add(imp.Module, imp.Name, fmt.Sprintf("table of %s, want %s", t.Type.ElemType, want.ElemType))
				continue
			}
			tableMax := uint64(1<<32 - 1)
			if t.Type.Limits.Max != nil {
				tableMax = *t.Type.Limits.Max
			}
			if reason := checkLimits(want.Limits, uint64(t.Size()), tableMax); reason != "" {
				missing.Add(imp.Module, imp.Name, reason)
				continue
			}
			s.Tables = append(s.Tables, t)
		}
	}

	if len(missing.Imports) > 0 {
		return missing
	}
	return nil
}

func checkLimits(want wasm.Limits, size, maxSize uint64) string {
	if size < want.Min {
		return fmt.Sprintf("size %d is below the declared minimum %d", size, want.Min)
	}
	if want.Max != nil && maxSize > *want.Max {
		return fmt.Sprintf("maximum %d exceeds the declared maximum %d", maxSize, *want.Max)
	}
	return ""
}

func (inst *Instance) defineFunctions() {
	wm := inst.module.wasm
	for i := range wm.Code {
		idx := uint32(len(inst.funcs))
		ft := wm.Types[wm.Funcs[i]]
		inst.funcs = append(inst.funcs, newGuestFunction(inst, idx, bytecode.NewReaderInfo(wm, i), ft))
	}
	inst.store.Funcs = make([]interp.Callee, len(inst.funcs))
	for i, fn := range inst.funcs {
		inst.store.Funcs[i] = fn
	}
}

// constValue evaluates an initializer against the globals defined so far.
func (inst *Instance) constValue(expr []byte) (uint64, error) {
	c, err := wasm.DecodeConstExpr(expr)
	if err != nil {
		return 0, err
	}
	s := inst.store
	switch c.Opcode {
	case wasm.OpGlobalGet:
		if int(c.Index) >= len(s.Globals) {
			return 0, fmt.Errorf("initializer reads unknown global %d", c.Index)
		}
		return s.Globals[c.Index].Value, nil
	case wasm.OpRefFunc:
		if int(c.Index) >= len(inst.funcs) {
			return 0, fmt.Errorf("initializer references unknown function %d", c.Index)
		}
		return s.RefBits(inst.funcs[c.Index]), nil
	case wasm.OpRefNull:
		return 0, nil
	default:
		return c.Value, nil
	}
}

func (inst *Instance) initGlobals() error {
	for i, g := range inst.module.wasm.Globals {
		v, err := inst.constValue(g.Init)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		inst.store.Globals = append(inst.store.Globals, &host.Global{Type: g.Type, Value: v})
	}
	return nil
}

func (inst *Instance) initMemory() error {
	wm := inst.module.wasm
	limit := inst.module.engine.cfg.MemoryLimitPages
	if inst.store.Memory != nil || len(wm.Memories) == 0 {
		return nil
	}
	lim := wm.Memories[0].Limits
	maxPages := wasm.MemoryMaxPages32
	if lim.Max != nil {
		maxPages = *lim.Max
	}
	if limit > 0 {
		if lim.Min > uint64(limit) {
			return fmt.Errorf("memory minimum %d pages exceeds the limit of %d", lim.Min, limit)
		}
		maxPages = min(maxPages, uint64(limit))
	}
	inst.store.Memory = host.NewMemory(uint32(lim.Min), uint32(min(maxPages, wasm.MemoryMaxPages32)))
	return nil
}

func (inst *Instance) initTables() error {
	for _, tt := range inst.module.wasm.Tables {
		inst.store.Tables = append(inst.store.Tables, host.NewTable(tt))
	}
	return nil
}

// initElements resolves every element segment and copies the active ones
// into their tables. Active and declarative segments are dropped afterwards.
func (inst *Instance) initElements() error {
	s := inst.store
	for i, elem := range inst.module.wasm.Elements {
		var refs []any
		for _, idx := range elem.FuncIdxs {
			refs = append(refs, inst.funcs[idx])
		}
		for _, expr := range elem.Exprs {
			bits, err := inst.constValue(expr)
			if err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
			refs = append(refs, s.Ref(bits))
		}

		if !elem.Active() {
			if elem.Flags&0x02 != 0 {
				// declarative
				s.Elems = append(s.Elems, nil)
			} else {
				s.Elems = append(s.Elems, refs)
			}
			continue
		}

		off, err := inst.constValue(elem.Offset)
		if err != nil {
			return fmt.Errorf("element %d offset: %w", i, err)
		}
		table := s.Tables[elem.TableIdx]
		start := uint64(uint32(off))
		if start+uint64(len(refs)) > uint64(table.Size()) {
			return errors.Trap(fmt.Sprintf("out of bounds table access: element %d at %d+%d, table size %d",
				i, start, len(refs), table.Size()))
		}
		copy(table.Elems[start:], refs)
		s.Elems = append(s.Elems, nil)
	}
	return nil
}

// initData copies active data segments into memory. Passive segments stay
// available to memory.init until dropped.
func (inst *Instance) initData() error {
	s := inst.store
	for i, d := range inst.module.wasm.Data {
		if d.Flags == 1 {
			s.Data = append(s.Data, d.Init)
			continue
		}
		off, err := inst.constValue(d.Offset)
		if err != nil {
			return fmt.Errorf("data %d offset: %w", i, err)
		}
		if s.Memory == nil {
			return fmt.Errorf("data %d: no memory", i)
		}
		dst, ok := s.Memory.Range(uint64(uint32(off)), uint64(len(d.Init)))
		if !ok {
			return errors.Trap(fmt.Sprintf("out of bounds memory access: data %d at %d+%d, memory size %d",
				i, uint32(off), len(d.Init), len(s.Memory.Bytes())))
		}
		copy(dst, d.Init)
		s.Data = append(s.Data, nil)
	}
	return nil
}
