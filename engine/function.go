package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/lazywasm/bytecode"
	"github.com/wippyai/lazywasm/errors"
	"github.com/wippyai/lazywasm/host"
	"github.com/wippyai/lazywasm/wasm"
)

// Function is a guest or imported host function bound to an instance.
type Function struct {
	inst *Instance
	host *host.Func // set for imported host functions

	// external is the type-level entry, used by callers outside the module.
	external atomic.Pointer[EntryPoint]
	// info is the Entry Point Info, used by sibling guest functions.
	info atomic.Pointer[EntryPoint]

	mu         sync.Mutex
	readerInfo *bytecode.ReaderInfo
	code       *bytecode.Func
	lazyErr    *errors.Error

	name        string
	typ         wasm.FuncType
	body        []byte
	runs        atomic.Int64
	generations atomic.Int32
	tierOnce    sync.Once
	index       uint32
	typeIdx     uint32
}

func newGuestFunction(inst *Instance, idx uint32, info *bytecode.ReaderInfo, ft wasm.FuncType) *Function {
	fn := &Function{
		inst:       inst,
		readerInfo: info,
		name:       info.Def.Name,
		typ:        ft,
		body:       info.Body,
		index:      idx,
		typeIdx:    info.Def.TypeIdx,
	}
	fn.external.Store(ExternalTrampoline)
	fn.info.Store(InternalTrampoline)
	return fn
}

func newHostFunction(inst *Instance, idx uint32, name string, hf *host.Func) *Function {
	fn := &Function{
		inst:  inst,
		host:  hf,
		name:  name,
		typ:   hf.Type,
		index: idx,
	}
	fn.external.Store(hostEntry)
	fn.info.Store(hostEntry)
	return fn
}

func (fn *Function) engine() *Engine { return fn.inst.module.engine }

// Name returns the display name.
func (fn *Function) Name() string { return fn.name }

// Index returns the function's index in its module's function index space.
func (fn *Function) Index() uint32 { return fn.index }

// Instance returns the owning instance.
func (fn *Function) Instance() *Instance { return fn.inst }

// FuncType returns the signature.
func (fn *Function) FuncType() wasm.FuncType { return fn.typ }

// TypeIndex returns the index of the signature in the owning module's type
// section. It is meaningless for host functions.
func (fn *Function) TypeIndex() uint32 { return fn.typeIdx }

// Body returns the raw body bytes (locals vector and expression), or nil
// for host functions. It stays available after resolution.
func (fn *Function) Body() []byte { return fn.body }

// Code returns the generated artifact, or nil before a successful resolution.
func (fn *Function) Code() *bytecode.Func {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	return fn.code
}

// LazyError returns the stored compile error, or nil.
func (fn *Function) LazyError() *errors.Error {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	return fn.lazyErr
}

// Entry returns the current Entry Point Info.
func (fn *Function) Entry() *EntryPoint { return fn.info.Load() }

// ExternalEntry returns the current type-level entry.
func (fn *Function) ExternalEntry() *EntryPoint { return fn.external.Load() }

// Generations returns how many times bytecode generation ran for fn.
func (fn *Function) Generations() int { return int(fn.generations.Load()) }

// Call invokes fn the way a caller outside the module does.
func (fn *Function) Call(ctx context.Context, args ...uint64) ([]uint64, error) {
	return fn.external.Load().call(ctx, fn, args)
}

// CallInternal invokes fn the way a guest call site does.
func (fn *Function) CallInternal(ctx context.Context, args []uint64) ([]uint64, error) {
	return fn.info.Load().call(ctx, fn, args)
}

// ResolveEntry compiles fn if it is still on its trampoline and returns the
// Entry Point Info when internal is set, else the type-level entry. A
// function is generated at most once; after that the installed entry is
// returned as is.
func ResolveEntry(fn *Function, internal bool) *EntryPoint {
	return fn.resolve(context.Background(), internal)
}

func (fn *Function) resolve(ctx context.Context, internal bool) *EntryPoint {
	if fn.generate() {
		fn.tierUp(ctx)
	}
	if internal {
		return fn.info.Load()
	}
	return fn.external.Load()
}

// generate runs bytecode generation under fn.mu if fn is still unresolved
// and reports whether eager native compilation was requested.
func (fn *Function) generate() bool {
	fn.mu.Lock()
	defer fn.mu.Unlock()

	if fn.info.Load().kind != KindTrampoline {
		return false
	}
	info := fn.readerInfo
	if info == nil {
		panic(errors.Internal("function %s: unresolved but its reader was already detached", fn.name))
	}
	fn.readerInfo = nil

	e := fn.engine()
	fn.generations.Add(1)
	code, err := e.generator.Generate(info)
	if err != nil {
		var ce *bytecode.CompileError
		if !stderrors.As(err, &ce) {
			panic(errors.Internal("function %s: generator failed outside validation: %v", fn.name, err))
		}
		fn.fail(info, ce)
		return false
	}

	fn.code = code
	fn.external.Store(externalEntry)
	fn.info.Store(interpreterEntry)
	Logger().Debug("function compiled",
		zap.String("func", fn.name),
		zap.Int("ops", len(code.Code)),
		zap.Bool("leaf", code.Leaf))
	return e.eagerNative()
}

// fail stores the lazy error and installs the trap in both cells. Only
// validation failures get here; any other generator error is a bug.
func (fn *Function) fail(info *bytecode.ReaderInfo, ce *bytecode.CompileError) {
	rel := uint32(0)
	if ce.Offset > info.Start() {
		rel = min(ce.Offset-info.Start(), info.Size())
	}

	fn.lazyErr = errors.CompileFailed(fn.name,
		fmt.Sprintf("function %s at offset %d/%d: %s", fn.name, rel, info.Size(), ce.Msg))
	fn.external.Store(TrapEntry)
	fn.info.Store(TrapEntry)
	Logger().Debug("function failed to compile",
		zap.String("func", fn.name),
		zap.Error(fn.lazyErr))
}

// countRun records an interpreted run and reports whether the run-count
// threshold for tier-up has been passed.
func (fn *Function) countRun() bool {
	limit := fn.engine().cfg.MaxInterpretedRunCount
	if limit < 0 || !fn.engine().nativeEnabled() {
		return false
	}
	return fn.runs.Add(1) > int64(limit)
}

// Runs returns the number of interpreted runs counted towards tier-up.
func (fn *Function) Runs() int64 { return fn.runs.Load() }

// tierUp asks the native compiler for a replacement entry, once.
func (fn *Function) tierUp(ctx context.Context) {
	fn.tierOnce.Do(func() {
		e := fn.engine()
		if !e.nativeEnabled() {
			return
		}
		if fn.code == nil || !fn.code.Leaf {
			Logger().Warn("native tier skipped: function is not a leaf", zap.String("func", fn.name))
			return
		}
		ep, err := e.native.CompileNative(ctx, fn)
		if err != nil {
			Logger().Warn("native compilation failed, staying interpreted",
				zap.String("func", fn.name),
				zap.Error(err))
			return
		}
		e.gate.Register(ep)
		if fn.info.CompareAndSwap(interpreterEntry, ep) {
			Logger().Debug("function tiered up", zap.String("func", fn.name), zap.Stringer("entry", ep))
		}
	})
}

// FuncState is the tier a function is currently running on.
type FuncState string

const (
	StatePending     FuncState = "pending"
	StateInterpreted FuncState = "interpreted"
	StateNative      FuncState = "native"
	StateTrapped     FuncState = "trapped"
	StateHost        FuncState = "host"
)

// FuncStats is a snapshot of one function's lifecycle.
type FuncStats struct {
	Name        string
	State       FuncState
	Runs        int64
	Generations int
	Index       uint32
}

// Stats returns a snapshot of fn's state.
func (fn *Function) Stats() FuncStats {
	st := FuncStats{
		Name:        fn.name,
		Index:       fn.index,
		Runs:        fn.runs.Load(),
		Generations: fn.Generations(),
	}
	switch fn.info.Load().kind {
	case KindTrampoline:
		st.State = StatePending
	case KindInterpreted:
		st.State = StateInterpreted
	case KindNative:
		st.State = StateNative
	case KindTrap:
		st.State = StateTrapped
	case KindHost:
		st.State = StateHost
	}
	return st
}
