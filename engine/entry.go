package engine

import (
	"context"
	"sync"

	"github.com/wippyai/lazywasm/errors"
	"github.com/wippyai/lazywasm/interp"
)

// EntryKind classifies an entry point.
type EntryKind uint8

const (
	KindTrampoline EntryKind = iota
	KindInterpreted
	KindNative
	KindTrap
	KindHost
)

func (k EntryKind) String() string {
	switch k {
	case KindTrampoline:
		return "trampoline"
	case KindInterpreted:
		return "interpreted"
	case KindNative:
		return "native"
	case KindTrap:
		return "trap"
	case KindHost:
		return "host"
	default:
		return "unknown"
	}
}

// CallFunc is the calling convention shared by all entry points: the
// function being called and its arguments, untouched by whoever dispatched.
type CallFunc func(ctx context.Context, fn *Function, args []uint64) ([]uint64, error)

// EntryPoint is a callable address installed in a function's entry cell.
// Entry points are compared by identity.
type EntryPoint struct {
	call CallFunc
	name string
	kind EntryKind
}

// NewEntryPoint returns an entry point. Entries other than the package's
// own must be registered with the Engine's Gate before a trampoline can
// dispatch to them.
func NewEntryPoint(kind EntryKind, name string, call CallFunc) *EntryPoint {
	return &EntryPoint{call: call, name: name, kind: kind}
}

func (e *EntryPoint) Kind() EntryKind { return e.kind }
func (e *EntryPoint) Name() string    { return e.name }
func (e *EntryPoint) String() string  { return e.name }

// Call invokes the entry point for fn.
func (e *EntryPoint) Call(ctx context.Context, fn *Function, args []uint64) ([]uint64, error) {
	return e.call(ctx, fn, args)
}

var (
	// ExternalTrampoline is the initial type-level entry of every defined function.
	ExternalTrampoline *EntryPoint
	// InternalTrampoline is the initial Entry Point Info of every defined function.
	InternalTrampoline *EntryPoint
	// TrapEntry replays a function's lazy error.
	TrapEntry *EntryPoint

	externalEntry    *EntryPoint
	interpreterEntry *EntryPoint
	hostEntry        *EntryPoint
)

func init() {
	ExternalTrampoline = NewEntryPoint(KindTrampoline, "external-trampoline", func(ctx context.Context, fn *Function, args []uint64) ([]uint64, error) {
		return trampoline(ctx, fn, false, args)
	})
	InternalTrampoline = NewEntryPoint(KindTrampoline, "internal-trampoline", func(ctx context.Context, fn *Function, args []uint64) ([]uint64, error) {
		return trampoline(ctx, fn, true, args)
	})
	TrapEntry = NewEntryPoint(KindTrap, "trap", callTrap)
	externalEntry = NewEntryPoint(KindInterpreted, "external", callExternal)
	interpreterEntry = NewEntryPoint(KindInterpreted, "interpreter", callInterpreted)
	hostEntry = NewEntryPoint(KindHost, "host", callHost)
}

// staticEntries are the entry points every Gate allows.
func staticEntries() []*EntryPoint {
	return []*EntryPoint{externalEntry, interpreterEntry, hostEntry, TrapEntry}
}

// trampoline resolves fn and hands the unchanged frame to the target.
func trampoline(ctx context.Context, fn *Function, internal bool, args []uint64) ([]uint64, error) {
	target := fn.engine().gate.Check(fn.resolve(ctx, internal))
	debugf("%s: dispatch to %s (internal=%t)", fn.name, target, internal)
	return target.call(ctx, fn, args)
}

// callTrap returns the stored lazy error. It never produces results.
func callTrap(_ context.Context, fn *Function, _ []uint64) ([]uint64, error) {
	if fn.lazyErr == nil {
		panic(errors.Internal("function %s: trap entry installed without a lazy error", fn.name))
	}
	return nil, fn.lazyErr
}

// callExternal adapts an outside call to the internal convention.
func callExternal(ctx context.Context, fn *Function, args []uint64) ([]uint64, error) {
	if len(args) != len(fn.typ.Params) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Func(fn.name).
			Detail("expected %d arguments, got %d", len(fn.typ.Params), len(args)).
			Build()
	}
	return fn.info.Load().call(ctx, fn, args)
}

func callInterpreted(ctx context.Context, fn *Function, args []uint64) ([]uint64, error) {
	if fn.countRun() {
		fn.tierUp(ctx)
		if e := fn.info.Load(); e != interpreterEntry {
			return e.call(ctx, fn, args)
		}
	}
	return interp.Execute(ctx, fn.inst.store, fn.code, args)
}

func callHost(ctx context.Context, fn *Function, args []uint64) ([]uint64, error) {
	return fn.host.Fn(ctx, args)
}

// Gate is the whitelist of entry points a trampoline may transfer control
// to. Trampolines themselves are never on it.
type Gate struct {
	allowed map[*EntryPoint]struct{}
	mu      sync.RWMutex
}

// NewGate returns a gate that allows the package's static entry points
// plus extra.
func NewGate(extra ...*EntryPoint) *Gate {
	g := &Gate{allowed: make(map[*EntryPoint]struct{})}
	for _, e := range staticEntries() {
		g.allowed[e] = struct{}{}
	}
	for _, e := range extra {
		g.Register(e)
	}
	return g
}

// Register adds e to the whitelist.
func (g *Gate) Register(e *EntryPoint) {
	if e == nil || e.kind == KindTrampoline {
		panic(errors.Internal("gate: refusing to register %v", e))
	}
	g.mu.Lock()
	g.allowed[e] = struct{}{}
	g.mu.Unlock()
}

// Allowed reports whether e is on the whitelist.
func (g *Gate) Allowed(e *EntryPoint) bool {
	g.mu.RLock()
	_, ok := g.allowed[e]
	g.mu.RUnlock()
	return ok
}

// Check returns e when it is on the whitelist and panics otherwise.
func (g *Gate) Check(e *EntryPoint) *EntryPoint {
	if e == nil || !g.Allowed(e) {
		panic(errors.Internal("gate: dispatch to unregistered entry point %v", e))
	}
	return e
}
