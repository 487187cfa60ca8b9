package host

import (
	"context"

	"github.com/wippyai/lazywasm/wasm"
)

// Func is a host function importable by a guest module. Arguments and
// results use the uint64 encoding shared with the interpreter: i32 values
// are zero-extended, floats are carried as their IEEE-754 bits.
type Func struct {
	Fn   func(ctx context.Context, args []uint64) ([]uint64, error)
	Name string
	Type wasm.FuncType
}

// NewFunc returns a host function with the given signature.
func NewFunc(name string, params, results []wasm.ValType, fn func(ctx context.Context, args []uint64) ([]uint64, error)) *Func {
	return &Func{
		Name: name,
		Type: wasm.FuncType{Params: params, Results: results},
		Fn:   fn,
	}
}

// FuncType returns the function's signature.
func (f *Func) FuncType() wasm.FuncType { return f.Type }

// FuncAdapter is an untyped host callable. Binding asks it for a Func
// with the signature the guest imports it under.
type FuncAdapter interface {
	Adapt(name string, ft wasm.FuncType) *Func
}

// Global is a global variable shared between host and guest.
type Global struct {
	Type  wasm.GlobalType
	Value uint64
}

// NewGlobal returns a global holding v.
func NewGlobal(t wasm.ValType, mutable bool, v uint64) *Global {
	return &Global{Type: wasm.GlobalType{ValType: t, Mutable: mutable}, Value: v}
}
