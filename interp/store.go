package interp

import (
	"context"
	"reflect"

	"github.com/wippyai/lazywasm/host"
	"github.com/wippyai/lazywasm/wasm"
)

// DefaultMaxCallDepth is used when Store.MaxCallDepth is zero.
const DefaultMaxCallDepth = 1000

// Callee is a function reachable from guest code: a sibling guest
// function or an imported host function.
type Callee interface {
	FuncType() wasm.FuncType
	// CallInternal invokes the function the way a guest call site does,
	// through its internal entry point.
	CallInternal(ctx context.Context, args []uint64) ([]uint64, error)
}

// Store is the mutable state of one instance. It is not safe for
// concurrent use.
type Store struct {
	Memory  *host.Memory
	refIdx  map[any]uint64
	Globals []*host.Global
	Tables  []*host.Table
	Funcs   []Callee
	Types   []wasm.FuncType
	// Data holds passive and active data segments; dropped ones are nil.
	Data [][]byte
	// Elems holds resolved element segments; dropped ones are nil.
	Elems        [][]any
	refs         []any
	MaxCallDepth int
	depth        int
}

// RefBits returns the handle of r, registering it on first use.
// A nil reference is 0.
func (s *Store) RefBits(r any) uint64 {
	if r == nil {
		return 0
	}
	hashable := reflect.TypeOf(r).Comparable()
	if hashable {
		if bits, ok := s.refIdx[r]; ok {
			return bits
		}
	}
	s.refs = append(s.refs, r)
	bits := uint64(len(s.refs))
	if hashable {
		if s.refIdx == nil {
			s.refIdx = make(map[any]uint64)
		}
		s.refIdx[r] = bits
	}
	return bits
}

// Ref returns the reference behind a handle, or nil for 0 and unknown handles.
func (s *Store) Ref(bits uint64) any {
	if bits == 0 || bits > uint64(len(s.refs)) {
		return nil
	}
	return s.refs[bits-1]
}

// Depth returns the number of interpreted frames currently active.
func (s *Store) Depth() int { return s.depth }

func (s *Store) maxDepth() int {
	if s.MaxCallDepth > 0 {
		return s.MaxCallDepth
	}
	return DefaultMaxCallDepth
}
