package interp

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/wippyai/lazywasm/bytecode"
	"github.com/wippyai/lazywasm/errors"
	"github.com/wippyai/lazywasm/wasm"
)

// Trap messages.
const (
	trapUnreachable      = "unreachable"
	trapStackExhausted   = "call stack exhausted"
	trapDivByZero        = "integer divide by zero"
	trapIntOverflow      = "integer overflow"
	trapInvalidConv      = "invalid conversion to integer"
	trapMemoryBounds     = "out of bounds memory access"
	trapTableBounds      = "out of bounds table access"
	trapUndefinedElem    = "undefined element"
	trapUninitialized    = "uninitialized element"
	trapIndirectMismatch = "indirect call type mismatch"
)

type frame struct {
	ctx    context.Context
	store  *Store
	fn     *bytecode.Func
	locals []uint64
	stack  []uint64
}

func (f *frame) push(v uint64) { f.stack = append(f.stack, v) }

func (f *frame) pop() uint64 {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) top() *uint64 { return &f.stack[len(f.stack)-1] }

// popN removes and returns a copy of the top n values.
func (f *frame) popN(n int) []uint64 {
	vals := make([]uint64, n)
	copy(vals, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return vals
}

func (f *frame) branch(t bytecode.Target) int {
	keep := int(t.Keep)
	h := int(t.Height)
	if n := len(f.stack); n-keep != h {
		copy(f.stack[h:], f.stack[n-keep:])
		f.stack = f.stack[:h+keep]
	}
	return int(t.PC)
}

// Execute runs fn with args and returns its results.
// The function body must have been produced by a bytecode generator for
// the module whose instance state s holds.
func Execute(ctx context.Context, s *Store, fn *bytecode.Func, args []uint64) ([]uint64, error) {
	if s.depth >= s.maxDepth() {
		return nil, errors.Trap(trapStackExhausted)
	}
	s.depth++
	defer func() { s.depth-- }()

	f := &frame{
		ctx:    ctx,
		store:  s,
		fn:     fn,
		locals: make([]uint64, fn.NumLocals()),
		stack:  make([]uint64, 0, fn.MaxStack),
	}
	copy(f.locals, args)
	return f.run()
}

func (f *frame) run() ([]uint64, error) {
	code := f.fn.Code
	s := f.store
	pc := 0
	for {
		op := &code[pc]
		pc++

		switch op.Code {
		case bytecode.Unreachable:
			return nil, errors.Trap(trapUnreachable)

		case bytecode.Br:
			next := f.branch(op.Target)
			if next < pc {
				if err := f.ctx.Err(); err != nil {
					return nil, err
				}
			}
			pc = next

		case bytecode.BrIf:
			if uint32(f.pop()) != 0 {
				next := f.branch(op.Target)
				if next < pc {
					if err := f.ctx.Err(); err != nil {
						return nil, err
					}
				}
				pc = next
			}

		case bytecode.BrIfNot:
			if uint32(f.pop()) == 0 {
				pc = int(op.Target.PC)
			}

		case bytecode.BrTable:
			i := uint32(f.pop())
			t := op.Table[len(op.Table)-1]
			if int(i) < len(op.Table)-1 {
				t = op.Table[i]
			}
			next := f.branch(t)
			if next < pc {
				if err := f.ctx.Err(); err != nil {
					return nil, err
				}
			}
			pc = next

		case bytecode.Jump:
			pc = int(op.Target.PC)

		case bytecode.Return:
			n := len(f.fn.Type.Results)
			return f.popN(n), nil

		case bytecode.Call:
			if err := f.call(s.Funcs[op.Imm]); err != nil {
				return nil, err
			}

		case bytecode.CallIndirect:
			callee, err := f.indirect(op)
			if err != nil {
				return nil, err
			}
			if err := f.call(callee); err != nil {
				return nil, err
			}

		default:
			if err := f.exec(op); err != nil {
				return nil, err
			}
		}
	}
}

func (f *frame) call(c Callee) error {
	args := f.popN(len(c.FuncType().Params))
	results, err := c.CallInternal(f.ctx, args)
	if err != nil {
		return err
	}
	f.stack = append(f.stack, results...)
	return nil
}

func (f *frame) indirect(op *bytecode.Op) (Callee, error) {
	s := f.store
	i := uint32(f.pop())
	elem, ok := s.Tables[op.Imm2].Get(i)
	if !ok {
		return nil, errors.Trap(trapUndefinedElem)
	}
	if elem == nil {
		return nil, errors.Trap(trapUninitialized)
	}
	callee, ok := elem.(Callee)
	if !ok || !callee.FuncType().Equal(s.Types[op.Imm]) {
		return nil, errors.Trap(trapIndirectMismatch)
	}
	return callee, nil
}

// exec runs a non-control instruction.
func (f *frame) exec(op *bytecode.Op) error {
	if sub, ok := op.Code.IsMisc(); ok {
		return f.misc(sub, op)
	}

	code := byte(op.Code)
	s := f.store
	switch code {
	case wasm.OpDrop:
		f.pop()
	case wasm.OpSelect:
		c := uint32(f.pop())
		b := f.pop()
		if c == 0 {
			*f.top() = b
		}

	case wasm.OpLocalGet:
		f.push(f.locals[op.Imm])
	case wasm.OpLocalSet:
		f.locals[op.Imm] = f.pop()
	case wasm.OpLocalTee:
		f.locals[op.Imm] = *f.top()
	case wasm.OpGlobalGet:
		f.push(s.Globals[op.Imm].Value)
	case wasm.OpGlobalSet:
		s.Globals[op.Imm].Value = f.pop()

	case wasm.OpTableGet:
		i := uint32(f.pop())
		v, ok := s.Tables[op.Imm].Get(i)
		if !ok {
			return errors.Trap(trapTableBounds)
		}
		f.push(s.RefBits(v))
	case wasm.OpTableSet:
		v := s.Ref(f.pop())
		i := uint32(f.pop())
		if !s.Tables[op.Imm].Set(i, v) {
			return errors.Trap(trapTableBounds)
		}

	case wasm.OpMemorySize:
		f.push(uint64(s.Memory.Pages()))
	case wasm.OpMemoryGrow:
		delta := uint32(f.pop())
		old, ok := s.Memory.Grow(delta)
		if !ok {
			f.push(uint64(math.MaxUint32))
		} else {
			f.push(uint64(old))
		}

	case wasm.OpI32Const, wasm.OpI64Const, wasm.OpF32Const, wasm.OpF64Const:
		f.push(op.Imm)

	case wasm.OpRefNull:
		f.push(0)
	case wasm.OpRefIsNull:
		f.push(b2u(f.pop() == 0))
	case wasm.OpRefFunc:
		f.push(s.RefBits(s.Funcs[op.Imm]))

	default:
		if code >= wasm.OpI32Load && code <= wasm.OpI64Store32 {
			return f.memory(code, op.Imm)
		}
		return f.numeric(code)
	}
	return nil
}

func (f *frame) memory(code byte, offset uint64) error {
	mem := f.store.Memory
	if code >= wasm.OpI32Store {
		v := f.pop()
		addr := uint64(uint32(f.pop())) + offset
		var n uint64
		switch code {
		case wasm.OpI32Store, wasm.OpF32Store, wasm.OpI64Store32:
			n = 4
		case wasm.OpI64Store, wasm.OpF64Store:
			n = 8
		case wasm.OpI32Store8, wasm.OpI64Store8:
			n = 1
		default:
			n = 2
		}
		b, ok := mem.Range(addr, n)
		if !ok {
			return errors.Trap(trapMemoryBounds)
		}
		switch n {
		case 1:
			b[0] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(b, uint16(v))
		case 4:
			binary.LittleEndian.PutUint32(b, uint32(v))
		case 8:
			binary.LittleEndian.PutUint64(b, v)
		}
		return nil
	}

	addr := uint64(uint32(f.pop())) + offset
	var n uint64
	switch code {
	case wasm.OpI32Load, wasm.OpF32Load, wasm.OpI64Load32S, wasm.OpI64Load32U:
		n = 4
	case wasm.OpI64Load, wasm.OpF64Load:
		n = 8
	case wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI64Load8S, wasm.OpI64Load8U:
		n = 1
	default:
		n = 2
	}
	b, ok := mem.Range(addr, n)
	if !ok {
		return errors.Trap(trapMemoryBounds)
	}
	var v uint64
	switch code {
	case wasm.OpI32Load, wasm.OpF32Load, wasm.OpI64Load32U:
		v = uint64(binary.LittleEndian.Uint32(b))
	case wasm.OpI64Load, wasm.OpF64Load:
		v = binary.LittleEndian.Uint64(b)
	case wasm.OpI32Load8S:
		v = uint64(uint32(int32(int8(b[0]))))
	case wasm.OpI32Load8U, wasm.OpI64Load8U:
		v = uint64(b[0])
	case wasm.OpI32Load16S:
		v = uint64(uint32(int32(int16(binary.LittleEndian.Uint16(b)))))
	case wasm.OpI32Load16U, wasm.OpI64Load16U:
		v = uint64(binary.LittleEndian.Uint16(b))
	case wasm.OpI64Load8S:
		v = uint64(int64(int8(b[0])))
	case wasm.OpI64Load16S:
		v = uint64(int64(int16(binary.LittleEndian.Uint16(b))))
	case wasm.OpI64Load32S:
		v = uint64(int64(int32(binary.LittleEndian.Uint32(b))))
	}
	f.push(v)
	return nil
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
