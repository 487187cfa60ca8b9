package interp

import (
	"math"

	"github.com/wippyai/lazywasm/bytecode"
	"github.com/wippyai/lazywasm/errors"
	"github.com/wippyai/lazywasm/wasm"
)

// misc runs the 0xFC-prefixed instructions.
func (f *frame) misc(sub uint32, op *bytecode.Op) error {
	s := f.store
	if sub <= wasm.MiscI64TruncSatF64U {
		p := f.top()
		*p = truncSat(sub, *p)
		return nil
	}

	switch sub {
	case wasm.MiscMemoryInit:
		n, src, dst := f.pop3()
		seg := s.Data[op.Imm]
		if uint64(src)+uint64(n) > uint64(len(seg)) {
			return errors.Trap(trapMemoryBounds)
		}
		b, ok := s.Memory.Range(uint64(dst), uint64(n))
		if !ok {
			return errors.Trap(trapMemoryBounds)
		}
		copy(b, seg[src:src+n])

	case wasm.MiscDataDrop:
		s.Data[op.Imm] = nil

	case wasm.MiscMemoryCopy:
		n, src, dst := f.pop3()
		from, ok := s.Memory.Range(uint64(src), uint64(n))
		if !ok {
			return errors.Trap(trapMemoryBounds)
		}
		to, ok := s.Memory.Range(uint64(dst), uint64(n))
		if !ok {
			return errors.Trap(trapMemoryBounds)
		}
		copy(to, from)

	case wasm.MiscMemoryFill:
		n, val, dst := f.pop3()
		b, ok := s.Memory.Range(uint64(dst), uint64(n))
		if !ok {
			return errors.Trap(trapMemoryBounds)
		}
		for i := range b {
			b[i] = byte(val)
		}

	case wasm.MiscTableInit:
		n, src, dst := f.pop3()
		seg := s.Elems[op.Imm]
		tab := s.Tables[op.Imm2]
		if uint64(src)+uint64(n) > uint64(len(seg)) || uint64(dst)+uint64(n) > uint64(tab.Size()) {
			return errors.Trap(trapTableBounds)
		}
		copy(tab.Elems[dst:dst+n], seg[src:src+n])

	case wasm.MiscElemDrop:
		s.Elems[op.Imm] = nil

	case wasm.MiscTableCopy:
		n, src, dst := f.pop3()
		to, from := s.Tables[op.Imm], s.Tables[op.Imm2]
		if uint64(src)+uint64(n) > uint64(from.Size()) || uint64(dst)+uint64(n) > uint64(to.Size()) {
			return errors.Trap(trapTableBounds)
		}
		copy(to.Elems[dst:dst+n], from.Elems[src:src+n])

	case wasm.MiscTableGrow:
		n := uint32(f.pop())
		init := s.Ref(f.pop())
		old, ok := s.Tables[op.Imm].Grow(n, init)
		if !ok {
			f.push(uint64(math.MaxUint32))
		} else {
			f.push(uint64(old))
		}

	case wasm.MiscTableSize:
		f.push(uint64(s.Tables[op.Imm].Size()))

	case wasm.MiscTableFill:
		n := uint32(f.pop())
		val := s.Ref(f.pop())
		i := uint32(f.pop())
		tab := s.Tables[op.Imm]
		if uint64(i)+uint64(n) > uint64(tab.Size()) {
			return errors.Trap(trapTableBounds)
		}
		for j := i; j < i+n; j++ {
			tab.Elems[j] = val
		}
	}
	return nil
}

// pop3 pops the (dst, src|val, n) operands of the bulk instructions,
// returned top first.
func (f *frame) pop3() (n, src, dst uint32) {
	n = uint32(f.pop())
	src = uint32(f.pop())
	dst = uint32(f.pop())
	return n, src, dst
}
