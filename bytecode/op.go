package bytecode

import "github.com/wippyai/lazywasm/wasm"

// Opcode identifies a lowered instruction.
// Values below 0x100 are WebAssembly opcodes executed as-is (numeric,
// memory, parametric and variable instructions). 0xFC00|sub encodes the
// 0xFC-prefixed instructions. The remaining values are control transfers
// whose targets have been resolved to instruction indices.
type Opcode uint16

// Resolved control instructions.
const (
	Unreachable Opcode = 0x100 + iota
	Br                 // unconditional branch
	BrIf               // pop i32, branch when non-zero
	BrIfNot            // pop i32, branch when zero (lowered if)
	BrTable            // pop i32, branch through Table
	Jump               // plain jump, stack already in shape (lowered else)
	Return
	Call
	CallIndirect
)

// MiscBase is OR-ed with a 0xFC sub-opcode.
const MiscBase Opcode = 0xFC00

// Misc returns the lowered opcode of a 0xFC-prefixed instruction.
func Misc(sub uint32) Opcode {
	return MiscBase | Opcode(sub)
}

// IsMisc reports whether op is a 0xFC-prefixed instruction and returns its sub-opcode.
func (op Opcode) IsMisc() (uint32, bool) {
	if op&0xFF00 == MiscBase {
		return uint32(op & 0xFF), true
	}
	return 0, false
}

// Target is a resolved branch destination.
// Keep values from the top of the stack are moved down to Height, the
// operand stack height of the target label, before jumping to PC.
type Target struct {
	PC     uint32
	Keep   uint32
	Height uint32
}

// Op is one lowered instruction.
type Op struct {
	// Table holds br_table targets; the last entry is the default.
	Table []Target
	// Imm is the instruction's immediate: constant bits, local, global,
	// function, type, data or element index, or a memory offset.
	Imm uint64
	// Imm2 is the table index of call_indirect and the second immediate
	// of table.init and table.copy.
	Imm2   uint32
	Target Target
	Code   Opcode
}

// Func is the interpretable artifact generated for one function body.
type Func struct {
	Type   wasm.FuncType
	Name   string
	Code   []Op
	Locals []wasm.ValType // declared locals, after the parameters
	// MaxStack is the highest operand stack height reached, for preallocation.
	MaxStack int
	// Leaf is set when the body touches nothing outside its own frame: no
	// calls, globals, memory, tables or reference values. Leaf bodies can
	// be compiled in isolation by the native tier.
	Leaf bool
}

// NumLocals returns parameters plus declared locals.
func (f *Func) NumLocals() int {
	return len(f.Type.Params) + len(f.Locals)
}
