package wasm

import (
	"math"

	"github.com/wippyai/lazywasm/internal/binary"
)

// Code assembles a function body: a locals vector followed by instructions.
// It is used to synthesize modules without a text-format compiler.
type Code struct {
	locals []ValType
	w      *binary.Writer
}

// NewCode starts a body declaring the given locals after the parameters.
func NewCode(locals ...ValType) *Code {
	return &Code{locals: locals, w: binary.NewWriter()}
}

// Op appends raw opcodes or bytes.
func (c *Code) Op(ops ...byte) *Code {
	c.w.WriteBytes(ops)
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(OpI32Const)
	c.w.WriteS64(int64(v))
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.w.Byte(OpI64Const)
	c.w.WriteS64(v)
	return c
}

func (c *Code) F32Const(v float32) *Code {
	c.w.Byte(OpF32Const)
	c.w.WriteU32LE(math.Float32bits(v))
	return c
}

func (c *Code) F64Const(v float64) *Code {
	c.w.Byte(OpF64Const)
	c.w.WriteU64LE(math.Float64bits(v))
	return c
}

func (c *Code) LocalGet(idx uint32) *Code  { return c.index(OpLocalGet, idx) }
func (c *Code) LocalSet(idx uint32) *Code  { return c.index(OpLocalSet, idx) }
func (c *Code) LocalTee(idx uint32) *Code  { return c.index(OpLocalTee, idx) }
func (c *Code) GlobalGet(idx uint32) *Code { return c.index(OpGlobalGet, idx) }
func (c *Code) GlobalSet(idx uint32) *Code { return c.index(OpGlobalSet, idx) }
func (c *Code) Call(idx uint32) *Code      { return c.index(OpCall, idx) }
func (c *Code) Br(depth uint32) *Code      { return c.index(OpBr, depth) }
func (c *Code) BrIf(depth uint32) *Code    { return c.index(OpBrIf, depth) }
func (c *Code) RefFunc(idx uint32) *Code   { return c.index(OpRefFunc, idx) }

func (c *Code) index(op byte, idx uint32) *Code {
	c.w.Byte(op)
	c.w.WriteU32(idx)
	return c
}

// CallIndirect calls through table 0 with the given type index.
func (c *Code) CallIndirect(typeIdx uint32) *Code {
	c.w.Byte(OpCallIndirect)
	c.w.WriteU32(typeIdx)
	c.w.Byte(0x00)
	return c
}

// BrTable appends br_table with the listed targets and a default depth.
func (c *Code) BrTable(def uint32, targets ...uint32) *Code {
	c.w.Byte(OpBrTable)
	c.w.WriteU32(uint32(len(targets)))
	for _, t := range targets {
		c.w.WriteU32(t)
	}
	c.w.WriteU32(def)
	return c
}

// Block opens a block yielding at most one result.
func (c *Code) Block(results ...ValType) *Code { return c.structured(OpBlock, results) }

// Loop opens a loop yielding at most one result.
func (c *Code) Loop(results ...ValType) *Code { return c.structured(OpLoop, results) }

// If opens an if yielding at most one result.
func (c *Code) If(results ...ValType) *Code { return c.structured(OpIf, results) }

func (c *Code) structured(op byte, results []ValType) *Code {
	c.w.Byte(op)
	if len(results) == 0 {
		c.w.Byte(0x40)
	} else {
		c.w.Byte(byte(results[0]))
	}
	return c
}

func (c *Code) Else() *Code { return c.Op(OpElse) }
func (c *Code) End() *Code  { return c.Op(OpEnd) }

// Mem appends a load or store with its alignment exponent and offset.
func (c *Code) Mem(op byte, align, offset uint32) *Code {
	c.w.Byte(op)
	c.w.WriteU32(align)
	c.w.WriteU32(offset)
	return c
}

func (c *Code) MemorySize() *Code { return c.Op(OpMemorySize, 0x00) }
func (c *Code) MemoryGrow() *Code { return c.Op(OpMemoryGrow, 0x00) }

// Misc appends a 0xFC-prefixed instruction without immediates.
func (c *Code) Misc(sub uint32) *Code {
	c.w.Byte(OpPrefixMisc)
	c.w.WriteU32(sub)
	return c
}

// Body returns the body terminated by the function's final end.
func (c *Code) Body() FuncBody {
	c.End()
	return c.RawBody()
}

// RawBody returns the body exactly as assembled, without a final end.
func (c *Code) RawBody() FuncBody {
	w := binary.NewWriter()
	var groups [][2]uint32
	for _, t := range c.locals {
		if n := len(groups); n > 0 && groups[n-1][1] == uint32(t) {
			groups[n-1][0]++
			continue
		}
		groups = append(groups, [2]uint32{1, uint32(t)})
	}
	w.WriteU32(uint32(len(groups)))
	for _, g := range groups {
		w.WriteU32(g[0])
		w.Byte(byte(g[1]))
	}
	w.WriteBytes(c.w.Bytes())
	body := make([]byte, w.Len())
	copy(body, w.Bytes())
	return FuncBody{Body: body}
}
