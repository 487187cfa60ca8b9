package wasm

import (
	"fmt"

	"github.com/wippyai/lazywasm/internal/binary"
)

// ConstExpr is a decoded single-instruction constant expression.
// For constants Value holds the raw bits; for global.get and ref.func
// Index holds the referenced index.
type ConstExpr struct {
	Value  uint64
	Index  uint32
	Opcode byte
}

// DecodeConstExpr decodes an init expression as stored in Global.Init,
// Element.Offset or DataSegment.Offset.
func DecodeConstExpr(expr []byte) (ConstExpr, error) {
	r := binary.NewReader(expr)
	op, err := r.ReadByte()
	if err != nil {
		return ConstExpr{}, fmt.Errorf("empty constant expression")
	}
	c := ConstExpr{Opcode: op}
	switch op {
	case OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return ConstExpr{}, err
		}
		c.Value = uint64(uint32(v))
	case OpI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return ConstExpr{}, err
		}
		c.Value = uint64(v)
	case OpF32Const:
		v, err := r.ReadF32()
		if err != nil {
			return ConstExpr{}, err
		}
		c.Value = uint64(v)
	case OpF64Const:
		c.Value, err = r.ReadF64()
		if err != nil {
			return ConstExpr{}, err
		}
	case OpGlobalGet, OpRefFunc:
		c.Index, err = r.ReadU32()
		if err != nil {
			return ConstExpr{}, err
		}
	case OpRefNull:
		if _, err := r.ReadByte(); err != nil {
			return ConstExpr{}, err
		}
	default:
		return ConstExpr{}, fmt.Errorf("unsupported constant expression opcode 0x%02x", op)
	}
	end, err := r.ReadByte()
	if err != nil || end != OpEnd || r.Len() != 0 {
		return ConstExpr{}, fmt.Errorf("constant expression must be a single instruction followed by end")
	}
	return c, nil
}

// I32Expr returns the init expression "i32.const v; end".
func I32Expr(v int32) []byte {
	w := binary.NewWriter()
	w.Byte(OpI32Const)
	w.WriteS64(int64(v))
	w.Byte(OpEnd)
	return w.Bytes()
}

// I64Expr returns the init expression "i64.const v; end".
func I64Expr(v int64) []byte {
	w := binary.NewWriter()
	w.Byte(OpI64Const)
	w.WriteS64(v)
	w.Byte(OpEnd)
	return w.Bytes()
}
