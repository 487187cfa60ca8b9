package interp

import (
	"math"
	"math/bits"

	"github.com/wippyai/lazywasm/errors"
	"github.com/wippyai/lazywasm/wasm"
)

func f32(v uint64) float32  { return math.Float32frombits(uint32(v)) }
func f64(v uint64) float64  { return math.Float64frombits(v) }
func bf32(v float32) uint64 { return uint64(math.Float32bits(v)) }
func bf64(v float64) uint64 { return math.Float64bits(v) }
func u32(v uint32) uint64   { return uint64(v) }
func s32(v int32) uint64    { return uint64(uint32(v)) }

// numeric runs the 0x45-0xC4 range.
func (f *frame) numeric(code byte) error {
	switch {
	case code == wasm.OpI32Eqz:
		p := f.top()
		*p = b2u(uint32(*p) == 0)
		return nil
	case code == wasm.OpI64Eqz:
		p := f.top()
		*p = b2u(*p == 0)
		return nil
	case code >= wasm.OpI32Eq && code <= wasm.OpF64Ge:
		b := f.pop()
		p := f.top()
		*p = b2u(compare(code, *p, b))
		return nil
	case code >= wasm.OpI32Clz && code <= wasm.OpF64Copysign:
		return f.arith(code)
	default:
		return f.convert(code)
	}
}

func compare(code byte, a, b uint64) bool {
	switch code {
	case wasm.OpI32Eq:
		return uint32(a) == uint32(b)
	case wasm.OpI32Ne:
		return uint32(a) != uint32(b)
	case wasm.OpI32LtS:
		return int32(a) < int32(b)
	case wasm.OpI32LtU:
		return uint32(a) < uint32(b)
	case wasm.OpI32GtS:
		return int32(a) > int32(b)
	case wasm.OpI32GtU:
		return uint32(a) > uint32(b)
	case wasm.OpI32LeS:
		return int32(a) <= int32(b)
	case wasm.OpI32LeU:
		return uint32(a) <= uint32(b)
	case wasm.OpI32GeS:
		return int32(a) >= int32(b)
	case wasm.OpI32GeU:
		return uint32(a) >= uint32(b)

	case wasm.OpI64Eq:
		return a == b
	case wasm.OpI64Ne:
		return a != b
	case wasm.OpI64LtS:
		return int64(a) < int64(b)
	case wasm.OpI64LtU:
		return a < b
	case wasm.OpI64GtS:
		return int64(a) > int64(b)
	case wasm.OpI64GtU:
		return a > b
	case wasm.OpI64LeS:
		return int64(a) <= int64(b)
	case wasm.OpI64LeU:
		return a <= b
	case wasm.OpI64GeS:
		return int64(a) >= int64(b)
	case wasm.OpI64GeU:
		return a >= b

	case wasm.OpF32Eq:
		return f32(a) == f32(b)
	case wasm.OpF32Ne:
		return f32(a) != f32(b)
	case wasm.OpF32Lt:
		return f32(a) < f32(b)
	case wasm.OpF32Gt:
		return f32(a) > f32(b)
	case wasm.OpF32Le:
		return f32(a) <= f32(b)
	case wasm.OpF32Ge:
		return f32(a) >= f32(b)

	case wasm.OpF64Eq:
		return f64(a) == f64(b)
	case wasm.OpF64Ne:
		return f64(a) != f64(b)
	case wasm.OpF64Lt:
		return f64(a) < f64(b)
	case wasm.OpF64Gt:
		return f64(a) > f64(b)
	case wasm.OpF64Le:
		return f64(a) <= f64(b)
	default: // OpF64Ge
		return f64(a) >= f64(b)
	}
}

func (f *frame) arith(code byte) error {
	// Unary operators.
	switch code {
	case wasm.OpI32Clz, wasm.OpI32Ctz, wasm.OpI32Popcnt,
		wasm.OpI64Clz, wasm.OpI64Ctz, wasm.OpI64Popcnt,
		wasm.OpF32Abs, wasm.OpF32Neg, wasm.OpF32Ceil, wasm.OpF32Floor,
		wasm.OpF32Trunc, wasm.OpF32Nearest, wasm.OpF32Sqrt,
		wasm.OpF64Abs, wasm.OpF64Neg, wasm.OpF64Ceil, wasm.OpF64Floor,
		wasm.OpF64Trunc, wasm.OpF64Nearest, wasm.OpF64Sqrt:
		p := f.top()
		*p = unary(code, *p)
		return nil
	}

	b := f.pop()
	p := f.top()
	a := *p
	switch code {
	case wasm.OpI32Add:
		*p = u32(uint32(a) + uint32(b))
	case wasm.OpI32Sub:
		*p = u32(uint32(a) - uint32(b))
	case wasm.OpI32Mul:
		*p = u32(uint32(a) * uint32(b))
	case wasm.OpI32DivS:
		if uint32(b) == 0 {
			return errors.Trap(trapDivByZero)
		}
		if int32(a) == math.MinInt32 && int32(b) == -1 {
			return errors.Trap(trapIntOverflow)
		}
		*p = s32(int32(a) / int32(b))
	case wasm.OpI32DivU:
		if uint32(b) == 0 {
			return errors.Trap(trapDivByZero)
		}
		*p = u32(uint32(a) / uint32(b))
	case wasm.OpI32RemS:
		if uint32(b) == 0 {
			return errors.Trap(trapDivByZero)
		}
		if int32(b) == -1 {
			*p = 0
		} else {
			*p = s32(int32(a) % int32(b))
		}
	case wasm.OpI32RemU:
		if uint32(b) == 0 {
			return errors.Trap(trapDivByZero)
		}
		*p = u32(uint32(a) % uint32(b))
	case wasm.OpI32And:
		*p = u32(uint32(a) & uint32(b))
	case wasm.OpI32Or:
		*p = u32(uint32(a) | uint32(b))
	case wasm.OpI32Xor:
		*p = u32(uint32(a) ^ uint32(b))
	case wasm.OpI32Shl:
		*p = u32(uint32(a) << (b & 31))
	case wasm.OpI32ShrS:
		*p = s32(int32(a) >> (b & 31))
	case wasm.OpI32ShrU:
		*p = u32(uint32(a) >> (b & 31))
	case wasm.OpI32Rotl:
		*p = u32(bits.RotateLeft32(uint32(a), int(b&31)))
	case wasm.OpI32Rotr:
		*p = u32(bits.RotateLeft32(uint32(a), -int(b&31)))

	case wasm.OpI64Add:
		*p = a + b
	case wasm.OpI64Sub:
		*p = a - b
	case wasm.OpI64Mul:
		*p = a * b
	case wasm.OpI64DivS:
		if b == 0 {
			return errors.Trap(trapDivByZero)
		}
		if int64(a) == math.MinInt64 && int64(b) == -1 {
			return errors.Trap(trapIntOverflow)
		}
		*p = uint64(int64(a) / int64(b))
	case wasm.OpI64DivU:
		if b == 0 {
			return errors.Trap(trapDivByZero)
		}
		*p = a / b
	case wasm.OpI64RemS:
		if b == 0 {
			return errors.Trap(trapDivByZero)
		}
		if int64(b) == -1 {
			*p = 0
		} else {
			*p = uint64(int64(a) % int64(b))
		}
	case wasm.OpI64RemU:
		if b == 0 {
			return errors.Trap(trapDivByZero)
		}
		*p = a % b
	case wasm.OpI64And:
		*p = a & b
	case wasm.OpI64Or:
		*p = a | b
	case wasm.OpI64Xor:
		*p = a ^ b
	case wasm.OpI64Shl:
		*p = a << (b & 63)
	case wasm.OpI64ShrS:
		*p = uint64(int64(a) >> (b & 63))
	case wasm.OpI64ShrU:
		*p = a >> (b & 63)
	case wasm.OpI64Rotl:
		*p = bits.RotateLeft64(a, int(b&63))
	case wasm.OpI64Rotr:
		*p = bits.RotateLeft64(a, -int(b&63))

	case wasm.OpF32Add:
		*p = bf32(f32(a) + f32(b))
	case wasm.OpF32Sub:
		*p = bf32(f32(a) - f32(b))
	case wasm.OpF32Mul:
		*p = bf32(f32(a) * f32(b))
	case wasm.OpF32Div:
		*p = bf32(f32(a) / f32(b))
	case wasm.OpF32Min:
		*p = bf32(float32(math.Min(float64(f32(a)), float64(f32(b)))))
	case wasm.OpF32Max:
		*p = bf32(float32(math.Max(float64(f32(a)), float64(f32(b)))))
	case wasm.OpF32Copysign:
		*p = u32(uint32(a)&^(1<<31) | uint32(b)&(1<<31))

	case wasm.OpF64Add:
		*p = bf64(f64(a) + f64(b))
	case wasm.OpF64Sub:
		*p = bf64(f64(a) - f64(b))
	case wasm.OpF64Mul:
		*p = bf64(f64(a) * f64(b))
	case wasm.OpF64Div:
		*p = bf64(f64(a) / f64(b))
	case wasm.OpF64Min:
		*p = bf64(math.Min(f64(a), f64(b)))
	case wasm.OpF64Max:
		*p = bf64(math.Max(f64(a), f64(b)))
	case wasm.OpF64Copysign:
		*p = a&^(1<<63) | b&(1<<63)
	}
	return nil
}

func unary(code byte, a uint64) uint64 {
	switch code {
	case wasm.OpI32Clz:
		return uint64(bits.LeadingZeros32(uint32(a)))
	case wasm.OpI32Ctz:
		return uint64(bits.TrailingZeros32(uint32(a)))
	case wasm.OpI32Popcnt:
		return uint64(bits.OnesCount32(uint32(a)))
	case wasm.OpI64Clz:
		return uint64(bits.LeadingZeros64(a))
	case wasm.OpI64Ctz:
		return uint64(bits.TrailingZeros64(a))
	case wasm.OpI64Popcnt:
		return uint64(bits.OnesCount64(a))

	case wasm.OpF32Abs:
		return a & 0x7FFFFFFF
	case wasm.OpF32Neg:
		return (a ^ 0x80000000) & 0xFFFFFFFF
	case wasm.OpF32Ceil:
		return bf32(float32(math.Ceil(float64(f32(a)))))
	case wasm.OpF32Floor:
		return bf32(float32(math.Floor(float64(f32(a)))))
	case wasm.OpF32Trunc:
		return bf32(float32(math.Trunc(float64(f32(a)))))
	case wasm.OpF32Nearest:
		return bf32(float32(math.RoundToEven(float64(f32(a)))))
	case wasm.OpF32Sqrt:
		return bf32(float32(math.Sqrt(float64(f32(a)))))

	case wasm.OpF64Abs:
		return a &^ (1 << 63)
	case wasm.OpF64Neg:
		return a ^ (1 << 63)
	case wasm.OpF64Ceil:
		return bf64(math.Ceil(f64(a)))
	case wasm.OpF64Floor:
		return bf64(math.Floor(f64(a)))
	case wasm.OpF64Trunc:
		return bf64(math.Trunc(f64(a)))
	case wasm.OpF64Nearest:
		return bf64(math.RoundToEven(f64(a)))
	default: // OpF64Sqrt
		return bf64(math.Sqrt(f64(a)))
	}
}

func (f *frame) convert(code byte) error {
	p := f.top()
	a := *p
	switch code {
	case wasm.OpI32WrapI64:
		*p = u32(uint32(a))
	case wasm.OpI32TruncF32S, wasm.OpI32TruncF32U, wasm.OpI32TruncF64S, wasm.OpI32TruncF64U,
		wasm.OpI64TruncF32S, wasm.OpI64TruncF32U, wasm.OpI64TruncF64S, wasm.OpI64TruncF64U:
		v, err := truncate(code, a)
		if err != nil {
			return err
		}
		*p = v
	case wasm.OpI64ExtendI32S:
		*p = uint64(int64(int32(a)))
	case wasm.OpI64ExtendI32U:
		*p = uint64(uint32(a))
	case wasm.OpF32ConvertI32S:
		*p = bf32(float32(int32(a)))
	case wasm.OpF32ConvertI32U:
		*p = bf32(float32(uint32(a)))
	case wasm.OpF32ConvertI64S:
		*p = bf32(float32(int64(a)))
	case wasm.OpF32ConvertI64U:
		*p = bf32(float32(a))
	case wasm.OpF32DemoteF64:
		*p = bf32(float32(f64(a)))
	case wasm.OpF64ConvertI32S:
		*p = bf64(float64(int32(a)))
	case wasm.OpF64ConvertI32U:
		*p = bf64(float64(uint32(a)))
	case wasm.OpF64ConvertI64S:
		*p = bf64(float64(int64(a)))
	case wasm.OpF64ConvertI64U:
		*p = bf64(float64(a))
	case wasm.OpF64PromoteF32:
		*p = bf64(float64(f32(a)))
	case wasm.OpI32ReinterpretF32, wasm.OpF32ReinterpretI32,
		wasm.OpI64ReinterpretF64, wasm.OpF64ReinterpretI64:
		// Bits are already in place.
	case wasm.OpI32Extend8S:
		*p = s32(int32(int8(a)))
	case wasm.OpI32Extend16S:
		*p = s32(int32(int16(a)))
	case wasm.OpI64Extend8S:
		*p = uint64(int64(int8(a)))
	case wasm.OpI64Extend16S:
		*p = uint64(int64(int16(a)))
	case wasm.OpI64Extend32S:
		*p = uint64(int64(int32(a)))
	}
	return nil
}

// truncSource returns the float operand of a truncation as float64.
func truncSource(fromF32 bool, a uint64) float64 {
	if fromF32 {
		return float64(f32(a))
	}
	return f64(a)
}

func truncate(code byte, a uint64) (uint64, error) {
	var (
		x      float64
		signed bool
		to64   bool
	)
	switch code {
	case wasm.OpI32TruncF32S:
		x, signed = truncSource(true, a), true
	case wasm.OpI32TruncF32U:
		x = truncSource(true, a)
	case wasm.OpI32TruncF64S:
		x, signed = truncSource(false, a), true
	case wasm.OpI32TruncF64U:
		x = truncSource(false, a)
	case wasm.OpI64TruncF32S:
		x, signed, to64 = truncSource(true, a), true, true
	case wasm.OpI64TruncF32U:
		x, to64 = truncSource(true, a), true
	case wasm.OpI64TruncF64S:
		x, signed, to64 = truncSource(false, a), true, true
	default:
		x, to64 = truncSource(false, a), true
	}
	if math.IsNaN(x) {
		return 0, errors.Trap(trapInvalidConv)
	}
	v, ok := truncInt(math.Trunc(x), signed, to64)
	if !ok {
		return 0, errors.Trap(trapIntOverflow)
	}
	return v, nil
}

// truncInt converts an integral float to the target integer encoding,
// reporting false when it does not fit.
func truncInt(t float64, signed, to64 bool) (uint64, bool) {
	switch {
	case signed && !to64:
		if t < math.MinInt32 || t > math.MaxInt32 {
			return 0, false
		}
		return s32(int32(t)), true
	case !signed && !to64:
		if t < 0 || t > math.MaxUint32 {
			return 0, false
		}
		return u32(uint32(t)), true
	case signed:
		if t < math.MinInt64 || t >= 9223372036854775808.0 {
			return 0, false
		}
		return uint64(int64(t)), true
	default:
		if t < 0 || t >= 18446744073709551616.0 {
			return 0, false
		}
		return uint64(t), true
	}
}

// truncSat implements the saturating truncations, 0xFC 0x00-0x07.
func truncSat(sub uint32, a uint64) uint64 {
	fromF32 := sub == 0 || sub == 1 || sub == 4 || sub == 5
	signed := sub%2 == 0
	to64 := sub >= 4
	x := truncSource(fromF32, a)
	if math.IsNaN(x) {
		return 0
	}
	if v, ok := truncInt(math.Trunc(x), signed, to64); ok {
		return v
	}
	neg := x < 0
	switch {
	case signed && !to64:
		if neg {
			return s32(math.MinInt32)
		}
		return s32(math.MaxInt32)
	case !signed && !to64:
		if neg {
			return 0
		}
		return math.MaxUint32
	case signed:
		if neg {
			return 1 << 63
		}
		return math.MaxInt64
	default:
		if neg {
			return 0
		}
		return math.MaxUint64
	}
}
