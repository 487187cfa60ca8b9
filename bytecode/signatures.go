package bytecode

import "github.com/wippyai/lazywasm/wasm"

type signature struct {
	params  []wasm.ValType
	results []wasm.ValType
}

var (
	i32 = wasm.ValI32
	i64 = wasm.ValI64
	f32 = wasm.ValF32
	f64 = wasm.ValF64
)

func sig(params []wasm.ValType, results ...wasm.ValType) signature {
	return signature{params: params, results: results}
}

func vals(ts ...wasm.ValType) []wasm.ValType { return ts }

// numericSigs maps every numeric opcode (0x45-0xC4) to its stack effect.
var numericSigs = func() map[byte]signature {
	m := make(map[byte]signature)
	span := func(from, to byte, s signature) {
		for op := from; ; op++ {
			m[op] = s
			if op == to {
				break
			}
		}
	}

	span(wasm.OpI32Eqz, wasm.OpI32Eqz, sig(vals(i32), i32))
	span(wasm.OpI32Eq, wasm.OpI32GeU, sig(vals(i32, i32), i32))
	span(wasm.OpI64Eqz, wasm.OpI64Eqz, sig(vals(i64), i32))
	span(wasm.OpI64Eq, wasm.OpI64GeU, sig(vals(i64, i64), i32))
	span(wasm.OpF32Eq, wasm.OpF32Ge, sig(vals(f32, f32), i32))
	span(wasm.OpF64Eq, wasm.OpF64Ge, sig(vals(f64, f64), i32))

	span(wasm.OpI32Clz, wasm.OpI32Popcnt, sig(vals(i32), i32))
	span(wasm.OpI32Add, wasm.OpI32Rotr, sig(vals(i32, i32), i32))
	span(wasm.OpI64Clz, wasm.OpI64Popcnt, sig(vals(i64), i64))
	span(wasm.OpI64Add, wasm.OpI64Rotr, sig(vals(i64, i64), i64))
	span(wasm.OpF32Abs, wasm.OpF32Sqrt, sig(vals(f32), f32))
	span(wasm.OpF32Add, wasm.OpF32Copysign, sig(vals(f32, f32), f32))
	span(wasm.OpF64Abs, wasm.OpF64Sqrt, sig(vals(f64), f64))
	span(wasm.OpF64Add, wasm.OpF64Copysign, sig(vals(f64, f64), f64))

	m[wasm.OpI32WrapI64] = sig(vals(i64), i32)
	span(wasm.OpI32TruncF32S, wasm.OpI32TruncF32U, sig(vals(f32), i32))
	span(wasm.OpI32TruncF64S, wasm.OpI32TruncF64U, sig(vals(f64), i32))
	span(wasm.OpI64ExtendI32S, wasm.OpI64ExtendI32U, sig(vals(i32), i64))
	span(wasm.OpI64TruncF32S, wasm.OpI64TruncF32U, sig(vals(f32), i64))
	span(wasm.OpI64TruncF64S, wasm.OpI64TruncF64U, sig(vals(f64), i64))
	span(wasm.OpF32ConvertI32S, wasm.OpF32ConvertI32U, sig(vals(i32), f32))
	span(wasm.OpF32ConvertI64S, wasm.OpF32ConvertI64U, sig(vals(i64), f32))
	m[wasm.OpF32DemoteF64] = sig(vals(f64), f32)
	span(wasm.OpF64ConvertI32S, wasm.OpF64ConvertI32U, sig(vals(i32), f64))
	span(wasm.OpF64ConvertI64S, wasm.OpF64ConvertI64U, sig(vals(i64), f64))
	m[wasm.OpF64PromoteF32] = sig(vals(f32), f64)
	m[wasm.OpI32ReinterpretF32] = sig(vals(f32), i32)
	m[wasm.OpI64ReinterpretF64] = sig(vals(f64), i64)
	m[wasm.OpF32ReinterpretI32] = sig(vals(i32), f32)
	m[wasm.OpF64ReinterpretI64] = sig(vals(i64), f64)

	span(wasm.OpI32Extend8S, wasm.OpI32Extend16S, sig(vals(i32), i32))
	span(wasm.OpI64Extend8S, wasm.OpI64Extend32S, sig(vals(i64), i64))
	return m
}()

// truncSatSigs covers 0xFC 0x00-0x07.
var truncSatSigs = [8]signature{
	sig(vals(f32), i32), sig(vals(f32), i32),
	sig(vals(f64), i32), sig(vals(f64), i32),
	sig(vals(f32), i64), sig(vals(f32), i64),
	sig(vals(f64), i64), sig(vals(f64), i64),
}

type memAccess struct {
	typ      wasm.ValType
	maxAlign uint32 // log2 of the natural alignment
	store    bool
}

var memAccesses = map[byte]memAccess{
	wasm.OpI32Load:    {i32, 2, false},
	wasm.OpI64Load:    {i64, 3, false},
	wasm.OpF32Load:    {f32, 2, false},
	wasm.OpF64Load:    {f64, 3, false},
	wasm.OpI32Load8S:  {i32, 0, false},
	wasm.OpI32Load8U:  {i32, 0, false},
	wasm.OpI32Load16S: {i32, 1, false},
	wasm.OpI32Load16U: {i32, 1, false},
	wasm.OpI64Load8S:  {i64, 0, false},
	wasm.OpI64Load8U:  {i64, 0, false},
	wasm.OpI64Load16S: {i64, 1, false},
	wasm.OpI64Load16U: {i64, 1, false},
	wasm.OpI64Load32S: {i64, 2, false},
	wasm.OpI64Load32U: {i64, 2, false},
	wasm.OpI32Store:   {i32, 2, true},
	wasm.OpI64Store:   {i64, 3, true},
	wasm.OpF32Store:   {f32, 2, true},
	wasm.OpF64Store:   {f64, 3, true},
	wasm.OpI32Store8:  {i32, 0, true},
	wasm.OpI32Store16: {i32, 1, true},
	wasm.OpI64Store8:  {i64, 0, true},
	wasm.OpI64Store16: {i64, 1, true},
	wasm.OpI64Store32: {i64, 2, true},
}
