package interp_test

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"github.com/wippyai/lazywasm/bytecode"
	"github.com/wippyai/lazywasm/errors"
	"github.com/wippyai/lazywasm/host"
	"github.com/wippyai/lazywasm/interp"
	"github.com/wippyai/lazywasm/wasm"
)

var (
	i32 = wasm.ValI32
	i64 = wasm.ValI64
	f32 = wasm.ValF32
	f64 = wasm.ValF64
)

// guestFunc is a Callee that interprets a generated body directly.
type guestFunc struct {
	store *interp.Store
	code  *bytecode.Func
}

func (g *guestFunc) FuncType() wasm.FuncType { return g.code.Type }

func (g *guestFunc) CallInternal(ctx context.Context, args []uint64) ([]uint64, error) {
	return interp.Execute(ctx, g.store, g.code, args)
}

// instantiate builds a store for m with every defined function compiled.
func instantiate(t *testing.T, m *wasm.Module) (*interp.Store, []*guestFunc) {
	t.Helper()
	parsed, err := wasm.ParseModuleValidate(m.Encode())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s := &interp.Store{Types: parsed.Types}
	if len(parsed.Memories) > 0 {
		s.Memory = host.NewMemory(uint32(parsed.Memories[0].Limits.Min), 4)
	}
	for _, tt := range parsed.Tables {
		s.Tables = append(s.Tables, host.NewTable(tt))
	}
	for _, g := range parsed.Globals {
		c, err := wasm.DecodeConstExpr(g.Init)
		if err != nil {
			t.Fatalf("global init: %v", err)
		}
		s.Globals = append(s.Globals, &host.Global{Type: g.Type, Value: c.Value})
	}
	var funcs []*guestFunc
	for i := range parsed.Code {
		code, err := bytecode.DefaultGenerator{}.Generate(bytecode.NewReaderInfo(parsed, i))
		if err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
		gf := &guestFunc{store: s, code: code}
		funcs = append(funcs, gf)
		s.Funcs = append(s.Funcs, gf)
	}
	return s, funcs
}

func single(ft wasm.FuncType, body wasm.FuncBody) *wasm.Module {
	m := &wasm.Module{}
	m.Funcs = []uint32{m.AddType(ft)}
	m.Code = []wasm.FuncBody{body}
	return m
}

func run(t *testing.T, m *wasm.Module, args ...uint64) ([]uint64, error) {
	t.Helper()
	s, funcs := instantiate(t, m)
	return interp.Execute(context.Background(), s, funcs[0].code, args)
}

func wantTrap(t *testing.T, err error, detail string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected trap %q", detail)
	}
	if !stderrors.Is(err, errors.ErrTrap) {
		t.Fatalf("error %v is not a trap", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Detail != detail {
		t.Errorf("trap = %v, want %q", err, detail)
	}
}

func TestNumeric(t *testing.T) {
	bin := func(ptype wasm.ValType, rtype wasm.ValType, op byte) *wasm.Module {
		return single(
			wasm.FuncType{Params: []wasm.ValType{ptype, ptype}, Results: []wasm.ValType{rtype}},
			wasm.NewCode().LocalGet(0).LocalGet(1).Op(op).Body(),
		)
	}
	un := func(ptype, rtype wasm.ValType, op ...byte) *wasm.Module {
		return single(
			wasm.FuncType{Params: []wasm.ValType{ptype}, Results: []wasm.ValType{rtype}},
			wasm.NewCode().LocalGet(0).Op(op...).Body(),
		)
	}
	neg := func(v int32) uint64 { return uint64(uint32(v)) }
	f32b := func(v float32) uint64 { return uint64(math.Float32bits(v)) }
	f64b := math.Float64bits

	tests := []struct {
		name string
		m    *wasm.Module
		args []uint64
		want uint64
		trap string
	}{
		{name: "i32.add wraps", m: bin(i32, i32, wasm.OpI32Add), args: []uint64{math.MaxUint32, 2}, want: 1},
		{name: "i32.sub", m: bin(i32, i32, wasm.OpI32Sub), args: []uint64{1, 2}, want: neg(-1)},
		{name: "i32.div_s", m: bin(i32, i32, wasm.OpI32DivS), args: []uint64{neg(-7), 2}, want: neg(-3)},
		{name: "i32.div_s by zero", m: bin(i32, i32, wasm.OpI32DivS), args: []uint64{1, 0}, trap: "integer divide by zero"},
		{name: "i32.div_s overflow", m: bin(i32, i32, wasm.OpI32DivS), args: []uint64{neg(math.MinInt32), neg(-1)}, trap: "integer overflow"},
		{name: "i32.rem_s min by -1", m: bin(i32, i32, wasm.OpI32RemS), args: []uint64{neg(math.MinInt32), neg(-1)}, want: 0},
		{name: "i32.rem_u by zero", m: bin(i32, i32, wasm.OpI32RemU), args: []uint64{1, 0}, trap: "integer divide by zero"},
		{name: "i32.shl masks count", m: bin(i32, i32, wasm.OpI32Shl), args: []uint64{1, 33}, want: 2},
		{name: "i32.shr_s", m: bin(i32, i32, wasm.OpI32ShrS), args: []uint64{neg(-8), 1}, want: neg(-4)},
		{name: "i32.rotr", m: bin(i32, i32, wasm.OpI32Rotr), args: []uint64{1, 1}, want: 0x80000000},
		{name: "i32.lt_s", m: bin(i32, i32, wasm.OpI32LtS), args: []uint64{neg(-1), 0}, want: 1},
		{name: "i32.lt_u", m: bin(i32, i32, wasm.OpI32LtU), args: []uint64{neg(-1), 0}, want: 0},
		{name: "i32.clz", m: un(i32, i32, wasm.OpI32Clz), args: []uint64{1}, want: 31},
		{name: "i32.eqz", m: un(i32, i32, wasm.OpI32Eqz), args: []uint64{0}, want: 1},
		{name: "i32.extend8_s", m: un(i32, i32, wasm.OpI32Extend8S), args: []uint64{0x80}, want: neg(-128)},
		{name: "i64.mul", m: bin(i64, i64, wasm.OpI64Mul), args: []uint64{1 << 32, 1 << 32}, want: 0},
		{name: "i64.div_u by zero", m: bin(i64, i64, wasm.OpI64DivU), args: []uint64{1, 0}, trap: "integer divide by zero"},
		{name: "i64.popcnt", m: un(i64, i64, wasm.OpI64Popcnt), args: []uint64{0xFF00}, want: 8},
		{name: "i64.extend_i32_s", m: un(i32, i64, wasm.OpI64ExtendI32S), args: []uint64{neg(-1)}, want: math.MaxUint64},
		{name: "i32.wrap_i64", m: un(i64, i32, wasm.OpI32WrapI64), args: []uint64{0x1_0000_0005}, want: 5},
		{name: "f32.add", m: bin(f32, f32, wasm.OpF32Add), args: []uint64{f32b(1.5), f32b(2.25)}, want: f32b(3.75)},
		{name: "f64.min negative zero", m: bin(f64, f64, wasm.OpF64Min), args: []uint64{f64b(0), f64b(math.Copysign(0, -1))}, want: f64b(math.Copysign(0, -1))},
		{name: "f64.nearest ties to even", m: un(f64, f64, wasm.OpF64Nearest), args: []uint64{f64b(2.5)}, want: f64b(2)},
		{name: "f32.neg", m: un(f32, f32, wasm.OpF32Neg), args: []uint64{f32b(1)}, want: f32b(-1)},
		{name: "f64.copysign", m: bin(f64, f64, wasm.OpF64Copysign), args: []uint64{f64b(3), f64b(-1)}, want: f64b(-3)},
		{name: "i32.trunc_f64_s", m: un(f64, i32, wasm.OpI32TruncF64S), args: []uint64{f64b(-3.9)}, want: neg(-3)},
		{name: "i32.trunc_f64_s nan", m: un(f64, i32, wasm.OpI32TruncF64S), args: []uint64{f64b(math.NaN())}, trap: "invalid conversion to integer"},
		{name: "i32.trunc_f64_u overflow", m: un(f64, i32, wasm.OpI32TruncF64U), args: []uint64{f64b(4294967296)}, trap: "integer overflow"},
		{name: "i32.trunc_f64_u negative fraction", m: un(f64, i32, wasm.OpI32TruncF64U), args: []uint64{f64b(-0.5)}, want: 0},
		{name: "i64.trunc_f32_s", m: un(f32, i64, wasm.OpI64TruncF32S), args: []uint64{f32b(-2.5)}, want: math.MaxUint64 - 1},
		{name: "i32.trunc_sat_f64_s high", m: un(f64, i32, wasm.OpPrefixMisc, byte(wasm.MiscI32TruncSatF64S)), args: []uint64{f64b(1e20)}, want: math.MaxInt32},
		{name: "i32.trunc_sat_f64_u low", m: un(f64, i32, wasm.OpPrefixMisc, byte(wasm.MiscI32TruncSatF64U)), args: []uint64{f64b(-1e20)}, want: 0},
		{name: "i64.trunc_sat_f64_s nan", m: un(f64, i64, wasm.OpPrefixMisc, byte(wasm.MiscI64TruncSatF64S)), args: []uint64{f64b(math.NaN())}, want: 0},
		{name: "f64.convert_i64_u", m: un(i64, f64, wasm.OpF64ConvertI64U), args: []uint64{math.MaxUint64}, want: f64b(18446744073709551616.0)},
		{name: "f32.demote_f64", m: un(f64, f32, wasm.OpF32DemoteF64), args: []uint64{f64b(0.5)}, want: f32b(0.5)},
		{name: "i64.reinterpret_f64", m: un(f64, i64, wasm.OpI64ReinterpretF64), args: []uint64{f64b(1)}, want: f64b(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := run(t, tt.m, tt.args...)
			if tt.trap != "" {
				wantTrap(t, err, tt.trap)
				return
			}
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if len(res) != 1 || res[0] != tt.want {
				t.Errorf("got %#x, want %#x", res, tt.want)
			}
		})
	}
}

func TestControlFlow(t *testing.T) {
	t.Run("loop sums 1..n", func(t *testing.T) {
		// local 1 is the accumulator.
		body := wasm.NewCode(i32).
			Block().Loop().
			LocalGet(0).Op(wasm.OpI32Eqz).BrIf(1).
			LocalGet(1).LocalGet(0).Op(wasm.OpI32Add).LocalSet(1).
			LocalGet(0).I32Const(1).Op(wasm.OpI32Sub).LocalSet(0).
			Br(0).
			End().End().
			LocalGet(1).
			Body()
		m := single(wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}}, body)
		res, err := run(t, m, 100)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if res[0] != 5050 {
			t.Errorf("sum = %d, want 5050", res[0])
		}
	})

	t.Run("br_table", func(t *testing.T) {
		body := wasm.NewCode().
			Block().Block().Block().
			LocalGet(0).BrTable(2, 0, 1).
			End().I32Const(10).Op(wasm.OpReturn).
			End().I32Const(11).Op(wasm.OpReturn).
			End().I32Const(12).
			Body()
		m := single(wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}}, body)
		for arg, want := range map[uint64]uint64{0: 10, 1: 11, 2: 12, 99: 12} {
			res, err := run(t, m, arg)
			if err != nil {
				t.Fatalf("Execute(%d): %v", arg, err)
			}
			if res[0] != want {
				t.Errorf("Execute(%d) = %d, want %d", arg, res[0], want)
			}
		}
	})

	t.Run("branch carries value over stack", func(t *testing.T) {
		body := wasm.NewCode().
			Block(i32).I32Const(1).I32Const(2).I32Const(3).Br(0).End().
			Body()
		m := single(wasm.FuncType{Results: []wasm.ValType{i32}}, body)
		res, err := run(t, m)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if len(res) != 1 || res[0] != 3 {
			t.Errorf("got %v, want [3]", res)
		}
	})

	t.Run("if else and select", func(t *testing.T) {
		body := wasm.NewCode().
			LocalGet(0).If(i32).I32Const(7).Else().I32Const(8).End().
			I32Const(100).I32Const(200).LocalGet(0).Op(wasm.OpSelect).
			Op(wasm.OpI32Add).
			Body()
		m := single(wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}}, body)
		for arg, want := range map[uint64]uint64{1: 107, 0: 208} {
			res, err := run(t, m, arg)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if res[0] != want {
				t.Errorf("Execute(%d) = %d, want %d", arg, res[0], want)
			}
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := run(t, single(wasm.FuncType{}, wasm.NewCode().Op(wasm.OpUnreachable).Body()))
		wantTrap(t, err, "unreachable")
	})

	t.Run("cancelled context stops loop", func(t *testing.T) {
		m := single(wasm.FuncType{}, wasm.NewCode().Loop().Br(0).End().Body())
		s, funcs := instantiate(t, m)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := interp.Execute(ctx, s, funcs[0].code, nil)
		if !stderrors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestMemory(t *testing.T) {
	m := &wasm.Module{}
	store := m.AddType(wasm.FuncType{Params: []wasm.ValType{i32, i64}})
	load := m.AddType(wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i64}})
	grow := m.AddType(wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}})
	m.Funcs = []uint32{store, load, load, grow}
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	m.Code = []wasm.FuncBody{
		wasm.NewCode().LocalGet(0).LocalGet(1).Mem(wasm.OpI64Store, 3, 0).Body(),
		wasm.NewCode().LocalGet(0).Mem(wasm.OpI64Load, 3, 0).Body(),
		wasm.NewCode().LocalGet(0).Mem(wasm.OpI32Load8S, 0, 1).Op(wasm.OpI64ExtendI32U).Body(),
		wasm.NewCode().LocalGet(0).MemoryGrow().Body(),
	}
	s, funcs := instantiate(t, m)
	ctx := context.Background()

	if _, err := interp.Execute(ctx, s, funcs[0].code, []uint64{8, 0x80_0102030405}); err != nil {
		t.Fatalf("store: %v", err)
	}
	res, err := interp.Execute(ctx, s, funcs[1].code, []uint64{8})
	if err != nil || res[0] != 0x80_0102030405 {
		t.Fatalf("load = %#x, %v", res, err)
	}
	res, err = interp.Execute(ctx, s, funcs[2].code, []uint64{12})
	if err != nil || res[0] != 0xFFFFFF80 {
		t.Errorf("load8_s at offset 13 = %#x, %v", res, err)
	}

	_, err = interp.Execute(ctx, s, funcs[1].code, []uint64{uint64(wasm.PageSize) - 4})
	wantTrap(t, err, "out of bounds memory access")

	res, err = interp.Execute(ctx, s, funcs[3].code, []uint64{1})
	if err != nil || res[0] != 1 {
		t.Errorf("grow(1) = %v, %v", res, err)
	}
	res, err = interp.Execute(ctx, s, funcs[3].code, []uint64{10})
	if err != nil || res[0] != math.MaxUint32 {
		t.Errorf("grow past max = %v, %v", res, err)
	}
	if _, err := interp.Execute(ctx, s, funcs[1].code, []uint64{uint64(wasm.PageSize) - 4}); err != nil {
		t.Errorf("load after grow: %v", err)
	}
}

func TestBulkMemory(t *testing.T) {
	m := &wasm.Module{}
	ft := m.AddType(wasm.FuncType{Results: []wasm.ValType{i32}})
	m.Funcs = []uint32{ft}
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	m.DataCount = ptrTo(uint32(1))
	m.Data = []wasm.DataSegment{{Flags: 1, Init: []byte{1, 2, 3, 4}}}
	m.Code = []wasm.FuncBody{
		wasm.NewCode().
			// memory.init 0: dst 16, src 1, n 3
			I32Const(16).I32Const(1).I32Const(3).Misc(wasm.MiscMemoryInit).Op(0x00, 0x00).
			// memory.copy: dst 32, src 16, n 3
			I32Const(32).I32Const(16).I32Const(3).Misc(wasm.MiscMemoryCopy).Op(0x00, 0x00).
			// memory.fill: dst 34, val 9, n 1
			I32Const(34).I32Const(9).I32Const(1).Misc(wasm.MiscMemoryFill).Op(0x00).
			Misc(wasm.MiscDataDrop).Op(0x00).
			I32Const(32).Mem(wasm.OpI32Load, 2, 0).
			Body(),
	}
	s, funcs := instantiate(t, m)
	s.Data = [][]byte{{1, 2, 3, 4}}
	res, err := interp.Execute(context.Background(), s, funcs[0].code, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res[0] != 0x00090302 {
		t.Errorf("got %#x, want 0x90302", res[0])
	}
	if s.Data[0] != nil {
		t.Error("data segment not dropped")
	}

	_, err = interp.Execute(context.Background(), s, funcs[0].code, nil)
	wantTrap(t, err, "out of bounds memory access")
}

func TestCalls(t *testing.T) {
	m := &wasm.Module{}
	ft := m.AddType(wasm.FuncType{Params: []wasm.ValType{i64}, Results: []wasm.ValType{i64}})
	m.Funcs = []uint32{ft, ft}
	m.Code = []wasm.FuncBody{
		// fac(n) = n < 2 ? 1 : n * fac(n-1)
		wasm.NewCode().
			LocalGet(0).I64Const(2).Op(wasm.OpI64LtS).
			If(i64).I64Const(1).
			Else().LocalGet(0).LocalGet(0).I64Const(1).Op(wasm.OpI64Sub).Call(0).Op(wasm.OpI64Mul).
			End().
			Body(),
		// runaway recursion
		wasm.NewCode().LocalGet(0).Call(1).Body(),
	}
	s, funcs := instantiate(t, m)
	s.MaxCallDepth = 50
	ctx := context.Background()

	res, err := interp.Execute(ctx, s, funcs[0].code, []uint64{10})
	if err != nil || res[0] != 3628800 {
		t.Fatalf("fac(10) = %v, %v", res, err)
	}

	_, err = interp.Execute(ctx, s, funcs[1].code, []uint64{0})
	wantTrap(t, err, "call stack exhausted")
	if s.Depth() != 0 {
		t.Errorf("depth after unwind = %d", s.Depth())
	}
}

func TestCallIndirect(t *testing.T) {
	m := &wasm.Module{}
	unary := m.AddType(wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}})
	nullary := m.AddType(wasm.FuncType{Results: []wasm.ValType{i32}})
	m.Funcs = []uint32{unary, nullary, unary}
	m.Tables = []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 3}}}
	m.Code = []wasm.FuncBody{
		wasm.NewCode().I32Const(41).LocalGet(0).CallIndirect(unary).Body(),
		wasm.NewCode().I32Const(1).Body(),
		wasm.NewCode().LocalGet(0).I32Const(1).Op(wasm.OpI32Add).Body(),
	}
	s, funcs := instantiate(t, m)
	s.Tables[0].Elems[0] = funcs[2]
	s.Tables[0].Elems[1] = funcs[1]
	ctx := context.Background()

	res, err := interp.Execute(ctx, s, funcs[0].code, []uint64{0})
	if err != nil || res[0] != 42 {
		t.Fatalf("indirect = %v, %v", res, err)
	}
	_, err = interp.Execute(ctx, s, funcs[0].code, []uint64{1})
	wantTrap(t, err, "indirect call type mismatch")
	_, err = interp.Execute(ctx, s, funcs[0].code, []uint64{2})
	wantTrap(t, err, "uninitialized element")
	_, err = interp.Execute(ctx, s, funcs[0].code, []uint64{3})
	wantTrap(t, err, "undefined element")
}

func TestRefs(t *testing.T) {
	s := &interp.Store{}
	a, b := &struct{ n int }{1}, &struct{ n int }{2}
	if s.RefBits(nil) != 0 {
		t.Error("nil ref is not 0")
	}
	ha, hb := s.RefBits(a), s.RefBits(b)
	if ha == 0 || hb == 0 || ha == hb {
		t.Fatalf("handles %d %d", ha, hb)
	}
	if s.RefBits(a) != ha {
		t.Error("handle not stable")
	}
	if s.Ref(ha) != a || s.Ref(0) != nil || s.Ref(99) != nil {
		t.Error("Ref lookup mismatch")
	}
	// Non-comparable values get fresh handles.
	if s.RefBits([]int{1}) == s.RefBits([]int{1}) {
		t.Error("slices shared a handle")
	}
}

func ptrTo[T any](v T) *T { return &v }
