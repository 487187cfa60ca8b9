package native_test

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"go.uber.org/goleak"

	"github.com/wippyai/lazywasm/engine"
	"github.com/wippyai/lazywasm/errors"
	"github.com/wippyai/lazywasm/host"
	"github.com/wippyai/lazywasm/native"
	"github.com/wippyai/lazywasm/wasm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	i32 = wasm.ValI32
	i64 = wasm.ValI64
	f64 = wasm.ValF64
)

// leafModule holds leaf functions only, plus one that reads a global.
func leafModule() []byte {
	m := &wasm.Module{}
	bin := m.AddType(wasm.FuncType{Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}})
	sum := m.AddType(wasm.FuncType{Params: []wasm.ValType{i64}, Results: []wasm.ValType{i64}})
	mul := m.AddType(wasm.FuncType{Params: []wasm.ValType{f64, f64}, Results: []wasm.ValType{f64}})
	pair := m.AddType(wasm.FuncType{Results: []wasm.ValType{i32, i32}})
	get := m.AddType(wasm.FuncType{Results: []wasm.ValType{i32}})

	m.Funcs = []uint32{bin, bin, sum, mul, pair, get}
	m.Code = []wasm.FuncBody{
		wasm.NewCode().LocalGet(0).LocalGet(1).Op(wasm.OpI32Add).Body(),
		wasm.NewCode().LocalGet(0).LocalGet(1).Op(wasm.OpI32DivS).Body(),
		// acc = 0; while n != 0 { acc += n; n-- }
		wasm.NewCode(i64).
			Block().Loop().
			LocalGet(0).Op(wasm.OpI64Eqz).BrIf(1).
			LocalGet(1).LocalGet(0).Op(wasm.OpI64Add).LocalSet(1).
			LocalGet(0).I64Const(1).Op(wasm.OpI64Sub).LocalSet(0).
			Br(0).
			End().End().
			LocalGet(1).Body(),
		wasm.NewCode().LocalGet(0).LocalGet(1).Op(wasm.OpF64Mul).Body(),
		// block (type pair) with a type-index block type
		wasm.NewCode().Op(wasm.OpBlock, byte(pair)).I32Const(1).I32Const(2).End().Body(),
		wasm.NewCode().GlobalGet(0).Body(),
	}
	m.Globals = []wasm.Global{{Type: wasm.GlobalType{ValType: i32}, Init: wasm.I32Expr(42)}}
	m.Exports = []wasm.Export{
		{Name: "add", Kind: wasm.KindFunc, Idx: 0},
		{Name: "div", Kind: wasm.KindFunc, Idx: 1},
		{Name: "sum", Kind: wasm.KindFunc, Idx: 2},
		{Name: "mul", Kind: wasm.KindFunc, Idx: 3},
		{Name: "pair", Kind: wasm.KindFunc, Idx: 4},
		{Name: "get", Kind: wasm.KindFunc, Idx: 5},
	}
	return m.Encode()
}

func newInstance(t *testing.T, cfg engine.Config) (*engine.Instance, *native.Compiler) {
	t.Helper()
	ctx := context.Background()
	c := native.New(ctx, nil)
	t.Cleanup(func() { _ = c.Close(ctx) })
	e := engine.New(cfg, engine.WithNativeCompiler(c))
	inst, err := e.Instantiate(ctx, host.Buffer(leafModule()), host.Map{})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return inst, c
}

func TestNativeMatchesInterpreter(t *testing.T) {
	tests := []struct {
		name string
		args []uint64
		want []uint64
	}{
		{name: "add", args: []uint64{7, 35}, want: []uint64{42}},
		{name: "add", args: []uint64{0xFFFFFFFF, 2}, want: []uint64{1}},
		{name: "div", args: []uint64{uint64(uint32(math.MaxUint32 - 5)), 2}, want: []uint64{uint64(uint32(0xFFFFFFFD))}},
		{name: "sum", args: []uint64{100}, want: []uint64{5050}},
		{name: "mul", args: []uint64{math.Float64bits(1.5), math.Float64bits(-4)}, want: []uint64{math.Float64bits(-6)}},
		{name: "pair", want: []uint64{1, 2}},
	}

	eager := engine.DefaultConfig()
	eager.ForceNative = true
	interpreted := engine.DefaultConfig()
	interpreted.NativeEnabled = false

	nat, c := newInstance(t, eager)
	ref, _ := newInstance(t, interpreted)
	ctx := context.Background()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nat.Call(ctx, tt.name, tt.args...)
			if err != nil {
				t.Fatalf("native: %v", err)
			}
			want, err := ref.Call(ctx, tt.name, tt.args...)
			if err != nil {
				t.Fatalf("interpreted: %v", err)
			}
			if len(got) != len(tt.want) || len(want) != len(tt.want) {
				t.Fatalf("native %v, interpreted %v, want %v", got, want, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] || want[i] != tt.want[i] {
					t.Errorf("result %d: native %#x, interpreted %#x, want %#x", i, got[i], want[i], tt.want[i])
				}
			}
			v, _ := nat.Export(tt.name)
			if st := v.(*engine.Function).Stats(); st.State != engine.StateNative {
				t.Errorf("state = %s, want native", st.State)
			}
		})
	}
	if c.Compiled() != 5 {
		t.Errorf("Compiled = %d, want 5", c.Compiled())
	}
}

func TestNativeTrap(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.ForceNative = true
	inst, _ := newInstance(t, cfg)

	_, err := inst.Call(context.Background(), "div", 1, 0)
	if !stderrors.Is(err, errors.ErrTrap) {
		t.Fatalf("err = %v, want trap", err)
	}
	var werr *errors.Error
	stderrors.As(err, &werr)
	if werr.Detail != "integer divide by zero" {
		t.Errorf("detail = %q", werr.Detail)
	}
	v, _ := inst.Export("div")
	if st := v.(*engine.Function).Stats(); st.State != engine.StateNative {
		t.Errorf("trap changed the tier: %s", st.State)
	}
}

func TestNonLeafRejected(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.ForceNative = true
	inst, c := newInstance(t, cfg)

	res, err := inst.Call(context.Background(), "get")
	if err != nil || res[0] != 42 {
		t.Fatalf("get = %v, %v", res, err)
	}
	v, _ := inst.Export("get")
	fn := v.(*engine.Function)
	if fn.Stats().State != engine.StateInterpreted {
		t.Errorf("state = %s", fn.Stats().State)
	}
	if _, err := c.CompileNative(context.Background(), fn); !stderrors.Is(err, native.ErrNotLeaf) {
		t.Errorf("CompileNative = %v, want ErrNotLeaf", err)
	}
}

func TestCompileAfterClose(t *testing.T) {
	ctx := context.Background()
	inst, c := newInstance(t, engine.DefaultConfig())
	if _, err := inst.Call(ctx, "add", 1, 2); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatal(err)
	}
	v, _ := inst.Export("add")
	_, err := c.CompileNative(ctx, v.(*engine.Function))
	var werr *errors.Error
	if !stderrors.As(err, &werr) || werr.Kind != errors.KindNotInitialized {
		t.Errorf("err = %v", err)
	}
}

func TestSynthesize(t *testing.T) {
	types := []wasm.FuncType{{}, {Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}}}
	bin := native.Synthesize(types, 1, wasm.NewCode().LocalGet(0).Body().Body)
	m, err := wasm.ParseModuleValidate(bin)
	if err != nil {
		t.Fatalf("synthesized module invalid: %v", err)
	}
	if len(m.Types) != 2 || m.Funcs[0] != 1 {
		t.Errorf("types %v, funcs %v", m.Types, m.Funcs)
	}
	if idx, ok := m.ExportedFunc("f"); !ok || idx != 0 {
		t.Error("missing export f")
	}
}
