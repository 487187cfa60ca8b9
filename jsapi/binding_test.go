package jsapi_test

import (
	"context"
	"testing"

	"github.com/dop251/goja"
	"go.uber.org/goleak"

	"github.com/wippyai/lazywasm/engine"
	"github.com/wippyai/lazywasm/jsapi"
	"github.com/wippyai/lazywasm/wasm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var i32 = wasm.ValI32

// testModule imports env.log and exports add, broken, div, logs, neg,
// mem and counter.
func testModule() []byte {
	m := &wasm.Module{}
	un := m.AddType(wasm.FuncType{Params: []wasm.ValType{i32}})
	bin := m.AddType(wasm.FuncType{Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}})
	ret := m.AddType(wasm.FuncType{Results: []wasm.ValType{i32}})

	m.Imports = []wasm.Import{{Module: "env", Name: "log", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: un}}}
	m.Funcs = []uint32{bin, ret, bin, un, ret}
	m.Code = []wasm.FuncBody{
		wasm.NewCode().LocalGet(0).LocalGet(1).Op(wasm.OpI32Add).Body(),
		wasm.NewCode().Op(0xFF).Body(),
		wasm.NewCode().LocalGet(0).LocalGet(1).Op(wasm.OpI32DivS).Body(),
		wasm.NewCode().LocalGet(0).Call(0).Body(),
		wasm.NewCode().I32Const(-5).Body(),
	}
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	m.Globals = []wasm.Global{{Type: wasm.GlobalType{ValType: i32}, Init: wasm.I32Expr(7)}}
	m.Data = []wasm.DataSegment{{Offset: wasm.I32Expr(0), Init: []byte{0x2A}}}
	m.Exports = []wasm.Export{
		{Name: "add", Kind: wasm.KindFunc, Idx: 1},
		{Name: "broken", Kind: wasm.KindFunc, Idx: 2},
		{Name: "div", Kind: wasm.KindFunc, Idx: 3},
		{Name: "logs", Kind: wasm.KindFunc, Idx: 4},
		{Name: "neg", Kind: wasm.KindFunc, Idx: 5},
		{Name: "mem", Kind: wasm.KindMemory, Idx: 0},
		{Name: "counter", Kind: wasm.KindGlobal, Idx: 0},
	}
	return m.Encode()
}

// newRuntime returns a goja runtime with the Wasm global and the test
// module available as the global "bytes" (a Uint8Array).
func newRuntime(t *testing.T) *goja.Runtime {
	t.Helper()
	rt := goja.New()
	cfg := engine.DefaultConfig()
	cfg.NativeEnabled = false
	if _, err := jsapi.Install(context.Background(), rt, engine.New(cfg)); err != nil {
		t.Fatalf("Install: %v", err)
	}
	rt.Set("bytes", rt.NewArrayBuffer(testModule()))
	if _, err := rt.RunString(`bytes = new Uint8Array(bytes);`); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return rt
}

func run(t *testing.T, rt *goja.Runtime, src string) goja.Value {
	t.Helper()
	v, err := rt.RunString(src)
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}
	return v
}

func TestInstantiateModuleArguments(t *testing.T) {
	tests := []struct {
		name string
		call string
	}{
		{name: "no arguments", call: `Wasm.instantiateModule()`},
		{name: "missing ffi", call: `Wasm.instantiateModule(bytes)`},
		{name: "string buffer", call: `Wasm.instantiateModule("wasm", {})`},
		{name: "plain object buffer", call: `Wasm.instantiateModule({}, {})`},
		{name: "number ffi", call: `Wasm.instantiateModule(bytes, 1)`},
		{name: "undefined ffi", call: `Wasm.instantiateModule(bytes, undefined)`},
		{name: "view lookalike", call: `Wasm.instantiateModule({buffer: bytes.buffer, byteOffset: 0, byteLength: bytes.length}, {})`},
		{name: "buffer property only", call: `Wasm.instantiateModule({buffer: bytes.buffer}, {})`},
		{name: "data view", call: `Wasm.instantiateModule(new DataView(bytes.buffer), {})`},
		{name: "exported memory", call: `Wasm.instantiateModule(Wasm.instantiateModule(bytes, {env: {log: function () {}}}).exports.mem, {})`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newRuntime(t)
			got := run(t, rt, `(function () {
				try { `+tt.call+`; return "no error"; }
				catch (e) { return e instanceof TypeError ? "TypeError" : String(e); }
			})()`)
			if got.String() != "TypeError" {
				t.Errorf("got %s, want TypeError", got)
			}
		})
	}
}

func TestExportsAndImports(t *testing.T) {
	rt := newRuntime(t)
	got := run(t, rt, `
		var seen = [];
		var inst = Wasm.instantiateModule(bytes, {env: {log: function (v) { seen.push(v); }}});
		inst.exports.logs(-3);
		[
			inst.exports.add(40, 2),
			inst.exports.add(0x7fffffff, 1),
			inst.exports.neg(),
			seen.join(","),
			new Uint8Array(inst.exports.mem.buffer)[0],
			inst.exports.counter.value,
			Wasm.experimentalVersion,
		].join(" ")
	`)
	if want := "42 -2147483648 -5 -3 42 7 1"; got.String() != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMemoryObjectInImports(t *testing.T) {
	rt := newRuntime(t)
	got := run(t, rt, `
		var mem = Wasm.instantiateModule(bytes, {env: {log: function () {}}}).exports.mem;
		var unused = Wasm.instantiateModule(bytes, {env: {log: function () {}, extra: mem}});
		var wrongKind;
		try {
			Wasm.instantiateModule(bytes, {env: {log: mem}});
			wrongKind = "no error";
		} catch (e) {
			wrongKind = "caught";
		}
		[typeof unused.exports.add, wrongKind].join(" ")
	`)
	if want := "function caught"; got.String() != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBufferVariants(t *testing.T) {
	rt := newRuntime(t)
	got := run(t, rt, `
		var ffi = {env: {log: function () {}}};
		var a = Wasm.instantiateModule(bytes.buffer, ffi).exports.add(1, 2);
		var padded = new Uint8Array(bytes.length + 8);
		padded.set(bytes, 4);
		var b = Wasm.instantiateModule(padded.subarray(4, 4 + bytes.length), ffi).exports.add(3, 4);
		a + "," + b
	`)
	if got.String() != "3,7" {
		t.Errorf("got %s", got)
	}
}

func TestCompileErrorIsCached(t *testing.T) {
	rt := newRuntime(t)
	got := run(t, rt, `
		var inst = Wasm.instantiateModule(bytes, {env: {log: function () {}}});
		var errs = [];
		for (var i = 0; i < 2; i++) {
			try { inst.exports.broken(0, 0); } catch (e) { errs.push(e); }
		}
		[
			errs.length,
			errs[0] === errs[1],
			errs[0] instanceof Wasm.CompileError,
			errs[0].name,
			errs[0].message,
		].join("|")
	`)
	want := "2|true|true|CompileError|function broken at offset 1/3: unsupported opcode 0xff"
	if got.String() != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestTrapIsRuntimeError(t *testing.T) {
	rt := newRuntime(t)
	got := run(t, rt, `
		var inst = Wasm.instantiateModule(bytes, {env: {log: function () {}}});
		var errs = [];
		for (var i = 0; i < 2; i++) {
			try { inst.exports.div(1, 0); } catch (e) { errs.push(e); }
		}
		[errs[0] instanceof Wasm.RuntimeError, errs[0] === errs[1], errs[0].message, inst.exports.div(9, 3)].join("|")
	`)
	if want := "true|false|integer divide by zero|3"; got.String() != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestScriptExceptionPassesThrough(t *testing.T) {
	rt := newRuntime(t)
	got := run(t, rt, `
		var marker = {reason: "boom"};
		var inst = Wasm.instantiateModule(bytes, {env: {log: function () { throw marker; }}});
		var caught;
		try { inst.exports.logs(1); } catch (e) { caught = e; }
		caught === marker
	`)
	if !got.ToBoolean() {
		t.Error("the thrown object did not reach the caller")
	}
}

func TestStats(t *testing.T) {
	rt := newRuntime(t)
	got := run(t, rt, `
		var inst = Wasm.instantiateModule(bytes, {env: {log: function () {}}});
		inst.exports.add(1, 1);
		inst.exports.add(1, 1);
		var byName = {};
		inst.stats().forEach(function (s) { byName[s.name] = s; });
		[byName.add.state, byName.add.generations, byName.div.state].join(",")
	`)
	if want := "interpreted,1,pending"; got.String() != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
