package engine_test

import (
	"context"
	"sync"
	"testing"

	"github.com/wippyai/lazywasm/bytecode"
	"github.com/wippyai/lazywasm/engine"
	"github.com/wippyai/lazywasm/host"
	"github.com/wippyai/lazywasm/wasm"
)

var (
	i32 = wasm.ValI32
	ctx = context.Background()
)

// Function indices of calcModule.
const (
	idxLog uint32 = iota
	idxAdd
	idxBroken
	idxCallsAdd
	idxCallsBroken
	idxLogs
	idxBump
)

// calcModule encodes a module with one host import, a leaf function, a
// malformed function, callers of both, a memory with a data segment and a
// mutable global.
func calcModule() []byte {
	m := &wasm.Module{}
	voidI32 := m.AddType(wasm.FuncType{Params: []wasm.ValType{i32}})
	binI32 := m.AddType(wasm.FuncType{Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}})
	retI32 := m.AddType(wasm.FuncType{Results: []wasm.ValType{i32}})
	void := m.AddType(wasm.FuncType{})

	m.Imports = []wasm.Import{{Module: "env", Name: "log", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: voidI32}}}
	m.Funcs = []uint32{binI32, retI32, retI32, retI32, voidI32, void}
	m.Code = []wasm.FuncBody{
		wasm.NewCode().LocalGet(0).LocalGet(1).Op(wasm.OpI32Add).Body(),
		wasm.NewCode().Op(0xFF).Body(),
		wasm.NewCode().I32Const(2).I32Const(3).Call(idxAdd).Body(),
		wasm.NewCode().Call(idxBroken).Body(),
		wasm.NewCode().LocalGet(0).Call(idxLog).Body(),
		wasm.NewCode().GlobalGet(0).I32Const(1).Op(wasm.OpI32Add).GlobalSet(0).Body(),
	}
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	m.Globals = []wasm.Global{{Type: wasm.GlobalType{ValType: i32, Mutable: true}, Init: wasm.I32Expr(0)}}
	m.Data = []wasm.DataSegment{{Offset: wasm.I32Expr(16), Init: []byte("hi")}}
	m.Exports = []wasm.Export{
		{Name: "add", Kind: wasm.KindFunc, Idx: idxAdd},
		{Name: "broken", Kind: wasm.KindFunc, Idx: idxBroken},
		{Name: "callsAdd", Kind: wasm.KindFunc, Idx: idxCallsAdd},
		{Name: "callsBroken", Kind: wasm.KindFunc, Idx: idxCallsBroken},
		{Name: "logs", Kind: wasm.KindFunc, Idx: idxLogs},
		{Name: "bump", Kind: wasm.KindFunc, Idx: idxBump},
		{Name: "mem", Kind: wasm.KindMemory, Idx: 0},
		{Name: "counter", Kind: wasm.KindGlobal, Idx: 0},
	}
	return m.Encode()
}

// logSink records the values passed to env.log.
type logSink struct {
	got []uint32
}

func (l *logSink) imports() host.Map {
	return host.Map{
		"env": host.Map{
			"log": host.NewFunc("log", []wasm.ValType{i32}, nil, func(_ context.Context, args []uint64) ([]uint64, error) {
				l.got = append(l.got, uint32(args[0]))
				return nil, nil
			}),
		},
	}
}

// countingGenerator wraps the default generator and counts runs per function.
type countingGenerator struct {
	counts map[string]int
	mu     sync.Mutex
}

func newCountingGenerator() *countingGenerator {
	return &countingGenerator{counts: make(map[string]int)}
}

func (g *countingGenerator) Generate(info *bytecode.ReaderInfo) (*bytecode.Func, error) {
	g.mu.Lock()
	g.counts[info.Def.Name]++
	g.mu.Unlock()
	return bytecode.DefaultGenerator{}.Generate(info)
}

func (g *countingGenerator) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[name]
}

// interpretedOnly is a config with tier-up disabled.
func interpretedOnly() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.NativeEnabled = false
	return cfg
}

func instantiate(t *testing.T, e *engine.Engine, sink *logSink) *engine.Instance {
	t.Helper()
	if sink == nil {
		sink = &logSink{}
	}
	inst, err := e.Instantiate(ctx, host.Buffer(calcModule()), sink.imports())
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return inst
}

func mustPanic(t *testing.T, f func()) (recovered any) {
	t.Helper()
	defer func() {
		recovered = recover()
		if recovered == nil {
			t.Fatal("expected panic")
		}
	}()
	f()
	return nil
}
