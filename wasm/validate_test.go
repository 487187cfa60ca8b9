package wasm_test

import (
	"strings"
	"testing"

	"github.com/wippyai/lazywasm/wasm"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		mutate  func(m *wasm.Module)
		name    string
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(m *wasm.Module) {},
		},
		{
			name:    "bad type index",
			mutate:  func(m *wasm.Module) { m.Funcs[0] = 9 },
			wantErr: "invalid type index",
		},
		{
			name:    "bad export index",
			mutate:  func(m *wasm.Module) { m.Exports[0].Idx = 5 },
			wantErr: "invalid function index",
		},
		{
			name: "duplicate export",
			mutate: func(m *wasm.Module) {
				m.Exports = append(m.Exports, wasm.Export{Name: "add", Kind: wasm.KindFunc})
			},
			wantErr: "duplicate export",
		},
		{
			name:    "start with params",
			mutate:  func(m *wasm.Module) { m.Start = ptrTo(uint32(0)) },
			wantErr: "start function must have signature",
		},
		{
			name: "element references missing function",
			mutate: func(m *wasm.Module) {
				m.Tables = []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 1}}}
				m.Elements = []wasm.Element{{Offset: wasm.I32Expr(0), FuncIdxs: []uint32{7}}}
			},
			wantErr: "invalid function index 7",
		},
		{
			name: "element without table",
			mutate: func(m *wasm.Module) {
				m.Elements = []wasm.Element{{Offset: wasm.I32Expr(0), FuncIdxs: []uint32{0}}}
			},
			wantErr: "invalid table index",
		},
		{
			name: "two memories",
			mutate: func(m *wasm.Module) {
				m.Memories = []wasm.MemoryType{{}, {}}
			},
			wantErr: "multiple memories",
		},
		{
			name: "data without memory",
			mutate: func(m *wasm.Module) {
				m.Data = []wasm.DataSegment{{Offset: wasm.I32Expr(0), Init: []byte{1}}}
			},
			wantErr: "invalid memory index",
		},
		{
			name: "global reads defined global",
			mutate: func(m *wasm.Module) {
				m.Globals = []wasm.Global{
					{Type: wasm.GlobalType{ValType: wasm.ValI32}, Init: wasm.I32Expr(1)},
					{Type: wasm.GlobalType{ValType: wasm.ValI32}, Init: []byte{wasm.OpGlobalGet, 0x00, wasm.OpEnd}},
				}
			},
			wantErr: "not imported",
		},
		{
			name: "code count",
			mutate: func(m *wasm.Module) {
				m.Code = m.Code[:1]
			},
			wantErr: "code section has 1 entries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := addModule()
			tt.mutate(m)
			err := m.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeConstExpr(t *testing.T) {
	tests := []struct {
		name    string
		expr    []byte
		opcode  byte
		value   uint64
		index   uint32
		wantErr bool
	}{
		{name: "i32", expr: wasm.I32Expr(-1), opcode: wasm.OpI32Const, value: 0xFFFFFFFF},
		{name: "i64", expr: wasm.I64Expr(-2), opcode: wasm.OpI64Const, value: 0xFFFFFFFFFFFFFFFE},
		{name: "global.get", expr: []byte{wasm.OpGlobalGet, 0x03, wasm.OpEnd}, opcode: wasm.OpGlobalGet, index: 3},
		{name: "ref.func", expr: []byte{wasm.OpRefFunc, 0x02, wasm.OpEnd}, opcode: wasm.OpRefFunc, index: 2},
		{name: "ref.null", expr: []byte{wasm.OpRefNull, byte(wasm.ValFuncRef), wasm.OpEnd}, opcode: wasm.OpRefNull},
		{name: "missing end", expr: []byte{wasm.OpI32Const, 0x01}, wantErr: true},
		{name: "two instructions", expr: []byte{wasm.OpI32Const, 0x01, wasm.OpI32Const, 0x01, wasm.OpEnd}, wantErr: true},
		{name: "not constant", expr: []byte{wasm.OpI32Add, wasm.OpEnd}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := wasm.DecodeConstExpr(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if c.Opcode != tt.opcode || c.Value != tt.value || c.Index != tt.index {
				t.Errorf("got %+v", c)
			}
		})
	}
}
