package runtime

import (
	"context"
	"math"
	"testing"

	"github.com/wippyai/lazywasm/wasm"
)

func TestToKebabCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Add", "add"},
		{"GetValue", "get-value"},
		{"GetHTTPURL", "get-http-url"},
		{"HTTPServer", "http-server"},
		{"LogI32", "log-i32"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := toKebabCase(tt.in); got != tt.want {
			t.Errorf("toKebabCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLiftSignatures(t *testing.T) {
	tests := []struct {
		fn      any
		name    string
		params  []wasm.ValType
		results []wasm.ValType
		wantErr bool
	}{
		{name: "empty", fn: func() {}},
		{name: "ints", fn: func(int32, uint32, int64, uint64) {}, params: []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI64, wasm.ValI64}},
		{name: "context", fn: func(context.Context, float32) float64 { return 0 }, params: []wasm.ValType{wasm.ValF32}, results: []wasm.ValType{wasm.ValF64}},
		{name: "error", fn: func(bool) (int32, error) { return 0, nil }, params: []wasm.ValType{wasm.ValI32}, results: []wasm.ValType{wasm.ValI32}},
		{name: "string", fn: func(string) {}, wantErr: true},
		{name: "variadic", fn: func(...int32) {}, wantErr: true},
		{name: "not a func", fn: 42, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hf, err := lift(tt.name, tt.fn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			want := wasm.FuncType{Params: tt.params, Results: tt.results}
			if !hf.Type.Equal(want) {
				t.Errorf("type = %s, want %s", hf.Type, want)
			}
		})
	}
}

func TestLiftConversions(t *testing.T) {
	ctx := context.Background()

	neg, _ := lift("neg", func(v int32) int32 { return -v })
	res, err := neg.Fn(ctx, []uint64{5})
	if err != nil || res[0] != uint64(uint32(0xFFFFFFFB)) {
		t.Errorf("neg(5) = %#x, %v", res, err)
	}

	half, _ := lift("half", func(v float32) float32 { return v / 2 })
	res, _ = half.Fn(ctx, []uint64{uint64(math.Float32bits(3))})
	if math.Float32frombits(uint32(res[0])) != 1.5 {
		t.Errorf("half(3) = %v", math.Float32frombits(uint32(res[0])))
	}

	not, _ := lift("not", func(b bool) bool { return !b })
	res, _ = not.Fn(ctx, []uint64{0x1_0000_0000})
	if res[0] != 1 {
		t.Errorf("upper bits leaked into bool: %v", res)
	}

	type key struct{}
	var seen any
	probe, _ := lift("probe", func(ctx context.Context) { seen = ctx.Value(key{}) })
	if _, err := probe.Fn(context.WithValue(ctx, key{}, "x"), nil); err != nil || seen != "x" {
		t.Errorf("context not forwarded: %v, %v", seen, err)
	}
}
