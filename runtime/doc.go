// Package runtime provides the high-level API over the lazy engine.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	rt.RegisterFunc("env", "log", func(v int32) { fmt.Println(v) })
//
//	inst, err := rt.Instantiate(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := inst.Call(ctx, "add", 2, 3)
//
// Instantiation compiles nothing. Each function body is turned into
// bytecode on its first call, and leaf functions that keep being called
// move to the wazero-backed native tier.
//
// # Host Functions
//
// Go functions become function imports. The signature is derived from
// the Go types:
//
//	Go Type            Wasm Type
//	───────────────────────────
//	int32/uint32/bool  i32
//	int64/uint64       i64
//	float32            f32
//	float64            f64
//
// An optional leading context.Context receives the caller's context, and an
// optional trailing error result aborts the guest call.
//
// Implement Host to register every exported method of a value under one
// import module. Method names are converted from PascalCase to kebab-case
// (GetValue -> get-value):
//
//	rt.RegisterHost(myHost)
//
// Memories, globals and tables are shared with Define.
//
// # Thread Safety
//
// Runtime is safe for concurrent use. Instances may be called from
// several goroutines; each function is compiled at most once.
package runtime
