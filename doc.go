// Package lazywasm runs WebAssembly modules without compiling them up front.
//
// Instantiation only validates the module and binds its imports. Every
// defined function starts out on a trampoline, and its body is turned into
// bytecode the first time anything calls it. Functions that never run are
// never compiled, and a function whose body is broken only fails when it is
// called.
//
// # Architecture Overview
//
//	lazywasm/
//	├── runtime/         High-level API: host registration, load, instantiate
//	├── engine/          Instantiate gateway, entry points, trampolines, tiers
//	├── bytecode/        Deferred per-function validation and code generation
//	├── interp/          Interpreter tier
//	├── native/          Native tier for leaf functions (wazero)
//	├── jsapi/           Wasm global for goja scripts
//	├── host/            Import object model: functions, memories, tables
//	├── wasm/            Module decoding, encoding and validation
//	├── config/          Consolidated settings (defaults, YAML, env, flags)
//	├── errors/          Structured error types for debugging
//	└── cmd/lazywasm/    Command line front end
//
// # Entry Points
//
// A function always calls through one of a fixed set of entry points: the
// external and internal trampolines, the interpreter, the native tier, host
// imports and the trap entry. The engine's gate refuses to jump anywhere
// else. A trampoline resolves the function exactly once and swaps its entry
// for the result, so later calls skip the resolution entirely.
//
// # Thread Safety
//
// Engines and modules are safe for concurrent use. An instance should be
// used by a single goroutine. Resolution itself is locked per function, so
// a body is generated at most once even when callers race on it.
package lazywasm
