// Package jsapi exposes the engine to JavaScript running in goja.
//
// Install adds a Wasm global:
//
//	Wasm.instantiateModule(bytes, ffi) -> { exports, stats() }
//	Wasm.experimentalVersion
//	Wasm.CompileError, Wasm.RuntimeError
//
// bytes is a typed array or an ArrayBuffer and is read in place. ffi is an
// object of import modules; plain JS functions in it are bound with the
// signature the guest imports them under. Exported functions take and
// return JS numbers (i64 values are truncated to the float64 range).
//
// Argument errors are thrown as TypeError. A function that fails to compile
// throws the same CompileError object on every call. Traps throw a new
// RuntimeError.
//
// A Binding is tied to its goja.Runtime and shares its lack of thread
// safety.
package jsapi
