// Package engine is the lazy compilation gateway: it instantiates parsed
// modules without translating any function body and compiles each body the
// first time it is called.
//
// # Entry points
//
// Every guest function has two entry cells:
//
//	external  - used by callers outside the module (exports, Start, hosts)
//	info      - used by sibling guest functions (call, call_indirect)
//
// Both start on a trampoline. The first call through either resolves the
// function: the reader handle is detached, the body is generated, and the
// cells are switched to the real entries (external entry plus interpreter
// entry), or to the trap entry when generation fails. The trap entry
// returns the same *errors.Error on every call.
//
//	trampoline ─┬─> external/interpreted ──> native (tier-up)
//	            └─> trap
//
// Transitions only move forward. Trampolines dispatch through the Engine's
// Gate, the whitelist of entry points a resolved call may land on.
//
// # Tiering
//
// Leaf functions (no calls, globals, memory or tables) may be handed to a
// NativeCompiler after Config.MaxInterpretedRunCount interpreted runs, or
// right after generation when ForceNative is set or the count is zero.
// A native compilation failure leaves the function interpreted.
//
// # Thread Safety
//
// Engine and Module are safe for concurrent use. Instance is NOT
// thread-safe and should be used by a single goroutine.
package engine
