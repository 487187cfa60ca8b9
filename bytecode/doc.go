// Package bytecode validates WebAssembly function bodies and lowers them
// to a flat instruction list with resolved branch targets.
//
// Bodies are generated one at a time from a ReaderInfo, the handle the
// engine keeps for every function until it is first called. Failures are
// reported as *CompileError carrying the absolute offset into the module
// binary at which decoding stopped.
package bytecode
