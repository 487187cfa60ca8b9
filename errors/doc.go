// Package errors provides structured error types for the lazywasm library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the guest function display name, a path, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLinking, errors.KindTypeMismatch).
//		Path("env", "log").
//		Detail("expected (i32) -> (), got (i64) -> ()").
//		Build()
//
// Or use convenience constructors for the gateway's error taxonomy:
//
//	errors.Argument("needs typed buffer")      // malformed instantiation call
//	errors.CompileFailed(name, msg)            // lazy error stored on a function
//	errors.Trap("integer divide by zero")      // guest runtime trap
//
// All errors implement the standard error interface and support errors.Is/As.
// The sentinels ErrArgument, ErrCompile, ErrTrap and ErrInternal match any
// error of the same phase and kind.
package errors
