// Package interp executes lowered function bodies against instance state.
//
// Values are carried as uint64: i32 zero-extended, i64 as is, floats as
// their IEEE-754 bits and references as Store handles (0 is null). Traps
// are returned as *errors.Error of kind trap.
package interp
