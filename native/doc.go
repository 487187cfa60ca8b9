// Package native is the second execution tier. It compiles leaf functions
// with wazero: each function is wrapped in a one-function module that
// keeps the original type section, so block types that name a type index
// stay valid, and is instantiated anonymously in a shared runtime.
package native
