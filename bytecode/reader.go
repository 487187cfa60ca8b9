package bytecode

import (
	"fmt"

	"github.com/wippyai/lazywasm/wasm"
)

// ReaderInfo is the deferred-compilation handle of one function: enough
// to locate and decode its body later. It is detached from its function
// when compilation begins, whatever the outcome.
type ReaderInfo struct {
	Module *wasm.Module
	// Body aliases the module binary at Def.Range.
	Body []byte
	Def  wasm.FuncDef
}

// NewReaderInfo returns the handle for the defIdx-th defined function.
func NewReaderInfo(m *wasm.Module, defIdx int) *ReaderInfo {
	return &ReaderInfo{
		Module: m,
		Body:   m.Code[defIdx].Body,
		Def:    m.Def(defIdx),
	}
}

// Start returns the absolute offset of the body's first byte.
func (ri *ReaderInfo) Start() uint32 {
	return ri.Def.Range.Start
}

// Size returns the body size in bytes.
func (ri *ReaderInfo) Size() uint32 {
	return ri.Def.Range.Size
}

// CompileError is the generator's failure: a message and the absolute
// reader offset at which decoding stopped.
type CompileError struct {
	Msg    string
	Offset uint32
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s (at offset %d)", e.Msg, e.Offset)
}

// Generator turns a function body into an interpretable artifact. A body
// that fails validation is reported as a *CompileError.
type Generator interface {
	Generate(info *ReaderInfo) (*Func, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(info *ReaderInfo) (*Func, error)

// Generate calls f(info).
func (f GeneratorFunc) Generate(info *ReaderInfo) (*Func, error) {
	return f(info)
}
