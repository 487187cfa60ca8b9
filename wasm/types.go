package wasm

import "strconv"

// Module represents a parsed WebAssembly module.
// Code bodies are kept as raw byte ranges into the binary they were parsed
// from; nothing in this package decodes instructions.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // Type indices for declared functions
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elements []Element
	Code     []FuncBody
	Data     []DataSegment

	// DataCount holds the count from the DataCount section (ID 12).
	DataCount *uint32

	// Names holds the decoded "name" custom section, if present.
	Names Names

	CustomSections []CustomSection
}

// FuncType represents a WebAssembly function signature with parameter and result types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) String() string {
	return "(" + joinTypes(ft.Params) + ") -> (" + joinTypes(ft.Results) + ")"
}

func joinTypes(ts []ValType) string {
	s := ""
	for i, t := range ts {
		if i > 0 {
			s += ", "
		}
		s += t.String()
	}
	return s
}

// Equal reports whether two signatures are identical.
func (ft FuncType) Equal(other FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i := range ft.Params {
		if ft.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range ft.Results {
		if ft.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}

// ValType represents a WebAssembly value type.
// See constants.go for ValI32, ValI64, ValF32, ValF64, etc.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	default:
		return "unknown"
	}
}

// IsNum reports whether v is one of the four numeric types.
func (v ValType) IsNum() bool {
	return v == ValI32 || v == ValI64 || v == ValF32 || v == ValF64
}

// IsRef reports whether v is a reference type.
func (v ValType) IsRef() bool {
	return v == ValFuncRef || v == ValExtern
}

// Import represents an imported function, table, memory, or global.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc describes an imported item.
// Kind uses KindFunc, KindTable, KindMemory, or KindGlobal constants.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

// TableType describes a table with element type and size limits.
type TableType struct {
	Limits   Limits
	ElemType ValType
}

// MemoryType describes a linear memory with size limits.
type MemoryType struct {
	Limits Limits
}

// Limits describes size constraints for tables and memories.
type Limits struct {
	Max *uint64
	Min uint64
}

// GlobalType describes a global variable's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global represents a global variable with type and initialization.
type Global struct {
	Type GlobalType
	Init []byte // Raw init expression bytes including end
}

// Export describes an exported item.
// Kind uses KindFunc, KindTable, KindMemory, or KindGlobal constants.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Element represents an element segment.
// Flags determine the format:
//   - 0: active, tableIdx=0, offset expr, vec(funcidx)
//   - 1: passive, elemkind, vec(funcidx)
//   - 2: active, tableIdx, offset expr, elemkind, vec(funcidx)
//   - 3: declarative, elemkind, vec(funcidx)
//   - 4: active, tableIdx=0, offset expr, vec(expr)
//   - 5: passive, reftype, vec(expr)
//   - 6: active, tableIdx, offset expr, reftype, vec(expr)
//   - 7: declarative, reftype, vec(expr)
type Element struct {
	Offset   []byte
	FuncIdxs []uint32
	Exprs    [][]byte
	Flags    uint32
	TableIdx uint32
	Type     ValType
}

// Active reports whether the segment is applied at instantiation.
func (e *Element) Active() bool {
	return e.Flags&0x01 == 0
}

// Range is a byte range into the module binary.
type Range struct {
	Start uint32
	Size  uint32
}

// End returns the offset one past the last byte.
func (r Range) End() uint32 {
	return r.Start + r.Size
}

// FuncBody is one entry of the code section.
// Body holds the locals vector followed by the expression and its final end
// opcode. When parsed, it aliases the source binary and Range locates it there.
type FuncBody struct {
	Body  []byte
	Range Range
}

// FuncDef gathers what the engine needs to compile one defined function later.
type FuncDef struct {
	Name    string
	Range   Range
	TypeIdx uint32
	FuncIdx uint32
}

// DataSegment represents a data segment.
// Flags determine the format:
//   - 0: active, memIdx=0, offset expr, vec(byte)
//   - 1: passive, vec(byte)
//   - 2: active, memIdx, offset expr, vec(byte)
type DataSegment struct {
	Offset []byte
	Init   []byte
	Flags  uint32
	MemIdx uint32
}

// CustomSection holds a named custom section's data.
type CustomSection struct {
	Name string
	Data []byte
}

// Names holds the module and function names from the "name" custom section.
type Names struct {
	Funcs  map[uint32]string
	Module string
}

// NumImportedFuncs returns the number of imported functions
func (m *Module) NumImportedFuncs() int {
	return m.numImported(KindFunc)
}

// NumImportedGlobals returns the number of imported globals
func (m *Module) NumImportedGlobals() int {
	return m.numImported(KindGlobal)
}

// NumImportedTables returns the number of imported tables
func (m *Module) NumImportedTables() int {
	return m.numImported(KindTable)
}

// NumImportedMemories returns the number of imported memories
func (m *Module) NumImportedMemories() int {
	return m.numImported(KindMemory)
}

func (m *Module) numImported(kind byte) int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			count++
		}
	}
	return count
}

// NumFuncs returns the size of the function index space.
func (m *Module) NumFuncs() int {
	return m.NumImportedFuncs() + len(m.Funcs)
}

// GetFuncType returns the type of a function by its index
func (m *Module) GetFuncType(funcIdx uint32) *FuncType {
	numImported := uint32(m.NumImportedFuncs())
	if funcIdx < numImported {
		for i, imp := range m.Imports {
			if imp.Desc.Kind == KindFunc {
				if funcIdx == 0 {
					return m.getFuncTypeByIdx(m.Imports[i].Desc.TypeIdx)
				}
				funcIdx--
			}
		}
	}
	localIdx := funcIdx - numImported
	if int(localIdx) >= len(m.Funcs) {
		return nil
	}
	return m.getFuncTypeByIdx(m.Funcs[localIdx])
}

func (m *Module) getFuncTypeByIdx(typeIdx uint32) *FuncType {
	if int(typeIdx) >= len(m.Types) {
		return nil
	}
	return &m.Types[typeIdx]
}

// GlobalTypeAt returns the type of a global by its index in the global index space.
func (m *Module) GlobalTypeAt(idx uint32) *GlobalType {
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindGlobal {
			if idx == 0 {
				return imp.Desc.Global
			}
			idx--
		}
	}
	if int(idx) >= len(m.Globals) {
		return nil
	}
	return &m.Globals[idx].Type
}

// TableTypeAt returns the type of a table by its index in the table index space.
func (m *Module) TableTypeAt(idx uint32) *TableType {
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindTable {
			if idx == 0 {
				return imp.Desc.Table
			}
			idx--
		}
	}
	if int(idx) >= len(m.Tables) {
		return nil
	}
	return &m.Tables[idx]
}

// AddType adds a function type and returns its index, reusing existing if equal
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	idx := uint32(len(m.Types))
	m.Types = append(m.Types, ft)
	return idx
}

// FuncName returns the display name of a function: its name-section entry,
// else its first export name, else "wasm-function[idx]".
func (m *Module) FuncName(funcIdx uint32) string {
	if name, ok := m.Names.Funcs[funcIdx]; ok && name != "" {
		return name
	}
	for _, exp := range m.Exports {
		if exp.Kind == KindFunc && exp.Idx == funcIdx {
			return exp.Name
		}
	}
	return "wasm-function[" + strconv.FormatUint(uint64(funcIdx), 10) + "]"
}

// Def returns the deferred-compilation record of a defined function.
// defIdx counts defined functions only, starting after the imports.
func (m *Module) Def(defIdx int) FuncDef {
	funcIdx := uint32(m.NumImportedFuncs() + defIdx)
	return FuncDef{
		Name:    m.FuncName(funcIdx),
		Range:   m.Code[defIdx].Range,
		TypeIdx: m.Funcs[defIdx],
		FuncIdx: funcIdx,
	}
}

// ExportedFunc returns the function index of the named function export.
func (m *Module) ExportedFunc(name string) (uint32, bool) {
	for _, exp := range m.Exports {
		if exp.Kind == KindFunc && exp.Name == name {
			return exp.Idx, true
		}
	}
	return 0, false
}
