package host

import "github.com/wippyai/lazywasm/wasm"

// Table holds references. Null entries are nil.
type Table struct {
	Elems []any
	Type  wasm.TableType
}

// NewTable allocates a table at its minimum size.
func NewTable(tt wasm.TableType) *Table {
	if tt.ElemType == 0 {
		tt.ElemType = wasm.ValFuncRef
	}
	return &Table{Type: tt, Elems: make([]any, tt.Limits.Min)}
}

// Size returns the number of entries.
func (t *Table) Size() uint32 { return uint32(len(t.Elems)) }

// Grow appends delta entries set to init and returns the previous size.
// It reports false when the table's maximum would be exceeded.
func (t *Table) Grow(delta uint32, init any) (uint32, bool) {
	old := t.Size()
	limit := uint64(1<<32 - 1)
	if t.Type.Limits.Max != nil {
		limit = *t.Type.Limits.Max
	}
	if uint64(old)+uint64(delta) > limit {
		return old, false
	}
	for i := uint32(0); i < delta; i++ {
		t.Elems = append(t.Elems, init)
	}
	return old, true
}

// Get returns the entry at i.
func (t *Table) Get(i uint32) (any, bool) {
	if i >= t.Size() {
		return nil, false
	}
	return t.Elems[i], true
}

// Set stores v at i.
func (t *Table) Set(i uint32, v any) bool {
	if i >= t.Size() {
		return false
	}
	t.Elems[i] = v
	return true
}
