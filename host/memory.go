package host

import "github.com/wippyai/lazywasm/wasm"

// Memory is a linear memory. It is not safe for concurrent use.
type Memory struct {
	data []byte
	max  uint32
}

// NewMemory allocates minPages pages. maxPages caps growth; zero means the
// 32-bit address space limit.
func NewMemory(minPages, maxPages uint32) *Memory {
	if maxPages == 0 || uint64(maxPages) > wasm.MemoryMaxPages32 {
		maxPages = uint32(wasm.MemoryMaxPages32)
	}
	return &Memory{
		data: make([]byte, uint64(minPages)*wasm.PageSize),
		max:  maxPages,
	}
}

// Bytes returns the current contents. The slice is invalidated by Grow.
func (m *Memory) Bytes() []byte { return m.data }

// Pages returns the current size in pages.
func (m *Memory) Pages() uint32 { return uint32(uint64(len(m.data)) / wasm.PageSize) }

// Max returns the maximum size in pages.
func (m *Memory) Max() uint32 { return m.max }

// Grow adds delta pages and returns the previous size. It reports false,
// leaving the memory untouched, when the result would exceed Max.
func (m *Memory) Grow(delta uint32) (uint32, bool) {
	old := m.Pages()
	if uint64(old)+uint64(delta) > uint64(m.max) {
		return old, false
	}
	if delta == 0 {
		return old, true
	}
	grown := make([]byte, uint64(len(m.data))+uint64(delta)*wasm.PageSize)
	copy(grown, m.data)
	m.data = grown
	return old, true
}

// Range returns n bytes at addr, or false if any byte lies out of bounds.
func (m *Memory) Range(addr uint64, n uint64) ([]byte, bool) {
	if addr > uint64(len(m.data)) || n > uint64(len(m.data))-addr {
		return nil, false
	}
	return m.data[addr : addr+n], true
}
