package host

// Value is any host-level value handed to the instantiation gateway.
type Value = any

// ArrayBuffer is a raw byte buffer.
type ArrayBuffer interface {
	Bytes() []byte
}

// TypedArray is a typed view over a window of an ArrayBuffer.
type TypedArray interface {
	Buffer() ArrayBuffer
	ByteOffset() int
	ByteLength() int
}

// Object is a keyed host object. Import objects are Objects whose values
// are themselves Objects, one per import module name.
type Object interface {
	Get(key string) (Value, bool)
}

// Buffer is an ArrayBuffer backed by a Go slice.
type Buffer []byte

func (b Buffer) Bytes() []byte { return b }

// View is a TypedArray over an ArrayBuffer.
type View struct {
	Buf    ArrayBuffer
	Offset int
	Length int
}

// NewView returns a view covering all of buf.
func NewView(buf ArrayBuffer) *View {
	return &View{Buf: buf, Length: len(buf.Bytes())}
}

func (v *View) Buffer() ArrayBuffer { return v.Buf }
func (v *View) ByteOffset() int     { return v.Offset }
func (v *View) ByteLength() int     { return v.Length }

// ViewBytes returns the window of t's buffer without copying. It reports
// false when the window does not fit the buffer.
func ViewBytes(t TypedArray) ([]byte, bool) {
	buf := t.Buffer()
	if buf == nil {
		return nil, false
	}
	data := buf.Bytes()
	off, n := t.ByteOffset(), t.ByteLength()
	if off < 0 || n < 0 || off > len(data) || n > len(data)-off {
		return nil, false
	}
	return data[off : off+n : off+n], true
}

// Map is an Object backed by a Go map.
type Map map[string]Value

func (m Map) Get(key string) (Value, bool) {
	v, ok := m[key]
	return v, ok
}
