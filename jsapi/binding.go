package jsapi

import (
	"context"
	stderrors "errors"
	"math"
	"strconv"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/lazywasm/engine"
	"github.com/wippyai/lazywasm/errors"
	"github.com/wippyai/lazywasm/host"
	"github.com/wippyai/lazywasm/wasm"
)

// ExperimentalVersion is the binary format version reported to scripts.
const ExperimentalVersion = wasm.Version

const errorClasses = `(function () {
	class CompileError extends Error {
		constructor(message) { super(message); this.name = "CompileError"; }
	}
	class RuntimeError extends Error {
		constructor(message) { super(message); this.name = "RuntimeError"; }
	}
	const isTypedArray = (x) => ArrayBuffer.isView(x) && !(x instanceof DataView);
	return [CompileError, RuntimeError, isTypedArray];
})()`

// Binding connects one goja runtime to an engine.
type Binding struct {
	ctx          context.Context
	rt           *goja.Runtime
	engine       *engine.Engine
	compileError goja.Value
	runtimeError goja.Value
	isTypedArray goja.Callable
	// thrown CompileError objects, keyed by the function's lazy error
	compileErrs map[*errors.Error]*goja.Object
}

// Install defines the Wasm global in rt. ctx is passed to every guest call
// made from JavaScript.
func Install(ctx context.Context, rt *goja.Runtime, e *engine.Engine) (*Binding, error) {
	classes, err := rt.RunString(errorClasses)
	if err != nil {
		return nil, err
	}
	ctors := classes.ToObject(rt)
	isTypedArray, ok := goja.AssertFunction(ctors.Get("2"))
	if !ok {
		return nil, errors.Internal("typed array check is not callable")
	}

	b := &Binding{
		ctx:          ctx,
		rt:           rt,
		engine:       e,
		compileError: ctors.Get("0"),
		runtimeError: ctors.Get("1"),
		isTypedArray: isTypedArray,
		compileErrs:  make(map[*errors.Error]*goja.Object),
	}

	w := rt.NewObject()
	for name, v := range map[string]any{
		"instantiateModule":   b.instantiateModule,
		"experimentalVersion": ExperimentalVersion,
		"CompileError":        b.compileError,
		"RuntimeError":        b.runtimeError,
	} {
		if err := w.Set(name, v); err != nil {
			return nil, err
		}
	}
	rt.Set("Wasm", w)
	return b, nil
}

func (b *Binding) instantiateModule(call goja.FunctionCall) goja.Value {
	args := make([]host.Value, len(call.Arguments))
	for i, v := range call.Arguments {
		args[i] = b.hostValue(v)
	}
	inst, err := b.engine.Instantiate(b.ctx, args...)
	if err != nil {
		panic(b.throwable(err))
	}
	Logger().Debug("module instantiated from script",
		zap.Int("exports", len(inst.Exports())))
	return b.instanceObject(inst)
}

// hostValue converts a script value for the instantiation gateway.
func (b *Binding) hostValue(v goja.Value) host.Value {
	obj, ok := v.(*goja.Object)
	if !ok {
		if v == nil {
			return nil
		}
		return v.Export()
	}
	o := &object{b: b, obj: obj}
	if ab, ok := obj.Export().(goja.ArrayBuffer); ok {
		return &arrayBuffer{object: o, ab: ab}
	}
	if !b.typedArray(obj) {
		return o
	}
	if buf, ok := obj.Get("buffer").(*goja.Object); ok {
		if ab, ok := buf.Export().(goja.ArrayBuffer); ok {
			return &typedArray{
				object: o,
				buf:    &arrayBuffer{object: &object{b: b, obj: buf}, ab: ab},
				offset: intProp(obj, "byteOffset"),
				length: intProp(obj, "byteLength"),
			}
		}
	}
	return o
}

// typedArray reports whether obj is one of the TypedArray kinds. DataView
// and objects that merely look like views are not.
func (b *Binding) typedArray(obj *goja.Object) bool {
	v, err := b.isTypedArray(goja.Undefined(), obj)
	return err == nil && v.ToBoolean()
}

func intProp(obj *goja.Object, name string) int {
	v := obj.Get(name)
	if v == nil {
		return 0
	}
	return int(v.ToInteger())
}

// object is a script object seen as a host.Object.
type object struct {
	b   *Binding
	obj *goja.Object
}

func (o *object) Get(key string) (host.Value, bool) {
	v := o.obj.Get(key)
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	if fn, ok := goja.AssertFunction(v); ok {
		return &function{b: o.b, fn: fn}, true
	}
	return o.b.hostValue(v), true
}

type arrayBuffer struct {
	*object
	ab goja.ArrayBuffer
}

func (a *arrayBuffer) Bytes() []byte { return a.ab.Bytes() }

type typedArray struct {
	*object
	buf    *arrayBuffer
	offset int
	length int
}

func (t *typedArray) Buffer() host.ArrayBuffer { return t.buf }
func (t *typedArray) ByteOffset() int          { return t.offset }
func (t *typedArray) ByteLength() int          { return t.length }

// function is a script function imported by a guest module.
type function struct {
	b  *Binding
	fn goja.Callable
}

func (f *function) Adapt(name string, ft wasm.FuncType) *host.Func {
	return host.NewFunc(name, ft.Params, ft.Results, func(_ context.Context, args []uint64) ([]uint64, error) {
		in := make([]goja.Value, len(args))
		for i, a := range args {
			in[i] = f.b.toJS(a, ft.Params[i])
		}
		ret, err := f.fn(goja.Undefined(), in...)
		if err != nil {
			return nil, err
		}
		switch len(ft.Results) {
		case 0:
			return nil, nil
		case 1:
			return []uint64{f.b.fromJS(ret, ft.Results[0])}, nil
		}
		items := ret.ToObject(f.b.rt)
		res := make([]uint64, len(ft.Results))
		for i, t := range ft.Results {
			res[i] = f.b.fromJS(items.Get(strconv.Itoa(i)), t)
		}
		return res, nil
	})
}

func (b *Binding) instanceObject(inst *engine.Instance) *goja.Object {
	exports := b.rt.NewObject()
	for name, v := range inst.Exports() {
		var val any
		switch x := v.(type) {
		case *engine.Function:
			val = b.exportedFunction(x)
		case *host.Memory:
			val = b.memoryObject(x)
		case *host.Global:
			val = b.globalObject(x)
		default:
			continue
		}
		_ = exports.Set(name, val)
	}

	obj := b.rt.NewObject()
	_ = obj.Set("exports", exports)
	_ = obj.Set("stats", func() goja.Value {
		var out []any
		for _, st := range inst.Stats() {
			out = append(out, map[string]any{
				"name":        st.Name,
				"state":       string(st.State),
				"runs":        st.Runs,
				"generations": st.Generations,
			})
		}
		return b.rt.ToValue(out)
	})
	return obj
}

func (b *Binding) exportedFunction(fn *engine.Function) goja.Value {
	ft := fn.FuncType()
	return b.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		args := make([]uint64, len(ft.Params))
		for i, t := range ft.Params {
			args[i] = b.fromJS(call.Argument(i), t)
		}
		res, err := fn.Call(b.ctx, args...)
		if err != nil {
			panic(b.throwable(err))
		}
		switch len(res) {
		case 0:
			return goja.Undefined()
		case 1:
			return b.toJS(res[0], ft.Results[0])
		}
		items := make([]any, len(res))
		for i, r := range res {
			items[i] = b.toJS(r, ft.Results[i])
		}
		return b.rt.NewArray(items...)
	})
}

func (b *Binding) memoryObject(mem *host.Memory) *goja.Object {
	obj := b.rt.NewObject()
	buffer := b.rt.ToValue(func() goja.Value {
		return b.rt.ToValue(b.rt.NewArrayBuffer(mem.Bytes()))
	})
	_ = obj.DefineAccessorProperty("buffer", buffer, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	return obj
}

func (b *Binding) globalObject(g *host.Global) *goja.Object {
	obj := b.rt.NewObject()
	value := b.rt.ToValue(func() goja.Value {
		return b.toJS(g.Value, g.Type.ValType)
	})
	_ = obj.DefineAccessorProperty("value", value, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	return obj
}

func (b *Binding) fromJS(v goja.Value, t wasm.ValType) uint64 {
	if v == nil {
		v = goja.Undefined()
	}
	switch t {
	case wasm.ValI32:
		return uint64(uint32(v.ToInteger()))
	case wasm.ValI64:
		return uint64(v.ToInteger())
	case wasm.ValF32:
		return uint64(math.Float32bits(float32(v.ToFloat())))
	case wasm.ValF64:
		return math.Float64bits(v.ToFloat())
	}
	panic(b.rt.NewTypeError("cannot pass " + t.String() + " values from JavaScript"))
}

func (b *Binding) toJS(bits uint64, t wasm.ValType) goja.Value {
	switch t {
	case wasm.ValI32:
		return b.rt.ToValue(int32(uint32(bits)))
	case wasm.ValI64:
		return b.rt.ToValue(int64(bits))
	case wasm.ValF32:
		return b.rt.ToValue(float64(math.Float32frombits(uint32(bits))))
	case wasm.ValF64:
		return b.rt.ToValue(math.Float64frombits(bits))
	}
	return goja.Null()
}

// throwable maps an engine error onto the value thrown into the script.
func (b *Binding) throwable(err error) goja.Value {
	var exc *goja.Exception
	if stderrors.As(err, &exc) {
		return exc.Value()
	}
	var werr *errors.Error
	if !stderrors.As(err, &werr) {
		return b.rt.NewGoError(err)
	}
	switch {
	case stderrors.Is(werr, errors.ErrArgument):
		return b.rt.NewTypeError(werr.Detail)
	case stderrors.Is(werr, errors.ErrCompile):
		if obj, ok := b.compileErrs[werr]; ok {
			return obj
		}
		obj := b.construct(b.compileError, werr.Detail)
		b.compileErrs[werr] = obj
		return obj
	case stderrors.Is(werr, errors.ErrTrap):
		return b.construct(b.runtimeError, werr.Detail)
	}
	return b.rt.NewGoError(err)
}

func (b *Binding) construct(ctor goja.Value, msg string) *goja.Object {
	obj, err := b.rt.New(ctor, b.rt.ToValue(msg))
	if err != nil {
		return b.rt.NewGoError(err)
	}
	return obj
}
