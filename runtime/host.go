package runtime

import (
	"context"
	"math"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/wippyai/lazywasm/engine"
	"github.com/wippyai/lazywasm/errors"
	"github.com/wippyai/lazywasm/host"
	"github.com/wippyai/lazywasm/wasm"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Namespace) are registered as host functions,
// unless the host implements ExplicitRegistrar.
type Host interface {
	// Namespace returns the import module name (e.g., "env").
	Namespace() string
}

// ExplicitRegistrar allows hosts to provide exact import names when
// automatic PascalCase-to-kebab-case conversion doesn't apply
// (e.g., "log_i32").
type ExplicitRegistrar interface {
	Register() map[string]any
}

// HostRegistry collects host values per import module and turns them into
// an import object.
type HostRegistry struct {
	externs map[string]map[string]host.Value
	mu      sync.RWMutex
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		externs: make(map[string]map[string]host.Value),
	}
}

func (r *HostRegistry) RegisterHost(h Host) error {
	ns := h.Namespace()
	if ns == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}

	funcs := make(map[string]*host.Func)
	if er, ok := h.(ExplicitRegistrar); ok {
		for name, handler := range er.Register() {
			hf, err := hostFunc(name, handler)
			if err != nil {
				return errors.Registration(errors.PhaseHost, ns, name, err)
			}
			funcs[name] = hf
		}
	} else {
		rv := reflect.ValueOf(h)
		rt := rv.Type()
		for i := 0; i < rt.NumMethod(); i++ {
			method := rt.Method(i)
			if !method.IsExported() || method.Name == "Namespace" {
				continue
			}
			name := toKebabCase(method.Name)
			hf, err := lift(name, rv.Method(i).Interface())
			if err != nil {
				return errors.Registration(errors.PhaseHost, ns, name, err)
			}
			funcs[name] = hf
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, hf := range funcs {
		r.set(ns, name, hf)
	}
	return nil
}

// RegisterFunc registers fn as the import namespace.name. fn is either a
// *host.Func or a Go function whose signature maps onto wasm types.
func (r *HostRegistry) RegisterFunc(namespace, name string, fn any) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}

	hf, err := hostFunc(name, fn)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.set(namespace, name, hf)
	return nil
}

// Define registers a memory, global, table or function under
// namespace.name as is.
func (r *HostRegistry) Define(namespace, name string, v host.Value) error {
	if namespace == "" || name == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace and name cannot be empty")
	}
	switch v.(type) {
	case *host.Memory, *host.Global, *host.Table, *host.Func, *engine.Function:
	default:
		return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Value(reflect.TypeOf(v)).
			Detail("cannot define %s.%s as %T", namespace, name, v).
			Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.set(namespace, name, v)
	return nil
}

func (r *HostRegistry) set(namespace, name string, v host.Value) {
	if r.externs[namespace] == nil {
		r.externs[namespace] = make(map[string]host.Value)
	}
	r.externs[namespace][name] = v
}

// Imports returns a snapshot of the registry as an import object.
func (r *HostRegistry) Imports() host.Map {
	r.mu.RLock()
	defer r.mu.RUnlock()

	imports := make(host.Map, len(r.externs))
	for ns, externs := range r.externs {
		m := make(host.Map, len(externs))
		for name, v := range externs {
			m[name] = v
		}
		imports[ns] = m
	}
	return imports
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

func hostFunc(name string, fn any) (*host.Func, error) {
	if hf, ok := fn.(*host.Func); ok {
		return hf, nil
	}
	return lift(name, fn)
}

// lift wraps a Go function as a host.Func.
func lift(name string, fn any) (*host.Func, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Value(reflect.TypeOf(fn)).
			Detail("handler must be a function").
			Build()
	}
	rt := rv.Type()
	if rt.IsVariadic() {
		return nil, errors.Unsupported(errors.PhaseHost, "variadic host function "+name)
	}

	first := 0
	if rt.NumIn() > 0 && rt.In(0) == contextType {
		first = 1
	}
	numOut := rt.NumOut()
	hasErr := numOut > 0 && rt.Out(numOut-1) == errorType
	if hasErr {
		numOut--
	}

	params := make([]wasm.ValType, 0, rt.NumIn()-first)
	for i := first; i < rt.NumIn(); i++ {
		vt, ok := valTypeOf(rt.In(i))
		if !ok {
			return nil, errors.Unsupported(errors.PhaseHost, "parameter type "+rt.In(i).String())
		}
		params = append(params, vt)
	}
	results := make([]wasm.ValType, 0, numOut)
	for i := 0; i < numOut; i++ {
		vt, ok := valTypeOf(rt.Out(i))
		if !ok {
			return nil, errors.Unsupported(errors.PhaseHost, "result type "+rt.Out(i).String())
		}
		results = append(results, vt)
	}

	return host.NewFunc(name, params, results, func(ctx context.Context, args []uint64) ([]uint64, error) {
		in := make([]reflect.Value, 0, rt.NumIn())
		if first == 1 {
			in = append(in, reflect.ValueOf(&ctx).Elem())
		}
		for i, a := range args {
			in = append(in, decodeArg(rt.In(first+i), a))
		}
		out := rv.Call(in)
		if hasErr {
			if err, _ := out[numOut].Interface().(error); err != nil {
				return nil, err
			}
		}
		res := make([]uint64, numOut)
		for i := range res {
			res[i] = encodeResult(out[i])
		}
		return res, nil
	}), nil
}

func valTypeOf(t reflect.Type) (wasm.ValType, bool) {
	switch t.Kind() {
	case reflect.Int32, reflect.Uint32, reflect.Bool:
		return wasm.ValI32, true
	case reflect.Int64, reflect.Uint64:
		return wasm.ValI64, true
	case reflect.Float32:
		return wasm.ValF32, true
	case reflect.Float64:
		return wasm.ValF64, true
	}
	return 0, false
}

func decodeArg(t reflect.Type, a uint64) reflect.Value {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int32:
		v.SetInt(int64(int32(uint32(a))))
	case reflect.Int64:
		v.SetInt(int64(a))
	case reflect.Uint32:
		v.SetUint(uint64(uint32(a)))
	case reflect.Uint64:
		v.SetUint(a)
	case reflect.Bool:
		v.SetBool(uint32(a) != 0)
	case reflect.Float32:
		v.SetFloat(float64(math.Float32frombits(uint32(a))))
	case reflect.Float64:
		v.SetFloat(math.Float64frombits(a))
	}
	return v
}

func encodeResult(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Int32:
		return uint64(uint32(v.Int()))
	case reflect.Int64:
		return uint64(v.Int())
	case reflect.Uint32, reflect.Uint64:
		return v.Uint()
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Float32:
		return uint64(math.Float32bits(float32(v.Float())))
	case reflect.Float64:
		return math.Float64bits(v.Float())
	}
	return 0
}

// toKebabCase converts PascalCase to kebab-case.
// Handles acronyms: GetHTTPURL -> get-http-url
func toKebabCase(s string) string {
	runes := []rune(s)
	var b strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}

		end := i + 1
		for end < len(runes) && unicode.IsUpper(runes[end]) {
			end++
		}
		// The last capital of a run starts the next word.
		if end > i+1 && end < len(runes) && unicode.IsLower(runes[end]) {
			end--
		}
		if i > 0 {
			b.WriteByte('-')
		}
		for j := i; j < end; j++ {
			b.WriteRune(unicode.ToLower(runes[j]))
		}
		i = end - 1
	}
	return b.String()
}
