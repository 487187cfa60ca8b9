package native

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/lazywasm/engine"
	"github.com/wippyai/lazywasm/errors"
	"github.com/wippyai/lazywasm/wasm"
)

// exportName is the export of the synthesized module.
const exportName = "f"

// ErrNotLeaf is returned for functions that reach outside their own frame.
var ErrNotLeaf = stderrors.New("native: function is not a leaf")

// Config holds configuration for compiler creation
type Config struct {
	// Interpreter selects wazero's interpreter instead of its compiler,
	// for platforms without compiler support.
	Interpreter bool
}

// Compiler implements engine.NativeCompiler on a single wazero runtime.
// It is safe for concurrent use.
type Compiler struct {
	runtime  wazero.Runtime
	compiled atomic.Int64
	mu       sync.Mutex
	closed   bool
}

// New creates a compiler. Close releases every module it produced.
func New(ctx context.Context, cfg *Config) *Compiler {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.Interpreter {
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
	}
	runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2)
	return &Compiler{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}
}

// Synthesize returns a module exporting one function, "f", with the given
// body. types is the originating module's type section and typeIdx the
// function's signature within it.
func Synthesize(types []wasm.FuncType, typeIdx uint32, body []byte) []byte {
	m := &wasm.Module{
		Types:   types,
		Funcs:   []uint32{typeIdx},
		Exports: []wasm.Export{{Name: exportName, Kind: wasm.KindFunc, Idx: 0}},
		Code:    []wasm.FuncBody{{Body: body}},
	}
	return m.Encode()
}

// CompileNative implements engine.NativeCompiler.
func (c *Compiler) CompileNative(ctx context.Context, fn *engine.Function) (*engine.EntryPoint, error) {
	code := fn.Code()
	if code == nil || !code.Leaf || fn.Body() == nil {
		return nil, ErrNotLeaf
	}
	bin := Synthesize(fn.Instance().Module().Wasm().Types, fn.TypeIndex(), fn.Body())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.NotInitialized(errors.PhaseNative, "native compiler")
	}

	compiled, err := c.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.New(errors.PhaseNative, errors.KindCompile).Func(fn.Name()).Cause(err).Detail("wazero compile").Build()
	}
	mod, err := c.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.New(errors.PhaseNative, errors.KindInstantiation).Func(fn.Name()).Cause(err).Detail("wazero instantiate").Build()
	}
	f := mod.ExportedFunction(exportName)
	c.compiled.Add(1)

	Logger().Debug("native entry compiled",
		zap.String("func", fn.Name()),
		zap.Int("bytes", len(bin)))

	return engine.NewEntryPoint(engine.KindNative, "native:"+fn.Name(), func(ctx context.Context, _ *engine.Function, args []uint64) ([]uint64, error) {
		results, err := f.Call(ctx, args...)
		if err != nil {
			return nil, trapError(err)
		}
		return append([]uint64(nil), results...), nil
	}), nil
}

// Compiled returns the number of functions compiled so far.
func (c *Compiler) Compiled() int64 { return c.compiled.Load() }

// Close closes the runtime and every module compiled by c.
func (c *Compiler) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.runtime.Close(ctx)
}

// trapError converts a wazero runtime error ("wasm error: <msg>" followed
// by a stack trace) into the trap the interpreter would have raised.
func trapError(err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, "wasm error: "); ok {
		msg, _, _ = strings.Cut(rest, "\n")
		if msg == "stack overflow" {
			msg = "call stack exhausted"
		}
		return errors.Trap(msg)
	}
	return errors.New(errors.PhaseNative, errors.KindTrap).Cause(err).Detail("native call failed").Build()
}
