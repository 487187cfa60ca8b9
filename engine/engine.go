package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/lazywasm/bytecode"
	"github.com/wippyai/lazywasm/errors"
	"github.com/wippyai/lazywasm/host"
	"github.com/wippyai/lazywasm/interp"
	"github.com/wippyai/lazywasm/wasm"
)

// Config holds configuration for engine creation
type Config struct {
	// MaxCallDepth bounds nested interpreted calls. 0 means
	// interp.DefaultMaxCallDepth.
	MaxCallDepth int

	// MemoryLimitPages caps every instance memory in pages (64KB each).
	// 0 means no cap beyond the 4GB address space.
	MemoryLimitPages uint32

	// NativeEnabled allows tier-up through the configured NativeCompiler.
	NativeEnabled bool

	// ForceNative requests native compilation right after generation.
	ForceNative bool

	// MaxInterpretedRunCount is the number of interpreted runs before a
	// function is handed to the native compiler. 0 compiles natively right
	// after generation; -1 never tiers up on run count.
	MaxInterpretedRunCount int
}

// DefaultConfig returns the configuration used by New(DefaultConfig()).
func DefaultConfig() Config {
	return Config{
		MaxCallDepth:           interp.DefaultMaxCallDepth,
		NativeEnabled:          true,
		MaxInterpretedRunCount: 8,
	}
}

// NativeCompiler produces a native entry point for a leaf function. The
// returned entry is registered with the engine's Gate before it is installed.
type NativeCompiler interface {
	CompileNative(ctx context.Context, fn *Function) (*EntryPoint, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithGenerator replaces the bytecode generator.
func WithGenerator(g bytecode.Generator) Option {
	return func(e *Engine) { e.generator = g }
}

// WithNativeCompiler installs the native tier.
func WithNativeCompiler(c NativeCompiler) Option {
	return func(e *Engine) { e.native = c }
}

// Engine compiles modules and owns the entry point whitelist shared by
// all of their instances.
type Engine struct {
	generator bytecode.Generator
	native    NativeCompiler
	gate      *Gate
	cfg       Config
}

// New creates an engine.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		generator: bytecode.DefaultGenerator{},
		gate:      NewGate(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Gate returns the engine's entry point whitelist.
func (e *Engine) Gate() *Gate { return e.gate }

func (e *Engine) nativeEnabled() bool {
	return e.cfg.NativeEnabled && e.native != nil
}

func (e *Engine) eagerNative() bool {
	return e.nativeEnabled() && (e.cfg.ForceNative || e.cfg.MaxInterpretedRunCount == 0)
}

// Compile parses and validates a module binary. Function bodies are only
// located, not decoded. The returned Module may be bound many times.
func (e *Engine) Compile(_ context.Context, data []byte) (*Module, error) {
	m, err := wasm.ParseModuleValidate(data)
	if err != nil {
		return nil, errors.Load("parse module", err)
	}
	Logger().Debug("module parsed",
		zap.Int("bytes", len(data)),
		zap.Int("functions", len(m.Code)),
		zap.Int("imports", len(m.Imports)))
	return &Module{engine: e, wasm: m}, nil
}

// Instantiate is the instantiation gateway. args[0] must be a
// host.TypedArray or host.ArrayBuffer holding the module binary and args[1]
// a host.Object holding the imports. No guest code runs.
func (e *Engine) Instantiate(ctx context.Context, args ...host.Value) (*Instance, error) {
	if len(args) < 1 {
		return nil, errors.Argument("needs typed buffer")
	}
	if len(args) < 2 {
		return nil, errors.Argument("needs object")
	}
	data, ok := bufferBytes(args[0])
	if !ok {
		return nil, errors.Argument("needs typed buffer")
	}
	imports, ok := args[1].(host.Object)
	if !ok {
		return nil, errors.Argument("needs object")
	}

	m, err := e.Compile(ctx, data)
	if err != nil {
		return nil, err
	}
	return m.Bind(ctx, imports)
}

// bufferBytes returns the bytes behind either buffer variant, uncopied.
func bufferBytes(v host.Value) ([]byte, bool) {
	switch b := v.(type) {
	case host.TypedArray:
		return host.ViewBytes(b)
	case host.ArrayBuffer:
		return b.Bytes(), true
	default:
		return nil, false
	}
}
