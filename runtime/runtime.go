package runtime

import (
	"context"

	"github.com/wippyai/lazywasm/config"
	"github.com/wippyai/lazywasm/engine"
	"github.com/wippyai/lazywasm/errors"
	"github.com/wippyai/lazywasm/native"
)

type Runtime struct {
	engine *engine.Engine
	native *native.Compiler
	hosts  *HostRegistry
	cfg    config.Config
}

// New validates cfg and creates a runtime. A native compiler is only
// started when cfg enables the native tier.
func New(ctx context.Context, cfg config.Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runtime{hosts: NewHostRegistry(), cfg: cfg}
	ecfg := cfg.EngineConfig()
	var opts []engine.Option
	if ecfg.NativeEnabled {
		r.native = native.New(ctx, nil)
		opts = append(opts, engine.WithNativeCompiler(r.native))
	}
	r.engine = engine.New(ecfg, opts...)
	return r, nil
}

// Close releases the native tier. Instances created by r keep working but
// functions already moved to the native tier stop being callable.
func (r *Runtime) Close(ctx context.Context) error {
	if r.native == nil {
		return nil
	}
	return r.native.Close(ctx)
}

func (r *Runtime) Config() config.Config { return r.cfg }

func (r *Runtime) Engine() *engine.Engine { return r.engine }

// Native returns the native compiler, or nil when the tier is disabled.
func (r *Runtime) Native() *native.Compiler { return r.native }

// RegisterHost registers all exported methods of h as host functions.
// Must be called BEFORE instantiating modules that import these functions.
// Method names are converted from PascalCase to kebab-case (GetValue -> get-value).
func (r *Runtime) RegisterHost(h Host) error {
	return r.hosts.RegisterHost(h)
}

func (r *Runtime) RegisterFunc(namespace, name string, fn any) error {
	return r.hosts.RegisterFunc(namespace, name, fn)
}

func (r *Runtime) Hosts() *HostRegistry {
	return r.hosts
}

// Load parses a module for repeated instantiation.
func (r *Runtime) Load(ctx context.Context, bin []byte) (*engine.Module, error) {
	return r.engine.Compile(ctx, bin)
}

// Instantiate parses bin and binds it against the registered hosts.
func (r *Runtime) Instantiate(ctx context.Context, bin []byte) (*engine.Instance, error) {
	mod, err := r.Load(ctx, bin)
	if err != nil {
		return nil, err
	}
	return r.Bind(ctx, mod)
}

// Bind instantiates a loaded module against the registered hosts.
func (r *Runtime) Bind(ctx context.Context, mod *engine.Module) (*engine.Instance, error) {
	if mod.Engine() != r.engine {
		return nil, errors.InvalidInput(errors.PhaseLinking, "module was loaded by another runtime")
	}
	return mod.Bind(ctx, r.hosts.Imports())
}
