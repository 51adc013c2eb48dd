package wasmscope

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/StochasticTinkr/resourcescope/resource"
)

// Config holds configuration for runtime creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// CloseOnContextDone makes running guest calls stop when their context
	// is cancelled.
	CloseOnContextDone bool
}

// NewRuntime creates a wazero runtime owned by s. The runtime is closed when
// s is torn down, after every module registered later in s.
func NewRuntime(ctx context.Context, s *resource.Scope, cfg *Config) (*resource.Handle[wazero.Runtime], error) {
	closeCtx := context.WithoutCancel(ctx)
	return resource.InitializeNamed(s, "wazero-runtime",
		func() (wazero.Runtime, error) {
			runtimeCfg := wazero.NewRuntimeConfig()
			if cfg != nil {
				if cfg.MemoryLimitPages > 0 {
					runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
				}
				if cfg.CloseOnContextDone {
					runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
				}
			}
			return wazero.NewRuntimeWithConfig(ctx, runtimeCfg), nil
		},
		func(r wazero.Runtime) error {
			return r.Close(closeCtx)
		})
}

// Compile compiles wasm with rt and registers the compiled module in s.
func Compile(ctx context.Context, s *resource.Scope, rt wazero.Runtime, name string, wasm []byte) (*resource.Handle[wazero.CompiledModule], error) {
	closeCtx := context.WithoutCancel(ctx)
	return resource.InitializeNamed(s, "compiled:"+name,
		func() (wazero.CompiledModule, error) {
			compiled, err := rt.CompileModule(ctx, wasm)
			if err != nil {
				return nil, fmt.Errorf("compile %s: %w", name, err)
			}
			return compiled, nil
		},
		func(c wazero.CompiledModule) error {
			return c.Close(closeCtx)
		})
}

// Instantiate instantiates compiled under name and registers the instance
// in s. An empty name instantiates an anonymous module.
func Instantiate(ctx context.Context, s *resource.Scope, rt wazero.Runtime, compiled wazero.CompiledModule, name string) (*resource.Handle[api.Module], error) {
	closeCtx := context.WithoutCancel(ctx)
	handleName := "instance:" + name
	if name == "" {
		handleName = ""
	}
	return resource.InitializeNamed(s, handleName,
		func() (api.Module, error) {
			mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
			if err != nil {
				return nil, fmt.Errorf("instantiate failed: %w", err)
			}
			return mod, nil
		},
		func(m api.Module) error {
			return m.Close(closeCtx)
		})
}

// Module groups the handles created by Load.
type Module struct {
	Runtime  *resource.Handle[wazero.Runtime]
	Compiled *resource.Handle[wazero.CompiledModule]
	Instance *resource.Handle[api.Module]
}

// Load creates a runtime, compiles wasm and instantiates it, all in s.
// Teardown closes the instance, the compiled module and the runtime in that
// order. On failure the handles created so far stay in s.
func Load(ctx context.Context, s *resource.Scope, cfg *Config, name string, wasm []byte) (*Module, error) {
	rt, err := NewRuntime(ctx, s, cfg)
	if err != nil {
		return nil, err
	}
	r, err := rt.Value()
	if err != nil {
		return nil, err
	}

	compiled, err := Compile(ctx, s, r, name, wasm)
	if err != nil {
		return nil, err
	}
	c, err := compiled.Value()
	if err != nil {
		return nil, err
	}

	inst, err := Instantiate(ctx, s, r, c, name)
	if err != nil {
		return nil, err
	}
	return &Module{Runtime: rt, Compiled: compiled, Instance: inst}, nil
}

// Call invokes the exported function fn of the module held by h.
func Call(ctx context.Context, h resource.Resource[api.Module], fn string, params ...uint64) ([]uint64, error) {
	mod, err := h.Value()
	if err != nil {
		return nil, err
	}
	f := mod.ExportedFunction(fn)
	if f == nil {
		return nil, fmt.Errorf("function %q not exported by %s", fn, mod.Name())
	}
	return f.Call(ctx, params...)
}
