// Package wasmscope registers wazero runtimes, compiled modules and module
// instances as scoped resources.
//
// Basic usage:
//
//	err := resource.Run(func(s *resource.Scope) error {
//	    mod, err := wasmscope.Load(ctx, s, nil, "guest", wasmBytes)
//	    if err != nil {
//	        return err
//	    }
//	    results, err := wasmscope.Call(ctx, mod.Instance, "answer")
//	    ...
//	})
//
// The instance is closed first, then the compiled module, then the runtime.
// An instance can be handed to another scope with resource.TakeOwnership;
// it then outlives the scope that loaded it, but not its runtime.
package wasmscope
