// Package resourcescope provides deterministic, scope-based management of
// acquired resources in Go.
//
// Resources (files, connections, wasm instances, anything with a release
// action) are registered with a scope as they are acquired. Closing the scope
// releases them in reverse order of acquisition, even when some releases
// fail. Ownership of a live resource can move between scopes, or be offered
// to a receiver that accepts, rejects or fails.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	resourcescope/
//	├── resource/        Scopes, handles, ownership transfer and outcomes
//	├── errors/          Structured error types (phase, kind, suppressed failures)
//	├── wasmscope/       wazero runtimes, compiled modules and instances as scoped resources
//	├── scenario/        YAML scenarios executed step by step against real scopes
//	├── cmd/scopetrace/  CLI and TUI that trace scenario and wasm lifecycles
//	└── examples/        Runnable examples
//
// # Quick Start
//
//	err := resource.Run(func(s *resource.Scope) error {
//	    f, err := resource.Initialize(s,
//	        func() (*os.File, error) { return os.Open(path) },
//	        func(f *os.File) error { return f.Close() })
//	    if err != nil {
//	        return err
//	    }
//	    ...
//	})
//
// # Error Handling
//
// Misuse of the protocol (reading a closed handle, registering into a closed
// scope, removing a handle from a scope that does not own it) is reported
// with errors.KindIllegalState or errors.KindIllegalArgument. Teardown never
// stops early; every failed release is reported in one KindTeardown error.
//
// # Thread Safety
//
// Scopes and handles are safe for concurrent use. Closing a handle and
// transferring it are atomic with respect to each other: exactly one party
// ends up releasing the resource.
package resourcescope
