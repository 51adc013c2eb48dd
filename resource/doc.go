// Package resource provides scoped, deterministic release of acquired
// resources.
//
// A Scope tracks live handles in registration order and releases them in
// reverse order when it is closed, the way nested defers would, except that
// the set of resources can grow and shrink at runtime and ownership can move
// between scopes.
//
// # Registering Resources
//
//	scope := resource.NewScope()
//	defer scope.Close()
//
//	db, err := resource.Initialize(scope,
//	    func() (*sql.DB, error) { return sql.Open("sqlite", path) },
//	    func(db *sql.DB) error { return db.Close() })
//	if err != nil {
//	    return err
//	}
//
//	f, err := resource.Initialize(scope,
//	    func() (*os.File, error) { return os.Open(path) },
//	    func(f *os.File) error { return f.Close() })
//
// When the scope closes, f is closed before db.
//
// The handle is inserted into the scope before the constructor runs. If the
// constructor fails, the handle is dropped and the error returned; no release
// runs for a value that was never produced.
//
// # Handle Lifecycle
//
// Handles move from Uninitialized to Active to Closed and never back:
//
//	v, err := h.Value()     // IllegalState unless Active
//	v, ok := h.ValueOK()    // ok == false unless Active
//	err = h.Close()         // idempotent, release runs at most once
//
// # Teardown
//
// Scope.Close pops handles newest first and releases each one. A failing or
// panicking release does not stop the loop; all failures are returned as one
// KindTeardown error (see package errors) whose Cause is the first failure.
// Release actions may close or remove sibling handles of the scope being
// torn down.
//
// # Ownership Transfer
//
// A handle can be moved to another scope:
//
//	h, err = resource.TakeOwnership[*os.File](other, h)
//
// or offered to any Receiver, which accepts, rejects or fails:
//
//	out := resource.ReleaseTo(h, receiver)
//	if out.Accepted() {
//	    // the receiver now owns the release action
//	}
//
// Transfer is atomic with Close: exactly one of the handle's owner and the
// receiver ends up responsible for the resource. Sources without a live
// value call Receiver.NoValue instead; Or and OrElse replace its default failure.
//
// # Observers
//
// Register observers to trace lifecycle events:
//
//	scope.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("%s %s %s", e.Scope, e.Handle, e.Type)
//	}))
//
// # Logging
//
// Best-effort failures that are never returned (a panicking observer, the
// release of a value whose scope closed while it was being constructed) are
// logged through zap.
// Use SetLogger or Options.Logger; the default logger discards everything.
package resource
