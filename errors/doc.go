// Package errors provides structured error types for the resourcescope module.
//
// Errors are categorized by Phase (which lifecycle operation failed) and Kind
// (error category). Protocol misuse is reported as KindIllegalState or
// KindIllegalArgument; failures raised by constructor and release callbacks
// are wrapped so the original error stays reachable through errors.Is/As.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRemove, errors.KindIllegalArgument).
//		Resource("db-conn").
//		Detail("handle is not owned by scope %q", "request").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.IllegalState(errors.PhaseRead, "db-conn", "handle is closed")
//	err := errors.Release("db-conn", closeErr)
//
// Scope teardown aggregates every release failure into a single error whose
// Cause is the first failure and whose Suppressed list holds the rest:
//
//	var e *errors.Error
//	if stderrors.As(err, &e) && e.Kind == errors.KindTeardown {
//		for _, failure := range e.All() {
//			log.Println(failure)
//		}
//	}
//
// Sentinels such as ErrIllegalState match any error of the same Kind
// regardless of Phase.
package errors
