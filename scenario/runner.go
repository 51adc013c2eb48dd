package scenario

import (
	stderrors "errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/StochasticTinkr/resourcescope/errors"
	"github.com/StochasticTinkr/resourcescope/resource"
)

// Entry is one line of a scenario trace: a lifecycle event or the error
// returned by a step.
type Entry struct {
	Event *resource.Event
	Err   error
	Step  int
	// Op is set for error entries.
	Op Op
}

// Runner executes a Document one step at a time against real scopes.
// Resource values are their names; release actions record nothing beyond
// the lifecycle events the scopes emit.
type Runner struct {
	log     *zap.Logger
	doc     *Document
	scopes  map[string]*resource.Scope
	handles map[string]*resource.Handle[string]
	// opened holds every handle ever created, including ones whose name was
	// later reused, so Close can reach orphans.
	opened  []*resource.Handle[string]
	pending []Entry
	next    int
	mu      sync.Mutex
	closed  bool
}

// NewRunner creates one scope per declared scope name. A nil logger
// discards everything.
func NewRunner(doc *Document, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		log:     logger,
		doc:     doc,
		scopes:  make(map[string]*resource.Scope, len(doc.Scopes)),
		handles: make(map[string]*resource.Handle[string]),
	}
	for _, name := range doc.Scopes {
		r.scopes[name] = resource.NewScopeWithOptions(resource.Options{
			Name:      name,
			Logger:    logger.Named(name),
			Observers: []resource.Observer{r},
		})
	}
	return r
}

// OnResourceEvent records events from every scope of the scenario.
func (r *Runner) OnResourceEvent(e resource.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, Entry{Step: r.next, Event: &e})
}

// Document returns the scenario being run.
func (r *Runner) Document() *Document {
	return r.doc
}

// Scope returns the scope declared under name.
func (r *Runner) Scope(name string) *resource.Scope {
	return r.scopes[name]
}

// Next returns the index of the step that Step will run.
func (r *Runner) Next() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// Done reports whether every step has run.
func (r *Runner) Done() bool {
	return r.Next() >= len(r.doc.Steps)
}

// Step runs the next step and returns the trace entries it produced.
// It returns nil once every step has run.
func (r *Runner) Step() []Entry {
	r.mu.Lock()
	if r.next >= len(r.doc.Steps) || r.closed {
		r.mu.Unlock()
		return nil
	}
	idx := r.next
	st := r.doc.Steps[idx]
	r.mu.Unlock()

	return r.exec(idx, st, true)
}

// Do runs an extra step that is not part of the document. Its entries are
// numbered with the index of the next document step.
func (r *Runner) Do(st Step) ([]Entry, error) {
	scopes := make(map[string]bool, len(r.doc.Scopes))
	for _, name := range r.doc.Scopes {
		scopes[name] = true
	}
	if err := st.validate(scopes); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("scenario %q is closed", r.doc.Name)
	}
	idx := r.next
	r.mu.Unlock()

	return r.exec(idx, st, false), nil
}

func (r *Runner) exec(idx int, st Step, advance bool) []Entry {
	err := recovered(st.Resource, func() error { return r.apply(st) })
	if err != nil {
		r.log.Debug("step failed",
			zap.Int("step", idx+1),
			zap.Stringer("op", st),
			zap.Error(err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.pending = append(r.pending, Entry{Step: idx, Op: st.Op, Err: err})
	}
	if advance {
		r.next++
	}
	return r.drain()
}

// Run executes the remaining steps and then Close.
func (r *Runner) Run() []Entry {
	var trace []Entry
	for !r.Done() {
		trace = append(trace, r.Step()...)
	}
	return append(trace, r.Close()...)
}

// Close tears down every scope in reverse declaration order, then closes
// resources that were removed and never adopted. It returns the resulting
// trace entries, including one error entry per failed teardown.
func (r *Runner) Close() []Entry {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	step := r.next
	r.mu.Unlock()

	var errs []Entry
	for i := len(r.doc.Scopes) - 1; i >= 0; i-- {
		if err := r.scopes[r.doc.Scopes[i]].Close(); err != nil {
			errs = append(errs, Entry{Step: step, Op: OpTeardown, Err: err})
		}
	}
	for _, h := range r.opened {
		if h.Owner() != nil {
			continue
		}
		if err := recovered(h.Name(), h.Close); err != nil {
			errs = append(errs, Entry{Step: step, Op: OpClose, Err: err})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, errs...)
	return r.drain()
}

func (r *Runner) drain() []Entry {
	out := r.pending
	r.pending = nil
	return out
}

func (r *Runner) apply(st Step) error {
	switch st.Op {
	case OpOpen:
		return r.open(st)
	case OpTeardown:
		return r.scopes[st.Scope].Close()
	}

	h, ok := r.handles[st.Resource]
	if !ok {
		return fmt.Errorf("no resource named %q", st.Resource)
	}

	switch st.Op {
	case OpRead:
		_, err := h.Value()
		return err
	case OpClose:
		return h.Close()
	case OpRemove:
		return r.scopes[st.Scope].Remove(h)
	case OpAdopt:
		_, err := resource.TakeOwnership[string](r.scopes[st.To], h)
		return err
	case OpTransfer:
		out := resource.ReleaseTo[string, *resource.Handle[string]](h, resource.OwnershipReceiver[string](r.scopes[st.To]))
		moved, err := out.Value()
		if err != nil {
			return err
		}
		r.handles[st.Resource] = moved
		r.opened = append(r.opened, moved)
		return nil
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
}

// recovered runs fn, turning a panic from a release action into an error.
func recovered(name string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Panic(errors.PhaseRelease, name, p)
		}
	}()
	return fn()
}

var errConstruct = stderrors.New("constructor failed")

func (r *Runner) open(st Step) error {
	name := st.Resource
	release := func(string) error { return nil }
	switch st.Fail {
	case FailRelease:
		release = func(v string) error { return fmt.Errorf("release %s failed", v) }
	case FailPanic:
		release = func(v string) error { panic("release " + v + " panicked") }
	}

	h, err := resource.InitializeNamed(r.scopes[st.Scope], name,
		func() (string, error) {
			if st.Fail == FailConstruct {
				return "", errConstruct
			}
			return name, nil
		},
		release)
	if err != nil {
		return err
	}

	r.handles[name] = h
	r.opened = append(r.opened, h)
	return nil
}
