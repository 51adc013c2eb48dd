package resource

import (
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/StochasticTinkr/resourcescope/errors"
)

func TestHandle_ValueStates(t *testing.T) {
	var h Handle[int]

	if _, err := h.Value(); !errors.IsIllegalState(err) {
		t.Fatalf("uninitialized Value() should be IllegalState, got %v", err)
	}
	if _, ok := h.ValueOK(); ok {
		t.Fatal("uninitialized ValueOK() should report absent")
	}

	s := NewScope()
	defer s.Close()
	active, err := Initialize(s, func() (int, error) { return 42, nil }, nil)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if v, err := active.Value(); err != nil || v != 42 {
		t.Fatalf("Value() = %v, %v", v, err)
	}
	if v, ok := active.ValueOK(); !ok || v != 42 {
		t.Fatalf("ValueOK() = %v, %v", v, ok)
	}

	active.Close()
	if _, err := active.Value(); !errors.IsIllegalState(err) {
		t.Fatalf("closed Value() should be IllegalState, got %v", err)
	}
	if v, ok := active.ValueOK(); ok || v != 0 {
		t.Fatalf("closed ValueOK() = %v, %v", v, ok)
	}
}

func TestHandle_InitializeTwice(t *testing.T) {
	s := NewScope()
	defer s.Close()

	h, err := Initialize(s, func() (int, error) { return 1, nil }, nil)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	_, err = h.initialize(func() (int, error) { return 2, nil }, nil)
	if !errors.IsIllegalState(err) {
		t.Fatalf("Expected IllegalState, got %v", err)
	}
	if v, _ := h.Value(); v != 1 {
		t.Fatalf("value changed to %d", v)
	}
}

func TestHandle_InitializeAfterFailedConstruction(t *testing.T) {
	h := &Handle[int]{name: "h"}
	cause := stderrors.New("no")

	if _, err := h.initialize(func() (int, error) { return 0, cause }, nil); !stderrors.Is(err, cause) {
		t.Fatalf("Expected cause, got %v", err)
	}
	if h.State() != StateClosed {
		t.Fatalf("State() = %v, want closed", h.State())
	}
	if _, err := h.initialize(func() (int, error) { return 1, nil }, nil); !errors.IsIllegalState(err) {
		t.Fatalf("re-initialize should be IllegalState, got %v", err)
	}
}

func TestHandle_CloseOnce(t *testing.T) {
	s := NewScope()
	var count atomic.Int32

	h, err := Initialize(s, func() (string, error) { return "f", nil }, func(string) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Close()
		}()
	}
	wg.Wait()

	if err := h.Close(); err != nil {
		t.Fatalf("repeated Close should return nil, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("scope Close failed: %v", err)
	}
	if n := count.Load(); n != 1 {
		t.Fatalf("release ran %d times, want 1", n)
	}
	if s.Len() != 0 {
		t.Fatal("closed handle should have left its scope")
	}
}

func TestHandle_CloseReturnsReleaseError(t *testing.T) {
	s := NewScope()
	defer s.Close()
	relErr := stderrors.New("flush failed")

	h, _ := Initialize(s, func() (string, error) { return "f", nil }, func(string) error {
		return relErr
	})

	err := h.Close()
	if !stderrors.Is(err, relErr) {
		t.Fatalf("Expected release error, got %v", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindRelease {
		t.Fatalf("Expected KindRelease, got %v", err)
	}
	if h.State() != StateClosed {
		t.Fatal("handle should be closed even when release fails")
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close = %v, want nil", err)
	}
}

func TestHandle_CloseDuringTeardownOfOtherHandle(t *testing.T) {
	s := NewScope()
	var order []string

	a, _ := InitializeNamed(s, "a", func() (string, error) { return "a", nil }, func(v string) error {
		order = append(order, v)
		return nil
	})
	InitializeNamed(s, "b", func() (string, error) { return "b", nil }, func(v string) error {
		order = append(order, v)
		return a.Close()
	})

	s.Close()
	if !equalNames(order, []string{"b", "a"}) {
		t.Fatalf("order = %v", order)
	}
}

// acceptAll takes every value it is offered.
type acceptAll struct {
	got      []string
	releases []ReleaseFunc[string]
	absent   int
}

func (a *acceptAll) Accept(v string, release ReleaseFunc[string]) bool {
	a.got = append(a.got, v)
	a.releases = append(a.releases, release)
	return true
}

func (a *acceptAll) Absent(func() string) {
	a.absent++
}

type declineAll struct{ offered int }

func (d *declineAll) Accept(string, ReleaseFunc[string]) bool {
	d.offered++
	return false
}

func (d *declineAll) Absent(func() string) {}

func TestHandle_TransferAccepted(t *testing.T) {
	s := NewScope()
	log := &releaseLog{}
	h := mustInit(t, s, "conn", log.release())

	acc := &acceptAll{}
	if !h.Transfer(acc) {
		t.Fatal("Transfer should report acceptance")
	}
	if h.State() != StateClosed || h.Owner() != nil {
		t.Fatal("accepted transfer should close and detach the handle")
	}
	if s.Len() != 0 {
		t.Fatal("handle should have left the scope")
	}

	s.Close()
	h.Close()
	if len(log.get()) != 0 {
		t.Fatal("source must not release a transferred value")
	}

	// Receiver is now responsible.
	acc.releases[0](acc.got[0])
	if got := log.get(); !equalNames(got, []string{"conn"}) {
		t.Fatalf("releases = %v", got)
	}
}

func TestHandle_TransferDeclined(t *testing.T) {
	s := NewScope()
	log := &releaseLog{}
	h := mustInit(t, s, "conn", log.release())

	d := &declineAll{}
	if h.Transfer(d) {
		t.Fatal("Transfer should report rejection")
	}
	if d.offered != 1 {
		t.Fatalf("offered %d times", d.offered)
	}
	if h.State() != StateActive || h.Owner() != s {
		t.Fatal("declined transfer must leave the handle unchanged")
	}

	s.Close()
	if got := log.get(); !equalNames(got, []string{"conn"}) {
		t.Fatalf("releases = %v", got)
	}
}

func TestHandle_TransferClosed(t *testing.T) {
	s := NewScope()
	h := mustInit(t, s, "conn", nil)
	h.Close()
	s.Close()

	acc := &acceptAll{}
	if h.Transfer(acc) {
		t.Fatal("closed handle cannot be transferred")
	}
	if acc.absent != 1 || len(acc.got) != 0 {
		t.Fatalf("expected Absent call, got %+v", acc)
	}
}

func TestHandle_ReleaseToRaceWithClose(t *testing.T) {
	for i := 0; i < 200; i++ {
		s := NewScope()
		var released atomic.Int32

		h, err := Initialize(s, func() (int, error) { return i, nil }, func(int) error {
			released.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}

		var accepted atomic.Int32
		receiver := ReceiverFunc[int, int](func(v int, _ ReleaseFunc[int], out *Outcome[int]) {
			accepted.Add(1)
			out.Accept(v)
		})

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			h.Close()
		}()
		go func() {
			defer wg.Done()
			ReleaseTo[int, int](h, receiver)
		}()
		go func() {
			defer wg.Done()
			s.Close()
		}()
		wg.Wait()

		r, a := released.Load(), accepted.Load()
		if r+a != 1 {
			t.Fatalf("iteration %d: released=%d accepted=%d, want exactly one", i, r, a)
		}
	}
}

func TestHandle_String(t *testing.T) {
	s := NewScope()
	h := mustInit(t, s, "file", nil)
	if got := h.String(); got != "file(active)" {
		t.Fatalf("String() = %q", got)
	}
	s.Close()
	if got := h.String(); got != "file(closed)" {
		t.Fatalf("String() = %q", got)
	}
}
