package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StochasticTinkr/resourcescope/errors"
	"github.com/StochasticTinkr/resourcescope/resource"
)

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(`
name: simple
scopes: [outer]
steps:
  - {op: open, scope: outer, resource: a}
  - {op: open, scope: outer, resource: b, fail: release}
  - {op: teardown, scope: outer}
`))
	require.NoError(t, err)
	assert.Equal(t, "simple", doc.Name)
	assert.Equal(t, []string{"outer"}, doc.Scopes)
	require.Len(t, doc.Steps, 3)
	assert.Equal(t, Step{Op: OpOpen, Scope: "outer", Resource: "b", Fail: FailRelease}, doc.Steps[1])
	assert.Equal(t, "open b in outer (fail release)", doc.Steps[1].String())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no scopes", `name: x`, "declares no scopes"},
		{"duplicate scope", `scopes: [a, a]`, "duplicate scope"},
		{"unknown field", "scopes: [a]\nbogus: 1", "parse yaml"},
		{"unknown op", "scopes: [a]\nsteps: [{op: fly}]", `unknown op "fly"`},
		{"unknown scope", "scopes: [a]\nsteps: [{op: open, scope: b, resource: r}]", `unknown scope "b"`},
		{"missing resource", "scopes: [a]\nsteps: [{op: close}]", "resource is required"},
		{"bad target", "scopes: [a]\nsteps: [{op: adopt, resource: r, to: z}]", `unknown target scope "z"`},
		{"bad failure", "scopes: [a]\nsteps: [{op: open, scope: a, resource: r, fail: sometimes}]", "unknown failure mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

type line struct {
	scope, handle string
	typ           resource.EventType
}

func events(trace []Entry) []line {
	var out []line
	for _, e := range trace {
		if e.Event != nil {
			out = append(out, line{e.Event.Scope, e.Event.Handle, e.Event.Type})
		}
	}
	return out
}

func failures(trace []Entry) []Op {
	var out []Op
	for _, e := range trace {
		if e.Err != nil {
			out = append(out, e.Op)
		}
	}
	return out
}

func TestRunner_Demo(t *testing.T) {
	r := NewRunner(Demo(), nil)
	trace := r.Run()

	assert.Equal(t, []line{
		{"app", "config", resource.EventRegistered},
		{"app", "db-pool", resource.EventRegistered},
		{"request", "tx", resource.EventRegistered},
		{"request", "temp-file", resource.EventRegistered},
		{"request", "tx", resource.EventTransferredOut},
		{"app", "app#3", resource.EventTransferredIn},
		{"request", "temp-file", resource.EventRemoved},
		{"request", "temp-file", resource.EventTransferredIn},
		{"request", "socket", resource.EventRegistered},
		{"request", "socket", resource.EventReleased},
		{"request", "temp-file", resource.EventReleased},
		{"app", "db-pool", resource.EventReleased},
		{"app", "app#3", resource.EventReleased},
		{"app", "config", resource.EventReleased},
	}, events(trace))

	// cache constructor, request teardown, read after teardown.
	assert.Equal(t, []Op{OpOpen, OpTeardown, OpRead}, failures(trace))

	for _, e := range trace {
		switch {
		case e.Err == nil:
		case e.Op == OpOpen:
			assert.ErrorIs(t, e.Err, errConstruct)
		case e.Op == OpTeardown:
			assert.ErrorIs(t, e.Err, errors.ErrTeardown)
			assert.ErrorContains(t, e.Err, "release temp-file failed")
		case e.Op == OpRead:
			assert.True(t, errors.IsIllegalState(e.Err))
		}
	}

	assert.True(t, r.Scope("app").Closed())
	assert.True(t, r.Scope("request").Closed())
	assert.Nil(t, r.Close(), "second Close returns nothing")
}

func TestRunner_StepByStep(t *testing.T) {
	doc, err := Parse([]byte(`
scopes: [s]
steps:
  - {op: open, scope: s, resource: a}
  - {op: open, scope: s, resource: b}
`))
	require.NoError(t, err)

	r := NewRunner(doc, nil)
	assert.False(t, r.Done())

	first := r.Step()
	require.Len(t, first, 1)
	assert.Equal(t, 0, first[0].Step)
	assert.Equal(t, 1, r.Next())
	assert.Equal(t, 1, r.Scope("s").Len())

	r.Step()
	assert.True(t, r.Done())
	assert.Nil(t, r.Step())

	closing := events(r.Close())
	assert.Equal(t, []line{
		{"s", "b", resource.EventReleased},
		{"s", "a", resource.EventReleased},
	}, closing)
}

func TestRunner_PanicsBecomeErrors(t *testing.T) {
	doc, err := Parse([]byte(`
scopes: [s]
steps:
  - {op: open, scope: s, resource: p, fail: panic}
  - {op: open, scope: s, resource: q, fail: panic}
  - {op: close, resource: p}
`))
	require.NoError(t, err)

	trace := NewRunner(doc, nil).Run()
	assert.Equal(t, []Op{OpClose, OpTeardown}, failures(trace))
	for _, e := range trace {
		if e.Err != nil {
			assert.ErrorIs(t, e.Err, &errors.Error{Kind: errors.KindPanic})
		}
	}
}

func TestRunner_RemovedNeverAdopted(t *testing.T) {
	doc, err := Parse([]byte(`
scopes: [s]
steps:
  - {op: open, scope: s, resource: orphan}
  - {op: remove, scope: s, resource: orphan}
  - {op: teardown, scope: s}
`))
	require.NoError(t, err)

	r := NewRunner(doc, nil)
	for !r.Done() {
		r.Step()
	}
	assert.Equal(t, 0, r.Scope("s").Len())

	// Close releases the orphan directly; it has no scope to report to.
	assert.Empty(t, r.Close())
	assert.Empty(t, r.Scope("s").Handles())
}

func TestRunner_ReopenedNameKeepsOrphan(t *testing.T) {
	doc, err := Parse([]byte(`
scopes: [s]
steps:
  - {op: open, scope: s, resource: conn, fail: release}
  - {op: remove, scope: s, resource: conn}
  - {op: open, scope: s, resource: conn}
`))
	require.NoError(t, err)

	trace := NewRunner(doc, nil).Run()

	assert.Equal(t, []line{
		{"s", "conn", resource.EventRegistered},
		{"s", "conn", resource.EventRemoved},
		{"s", "conn", resource.EventRegistered},
		{"s", "conn", resource.EventReleased},
	}, events(trace))

	// The first conn lost its name to the second but is still closed,
	// which is where its failing release surfaces.
	require.Equal(t, []Op{OpClose}, failures(trace))
	for _, e := range trace {
		if e.Err != nil {
			assert.ErrorContains(t, e.Err, "release conn failed")
		}
	}
}

func TestRunner_Do(t *testing.T) {
	doc, err := Parse([]byte("scopes: [s]\nsteps:\n  - {op: open, scope: s, resource: a}\n"))
	require.NoError(t, err)
	r := NewRunner(doc, nil)

	entries, err := r.Do(Step{Op: OpOpen, Scope: "s", Resource: "extra"})
	require.NoError(t, err)
	assert.Equal(t, []line{{"s", "extra", resource.EventRegistered}}, events(entries))
	assert.Equal(t, 0, r.Next(), "extra steps do not advance the document")

	_, err = r.Do(Step{Op: OpOpen, Scope: "missing", Resource: "x"})
	assert.ErrorContains(t, err, `unknown scope "missing"`)

	r.Run()
	_, err = r.Do(Step{Op: OpRead, Resource: "a"})
	assert.ErrorContains(t, err, "closed")
}
