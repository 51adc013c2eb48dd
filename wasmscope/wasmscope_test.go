package wasmscope

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/StochasticTinkr/resourcescope/errors"
	"github.com/StochasticTinkr/resourcescope/resource"
)

// answerWasm exports "answer", which returns i32 42.
var answerWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f, // type: () -> i32
	0x03, 0x02, 0x01, 0x00, // func 0 uses type 0
	0x07, 0x0a, 0x01, 0x06, 'a', 'n', 's', 'w', 'e', 'r', 0x00, 0x00, // export
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x2a, 0x0b, // code: i32.const 42
}

type recorder struct {
	mu       sync.Mutex
	released []string
}

func (r *recorder) OnResourceEvent(e resource.Event) {
	if e.Type != resource.EventReleased {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, e.Handle)
}

func TestLoad_CallAndTeardownOrder(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := resource.NewScopeWithOptions(resource.Options{Name: "wasm", Observers: []resource.Observer{rec}})

	mod, err := Load(ctx, s, nil, "guest", answerWasm)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	results, err := Call(ctx, mod.Instance, "answer")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(42), api.DecodeU32(results[0]))

	inst, err := mod.Instance.Value()
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.Equal(t, []string{"instance:guest", "compiled:guest", "wazero-runtime"}, rec.released)
	assert.True(t, inst.IsClosed())

	_, err = Call(ctx, mod.Instance, "answer")
	assert.True(t, errors.IsIllegalState(err))
}

func TestLoad_CompileFailure(t *testing.T) {
	ctx := context.Background()
	s := resource.NewScope()

	_, err := Load(ctx, s, &Config{MemoryLimitPages: 16}, "bad", []byte("not wasm"))
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindConstruction})

	// The runtime was registered before the failed compile and stays owned.
	members := s.Handles()
	require.Len(t, members, 1)
	assert.Equal(t, "wazero-runtime", members[0].Name())

	require.NoError(t, s.Close())
	assert.Equal(t, resource.StateClosed, members[0].State())
}

func TestCall_MissingExport(t *testing.T) {
	ctx := context.Background()
	err := resource.Run(func(s *resource.Scope) error {
		mod, err := Load(ctx, s, &Config{CloseOnContextDone: true}, "guest", answerWasm)
		require.NoError(t, err)

		_, err = Call(ctx, mod.Instance, "missing")
		assert.ErrorContains(t, err, `"missing"`)
		return nil
	})
	require.NoError(t, err)
}

func TestInstance_OutlivesLoadingScope(t *testing.T) {
	ctx := context.Background()
	outer := resource.NewScope()
	defer outer.Close()

	rt, err := NewRuntime(ctx, outer, nil)
	require.NoError(t, err)
	r, _ := rt.Value()

	var inst *resource.Handle[api.Module]
	err = resource.Run(func(inner *resource.Scope) error {
		compiled, err := Compile(ctx, inner, r, "guest", answerWasm)
		if err != nil {
			return err
		}
		c, _ := compiled.Value()

		h, err := Instantiate(ctx, inner, r, c, "")
		if err != nil {
			return err
		}
		inst, err = resource.TakeOwnership[api.Module](outer, h)
		return err
	})
	require.NoError(t, err)

	// The compiled module is gone with the inner scope; the instance is not.
	assert.Equal(t, 2, outer.Len())
	results, err := Call(ctx, inst, "answer")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), results[0])
}
