// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package implmap

import (
	"fmt"
	"sync"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/implmap/pkg/core/engines"
	"github.com/gomlx/implmap/pkg/core/layouts"
	"github.com/gomlx/implmap/pkg/core/primitives"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type testNode struct {
	kind   primitives.Kind
	inputs []layouts.Layout
}

func (n *testNode) Kind() primitives.Kind                 { return n.kind }
func (n *testNode) NumDependencies() int                  { return len(n.inputs) }
func (n *testNode) DependencyLayout(i int) layouts.Layout { return n.inputs[i] }

func newTestNode(kind primitives.Kind, inputs ...layouts.Layout) *testNode {
	return &testNode{kind: kind, inputs: inputs}
}

type testImpl struct {
	name   string
	kind   primitives.Kind
	engine engines.Type
}

func (i *testImpl) Kind() primitives.Kind { return i.kind }
func (i *testImpl) Engine() engines.Type  { return i.engine }
func (i *testImpl) String() string        { return i.name }

// namedFactory returns a factory whose implementations are named name, so tests can tell factories apart.
func namedFactory(name string) Factory {
	return func(node Node) (Impl, error) {
		return &testImpl{name: name, kind: node.Kind()}, nil
	}
}

// factoryName invokes factory on node and returns the name of the implementation created.
func factoryName(t require.TestingT, factory Factory, node Node) string {
	require.NotNil(t, factory)
	impl, err := factory(node)
	require.NoError(t, err)
	return impl.String()
}

var testDTypes = []dtypes.DType{dtypes.Float32, dtypes.Float16, dtypes.Float64, dtypes.Int8, dtypes.Int32, dtypes.Uint8}

func TestConcreteScenario(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(primitives.Reorder, EngineKey(engines.Reference), namedFactory("F1")))
	reorderNode := newTestNode(primitives.Reorder, layouts.Make(dtypes.Float32, layouts.BFYX, 1, 2, 3, 4))
	factory, err := r.Get(engines.Reference, reorderNode)
	require.NoError(t, err)
	assert.Equal(t, "F1", factoryName(t, factory, reorderNode))

	require.NoError(t, r.Add(primitives.Convolution,
		CompositeKey(engines.Reference, dtypes.Float32, layouts.RowMajor), namedFactory("F2")))
	f32Node := newTestNode(primitives.Convolution, layouts.Make(dtypes.Float32, layouts.RowMajor, 8, 8))
	factory, err = r.Get(engines.Reference, f32Node)
	require.NoError(t, err)
	assert.Equal(t, "F2", factoryName(t, factory, f32Node))

	i8Node := newTestNode(primitives.Convolution, layouts.Make(dtypes.Int8, layouts.ColumnMajor, 8, 8))
	factory, err = r.Get(engines.Reference, i8Node)
	require.Error(t, err)
	assert.Nil(t, factory)
	assert.True(t, errors.Is(err, ErrImplementationNotFound))
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, primitives.Convolution, notFound.Kind)
	assert.Equal(t, CompositeKey(engines.Reference, dtypes.Int8, layouts.ColumnMajor), notFound.Key)
	assert.Contains(t, err.Error(), "Convolution")
	assert.Contains(t, err.Error(), "Reference")
	assert.Contains(t, err.Error(), "Int8")
	assert.Contains(t, err.Error(), "ColumnMajor")
}

func TestGetWithoutRegistrations(t *testing.T) {
	r := New()
	for _, kind := range primitives.Kinds() {
		node := newTestNode(kind, layouts.Make(dtypes.Float32, layouts.BFYX))
		for _, engine := range engines.Values() {
			factory, err := r.Get(engine, node)
			require.ErrorIs(t, err, ErrImplementationNotFound, "kind=%s, engine=%s", kind, engine)
			assert.Nil(t, factory)
		}
	}
	assert.Empty(t, r.Kinds())
	assert.Empty(t, r.Registrations())

	// Sealed and empty behaves the same.
	r.Seal()
	_, err := r.Get(engines.XLA, newTestNode(primitives.Data))
	require.ErrorIs(t, err, ErrImplementationNotFound)
	assert.Contains(t, err.Error(), "no Data implementation for engine XLA")
}

func TestNotFoundMessageWithUnsetLayout(t *testing.T) {
	r := New()
	r.MustAdd(primitives.Softmax, CompositeKey(engines.Reference, dtypes.Float32, layouts.BFYX), namedFactory("softmax"))
	r.Seal()
	for _, input := range []layouts.Layout{
		layouts.Make(dtypes.Float32, layouts.AnyFormat),
		layouts.Make(dtypes.InvalidDType, layouts.AnyFormat),
		layouts.Make(dtypes.InvalidDType, layouts.BFYX),
	} {
		_, err := r.Get(engines.Reference, newTestNode(primitives.Softmax, input))
		require.ErrorIs(t, err, ErrImplementationNotFound, "input=%s", input)
		want := fmt.Sprintf("no Softmax implementation for engine Reference, dtype %s and format %s", input.DType, input.Format)
		assert.Contains(t, err.Error(), want)
	}
}

func TestGetPreconditions(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(primitives.Softmax,
		CompositeKey(engines.Reference, dtypes.Float32, layouts.RowMajor), namedFactory("softmax")))

	_, err := r.Get(engines.Reference, newTestNode(primitives.Softmax))
	require.ErrorIs(t, err, ErrMissingDependency)
	assert.False(t, errors.Is(err, ErrImplementationNotFound))

	_, err = r.Get(engines.Reference, newTestNode(primitives.InvalidKind))
	require.ErrorIs(t, err, ErrInvalidKind)
	_, err = r.Get(engines.Reference, newTestNode(primitives.NumKinds+3))
	require.ErrorIs(t, err, ErrInvalidKind)

	// Engine-only kinds don't need inputs.
	require.NoError(t, r.Add(primitives.Data, EngineKey(engines.Reference), namedFactory("data")))
	dataNode := newTestNode(primitives.Data)
	assert.Equal(t, "data", factoryName(t, r.MustGet(engines.Reference, dataNode), dataNode))
}

func TestAddValidation(t *testing.T) {
	r := New()
	err := r.Add(primitives.Reorder, CompositeKey(engines.Reference, dtypes.Float32, layouts.BFYX), namedFactory("x"))
	require.ErrorIs(t, err, ErrKeyShapeMismatch)
	err = r.Add(primitives.Pooling, EngineKey(engines.Reference), namedFactory("x"))
	require.ErrorIs(t, err, ErrKeyShapeMismatch)
	err = r.Add(primitives.Pooling, Key{Engine: engines.Reference, DType: dtypes.Float32}, namedFactory("x"))
	require.ErrorIs(t, err, ErrKeyShapeMismatch)
	err = r.Add(primitives.Reorder, EngineKey(engines.Invalid), namedFactory("x"))
	require.ErrorIs(t, err, ErrKeyShapeMismatch)
	err = r.Add(primitives.InvalidKind, EngineKey(engines.Reference), namedFactory("x"))
	require.ErrorIs(t, err, ErrInvalidKind)
	err = r.Add(primitives.Reorder, EngineKey(engines.Reference), nil)
	require.ErrorIs(t, err, ErrNilFactory)
	assert.Empty(t, r.Registrations())

	require.Panics(t, func() { r.MustAdd(primitives.Reorder, EngineKey(engines.Reference), nil) })
	require.Panics(t, func() { r.MustGet(engines.Reference, newTestNode(primitives.Reorder)) })
}

func TestDuplicateOverwrite(t *testing.T) {
	r := New()
	assert.Equal(t, DuplicateOverwrite, r.DuplicatePolicy())
	key := CompositeKey(engines.OCL, dtypes.Float16, layouts.YXFB)
	require.NoError(t, r.Add(primitives.Eltwise, key, namedFactory("first")))
	require.NoError(t, r.Add(primitives.Eltwise, key, namedFactory("second")))
	node := newTestNode(primitives.Eltwise, layouts.Make(dtypes.Float16, layouts.YXFB, 4), layouts.Make(dtypes.Float16, layouts.YXFB, 4))
	assert.Equal(t, "second", factoryName(t, r.MustGet(engines.OCL, node), node))
	assert.Equal(t, 1, r.Len(primitives.Eltwise))
}

func TestDuplicateReject(t *testing.T) {
	r := New(WithDuplicatePolicy(DuplicateReject))
	key := CompositeKey(engines.OCL, dtypes.Float16, layouts.YXFB)
	require.NoError(t, r.Add(primitives.Eltwise, key, namedFactory("first")))
	err := r.Add(primitives.Eltwise, key, namedFactory("second"))
	require.ErrorIs(t, err, ErrDuplicateRegistration)
	node := newTestNode(primitives.Eltwise, layouts.Make(dtypes.Float16, layouts.YXFB, 4))
	assert.Equal(t, "first", factoryName(t, r.MustGet(engines.OCL, node), node))

	// The same key under a different kind is not a duplicate.
	require.NoError(t, r.Add(primitives.Pooling, key, namedFactory("pooling")))

	// Repeated keys inside a batch are rejected, and nothing from the batch is registered.
	other := CompositeKey(engines.OCL, dtypes.Float32, layouts.YXFB)
	err = r.AddAll(primitives.Softmax,
		Entry{Key: other, Factory: namedFactory("a")},
		Entry{Key: key, Factory: namedFactory("b")},
		Entry{Key: other, Factory: namedFactory("c")})
	require.ErrorIs(t, err, ErrDuplicateRegistration)
	assert.Equal(t, 0, r.Len(primitives.Softmax))
}

func TestSeal(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(primitives.Permute, EngineKey(engines.Reference), namedFactory("permute")))
	assert.False(t, r.Sealed())
	r.Seal()
	r.Seal()
	assert.True(t, r.Sealed())
	err := r.Add(primitives.Permute, EngineKey(engines.XLA), namedFactory("permute-xla"))
	require.ErrorIs(t, err, ErrSealed)
	err = r.AddAll(primitives.Permute)
	require.ErrorIs(t, err, ErrSealed)

	node := newTestNode(primitives.Permute)
	assert.Equal(t, "permute", factoryName(t, r.MustGet(engines.Reference, node), node))
	_, err = r.Get(engines.XLA, node)
	require.ErrorIs(t, err, ErrImplementationNotFound)
}

func TestRegistrations(t *testing.T) {
	r := New()
	require.NoError(t, r.AddAll(primitives.Pooling,
		Entry{Key: CompositeKey(engines.XLA, dtypes.Float32, layouts.BFYX), Factory: namedFactory("a")},
		Entry{Key: CompositeKey(engines.Reference, dtypes.Float32, layouts.YXFB), Factory: namedFactory("b")},
		Entry{Key: CompositeKey(engines.Reference, dtypes.Float32, layouts.BFYX), Factory: namedFactory("c")},
	))
	require.NoError(t, r.Add(primitives.Reshape, EngineKey(engines.OCL), namedFactory("d")))
	assert.Equal(t, []primitives.Kind{primitives.Reshape, primitives.Pooling}, r.Kinds())
	assert.Equal(t, []Registration{
		{Kind: primitives.Reshape, Key: EngineKey(engines.OCL)},
		{Kind: primitives.Pooling, Key: CompositeKey(engines.Reference, dtypes.Float32, layouts.BFYX)},
		{Kind: primitives.Pooling, Key: CompositeKey(engines.Reference, dtypes.Float32, layouts.YXFB)},
		{Kind: primitives.Pooling, Key: CompositeKey(engines.XLA, dtypes.Float32, layouts.BFYX)},
	}, r.Registrations())
	assert.Equal(t, 3, r.Len(primitives.Pooling))
	assert.Equal(t, 0, r.Len(primitives.InvalidKind))
}

func TestConcurrentRegistrationAndLookup(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for _, engine := range engines.Values() {
		for _, kind := range primitives.KindsWithKeyShape(primitives.KeyShapeEngineOnly) {
			wg.Add(2)
			go func() {
				defer wg.Done()
				assert.NoError(t, r.Add(kind, EngineKey(engine), namedFactory(fmt.Sprintf("%s/%s", kind, engine))))
			}()
			go func() {
				defer wg.Done()
				// May or may not be registered yet.
				_, err := r.Get(engine, newTestNode(kind))
				if err != nil {
					assert.ErrorIs(t, err, ErrImplementationNotFound)
				}
			}()
		}
	}
	wg.Wait()
	r.Seal()

	for _, engine := range engines.Values() {
		for _, kind := range primitives.KindsWithKeyShape(primitives.KeyShapeEngineOnly) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				node := newTestNode(kind)
				factory, err := r.Get(engine, node)
				if assert.NoError(t, err) {
					impl, err := factory(node)
					if assert.NoError(t, err) {
						assert.Equal(t, fmt.Sprintf("%s/%s", kind, engine), impl.String())
					}
				}
			}()
		}
	}
	wg.Wait()
}

func TestDuplicatePolicyFromEnv(t *testing.T) {
	t.Setenv(IMPLMAP_DUPLICATES, "")
	policy, err := DuplicatePolicyFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DuplicateOverwrite, policy)

	t.Setenv(IMPLMAP_DUPLICATES, "Reject")
	policy, err = DuplicatePolicyFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DuplicateReject, policy)
	assert.Equal(t, "reject", policy.String())

	t.Setenv(IMPLMAP_DUPLICATES, "ignore")
	_, err = DuplicatePolicyFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), IMPLMAP_DUPLICATES)
}

func drawEngine(rt *rapid.T, label string) engines.Type {
	return rapid.SampledFrom(engines.Values()).Draw(rt, label)
}

func drawComposite(rt *rapid.T, label string) Key {
	return CompositeKey(
		drawEngine(rt, label+".engine"),
		rapid.SampledFrom(testDTypes).Draw(rt, label+".dtype"),
		rapid.SampledFrom(layouts.Formats()).Draw(rt, label+".format"))
}

func TestPropertyCompositeRoundTrip(t *testing.T) {
	composite := primitives.KindsWithKeyShape(primitives.KeyShapeComposite)
	rapid.Check(t, func(rt *rapid.T) {
		kind := rapid.SampledFrom(composite).Draw(rt, "kind")
		key := drawComposite(rt, "key")
		r := New()
		require.NoError(rt, r.Add(kind, key, namedFactory(key.String())))
		node := newTestNode(kind, layouts.Make(key.DType, key.Format, 2, 2))
		factory, err := r.Get(key.Engine, node)
		require.NoError(rt, err)
		require.Equal(rt, key.String(), factoryName(rt, factory, node))
	})
}

func TestPropertyEngineOnlyIgnoresLayout(t *testing.T) {
	engineOnly := primitives.KindsWithKeyShape(primitives.KeyShapeEngineOnly)
	rapid.Check(t, func(rt *rapid.T) {
		kind := rapid.SampledFrom(engineOnly).Draw(rt, "kind")
		engine := drawEngine(rt, "engine")
		r := New()
		require.NoError(rt, r.Add(kind, EngineKey(engine), namedFactory("only")))
		a, b := drawComposite(rt, "a"), drawComposite(rt, "b")
		nodeA := newTestNode(kind, layouts.Make(a.DType, a.Format))
		nodeB := newTestNode(kind, layouts.Make(b.DType, b.Format), layouts.Make(a.DType, a.Format))
		require.Equal(rt, "only", factoryName(rt, r.MustGet(engine, nodeA), nodeA))
		require.Equal(rt, "only", factoryName(rt, r.MustGet(engine, nodeB), nodeB))
	})
}

func TestPropertyUnregisteredKeyNotFound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		registered := rapid.SliceOfN(rapid.Custom(func(rt *rapid.T) Key { return drawComposite(rt, "registered") }), 0, 20).
			Draw(rt, "registered")
		r := New()
		for ii, key := range registered {
			require.NoError(rt, r.Add(primitives.FullyConnected, key, namedFactory(fmt.Sprint(ii))))
		}
		query := drawComposite(rt, "query")
		for _, key := range registered {
			if key == query {
				rt.Skip("query key was registered")
			}
		}
		_, err := r.Get(query.Engine, newTestNode(primitives.FullyConnected, layouts.Make(query.DType, query.Format)))
		require.ErrorIs(rt, err, ErrImplementationNotFound)
		var notFound *NotFoundError
		require.True(rt, errors.As(err, &notFound))
		require.Equal(rt, query, notFound.Key)
		require.Equal(rt, primitives.FullyConnected, notFound.Kind)
	})
}

func TestPropertyBulkEqualsSequential(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		keys := rapid.SliceOfN(rapid.Custom(func(rt *rapid.T) Key { return drawComposite(rt, "key") }), 0, 30).
			Draw(rt, "keys")
		entries := make([]Entry, len(keys))
		for ii, key := range keys {
			entries[ii] = Entry{Key: key, Factory: namedFactory(fmt.Sprint(ii))}
		}
		bulk, sequential := New(), New()
		require.NoError(rt, bulk.AddAll(primitives.Concatenation, entries...))
		for _, entry := range entries {
			require.NoError(rt, sequential.Add(primitives.Concatenation, entry.Key, entry.Factory))
		}
		require.Equal(rt, sequential.Registrations(), bulk.Registrations())
		for _, key := range keys {
			node := newTestNode(primitives.Concatenation, layouts.Make(key.DType, key.Format))
			require.Equal(rt,
				factoryName(rt, sequential.MustGet(key.Engine, node), node),
				factoryName(rt, bulk.MustGet(key.Engine, node), node))
		}
	})
}
