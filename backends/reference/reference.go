// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package reference registers the implementations of the Reference engine: a software engine supporting
// every primitive kind, used to test compilation and as a baseline for other engines.
//
// Composite kinds are only supported for the SupportedDTypes and SupportedFormats.
//
// Importing the package registers it with backends.Register. It can also be used directly:
//
//	registry := implmap.New()
//	if err := reference.Register(registry); err != nil { ... }
//	registry.Seal()
package reference

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/implmap/backends"
	"github.com/gomlx/implmap/pkg/core/engines"
	"github.com/gomlx/implmap/pkg/core/implmap"
	"github.com/gomlx/implmap/pkg/core/layouts"
	"github.com/gomlx/implmap/pkg/core/primitives"
	"github.com/pkg/errors"
)

// Engine of the implementations registered by this package.
const Engine = engines.Reference

var (
	// SupportedDTypes for primitive kinds that use composite keys.
	SupportedDTypes = []dtypes.DType{dtypes.Float32, dtypes.Float16, dtypes.Int8}

	// SupportedFormats for primitive kinds that use composite keys.
	SupportedFormats = []layouts.Format{layouts.RowMajor, layouts.BFYX, layouts.YXFB}
)

func init() {
	backends.Register(Engine, Register)
}

// arity is the accepted number of inputs for a kind. max < 0 means unlimited.
type arity struct{ min, max int }

var kindArity = map[primitives.Kind]arity{
	primitives.Data:           {0, 0},
	primitives.InputLayout:    {0, 0},
	primitives.Permute:        {1, 1},
	primitives.Reorder:        {1, 1},
	primitives.Reshape:        {1, 1},
	primitives.PriorBox:       {1, 2},
	primitives.Activation:     {1, 1},
	primitives.Softmax:        {1, 1},
	primitives.Pooling:        {1, 1},
	primitives.Convolution:    {2, 3},
	primitives.FullyConnected: {2, 3},
	primitives.Eltwise:        {2, -1},
	primitives.Concatenation:  {1, -1},
}

// Register adds the Reference engine implementations of every primitive kind to the registry.
func Register(registry *implmap.Registry) error {
	for _, kind := range primitives.Kinds() {
		var entries []implmap.Entry
		switch kind.KeyShape() {
		case primitives.KeyShapeEngineOnly:
			entries = append(entries, implmap.Entry{Key: implmap.EngineKey(Engine), Factory: newImpl})
		case primitives.KeyShapeComposite:
			for _, dtype := range SupportedDTypes {
				for _, format := range SupportedFormats {
					entries = append(entries, implmap.Entry{
						Key:     implmap.CompositeKey(Engine, dtype, format),
						Factory: newImpl,
					})
				}
			}
		default:
			return errors.Errorf("reference engine: %s has no valid key shape", kind)
		}
		if err := registry.AddAll(kind, entries...); err != nil {
			return errors.WithMessagef(err, "registering reference engine")
		}
	}
	return nil
}

// Impl is the Reference engine implementation of a node. It validates the node when created.
type Impl struct {
	kind   primitives.Kind
	input  layouts.Layout // Layout of the first input, if any.
	output layouts.Layout
}

var _ implmap.Impl = (*Impl)(nil)

// Kind implements implmap.Impl.
func (impl *Impl) Kind() primitives.Kind { return impl.kind }

// Engine implements implmap.Impl. It is always engines.Reference.
func (impl *Impl) Engine() engines.Type { return Engine }

// String implements implmap.Impl.
func (impl *Impl) String() string {
	if impl.kind.KeyShape() == primitives.KeyShapeComposite {
		return fmt.Sprintf("reference.%s[%s/%s]", impl.kind, impl.input.DType, impl.input.Format)
	}
	return fmt.Sprintf("reference.%s", impl.kind)
}

// outputLayouter is implemented by graph nodes that expose their own output layout.
type outputLayouter interface {
	OutputLayout() layouts.Layout
}

// newImpl is the implmap.Factory for every kind.
func newImpl(node implmap.Node) (implmap.Impl, error) {
	kind := node.Kind()
	numInputs := node.NumDependencies()
	want, found := kindArity[kind]
	if !found {
		return nil, errors.Errorf("reference engine has no %s implementation", kind)
	}
	if want.max < 0 && numInputs < want.min {
		return nil, errors.Errorf("reference %s requires at least %d inputs, got %d", kind, want.min, numInputs)
	}
	if want.max >= 0 && (numInputs < want.min || numInputs > want.max) {
		return nil, errors.Errorf("reference %s requires between %d and %d inputs, got %d", kind, want.min, want.max, numInputs)
	}
	impl := &Impl{kind: kind}
	if numInputs > 0 {
		impl.input = node.DependencyLayout(0)
	}
	if n, ok := node.(outputLayouter); ok {
		impl.output = n.OutputLayout()
	}

	switch kind {
	case primitives.Reshape, primitives.Reorder, primitives.Permute:
		if impl.output.Dimensions != nil && impl.output.Size() != impl.input.Size() {
			return nil, errors.Errorf("reference %s: output layout %s has %d elements, input layout %s has %d",
				kind, impl.output, impl.output.Size(), impl.input, impl.input.Size())
		}
	case primitives.Eltwise:
		for ii := 1; ii < numInputs; ii++ {
			layout := node.DependencyLayout(ii)
			if layout.DType != impl.input.DType || layout.Format != impl.input.Format {
				return nil, errors.Errorf("reference Eltwise: input #%d layout %s differs from input #0 layout %s",
					ii, layout, impl.input)
			}
		}
	}
	return impl, nil
}
