// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package implmap

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/implmap/pkg/core/engines"
	"github.com/gomlx/implmap/pkg/core/layouts"
	"github.com/gomlx/implmap/pkg/core/primitives"
	"github.com/pkg/errors"
)

// Node is the view of a graph node the registry needs to build a selection key.
//
// The registry never keeps or modifies nodes.
type Node interface {
	// Kind of primitive the node represents.
	Kind() primitives.Kind

	// NumDependencies returns the number of inputs of the node.
	NumDependencies() int

	// DependencyLayout returns the output layout of the i-th input of the node.
	// It is only called with 0 <= i < NumDependencies().
	DependencyLayout(i int) layouts.Layout
}

// Key selects an implementation of a primitive kind.
//
// It has one of two shapes, see primitives.KeyShape:
//
//   - Composite: Engine, DType and Format are all set. Create it with CompositeKey.
//   - Engine-only: only Engine is set, DType is dtypes.InvalidDType and Format is layouts.AnyFormat.
//     Create it with EngineKey.
//
// Key is comparable, and used directly as a map key.
type Key struct {
	Engine engines.Type
	DType  dtypes.DType
	Format layouts.Format
}

// EngineKey returns an engine-only selection key.
func EngineKey(engine engines.Type) Key {
	return Key{Engine: engine, DType: dtypes.InvalidDType, Format: layouts.AnyFormat}
}

// CompositeKey returns a selection key on the engine, dtype and format.
func CompositeKey(engine engines.Type, dtype dtypes.DType, format layouts.Format) Key {
	return Key{Engine: engine, DType: dtype, Format: format}
}

// Shape returns the shape of the key, or primitives.KeyShapeInvalid if it is not well-formed:
// an invalid engine, or only one of DType/Format set.
func (k Key) Shape() primitives.KeyShape {
	if !k.Engine.IsValid() {
		return primitives.KeyShapeInvalid
	}
	hasDType := k.DType != dtypes.InvalidDType
	hasFormat := k.Format != layouts.AnyFormat
	switch {
	case !hasDType && !hasFormat:
		return primitives.KeyShapeEngineOnly
	case hasDType && hasFormat && k.Format.IsValid():
		return primitives.KeyShapeComposite
	default:
		return primitives.KeyShapeInvalid
	}
}

// String implements fmt.Stringer.
func (k Key) String() string {
	if k.Shape() == primitives.KeyShapeEngineOnly {
		return k.Engine.String()
	}
	return fmt.Sprintf("(%s, %s, %s)", k.Engine, k.DType, k.Format)
}

// less orders keys by engine, dtype and then format.
func (k Key) less(other Key) bool {
	if k.Engine != other.Engine {
		return k.Engine < other.Engine
	}
	if k.DType != other.DType {
		return k.DType < other.DType
	}
	return k.Format < other.Format
}

// KeyBuilder builds the selection key for a node to run on the given engine.
type KeyBuilder func(engine engines.Type, node Node) (Key, error)

// keyBuilders is indexed by primitives.KeyShape.
var keyBuilders = [primitives.NumKeyShapes]KeyBuilder{
	primitives.KeyShapeInvalid:    invalidKey,
	primitives.KeyShapeComposite:  compositeKey,
	primitives.KeyShapeEngineOnly: engineOnlyKey,
}

// BuildKey returns the selection key for the node, using the key shape bound to the node's kind.
//
// It returns ErrMissingDependency if the kind uses composite keys and the node has no inputs, and
// ErrInvalidKind if the node's kind is not known.
func BuildKey(engine engines.Type, node Node) (Key, error) {
	return keyBuilders[node.Kind().KeyShape()](engine, node)
}

func compositeKey(engine engines.Type, node Node) (Key, error) {
	if node.NumDependencies() == 0 {
		return Key{}, errors.Wrapf(ErrMissingDependency,
			"%s node has no inputs to select an implementation from", node.Kind())
	}
	layout := node.DependencyLayout(0)
	return CompositeKey(engine, layout.DType, layout.Format), nil
}

func engineOnlyKey(engine engines.Type, _ Node) (Key, error) {
	return EngineKey(engine), nil
}

func invalidKey(_ engines.Type, node Node) (Key, error) {
	return Key{}, errors.Wrapf(ErrInvalidKind, "cannot build a selection key for %s", node.Kind())
}
