// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package primitives enumerates the kinds of compute primitives a graph node can represent, and binds
// each kind to the shape of the key used to select its implementations.
//
// Adding a new kind requires adding it to the Kind enum, to kindNames and to kindKeyShapes.
package primitives

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind identifies which operation a graph node represents. It is fixed per node.
type Kind int

const (
	InvalidKind Kind = iota

	// Engine-only kinds: their implementation depends only on the engine.

	Permute
	Reorder
	Reshape
	Data
	InputLayout
	PriorBox

	// Composite kinds: their implementation depends on the engine, and on the data type and format of
	// the node's first input.

	Activation
	Convolution
	Pooling
	Softmax
	Eltwise
	FullyConnected
	Concatenation

	// NumKinds is the number of kinds, including InvalidKind.
	NumKinds
)

// KeyShape is the shape of the selection key used for a Kind.
type KeyShape int

const (
	// KeyShapeInvalid is returned for unknown kinds.
	KeyShapeInvalid KeyShape = iota

	// KeyShapeComposite keys are the triple (engine, dtype, format).
	KeyShapeComposite

	// KeyShapeEngineOnly keys are only the engine.
	KeyShapeEngineOnly

	NumKeyShapes
)

var kindNames = [NumKinds]string{
	InvalidKind:    "Invalid",
	Permute:        "Permute",
	Reorder:        "Reorder",
	Reshape:        "Reshape",
	Data:           "Data",
	InputLayout:    "InputLayout",
	PriorBox:       "PriorBox",
	Activation:     "Activation",
	Convolution:    "Convolution",
	Pooling:        "Pooling",
	Softmax:        "Softmax",
	Eltwise:        "Eltwise",
	FullyConnected: "FullyConnected",
	Concatenation:  "Concatenation",
}

// kindKeyShapes binds each kind to its key shape. Kinds not listed here default to KeyShapeComposite,
// except InvalidKind.
var kindKeyShapes = [NumKinds]KeyShape{
	InvalidKind: KeyShapeInvalid,
	Permute:     KeyShapeEngineOnly,
	Reorder:     KeyShapeEngineOnly,
	Reshape:     KeyShapeEngineOnly,
	Data:        KeyShapeEngineOnly,
	InputLayout: KeyShapeEngineOnly,
	PriorBox:    KeyShapeEngineOnly,
}

func init() {
	for kind := InvalidKind + 1; kind < NumKinds; kind++ {
		if kindNames[kind] == "" {
			panic(errors.Errorf("primitives.Kind(%d) has no name", kind))
		}
		if kindKeyShapes[kind] == KeyShapeInvalid {
			kindKeyShapes[kind] = KeyShapeComposite
		}
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k < 0 || k >= NumKinds {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// IsValid returns whether k is a known kind, other than InvalidKind.
func (k Kind) IsValid() bool {
	return k > InvalidKind && k < NumKinds
}

// KeyShape returns the shape of the selection key used for the kind.
// It is KeyShapeInvalid for unknown kinds.
func (k Kind) KeyShape() KeyShape {
	if !k.IsValid() {
		return KeyShapeInvalid
	}
	return kindKeyShapes[k]
}

// Kinds returns all valid kinds.
func Kinds() []Kind {
	kinds := make([]Kind, 0, NumKinds-1)
	for k := InvalidKind + 1; k < NumKinds; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// KindsWithKeyShape returns the kinds bound to the given key shape.
func KindsWithKeyShape(shape KeyShape) []Kind {
	var kinds []Kind
	for _, k := range Kinds() {
		if k.KeyShape() == shape {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// ParseKind converts the name of a kind (case-insensitive) to a Kind.
func ParseKind(name string) (Kind, error) {
	for k := InvalidKind + 1; k < NumKinds; k++ {
		if strings.EqualFold(kindNames[k], name) {
			return k, nil
		}
	}
	return InvalidKind, errors.Errorf("unknown primitive kind %q, valid values are %v", name, Kinds())
}

// String implements fmt.Stringer.
func (s KeyShape) String() string {
	switch s {
	case KeyShapeComposite:
		return "Composite"
	case KeyShapeEngineOnly:
		return "EngineOnly"
	case KeyShapeInvalid:
		return "Invalid"
	default:
		return "KeyShape(" + strconv.Itoa(int(s)) + ")"
	}
}
