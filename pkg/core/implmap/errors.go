// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package implmap

import (
	"fmt"

	"github.com/gomlx/implmap/pkg/core/primitives"
	"github.com/pkg/errors"
)

var (
	// ErrImplementationNotFound is matched (with errors.Is) by the *NotFoundError returned by Registry.Get.
	ErrImplementationNotFound = errors.New("implementation not found")

	// ErrMissingDependency is returned when building a composite key for a node without inputs.
	ErrMissingDependency = errors.New("node has no dependencies")

	// ErrInvalidKind is returned for nodes or registrations of an unknown primitive kind.
	ErrInvalidKind = errors.New("invalid primitive kind")

	// ErrDuplicateRegistration is returned by a registry using DuplicateReject when a key is registered twice.
	ErrDuplicateRegistration = errors.New("duplicate registration")

	// ErrKeyShapeMismatch is returned when registering a key whose shape differs from the kind's key shape.
	ErrKeyShapeMismatch = errors.New("selection key shape does not match primitive kind")

	// ErrNilFactory is returned when registering a nil Factory.
	ErrNilFactory = errors.New("nil factory")

	// ErrSealed is returned when registering into a sealed registry.
	ErrSealed = errors.New("registry is sealed")
)

// NotFoundError is returned by Registry.Get when no Factory is registered for the key built for a node.
type NotFoundError struct {
	Kind primitives.Kind
	Key  Key
}

// Error implements error. For composite kinds it names the dtype and format tried, even if unset.
func (e *NotFoundError) Error() string {
	if e.Kind.KeyShape() == primitives.KeyShapeComposite {
		return fmt.Sprintf("%s: no %s implementation for engine %s, dtype %s and format %s",
			ErrImplementationNotFound, e.Kind, e.Key.Engine, e.Key.DType, e.Key.Format)
	}
	return fmt.Sprintf("%s: no %s implementation for engine %s", ErrImplementationNotFound, e.Kind, e.Key.Engine)
}

// Is makes errors.Is(err, ErrImplementationNotFound) true.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrImplementationNotFound
}
