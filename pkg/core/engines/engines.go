// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package engines enumerates the execution engines that primitive implementations can be registered for.
package engines

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Type identifies an execution engine (a backend capable of running primitive implementations).
//
// The registry never stores an engine by itself: it is supplied by the caller at lookup time and
// is part of every selection key.
type Type int

const (
	// Invalid is the zero value, and is never a valid engine.
	Invalid Type = iota

	// Reference is the pure Go software engine, slow but supporting every primitive.
	Reference

	// OCL is an OpenCL accelerated engine.
	OCL

	// XLA is an engine based on an XLA/PJRT plugin.
	XLA

	// NumTypes is the number of engine types, including Invalid.
	NumTypes
)

var typeNames = [NumTypes]string{
	Invalid:   "Invalid",
	Reference: "Reference",
	OCL:       "OCL",
	XLA:       "XLA",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if t < 0 || t >= NumTypes {
		return "Type(" + strconv.Itoa(int(t)) + ")"
	}
	return typeNames[t]
}

// IsValid returns whether t is one of the known engines, and not Invalid.
func (t Type) IsValid() bool {
	return t > Invalid && t < NumTypes
}

// Values returns all valid engine types.
func Values() []Type {
	values := make([]Type, 0, NumTypes-1)
	for t := Invalid + 1; t < NumTypes; t++ {
		values = append(values, t)
	}
	return values
}

// Parse converts the name of an engine (case-insensitive) to its Type.
func Parse(name string) (Type, error) {
	for t := Invalid + 1; t < NumTypes; t++ {
		if strings.EqualFold(typeNames[t], name) {
			return t, nil
		}
	}
	return Invalid, errors.Errorf("unknown engine %q, valid values are %v", name, Values())
}
