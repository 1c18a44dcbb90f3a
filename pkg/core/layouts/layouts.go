// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layouts defines the memory arrangement (Format) of tensors, and the Layout of a node's output:
// its data type, format and dimensions.
package layouts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Format is the memory arrangement of the elements of a tensor.
//
// The letters in the 4D formats name the axes from the outermost to the innermost (fastest changing):
// b for batch, f for feature (channels), y and x for the spatial axes. Weight formats use o and i
// for the output and input channels.
type Format int

const (
	// AnyFormat is the zero value: no specific format. It is what engine-only selection keys hold.
	AnyFormat Format = iota

	// RowMajor is the plain C order for any rank.
	RowMajor

	// ColumnMajor is the Fortran order for any rank.
	ColumnMajor

	BFYX
	YXFB
	BYXF
	FYXB

	// OIYX is the plain weights format.
	OIYX

	// OsIyxOsv16 is a blocked weights format, with output channels sliced in blocks of 16.
	OsIyxOsv16

	// BsXsXsv8Bsv8 is a blocked format used by fully connected layers, blocks of 8 for batch and x.
	BsXsXsv8Bsv8

	// NumFormats is the number of formats, including AnyFormat.
	NumFormats
)

var formatNames = [NumFormats]string{
	AnyFormat:    "Any",
	RowMajor:     "RowMajor",
	ColumnMajor:  "ColumnMajor",
	BFYX:         "BFYX",
	YXFB:         "YXFB",
	BYXF:         "BYXF",
	FYXB:         "FYXB",
	OIYX:         "OIYX",
	OsIyxOsv16:   "OsIyxOsv16",
	BsXsXsv8Bsv8: "BsXsXsv8Bsv8",
}

// String implements fmt.Stringer.
func (f Format) String() string {
	if f < 0 || f >= NumFormats {
		return "Format(" + strconv.Itoa(int(f)) + ")"
	}
	return formatNames[f]
}

// IsValid returns whether f is a known concrete format (AnyFormat is not concrete).
func (f Format) IsValid() bool {
	return f > AnyFormat && f < NumFormats
}

// Formats returns all concrete formats.
func Formats() []Format {
	formats := make([]Format, 0, NumFormats-1)
	for f := AnyFormat + 1; f < NumFormats; f++ {
		formats = append(formats, f)
	}
	return formats
}

// ParseFormat converts the name of a format (case-insensitive) to a Format.
func ParseFormat(name string) (Format, error) {
	for f := AnyFormat; f < NumFormats; f++ {
		if strings.EqualFold(formatNames[f], name) {
			return f, nil
		}
	}
	return AnyFormat, errors.Errorf("unknown format %q, valid values are %v", name, Formats())
}

// ParseDType converts the name of a data type (e.g. "Float32", "float32" or "F32") to a dtypes.DType.
func ParseDType(name string) (dtypes.DType, error) {
	if dtype, found := dtypes.MapOfNames[name]; found {
		return dtype, nil
	}
	for key, dtype := range dtypes.MapOfNames {
		if strings.EqualFold(key, name) {
			return dtype, nil
		}
	}
	return dtypes.InvalidDType, errors.Errorf("unknown dtype %q", name)
}

// Layout describes the output of a graph node: its element data type, memory format and dimensions.
type Layout struct {
	DType      dtypes.DType
	Format     Format
	Dimensions []int
}

// Make returns a Layout with the given dtype, format and dimensions.
func Make(dtype dtypes.DType, format Format, dimensions ...int) Layout {
	return Layout{DType: dtype, Format: format, Dimensions: dimensions}
}

// Size returns the number of elements described by the layout. A layout without dimensions is a scalar.
func (l Layout) Size() int {
	size := 1
	for _, dim := range l.Dimensions {
		size *= dim
	}
	return size
}

// Equal compares two layouts, including the dimensions.
func (l Layout) Equal(other Layout) bool {
	if l.DType != other.DType || l.Format != other.Format || len(l.Dimensions) != len(other.Dimensions) {
		return false
	}
	for ii, dim := range l.Dimensions {
		if other.Dimensions[ii] != dim {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (l Layout) String() string {
	return fmt.Sprintf("(%s, %s)%v", l.DType, l.Format, l.Dimensions)
}
