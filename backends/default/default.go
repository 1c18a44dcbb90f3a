// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package _default includes the default engine modules, currently only the Reference engine.
//
// To use it simply include:
//
//	import _ "github.com/gomlx/implmap/backends/default"
package _default

import (
	_ "github.com/gomlx/implmap/backends/reference"
)
