// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/implmap/pkg/core/engines"
	"github.com/gomlx/implmap/pkg/core/graph"
	"github.com/gomlx/implmap/pkg/core/implmap"
	"github.com/gomlx/implmap/pkg/core/layouts"
	"github.com/gomlx/implmap/pkg/core/primitives"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
)

// lookupNode builds a one-node graph (plus its input) matching the description "<kind>[:<dtype>:<format>]".
func lookupNode(description string) (*graph.Node, error) {
	parts := strings.Split(description, ":")
	if len(parts) != 1 && len(parts) != 3 {
		return nil, errors.Errorf("invalid node description %q, it should be \"<kind>\" or \"<kind>:<dtype>:<format>\"", description)
	}
	kind, err := primitives.ParseKind(parts[0])
	if err != nil {
		return nil, err
	}
	input := layouts.Make(dtypes.Float32, layouts.RowMajor, 1)
	if len(parts) == 3 {
		if input.DType, err = layouts.ParseDType(parts[1]); err != nil {
			return nil, err
		}
		if input.Format, err = layouts.ParseFormat(parts[2]); err != nil {
			return nil, err
		}
	} else if kind.KeyShape() == primitives.KeyShapeComposite {
		return nil, errors.Errorf("%s implementations are selected by the input's dtype and format: use \"%s:<dtype>:<format>\"",
			kind, parts[0])
	}

	g := graph.New("lookup")
	switch kind {
	case primitives.Data:
		return g.Data(input), nil
	case primitives.InputLayout:
		return g.InputLayout(input), nil
	}
	return g.Op(kind, input, g.InputLayout(input))
}

// lookup writes the implementation selected for the described node on engine.
func lookup(w io.Writer, registry *implmap.Registry, engine engines.Type, description string) error {
	node, err := lookupNode(description)
	if err != nil {
		return err
	}
	factory, err := registry.Get(engine, node)
	if err != nil {
		return err
	}
	key := must.M1(implmap.BuildKey(engine, node))
	impl, err := factory(node)
	if err != nil {
		return errors.WithMessagef(err, "%s implementation for %s found, but failed to create it", node.Kind(), key)
	}
	_, err = fmt.Fprintf(w, "%s %s => %s\n", node.Kind(), key, impl)
	return err
}
