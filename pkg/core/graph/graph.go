// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph is a minimal inference graph: nodes of a primitive kind, their inputs (dependencies)
// and the layout of their outputs.
//
// It is the input of the compiler, and its Node implements implmap.Node, so nodes can be used to
// select implementations from an implmap.Registry.
//
// Nodes can only take as inputs nodes created before them in the same Graph, so the creation
// order is a topological order.
package graph

import (
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/gomlx/implmap/pkg/core/layouts"
	"github.com/gomlx/implmap/pkg/core/primitives"
	"github.com/pkg/errors"
)

// GraphId is a process-wide unique id of a Graph.
type GraphId int64

// NodeId is the id of a Node within its Graph: its position in Graph.Nodes.
type NodeId int

var graphCount atomic.Int64

// Graph holds the nodes of one inference graph. It is not safe for concurrent modification, but once
// built it can be read (e.g. compiled) concurrently.
type Graph struct {
	id    GraphId
	name  string
	nodes []*Node

	// traced makes nodes store a stack-trace of where they were created.
	traced bool
}

// New creates an empty graph with the given name.
func New(name string) *Graph {
	return &Graph{
		id:   GraphId(graphCount.Add(1) - 1),
		name: name,
	}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// GraphId is a process-wide unique id of the graph, a counter starting at 0.
func (g *Graph) GraphId() GraphId { return g.id }

// SetTraced defines whether each node created afterwards keeps a stack-trace of where it was created.
// Useful to debug compilation errors. Default is false.
func (g *Graph) SetTraced(traced bool) *Graph {
	g.traced = traced
	return g
}

// Nodes returns the nodes of the graph, in creation (topological) order. The slice must not be modified.
func (g *Graph) Nodes() []*Node { return g.nodes }

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Data creates a node holding constant data (e.g. weights) with the given layout.
func (g *Graph) Data(layout layouts.Layout) *Node {
	return g.newNode(primitives.Data, layout, nil)
}

// InputLayout creates a graph input with the given layout.
func (g *Graph) InputLayout(layout layouts.Layout) *Node {
	return g.newNode(primitives.InputLayout, layout, nil)
}

// Op creates a node of the given kind, with the given output layout and inputs.
//
// It returns an error if kind is not valid, or if any of the inputs is nil or belongs to another graph.
func (g *Graph) Op(kind primitives.Kind, output layouts.Layout, inputs ...*Node) (*Node, error) {
	if !kind.IsValid() {
		return nil, errors.Errorf("graph %q: cannot create node of invalid kind %s", g.name, kind)
	}
	for ii, input := range inputs {
		if input == nil {
			return nil, errors.Errorf("graph %q: input #%d of new %s node is nil", g.name, ii, kind)
		}
		if input.graph != g {
			return nil, errors.Errorf("graph %q: input #%d of new %s node is %s from graph %q",
				g.name, ii, kind, input, input.graph.name)
		}
	}
	return g.newNode(kind, output, inputs), nil
}

// MustOp is like Op, but panics on error.
func (g *Graph) MustOp(kind primitives.Kind, output layouts.Layout, inputs ...*Node) *Node {
	node, err := g.Op(kind, output, inputs...)
	if err != nil {
		panic(err)
	}
	return node
}

func (g *Graph) newNode(kind primitives.Kind, output layouts.Layout, inputs []*Node) *Node {
	node := &Node{
		graph:      g,
		id:         NodeId(len(g.nodes)),
		kind:       kind,
		output:     output,
		inputNodes: slices.Clone(inputs),
	}
	if g.traced {
		node.trace = errors.New("node created here")
	}
	g.nodes = append(g.nodes, node)
	return node
}

// String implements fmt.Stringer, listing all nodes.
func (g *Graph) String() string {
	if g == nil {
		return "Graph(nil)!?"
	}
	parts := []string{fmt.Sprintf("Graph %q: %d nodes", g.name, len(g.nodes))}
	for _, node := range g.nodes {
		parts = append(parts, "\t"+node.String())
	}
	return strings.Join(parts, "\n")
}
