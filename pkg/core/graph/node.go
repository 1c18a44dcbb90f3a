// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/implmap/pkg/core/layouts"
	"github.com/gomlx/implmap/pkg/core/primitives"
)

// Node is one primitive in a Graph. It implements implmap.Node.
type Node struct {
	graph  *Graph
	id     NodeId
	kind   primitives.Kind
	output layouts.Layout

	// inputNodes are the edges of the graph, always created before this node.
	inputNodes []*Node

	trace error // Stack-trace of where the Node was created, if the graph is traced.
}

// Graph the node belongs to.
func (n *Node) Graph() *Graph { return n.graph }

// Id of the node within its graph.
func (n *Node) Id() NodeId { return n.id }

// Kind of primitive the node represents.
func (n *Node) Kind() primitives.Kind { return n.kind }

// OutputLayout returns the layout of the node's output.
func (n *Node) OutputLayout() layouts.Layout { return n.output }

// Inputs returns the input nodes. The slice must not be modified.
func (n *Node) Inputs() []*Node { return n.inputNodes }

// NumDependencies returns the number of inputs.
func (n *Node) NumDependencies() int { return len(n.inputNodes) }

// Dependency returns the i-th input node. It panics if i is out of range.
func (n *Node) Dependency(i int) *Node { return n.inputNodes[i] }

// DependencyLayout returns the output layout of the i-th input node.
func (n *Node) DependencyLayout(i int) layouts.Layout { return n.inputNodes[i].output }

// Trace returns the stack-trace of where the node was created, or nil if the graph was not traced.
// Print it with "%+v".
func (n *Node) Trace() error { return n.trace }

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	inputs := make([]string, len(n.inputNodes))
	for ii, input := range n.inputNodes {
		inputs[ii] = fmt.Sprintf("#%d", input.id)
	}
	return fmt.Sprintf("#%d %s(%s) -> %s", n.id, n.kind, strings.Join(inputs, ", "), n.output)
}
