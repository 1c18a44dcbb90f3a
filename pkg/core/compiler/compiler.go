// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package compiler turns a graph.Graph into a Plan: one implementation per node, created by the
// factories registered in an implmap.Registry for the target engine.
//
// Compilation either succeeds for every node or fails: there is no fallback for a node without
// a registered implementation.
package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gomlx/implmap/internal/workerspool"
	"github.com/gomlx/implmap/pkg/core/engines"
	"github.com/gomlx/implmap/pkg/core/graph"
	"github.com/gomlx/implmap/pkg/core/implmap"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"
)

// TracerName is the name of the OpenTelemetry tracer used by default.
const TracerName = "github.com/gomlx/implmap/pkg/core/compiler"

// ErrRegistryNotSealed is returned when compiling against a registry that still accepts registrations.
var ErrRegistryNotSealed = errors.New("registry is not sealed")

// Step is one node of the graph and the implementation created for it.
type Step struct {
	Node *graph.Node
	Impl implmap.Impl
}

// Plan is the compiled graph: one Step per node, in the graph's topological order.
type Plan struct {
	ID     uuid.UUID
	Graph  *graph.Graph
	Engine engines.Type
	Steps  []Step
}

// String implements fmt.Stringer.
func (p *Plan) String() string {
	parts := []string{fmt.Sprintf("Plan %s for graph %q on %s: %d steps", p.ID, p.Graph.Name(), p.Engine, len(p.Steps))}
	for _, step := range p.Steps {
		parts = append(parts, fmt.Sprintf("\t%s\t=> %s", step.Node, step.Impl))
	}
	return strings.Join(parts, "\n")
}

type config struct {
	parallelism int
	tracer      trace.Tracer
}

// Option configures Compile.
type Option func(c *config)

// WithParallelism sets how many factories can be invoked in parallel. 0 invokes them sequentially,
// and -1 has no limit. Default is runtime.NumCPU().
func WithParallelism(parallelism int) Option {
	return func(c *config) {
		c.parallelism = parallelism
	}
}

// WithTracer sets the tracer used for the compilation span. Default is otel.Tracer(TracerName).
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) {
		c.tracer = tracer
	}
}

// Compile creates the implementations of every node of g, to run on engine.
//
// The registry must be sealed. Factories for all nodes are looked up first, and only if every node has one
// they are invoked (in parallel). Errors are annotated with the node that failed: use
// errors.Is(err, implmap.ErrImplementationNotFound) to check for missing implementations.
//
// Compile can be called concurrently, also for the same graph.
func Compile(ctx context.Context, registry *implmap.Registry, engine engines.Type, g *graph.Graph,
	options ...Option) (plan *Plan, err error) {
	pool := workerspool.New()
	c := &config{parallelism: pool.MaxParallelism()}
	for _, option := range options {
		option(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(TracerName)
	}
	pool.SetMaxParallelism(c.parallelism)

	ctx, span := c.tracer.Start(ctx, "implmap.compile", trace.WithAttributes(
		attribute.String("implmap.engine", engine.String()),
		attribute.String("implmap.graph", g.Name()),
		attribute.Int("implmap.nodes", g.NumNodes()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !registry.Sealed() {
		return nil, errors.Wrapf(ErrRegistryNotSealed, "cannot compile graph %q", g.Name())
	}
	if !engine.IsValid() {
		return nil, errors.Errorf("cannot compile graph %q for invalid engine %s", g.Name(), engine)
	}

	nodes := g.Nodes()
	factories := make([]implmap.Factory, len(nodes))
	for ii, node := range nodes {
		factories[ii], err = registry.Get(engine, node)
		if err != nil {
			return nil, nodeError(err, node)
		}
	}

	plan = &Plan{
		ID:     uuid.New(),
		Graph:  g,
		Engine: engine,
		Steps:  make([]Step, len(nodes)),
	}
	err = pool.Run(ctx, len(nodes), func(ii int) error {
		node := nodes[ii]
		impl, err := factories[ii](node)
		if err != nil {
			return nodeError(err, node)
		}
		if impl == nil {
			return nodeError(errors.New("factory returned no implementation"), node)
		}
		if impl.Kind() != node.Kind() || impl.Engine() != engine {
			return nodeError(errors.Errorf("factory returned a %s implementation for %s", impl.Kind(), impl.Engine()), node)
		}
		plan.Steps[ii] = Step{Node: node, Impl: impl}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("implmap.plan", plan.ID.String()))
	klog.V(1).Infof("compiler: graph %q compiled for %s into plan %s with %d steps", g.Name(), engine, plan.ID, len(plan.Steps))
	return plan, nil
}

// nodeError annotates err with the node (and where it was created, if the graph is traced).
func nodeError(err error, node *graph.Node) error {
	msg := fmt.Sprintf("compiling node %s of graph %q", node, node.Graph().Name())
	if created := node.Trace(); created != nil {
		msg += fmt.Sprintf(" (node created at:%+v\n)", created)
	}
	return errors.WithMessage(err, msg)
}
