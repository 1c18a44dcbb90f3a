// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package implmap maps a primitive kind, an engine, and the data type and format of a node's input
// to the Factory that creates the implementation executing the node.
//
// Backends fill a Registry during initialization, with Registry.Add or Registry.AddAll, and then
// Registry.Seal is called. Afterwards the graph compiler calls Registry.Get for every node, and
// invokes the returned Factory to create the node's implementation:
//
//	registry := implmap.New()
//	must.M(reference.Register(registry))
//	registry.Seal()
//	...
//	factory, err := registry.Get(engines.Reference, node)
//	if err != nil {
//		return err // errors.Is(err, implmap.ErrImplementationNotFound) for missing implementations.
//	}
//	impl, err := factory(node)
//
// Which selection key is used depends on the kind of the node, see primitives.KeyShape and BuildKey.
package implmap

import (
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/implmap/pkg/core/engines"
	"github.com/gomlx/implmap/pkg/core/primitives"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Impl is a backend-specific implementation of one graph node.
type Impl interface {
	// Kind of the primitive implemented.
	Kind() primitives.Kind

	// Engine the implementation runs on.
	Engine() engines.Type

	// String describes the implementation, for debugging.
	String() string
}

// Factory creates the implementation for a node. The caller owns the returned Impl.
//
// Factories are registered once, and may be called concurrently for different nodes.
type Factory func(node Node) (Impl, error)

// Entry is a (key, factory) pair, used for bulk registration with Registry.AddAll.
type Entry struct {
	Key     Key
	Factory Factory
}

// Registration identifies one registered factory, as listed by Registry.Registrations.
type Registration struct {
	Kind primitives.Kind
	Key  Key
}

// DuplicatePolicy defines what happens when a key is registered twice for the same kind.
type DuplicatePolicy int

const (
	// DuplicateOverwrite replaces the previous factory: the last registration wins. A warning is logged.
	DuplicateOverwrite DuplicatePolicy = iota

	// DuplicateReject keeps the first factory and returns ErrDuplicateRegistration.
	DuplicateReject
)

// String implements fmt.Stringer.
func (p DuplicatePolicy) String() string {
	switch p {
	case DuplicateOverwrite:
		return "overwrite"
	case DuplicateReject:
		return "reject"
	default:
		return "DuplicatePolicy(invalid)"
	}
}

// ParseDuplicatePolicy converts "overwrite" or "reject" (case-insensitive) to a DuplicatePolicy.
func ParseDuplicatePolicy(name string) (DuplicatePolicy, error) {
	switch strings.ToLower(name) {
	case "overwrite":
		return DuplicateOverwrite, nil
	case "reject":
		return DuplicateReject, nil
	}
	return DuplicateOverwrite, errors.Errorf("unknown duplicate policy %q, valid values are \"overwrite\" and \"reject\"", name)
}

// IMPLMAP_DUPLICATES is the environment variable with the default duplicate policy, see DuplicatePolicyFromEnv.
const IMPLMAP_DUPLICATES = "IMPLMAP_DUPLICATES"

// DuplicatePolicyFromEnv returns the policy set in the IMPLMAP_DUPLICATES environment variable, or
// DuplicateOverwrite if it is not set.
func DuplicatePolicyFromEnv() (DuplicatePolicy, error) {
	value, found := os.LookupEnv(IMPLMAP_DUPLICATES)
	if !found || value == "" {
		return DuplicateOverwrite, nil
	}
	policy, err := ParseDuplicatePolicy(value)
	if err != nil {
		return policy, errors.WithMessagef(err, "invalid value for $%s", IMPLMAP_DUPLICATES)
	}
	return policy, nil
}

// Option configures a Registry created with New.
type Option func(r *Registry)

// WithDuplicatePolicy sets what happens when a key is registered twice. Default is DuplicateOverwrite.
func WithDuplicatePolicy(policy DuplicatePolicy) Option {
	return func(r *Registry) {
		r.duplicates = policy
	}
}

// table holds the factories of one primitive kind.
type table struct {
	kind      primitives.Kind
	factories map[Key]Factory
}

// Registry maps (kind, key) to factories. Create it with New.
//
// Registration (Add, AddAll) and lookups (Get) are safe to call concurrently. Once Seal is called
// registration fails with ErrSealed, and lookups no longer take any lock.
type Registry struct {
	duplicates DuplicatePolicy

	mu     sync.RWMutex
	sealed atomic.Bool

	// tables are created on the first registration for a kind.
	tables [primitives.NumKinds]*table
}

// New returns an empty Registry.
func New(options ...Option) *Registry {
	r := &Registry{}
	for _, option := range options {
		option(r)
	}
	return r
}

// DuplicatePolicy used by the registry.
func (r *Registry) DuplicatePolicy() DuplicatePolicy {
	return r.duplicates
}

// Seal closes registration. It can be called more than once.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sealed.Load() {
		klog.V(1).Infof("implmap: registry sealed with %d registrations", r.lockedLen())
	}
	r.sealed.Store(true)
}

// Sealed returns whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Add registers the factory for the given kind and key.
//
// The key shape must match kind.KeyShape(): use EngineKey or CompositeKey accordingly.
// What happens if the key is already registered depends on the registry's DuplicatePolicy.
func (r *Registry) Add(kind primitives.Kind, key Key, factory Factory) error {
	return r.AddAll(kind, Entry{Key: key, Factory: factory})
}

// AddAll registers the entries for the given kind, in order.
//
// The whole batch is validated first: if any entry is invalid, or under DuplicateReject any key is
// already registered or repeated in the batch, nothing is registered.
func (r *Registry) AddAll(kind primitives.Kind, entries ...Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		return errors.Wrapf(ErrSealed, "cannot register %d %s implementation(s)", len(entries), kind)
	}
	shape := kind.KeyShape()
	if shape == primitives.KeyShapeInvalid {
		return errors.Wrapf(ErrInvalidKind, "cannot register implementations for %s", kind)
	}
	t := r.tables[kind]
	for ii, entry := range entries {
		if entry.Factory == nil {
			return errors.Wrapf(ErrNilFactory, "entry #%d for %s key %s", ii, kind, entry.Key)
		}
		if keyShape := entry.Key.Shape(); keyShape != shape {
			return errors.Wrapf(ErrKeyShapeMismatch, "entry #%d for %s: key %s has shape %s, %s requires %s keys",
				ii, kind, entry.Key, keyShape, kind, shape)
		}
		if r.duplicates != DuplicateReject {
			continue
		}
		if t != nil {
			if _, found := t.factories[entry.Key]; found {
				return errors.Wrapf(ErrDuplicateRegistration, "%s implementation for %s already registered", kind, entry.Key)
			}
		}
		for _, previous := range entries[:ii] {
			if previous.Key == entry.Key {
				return errors.Wrapf(ErrDuplicateRegistration, "%s implementation for %s repeated in entry #%d", kind, entry.Key, ii)
			}
		}
	}

	if t == nil {
		t = &table{kind: kind, factories: make(map[Key]Factory, len(entries))}
		r.tables[kind] = t
	}
	for _, entry := range entries {
		if _, found := t.factories[entry.Key]; found {
			klog.Warningf("implmap: %s implementation for %s registered more than once, the last one wins", kind, entry.Key)
		}
		t.factories[entry.Key] = entry.Factory
	}
	klog.V(2).Infof("implmap: registered %d %s implementation(s)", len(entries), kind)
	return nil
}

// MustAdd is like Add, but panics on error. Useful in backends' package initialization.
func (r *Registry) MustAdd(kind primitives.Kind, key Key, factory Factory) {
	if err := r.Add(kind, key, factory); err != nil {
		exceptions.Panicf("implmap.MustAdd: %+v", err)
	}
}

// Get returns the Factory that creates the implementation of the node on the given engine.
//
// The selection key is built with BuildKey. If no factory is registered for it, it returns
// a *NotFoundError, which matches ErrImplementationNotFound. There is no fallback implementation.
// The factory is not invoked.
func (r *Registry) Get(engine engines.Type, node Node) (Factory, error) {
	kind := node.Kind()
	key, err := BuildKey(engine, node)
	if err != nil {
		return nil, err
	}
	factory, found := r.lookup(kind, key)
	if !found {
		return nil, errors.WithStack(&NotFoundError{Kind: kind, Key: key})
	}
	return factory, nil
}

// MustGet is like Get, but panics on error.
func (r *Registry) MustGet(engine engines.Type, node Node) Factory {
	factory, err := r.Get(engine, node)
	if err != nil {
		exceptions.Panicf("implmap.MustGet: %+v", err)
	}
	return factory
}

// lookup assumes kind is valid, which BuildKey guarantees.
func (r *Registry) lookup(kind primitives.Kind, key Key) (Factory, bool) {
	if !r.sealed.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	t := r.tables[kind]
	if t == nil {
		return nil, false
	}
	factory, found := t.factories[key]
	return factory, found
}

// Len returns the number of factories registered for kind.
func (r *Registry) Len(kind primitives.Kind) int {
	if !kind.IsValid() {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t := r.tables[kind]; t != nil {
		return len(t.factories)
	}
	return 0
}

func (r *Registry) lockedLen() int {
	var total int
	for _, t := range r.tables {
		if t != nil {
			total += len(t.factories)
		}
	}
	return total
}

// Kinds returns the kinds with at least one registration, in enum order.
func (r *Registry) Kinds() []primitives.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var kinds []primitives.Kind
	for _, t := range r.tables {
		if t != nil && len(t.factories) > 0 {
			kinds = append(kinds, t.kind)
		}
	}
	return kinds
}

// Registrations lists all registered (kind, key) pairs, sorted by kind and then by key.
func (r *Registry) Registrations() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	registrations := make([]Registration, 0, r.lockedLen())
	for _, t := range r.tables {
		if t == nil {
			continue
		}
		for key := range t.factories {
			registrations = append(registrations, Registration{Kind: t.kind, Key: key})
		}
	}
	slices.SortFunc(registrations, func(a, b Registration) int {
		switch {
		case a.Kind != b.Kind:
			return int(a.Kind) - int(b.Kind)
		case a.Key.less(b.Key):
			return -1
		case b.Key.less(a.Key):
			return 1
		}
		return 0
	})
	return registrations
}
