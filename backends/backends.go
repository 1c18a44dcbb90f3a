// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends keeps the list of engine modules linked into the program, and creates registries
// populated with their implementations.
//
// Each engine module registers itself during package initialization, so it is enough to import it:
//
//	import _ "github.com/gomlx/implmap/backends/default"
//
//	registry, err := backends.NewRegistry()
//
// Engine modules can also be used without this package, calling their own Register function on an
// implmap.Registry.
package backends

import (
	"slices"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/implmap/pkg/core/engines"
	"github.com/gomlx/implmap/pkg/core/implmap"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Registrar adds the implementations of one engine module to a registry.
type Registrar func(registry *implmap.Registry) error

var (
	muRegistrars sync.Mutex
	registrars   = make(map[engines.Type]Registrar)
)

// Register the engine module for the given engine. Call it during the initialization of the module's package.
//
// It panics if a module is already registered for the engine.
func Register(engine engines.Type, registrar Registrar) {
	muRegistrars.Lock()
	defer muRegistrars.Unlock()
	if !engine.IsValid() {
		exceptions.Panicf("backends.Register: invalid engine %s", engine)
	}
	if _, found := registrars[engine]; found {
		exceptions.Panicf("backends.Register: engine %s already has a module registered", engine)
	}
	registrars[engine] = registrar
}

// Registered returns the engines with a module registered, in enum order.
func Registered() []engines.Type {
	muRegistrars.Lock()
	defer muRegistrars.Unlock()
	list := make([]engines.Type, 0, len(registrars))
	for engine := range registrars {
		list = append(list, engine)
	}
	slices.Sort(list)
	return list
}

// RegisterAll adds the implementations of every registered engine module to registry, in engine order.
// The registry is not sealed.
func RegisterAll(registry *implmap.Registry) error {
	for _, engine := range Registered() {
		muRegistrars.Lock()
		registrar := registrars[engine]
		muRegistrars.Unlock()
		if err := registrar(registry); err != nil {
			return errors.WithMessagef(err, "failed to register implementations for engine %s", engine)
		}
		klog.V(1).Infof("backends: registered implementations for engine %s", engine)
	}
	return nil
}

// NewRegistry creates a registry with the given options, adds the implementations of every registered engine
// module, and seals it.
//
// It returns an error if no engine module was registered.
func NewRegistry(options ...implmap.Option) (*implmap.Registry, error) {
	if len(Registered()) == 0 {
		return nil, errors.New(`no engine modules registered -- maybe import the default ones with import _ "github.com/gomlx/implmap/backends/default"?`)
	}
	registry := implmap.New(options...)
	if err := RegisterAll(registry); err != nil {
		return nil, err
	}
	registry.Seal()
	return registry, nil
}
