// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// implmap_inspect lists the primitive implementations registered by the engines linked in, and can look
// up which implementation would be selected for a node.
//
// Examples:
//
//	implmap_inspect -engine=reference -kind=convolution
//	implmap_inspect -output=yaml
//	implmap_inspect -lookup=softmax:float16:bfyx
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gomlx/implmap/backends"
	_ "github.com/gomlx/implmap/backends/default"
	"github.com/gomlx/implmap/pkg/core/engines"
	"github.com/gomlx/implmap/pkg/core/implmap"
	"github.com/gomlx/implmap/pkg/core/primitives"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagEngine = flag.String("engine", "", "Only list implementations for this engine (e.g. \"Reference\"). "+
		"For -lookup it selects the engine, and defaults to \"Reference\".")
	flagKind   = flag.String("kind", "", "Only list implementations of this primitive kind (e.g. \"Reorder\").")
	flagOutput = flag.String("output", "table", "Output format of the listing: \"table\" or \"yaml\".")
	flagLookup = flag.String("lookup", "", "Instead of listing, look up the implementation for a node described as "+
		"\"<kind>\" or \"<kind>:<dtype>:<format>\", where dtype and format are those of the node's first input.")
	flagDuplicates = flag.String("duplicates", "", fmt.Sprintf("Policy for duplicate registrations: "+
		"\"overwrite\" or \"reject\". Defaults to $%s, or \"overwrite\" if not set.", implmap.IMPLMAP_DUPLICATES))
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'implmap_inspect -help'.", flag.Args())
		os.Exit(1)
	}

	registry := must.M1(newRegistry(*flagDuplicates))
	if *flagLookup != "" {
		engine := engines.Reference
		if *flagEngine != "" {
			engine = must.M1(engines.Parse(*flagEngine))
		}
		if err := lookup(os.Stdout, registry, engine, *flagLookup); err != nil {
			klog.Errorf("%v", err)
			os.Exit(1)
		}
		return
	}

	filter := must.M1(newFilter(*flagEngine, *flagKind))
	must.M(list(os.Stdout, registry, filter, *flagOutput))
}

// newRegistry creates a sealed registry with all linked-in engines registered.
func newRegistry(duplicates string) (*implmap.Registry, error) {
	var policy implmap.DuplicatePolicy
	var err error
	if duplicates == "" {
		policy, err = implmap.DuplicatePolicyFromEnv()
	} else {
		policy, err = implmap.ParseDuplicatePolicy(duplicates)
	}
	if err != nil {
		return nil, err
	}
	return backends.NewRegistry(implmap.WithDuplicatePolicy(policy))
}

// filter selects registrations to list. Zero values match everything.
type filter struct {
	engine engines.Type
	kind   primitives.Kind
}

func newFilter(engineName, kindName string) (f filter, err error) {
	if engineName != "" {
		if f.engine, err = engines.Parse(engineName); err != nil {
			return
		}
	}
	if kindName != "" {
		if f.kind, err = primitives.ParseKind(kindName); err != nil {
			return
		}
	}
	return
}

func (f filter) match(registration implmap.Registration) bool {
	if f.engine != engines.Invalid && registration.Key.Engine != f.engine {
		return false
	}
	if f.kind != primitives.InvalidKind && registration.Kind != f.kind {
		return false
	}
	return true
}

func list(w io.Writer, registry *implmap.Registry, f filter, output string) error {
	var registrations []implmap.Registration
	for _, registration := range registry.Registrations() {
		if f.match(registration) {
			registrations = append(registrations, registration)
		}
	}
	switch strings.ToLower(output) {
	case "table":
		return writeTable(w, registrations)
	case "yaml":
		return writeYAML(w, registrations)
	}
	return errors.Errorf("unknown -output=%q, valid values are \"table\" and \"yaml\"", output)
}
