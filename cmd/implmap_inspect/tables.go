// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/implmap/pkg/core/implmap"
	"github.com/gomlx/implmap/pkg/core/primitives"
	"gopkg.in/yaml.v3"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			}
			return s.Align(alignment)
		})
}

func writeTable(w io.Writer, registrations []implmap.Registration) error {
	title := fmt.Sprintf("Registered implementations (%s)", humanize.Comma(int64(len(registrations))))
	if _, err := fmt.Fprintln(w, titleStyle.Render(title)); err != nil {
		return err
	}
	table := newPlainTable(lipgloss.Right, lipgloss.Left).
		Headers("Kind", "Engine", "DType", "Format")
	for _, registration := range registrations {
		table.Row(yamlRegistration(registration).row()...)
	}
	_, err := fmt.Fprintln(w, table.Render())
	return err
}

// registrationYAML is the YAML (and table row) representation of an implmap.Registration.
// DType and Format are empty for engine-only keys.
type registrationYAML struct {
	Kind   string `yaml:"kind"`
	Engine string `yaml:"engine"`
	DType  string `yaml:"dtype,omitempty"`
	Format string `yaml:"format,omitempty"`
}

func yamlRegistration(registration implmap.Registration) registrationYAML {
	r := registrationYAML{
		Kind:   registration.Kind.String(),
		Engine: registration.Key.Engine.String(),
	}
	if registration.Key.Shape() == primitives.KeyShapeComposite {
		r.DType = registration.Key.DType.String()
		r.Format = registration.Key.Format.String()
	}
	return r
}

func (r registrationYAML) row() []string {
	return []string{r.Kind, r.Engine, r.DType, r.Format}
}

func writeYAML(w io.Writer, registrations []implmap.Registration) error {
	doc := struct {
		Total         int                `yaml:"total"`
		Registrations []registrationYAML `yaml:"registrations"`
	}{Total: len(registrations)}
	for _, registration := range registrations {
		doc.Registrations = append(doc.Registrations, yamlRegistration(registration))
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return err
	}
	return encoder.Close()
}
