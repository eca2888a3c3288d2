// Package chart interprets declarative chart specs produced by the model and
// draws them against a dataset. Specs are data, never code: every operation
// the renderer can perform is enumerated here.
package chart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/malbeclabs/sensorlake/pkg/dataset"
	"github.com/malbeclabs/sensorlake/pkg/sentinel"
)

type Kind string

const (
	KindLine    Kind = "line"
	KindScatter Kind = "scatter"
	KindBar     Kind = "bar"
)

type Layout string

const (
	// LayoutSingle draws every panel's series on one chart.
	LayoutSingle Layout = "single"
	// LayoutStacked draws one chart per panel, stacked vertically with a
	// shared time range.
	LayoutStacked Layout = "stacked"
)

type Aggregate string

const (
	AggregateNone   Aggregate = "none"
	AggregateHourly Aggregate = "hourly"
	AggregateDaily  Aggregate = "daily"
)

const maxPanels = 2

// Panel selects one measured column.
type Panel struct {
	Column string `json:"column"`
	Label  string `json:"label,omitempty"`
}

// Spec is the chart intermediate representation. From and To use
// dataset.TimeLayout and are inclusive; a bound that does not parse is
// ignored.
type Spec struct {
	Title     string    `json:"title,omitempty"`
	Kind      Kind      `json:"kind,omitempty"`
	Layout    Layout    `json:"layout,omitempty"`
	Aggregate Aggregate `json:"aggregate,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Panels    []Panel   `json:"panels"`
}

// Parse decodes and validates a spec. Markdown fences around the JSON are
// tolerated; unknown fields are not.
func Parse(code string) (*Spec, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(sentinel.StripFences(code))))
	dec.DisallowUnknownFields()

	var spec Spec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("invalid chart spec: %w", err)
	}
	if dec.More() {
		return nil, errors.New("invalid chart spec: trailing data after JSON object")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate fills defaults and rejects anything the renderer cannot draw.
func (s *Spec) Validate() error {
	if len(s.Panels) == 0 {
		return errors.New("chart spec needs at least one panel")
	}
	if len(s.Panels) > maxPanels {
		return fmt.Errorf("chart spec has %d panels, at most %d are supported", len(s.Panels), maxPanels)
	}
	for i, p := range s.Panels {
		switch p.Column {
		case dataset.ColumnTemperatura, dataset.ColumnHumedad:
		default:
			return fmt.Errorf("panel %d: unknown column %q, want %q or %q", i, p.Column, dataset.ColumnTemperatura, dataset.ColumnHumedad)
		}
		if p.Label == "" {
			s.Panels[i].Label = defaultLabel(p.Column)
		}
	}

	switch s.Kind {
	case "":
		s.Kind = KindLine
	case KindLine, KindScatter, KindBar:
	default:
		return fmt.Errorf("unknown chart kind %q", s.Kind)
	}

	switch s.Layout {
	case "":
		s.Layout = LayoutSingle
		if len(s.Panels) > 1 {
			s.Layout = LayoutStacked
		}
	case LayoutSingle, LayoutStacked:
	default:
		return fmt.Errorf("unknown layout %q", s.Layout)
	}

	// Bar charts hold one series each.
	if s.Kind == KindBar && len(s.Panels) > 1 {
		s.Layout = LayoutStacked
	}

	switch s.Aggregate {
	case "":
		s.Aggregate = AggregateNone
	case AggregateNone, AggregateHourly, AggregateDaily:
	default:
		return fmt.Errorf("unknown aggregate %q", s.Aggregate)
	}
	return nil
}

func defaultLabel(column string) string {
	if column == dataset.ColumnHumedad {
		return "Humedad (%)"
	}
	return "Temperatura (°C)"
}
