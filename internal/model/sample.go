package model

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/stanhf/internal/dedup"
	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/trace"
	"github.com/roach88/stanhf/internal/workspace"
)

// Sample is one process contributing to a channel. Its expected vector
// starts at nominal and is folded through its modifiers in order.
type Sample struct {
	base
	Name         string // <channel>_<sample>
	ExpectedName string
	NominalName  string
	Nominal      []float64
	Bins         int
	Channel      *Channel

	// Modifiers are coalesced and ordered additive-first.
	Modifiers []Modifier
}

// newSample builds a sample and its modifiers. Repeated type/name
// modifiers are coalesced, last one wins, keeping the position of the
// first. Non-null modifiers with shareable data are registered with the
// cache in their final order.
func newSample(ws workspace.Sample, ch *Channel, cache *dedup.Cache) (*Sample, []ir.Warning, error) {
	s := &Sample{
		Name:    Join(ch.Name, Sanitize(ws.Name)),
		Nominal: ws.Nominal,
		Bins:    ch.Bins,
		Channel: ch,
	}
	s.ExpectedName = Join("expected", s.Name)
	s.NominalName = Join("nominal", s.Name)

	var warnings []ir.Warning
	index := make(map[string]int)
	var repeated []string
	for _, wm := range ws.Modifiers {
		m, err := newModifier(wm, s)
		if err != nil {
			return nil, nil, err
		}
		if i, ok := index[m.Name()]; ok {
			s.Modifiers[i] = m
			if !slices.Contains(repeated, m.Name()) {
				repeated = append(repeated, m.Name())
			}
			continue
		}
		index[m.Name()] = len(s.Modifiers)
		s.Modifiers = append(s.Modifiers, m)
	}
	if len(repeated) > 0 {
		warnings = append(warnings, ir.Warnf(ir.WarnModifierOverwrite,
			"repeated type/name modifiers are overwritten: %s", strings.Join(repeated, ", ")))
	}

	slices.SortStableFunc(s.Modifiers, func(a, b Modifier) int {
		switch {
		case a.Additive() == b.Additive():
			return 0
		case a.Additive():
			return -1
		}
		return 1
	})

	for _, m := range s.Modifiers {
		sh, ok := m.(sharer)
		if !ok || m.IsNull() {
			continue
		}
		if err := sh.claim(cache); err != nil {
			return nil, nil, fmt.Errorf("sample %s: %w", s.Name, err)
		}
	}
	return s, warnings, nil
}

func (s *Sample) Data() trace.Fragment {
	return trace.Lines(trace.From("Sample", "Data"),
		fmt.Sprintf("vector[%d] %s;", s.Bins, s.NominalName))
}

func (s *Sample) DataCard() *trace.Card {
	return trace.NewCard(trace.From("Sample", "DataCard"), s.NominalName, ir.Vector(s.Nominal))
}

// TransformedParameters declares the expected vector. Modifier statements
// follow later in the same stage.
func (s *Sample) TransformedParameters() trace.Fragment {
	return trace.Lines(trace.From("Sample", "TransformedParameters"),
		fmt.Sprintf("vector[%d] %s = %s;", s.Bins, s.ExpectedName, s.NominalName))
}
