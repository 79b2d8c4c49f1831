package model

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/stanhf/internal/dedup"
	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/workspace"
)

// Model is the complete IR of one conversion.
type Model struct {
	Channels    []*Channel
	Samples     []*Sample
	Modifiers   []Modifier // every modifier, null ones included
	Parameters  []Parameter
	Measureds   []*Measured
	Constraints []*StandardNormal
	StatErrors  []*CombinedStatError
	POI         string
}

// Build constructs the IR. The cache must belong to this conversion alone.
func Build(ws *workspace.Workspace, cache *dedup.Cache) (*Model, []ir.Warning, error) {
	m := &Model{POI: ws.Config.POI}
	var warnings []ir.Warning

	for _, wc := range ws.Channels {
		name := Sanitize(wc.Name)
		ch := &Channel{
			Name:         name,
			Bins:         wc.Bins(),
			Observed:     wc.Observed,
			ExpectedName: Join("expected", name),
			ObservedName: Join("observed", name),
		}
		for _, wsample := range wc.Samples {
			s, warns, err := newSample(wsample, ch, cache)
			if err != nil {
				return nil, nil, err
			}
			warnings = append(warnings, warns...)
			ch.Samples = append(ch.Samples, s)
			m.Samples = append(m.Samples, s)
			m.Modifiers = append(m.Modifiers, s.Modifiers...)
		}
		m.Channels = append(m.Channels, ch)
	}

	if err := checkPerChannel(m.Modifiers); err != nil {
		return nil, nil, err
	}

	params, warns, err := Resolve(ws.Config, m.Modifiers)
	if err != nil {
		return nil, nil, err
	}
	m.Parameters = params
	warnings = append(warnings, warns...)

	if ws.Config.POI != "" && !slices.ContainsFunc(params, func(p Parameter) bool { return p.Name() == ws.Config.POI }) {
		warnings = append(warnings, ir.Warnf(ir.WarnPOIAbsent,
			"parameter of interest %s is not used by any modifier", ws.Config.POI))
	}

	m.Measureds = findMeasureds(ws.Config, m.NonNullModifiers())
	m.Constraints = findConstraints(m.NonNullModifiers())
	for _, ch := range m.Channels {
		combined, warns := findStatErrors(ch)
		m.StatErrors = append(m.StatErrors, combined...)
		warnings = append(warnings, warns...)
	}
	return m, warnings, nil
}

// NonNullModifiers returns the modifiers that have an effect.
func (m *Model) NonNullModifiers() []Modifier {
	out := make([]Modifier, 0, len(m.Modifiers))
	for _, mod := range m.Modifiers {
		if !mod.IsNull() {
			out = append(out, mod)
		}
	}
	return out
}

// Entities returns every emitting entity in declaration order: samples,
// parameters, measurements, non-null modifiers, channels, constraints and
// combined statistical errors. Anything a statement references is declared
// by an earlier entity or an earlier stage.
func (m *Model) Entities() []Entity {
	var out []Entity
	for _, s := range m.Samples {
		out = append(out, s)
	}
	for _, p := range m.Parameters {
		out = append(out, p)
	}
	for _, ms := range m.Measureds {
		out = append(out, ms)
	}
	for _, mod := range m.NonNullModifiers() {
		out = append(out, mod)
	}
	for _, ch := range m.Channels {
		out = append(out, ch)
	}
	for _, c := range m.Constraints {
		out = append(out, c)
	}
	for _, c := range m.StatErrors {
		out = append(out, c)
	}
	return out
}

// Parameter returns the resolved parameter with the given name.
func (m *Model) Parameter(name string) (Parameter, bool) {
	for _, p := range m.Parameters {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// checkPerChannel rejects per-channel modifiers whose parameter name
// appears in more than one channel. All offending names are reported.
func checkPerChannel(modifiers []Modifier) error {
	home := make(map[string]string)
	reported := make(map[string]bool)
	var result *multierror.Error
	for _, mod := range modifiers {
		if !mod.PerChannel() {
			continue
		}
		ch := mod.Sample().Channel.Name
		first, ok := home[mod.ParName()]
		if !ok {
			home[mod.ParName()] = ch
			continue
		}
		if first != ch && !reported[mod.ParName()] {
			reported[mod.ParName()] = true
			result = multierror.Append(result, &ConsistencyError{
				Code:      ErrCodeCrossChannel,
				Parameter: mod.ParName(),
				Message: fmt.Sprintf("the %s modifier scope is per channel, repeated across channels %s and %s",
					mod.Kind(), first, ch),
			})
		}
	}
	return result.ErrorOrNil()
}

func findMeasureds(cfg workspace.Config, modifiers []Modifier) []*Measured {
	var out []*Measured
	seen := make(map[string]bool)
	for _, mod := range modifiers {
		name := mod.ParName()
		if seen[name] {
			continue
		}
		seen[name] = true
		pc, ok := cfg.Lookup(name)
		if !ok || !pc.Measured() {
			continue
		}
		out = append(out, &Measured{
			ParName:  name,
			DataName: Join("normal", name),
			Mean:     pc.AuxData[0],
			Sigma:    pc.Sigmas[0],
		})
	}
	return out
}

func findConstraints(modifiers []Modifier) []*StandardNormal {
	var out []*StandardNormal
	seen := make(map[string]bool)
	for _, mod := range modifiers {
		if !mod.Constrained() || seen[mod.ParName()] {
			continue
		}
		seen[mod.ParName()] = true
		out = append(out, &StandardNormal{ParName: mod.ParName()})
	}
	return out
}

func findStatErrors(ch *Channel) ([]*CombinedStatError, []ir.Warning) {
	var out []*CombinedStatError
	byName := make(map[string]*CombinedStatError)
	for _, mod := range ch.Modifiers() {
		se, ok := mod.(*StatError)
		if !ok {
			continue
		}
		c, ok := byName[se.ParName()]
		if !ok {
			c = &CombinedStatError{
				ParName:   se.ParName(),
				StdevName: Join("stdev", ch.Name, se.ParName()),
				Channel:   ch,
			}
			byName[se.ParName()] = c
			out = append(out, c)
		}
		c.Members = append(c.Members, se)
	}

	var warnings []ir.Warning
	for _, c := range out {
		var zero []string
		for i, v := range c.Variance() {
			if v == 0 {
				zero = append(zero, fmt.Sprint(i))
			}
		}
		if len(zero) > 0 {
			warnings = append(warnings, ir.Warnf(ir.WarnZeroVariance,
				"variance was zero for bins [%s] of %s in channel %s", strings.Join(zero, ", "), c.ParName, ch.Name))
		}
	}
	return out, warnings
}
