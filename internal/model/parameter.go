package model

import (
	"fmt"
	"slices"

	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/trace"
	"github.com/roach88/stanhf/internal/workspace"
)

// Class is the classification of a resolved parameter.
type Class int

const (
	ClassNull Class = iota
	ClassFixed
	ClassPOI
	ClassFree
)

func (c Class) String() string {
	switch c {
	case ClassNull:
		return "null"
	case ClassFixed:
		return "fixed"
	case ClassPOI:
		return "poi"
	case ClassFree:
		return "free"
	}
	return "unknown"
}

// Parameter is the closed set of resolved parameters: *POI,
// *FreeParameter, *FixedParameter and *NullParameter.
type Parameter interface {
	Entity
	Name() string
	Class() Class
	// Size is 0 for a scalar, else the number of elements.
	Size() int
	// Init holds one value per element.
	Init() []float64
	// Bounds holds one (lower, upper) pair per element.
	Bounds() [][2]float64

	parameter()
}

// resolved holds the merged attributes of a parameter.
type resolved struct {
	base
	name   string
	size   int
	init   []float64
	bounds [][2]float64
}

func (r *resolved) Name() string         { return r.name }
func (r *resolved) Size() int            { return r.size }
func (r *resolved) Init() []float64      { return r.init }
func (r *resolved) Bounds() [][2]float64 { return r.bounds }
func (r *resolved) parameter()           {}

// initValue is the init as a card value: a scalar or a vector.
func (r *resolved) initValue() ir.Value {
	if r.size == 0 {
		return ir.Real(r.init[0])
	}
	return ir.Vector(r.init)
}

// boundValue is the bounds as a card tuple.
func (r *resolved) boundValue() ir.Tuple {
	if r.size == 0 {
		return ir.Pair(r.bounds[0][0], r.bounds[0][1])
	}
	lo := make([]float64, r.size)
	hi := make([]float64, r.size)
	for i, b := range r.bounds {
		lo[i], hi[i] = b[0], b[1]
	}
	return ir.VectorPair(lo, hi)
}

// FreeParameter is sampled within data-supplied bounds.
type FreeParameter struct {
	resolved
	BoundName string
}

func (p *FreeParameter) Class() Class { return ClassFree }

func (p *FreeParameter) Data() trace.Fragment {
	decl := fmt.Sprintf("tuple(real, real) %s;", p.BoundName)
	if p.size > 0 {
		decl = fmt.Sprintf("tuple(vector[%d], vector[%d]) %s;", p.size, p.size, p.BoundName)
	}
	return trace.Lines(trace.From("FreeParameter", "Data"), decl)
}

func (p *FreeParameter) DataCard() *trace.Card {
	return trace.NewCard(trace.From("FreeParameter", "DataCard"), p.BoundName, p.boundValue())
}

func (p *FreeParameter) Parameters() trace.Fragment {
	bound := fmt.Sprintf("<lower=%s.1, upper=%s.2>", p.BoundName, p.BoundName)
	decl := fmt.Sprintf("real%s %s;", bound, p.name)
	if p.size > 0 {
		decl = fmt.Sprintf("vector%s[%d] %s;", bound, p.size, p.name)
	}
	return trace.Lines(trace.From("FreeParameter", "Parameters"), decl)
}

func (p *FreeParameter) InitCard() *trace.Card {
	return trace.NewCard(trace.From("FreeParameter", "InitCard"), p.name, p.initValue())
}

// FixedParameter is supplied as data and never sampled.
type FixedParameter struct{ resolved }

func (p *FixedParameter) Class() Class { return ClassFixed }

func (p *FixedParameter) Data() trace.Fragment {
	decl := fmt.Sprintf("real %s;", p.name)
	if p.size > 0 {
		decl = fmt.Sprintf("vector[%d] %s;", p.size, p.name)
	}
	return trace.Lines(trace.From("FixedParameter", "Data"), decl)
}

func (p *FixedParameter) DataCard() *trace.Card {
	return trace.NewCard(trace.From("FixedParameter", "DataCard"), p.name, p.initValue())
}

// POI is the parameter of interest. It is sampled unless the data flag
// fix_<name> is set, in which case fixed_<name> is used; the sampled
// declaration is an array of length 1 - fix_<name>.
type POI struct {
	resolved
	FlagName  string
	FixedName string
	FreeName  string
	BoundName string
}

func (p *POI) Class() Class { return ClassPOI }

func (p *POI) Data() trace.Fragment {
	return trace.Lines(trace.From("POI", "Data"),
		fmt.Sprintf("int<lower=0, upper=1> %s;", p.FlagName),
		fmt.Sprintf("real %s;", p.FixedName),
		fmt.Sprintf("tuple(real, real) %s;", p.BoundName))
}

func (p *POI) DataCard() *trace.Card {
	return trace.NewCard(trace.From("POI", "DataCard"),
		p.FlagName, ir.Int(0),
		p.FixedName, ir.Real(p.init[0]),
		p.BoundName, p.boundValue())
}

func (p *POI) Parameters() trace.Fragment {
	return trace.Lines(trace.From("POI", "Parameters"),
		fmt.Sprintf("array[1 - %s] real<lower=%s.1, upper=%s.2> %s;", p.FlagName, p.BoundName, p.BoundName, p.FreeName))
}

func (p *POI) TransformedParameters() trace.Fragment {
	return trace.Lines(trace.From("POI", "TransformedParameters"),
		fmt.Sprintf("real %s = %s ? %s : %s[1];", p.name, p.FlagName, p.FixedName, p.FreeName))
}

func (p *POI) InitCard() *trace.Card {
	return trace.NewCard(trace.From("POI", "InitCard"), p.FreeName, ir.Vector{p.init[0]})
}

// NullParameter has no run-time representation.
type NullParameter struct{ resolved }

func (p *NullParameter) Class() Class { return ClassNull }

// Resolve merges modifiers into parameters, in order of first appearance.
// Size, init and bounds come from the first modifier (overridden by
// configuration); later members that disagree produce a warning.
func Resolve(cfg workspace.Config, modifiers []Modifier) ([]Parameter, []ir.Warning, error) {
	var order []string
	groups := make(map[string][]Modifier)
	for _, m := range modifiers {
		if _, ok := groups[m.ParName()]; !ok {
			order = append(order, m.ParName())
		}
		groups[m.ParName()] = append(groups[m.ParName()], m)
	}

	var warnings []ir.Warning
	params := make([]Parameter, 0, len(order))
	for _, name := range order {
		p, warns, err := resolveOne(cfg, name, groups[name])
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, warns...)
		params = append(params, p)
	}
	return params, warnings, nil
}

func resolveOne(cfg workspace.Config, name string, members []Modifier) (Parameter, []ir.Warning, error) {
	first := members[0]
	r := resolved{
		name:   name,
		size:   first.Size(),
		init:   first.Init(),
		bounds: first.Bounds(),
	}

	var warnings []ir.Warning
	var sizeMismatch, initMismatch, boundMismatch bool
	for _, m := range members[1:] {
		sizeMismatch = sizeMismatch || m.Size() != r.size
		initMismatch = initMismatch || !slices.Equal(m.Init(), r.init)
		boundMismatch = boundMismatch || !slices.Equal(m.Bounds(), r.bounds)
	}
	for _, mm := range []struct {
		bad  bool
		attr string
	}{{sizeMismatch, "size"}, {initMismatch, "init"}, {boundMismatch, "bounds"}} {
		if mm.bad {
			warnings = append(warnings, ir.Warnf(ir.WarnParameterMismatch,
				"parameter %s: modifiers disagree on %s, using %s from %s", name, mm.attr, mm.attr, first.Name()))
		}
	}

	allNull := true
	for _, m := range members {
		allNull = allNull && m.IsNull()
	}
	if allNull {
		return &NullParameter{resolved: r}, warnings, nil
	}

	pc, _ := cfg.Lookup(name)
	if err := applyConfig(&r, pc); err != nil {
		return nil, nil, err
	}

	switch {
	case pc.Fixed:
		return &FixedParameter{resolved: r}, warnings, nil
	case name == cfg.POI:
		if r.size != 0 {
			return nil, nil, &workspace.SchemaError{
				Code:    workspace.ErrCodeNonScalar,
				Path:    name,
				Message: fmt.Sprintf("parameter of interest %s must be a scalar, has size %d", name, r.size),
			}
		}
		return &POI{
			resolved:  r,
			FlagName:  Join("fix", name),
			FixedName: Join("fixed", name),
			FreeName:  Join("free", name),
			BoundName: Join("lu", name),
		}, warnings, nil
	}
	return &FreeParameter{resolved: r, BoundName: Join("lu", name)}, warnings, nil
}

// applyConfig overrides inits and bounds from configuration. Scalars take
// the first configured entry; vectors need one entry per element.
func applyConfig(r *resolved, pc workspace.ParameterConfig) error {
	want := max(r.size, 1)
	if pc.Inits != nil {
		if r.size == 0 && len(pc.Inits) >= 1 {
			r.init = pc.Inits[:1]
		} else if len(pc.Inits) == want {
			r.init = pc.Inits
		} else {
			return &workspace.SchemaError{
				Code:    workspace.ErrCodeShape,
				Path:    r.name,
				Message: fmt.Sprintf("configured inits for %s have %d entries, want %d", r.name, len(pc.Inits), want),
			}
		}
	}
	if pc.Bounds != nil {
		if r.size == 0 && len(pc.Bounds) >= 1 {
			r.bounds = pc.Bounds[:1]
		} else if len(pc.Bounds) == want {
			r.bounds = pc.Bounds
		} else {
			return &workspace.SchemaError{
				Code:    workspace.ErrCodeShape,
				Path:    r.name,
				Message: fmt.Sprintf("configured bounds for %s have %d entries, want %d", r.name, len(pc.Bounds), want),
			}
		}
	}
	return nil
}
