package model

import (
	"fmt"
	"slices"

	"github.com/roach88/stanhf/internal/dedup"
	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/trace"
	"github.com/roach88/stanhf/internal/workspace"
)

// Modifier is the closed set of yield modifiers: *Factor, *ShapeFactor,
// *StatError, *ShapeSys, *HistoSys and *NormSys.
type Modifier interface {
	Entity

	// Name is the channel-qualified identifier <sample>_<kind>_<parameter>.
	Name() string
	// Kind is the workspace modifier type.
	Kind() string
	// ParName is the shared parameter name.
	ParName() string
	// Sample is the sample this modifier scales.
	Sample() *Sample

	// Size is 0 for a scalar parameter, else the number of bins.
	Size() int
	// Init holds one value per element (one for scalars).
	Init() []float64
	// Bounds holds one (lower, upper) pair per element.
	Bounds() [][2]float64

	// Additive modifiers shift the yield and are applied before
	// multiplicative ones.
	Additive() bool
	// IsNull is true when the modifier provably has no effect.
	IsNull() bool
	// Constrained modifiers get a standard normal constraint.
	Constrained() bool
	// PerChannel modifiers may not share a parameter across channels.
	PerChannel() bool

	modifier()
}

// common holds the attributes every modifier shares.
type common struct {
	base
	name    string
	kind    string
	parName string
	sample  *Sample
}

func newCommon(m workspace.Modifier, s *Sample) common {
	return common{
		name:    Join(s.Name, m.Kind, m.Name),
		kind:    m.Kind,
		parName: m.Name,
		sample:  s,
	}
}

func (c *common) Name() string      { return c.name }
func (c *common) Kind() string      { return c.kind }
func (c *common) ParName() string   { return c.parName }
func (c *common) Sample() *Sample   { return c.sample }
func (c *common) Additive() bool    { return false }
func (c *common) IsNull() bool      { return false }
func (c *common) Constrained() bool { return false }
func (c *common) PerChannel() bool  { return false }
func (c *common) modifier()         {}

// repeat returns n copies of v.
func repeat[T any](v T, n int) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// binned is embedded by per-bin scale factors bounded in [0, 10].
type binned struct{ common }

func (b *binned) Size() int            { return b.sample.Bins }
func (b *binned) Init() []float64      { return repeat(1.0, b.sample.Bins) }
func (b *binned) Bounds() [][2]float64 { return repeat([2]float64{0, 10}, b.sample.Bins) }

// interpolated is embedded by the two interpolation systematics.
type interpolated struct{ common }

func (i *interpolated) Size() int            { return 0 }
func (i *interpolated) Init() []float64      { return []float64{0} }
func (i *interpolated) Bounds() [][2]float64 { return [][2]float64{{-5, 5}} }
func (i *interpolated) Constrained() bool    { return true }

// Factor scales a sample by a scalar (normfactor, lumi).
type Factor struct{ common }

func (f *Factor) Size() int            { return 0 }
func (f *Factor) Init() []float64      { return []float64{1} }
func (f *Factor) Bounds() [][2]float64 { return [][2]float64{{0, 10}} }

func (f *Factor) TransformedParameters() trace.Fragment {
	return trace.Lines(trace.From("Factor", "TransformedParameters"),
		fmt.Sprintf("%s *= %s;", f.sample.ExpectedName, f.parName))
}

// ShapeFactor scales each bin by its own unconstrained factor.
type ShapeFactor struct{ binned }

func (f *ShapeFactor) TransformedParameters() trace.Fragment {
	return trace.Lines(trace.From("ShapeFactor", "TransformedParameters"),
		fmt.Sprintf("%s .*= %s;", f.sample.ExpectedName, f.parName))
}

// StatError scales each bin by a factor constrained through the channel's
// CombinedStatError.
type StatError struct {
	binned
	StdevName string
	Stdev     []float64
}

func (s *StatError) PerChannel() bool { return true }

func (s *StatError) Data() trace.Fragment {
	return trace.Lines(trace.From("StatError", "Data"),
		fmt.Sprintf("vector[%d] %s;", s.sample.Bins, s.StdevName))
}

func (s *StatError) DataCard() *trace.Card {
	return trace.NewCard(trace.From("StatError", "DataCard"), s.StdevName, ir.Vector(s.Stdev))
}

func (s *StatError) TransformedParameters() trace.Fragment {
	return trace.Lines(trace.From("StatError", "TransformedParameters"),
		fmt.Sprintf("%s .*= %s;", s.sample.ExpectedName, s.parName))
}

// ShapeSys scales each bin by a factor constrained by a Poisson auxiliary
// measurement with pseudo-count (nominal / uncertainty)^2.
type ShapeSys struct {
	binned
	RelError     []float64
	RelErrorName string // owner of the shared declaration
	ObservedName string
	ExpectedName string
	ownsData     bool
}

func (s *ShapeSys) claim(cache *dedup.Cache) error {
	owner, first, err := cache.Claim(ir.DomainRelError, ir.Vector(s.RelError), s.RelErrorName)
	if err != nil {
		return err
	}
	s.RelErrorName, s.ownsData = owner, first
	return nil
}

func (s *ShapeSys) Data() trace.Fragment {
	if !s.ownsData {
		return trace.Fragment{}
	}
	return trace.Lines(trace.From("ShapeSys", "Data"),
		fmt.Sprintf("vector[%d] %s;", s.sample.Bins, s.RelErrorName))
}

func (s *ShapeSys) DataCard() *trace.Card {
	if !s.ownsData {
		return nil
	}
	return trace.NewCard(trace.From("ShapeSys", "DataCard"), s.RelErrorName, ir.Vector(s.RelError))
}

func (s *ShapeSys) TransformedData() trace.Fragment {
	return trace.Lines(trace.From("ShapeSys", "TransformedData"),
		fmt.Sprintf("vector[%d] %s = square(%s ./ %s);",
			s.sample.Bins, s.ObservedName, s.sample.NominalName, s.RelErrorName))
}

func (s *ShapeSys) TransformedParameters() trace.Fragment {
	return trace.Lines(trace.From("ShapeSys", "TransformedParameters"),
		fmt.Sprintf("%s .*= %s;", s.sample.ExpectedName, s.parName),
		fmt.Sprintf("vector[%d] %s = %s .* %s;", s.sample.Bins, s.ExpectedName, s.parName, s.ObservedName))
}

func (s *ShapeSys) Model() trace.Fragment {
	return trace.Lines(trace.From("ShapeSys", "Model"),
		sampling("poisson_real", s.ObservedName, s.ExpectedName))
}

// HistoSys shifts each bin additively by interpolating between one-sigma
// down and up templates.
type HistoSys struct {
	interpolated
	Lo, Hi   []float64
	LUName   string // owner of the shared declaration
	ownsData bool
}

func (h *HistoSys) Additive() bool { return true }

func (h *HistoSys) IsNull() bool {
	return slices.Equal(h.Lo, h.Hi) && slices.Equal(h.Lo, h.sample.Nominal)
}

func (h *HistoSys) claim(cache *dedup.Cache) error {
	owner, first, err := cache.Claim(ir.DomainEnvelope, ir.VectorPair(h.Lo, h.Hi), h.LUName)
	if err != nil {
		return err
	}
	h.LUName, h.ownsData = owner, first
	return nil
}

func (h *HistoSys) Data() trace.Fragment {
	if !h.ownsData {
		return trace.Fragment{}
	}
	n := h.sample.Bins
	return trace.Lines(trace.From("HistoSys", "Data"),
		fmt.Sprintf("tuple(vector[%d], vector[%d]) %s;", n, n, h.LUName))
}

func (h *HistoSys) DataCard() *trace.Card {
	if !h.ownsData {
		return nil
	}
	return trace.NewCard(trace.From("HistoSys", "DataCard"), h.LUName, ir.VectorPair(h.Lo, h.Hi))
}

func (h *HistoSys) TransformedParameters() trace.Fragment {
	return trace.Lines(trace.From("HistoSys", "TransformedParameters"),
		fmt.Sprintf("%s += term_interp(%s, %s, %s);",
			h.sample.ExpectedName, h.parName, h.sample.NominalName, h.LUName))
}

// NormSys scales a sample by interpolating between one-sigma down and up
// factors.
type NormSys struct {
	interpolated
	Lo, Hi   float64
	LUName   string // owner of the shared declaration
	ownsData bool
}

func (n *NormSys) IsNull() bool {
	return n.Lo == 1 && n.Hi == 1
}

func (n *NormSys) claim(cache *dedup.Cache) error {
	owner, first, err := cache.Claim(ir.DomainFactor, ir.Pair(n.Lo, n.Hi), n.LUName)
	if err != nil {
		return err
	}
	n.LUName, n.ownsData = owner, first
	return nil
}

func (n *NormSys) Data() trace.Fragment {
	if !n.ownsData {
		return trace.Fragment{}
	}
	return trace.Lines(trace.From("NormSys", "Data"),
		fmt.Sprintf("tuple(real, real) %s;", n.LUName))
}

func (n *NormSys) DataCard() *trace.Card {
	if !n.ownsData {
		return nil
	}
	return trace.NewCard(trace.From("NormSys", "DataCard"), n.LUName, ir.Pair(n.Lo, n.Hi))
}

func (n *NormSys) TransformedParameters() trace.Fragment {
	return trace.Lines(trace.From("NormSys", "TransformedParameters"),
		fmt.Sprintf("%s *= factor_interp(%s, %s);", n.sample.ExpectedName, n.parName, n.LUName))
}

// sharer is implemented by modifiers whose auxiliary data is deduplicated.
type sharer interface {
	claim(cache *dedup.Cache) error
}

var (
	_ sharer = (*ShapeSys)(nil)
	_ sharer = (*HistoSys)(nil)
	_ sharer = (*NormSys)(nil)
)

// newModifier builds the variant for a decoded workspace modifier.
func newModifier(m workspace.Modifier, s *Sample) (Modifier, error) {
	c := newCommon(m, s)
	switch m.Kind {
	case workspace.KindNormFactor, workspace.KindLumi:
		return &Factor{common: c}, nil
	case workspace.KindShapeFactor:
		return &ShapeFactor{binned: binned{c}}, nil
	case workspace.KindStatError:
		return &StatError{
			binned:    binned{c},
			StdevName: Join("stdev", c.name),
			Stdev:     m.Values,
		}, nil
	case workspace.KindShapeSys:
		return &ShapeSys{
			binned:       binned{c},
			RelError:     m.Values,
			RelErrorName: Join("rel_error", c.name),
			ObservedName: Join("observed", c.name),
			ExpectedName: Join("expected", c.name),
			ownsData:     true,
		}, nil
	case workspace.KindHistoSys:
		return &HistoSys{
			interpolated: interpolated{c},
			Lo:           m.LoData,
			Hi:           m.HiData,
			LUName:       Join("lu", c.name),
			ownsData:     true,
		}, nil
	case workspace.KindNormSys:
		return &NormSys{
			interpolated: interpolated{c},
			Lo:           m.Lo,
			Hi:           m.Hi,
			LUName:       Join("lu", c.name),
			ownsData:     true,
		}, nil
	}
	return nil, &workspace.SchemaError{
		Code:    workspace.ErrCodeBadValue,
		Path:    s.Name,
		Message: fmt.Sprintf("unknown modifier type %q", m.Kind),
	}
}
