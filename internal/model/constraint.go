package model

import (
	"fmt"
	"strings"

	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/trace"
)

// Measured is a normal auxiliary measurement of a parameter, from a
// configuration entry with both auxdata and sigmas.
type Measured struct {
	base
	ParName  string
	DataName string
	Mean     float64
	Sigma    float64
}

func (m *Measured) Data() trace.Fragment {
	return trace.Lines(trace.From("Measured", "Data"),
		fmt.Sprintf("tuple(real, real) %s;", m.DataName))
}

func (m *Measured) DataCard() *trace.Card {
	return trace.NewCard(trace.From("Measured", "DataCard"), m.DataName, ir.Pair(m.Mean, m.Sigma))
}

func (m *Measured) Model() trace.Fragment {
	return trace.Lines(trace.From("Measured", "Model"),
		sampling("normal", m.ParName, m.DataName+".1", m.DataName+".2"))
}

// StandardNormal constrains an interpolation parameter.
type StandardNormal struct {
	base
	ParName string
}

func (c *StandardNormal) Model() trace.Fragment {
	return trace.Lines(trace.From("StandardNormal", "Model"), sampling("std_normal", c.ParName))
}

// CombinedStatError constrains one staterror parameter of one channel by a
// normal centred at one, whose width is the root-sum-square of the
// samples' uncertainties relative to their summed nominal yields.
type CombinedStatError struct {
	base
	ParName   string
	StdevName string
	Channel   *Channel
	Members   []*StatError
}

// Variance returns the summed per-bin variance of the members.
func (c *CombinedStatError) Variance() []float64 {
	v := make([]float64, c.Channel.Bins)
	for _, m := range c.Members {
		for i, s := range m.Stdev {
			v[i] += s * s
		}
	}
	return v
}

func (c *CombinedStatError) TransformedData() trace.Fragment {
	variance := make([]string, len(c.Members))
	nominal := make([]string, len(c.Members))
	for i, m := range c.Members {
		variance[i] = m.StdevName + ".^2"
		nominal[i] = m.sample.NominalName
	}
	return trace.Lines(trace.From("CombinedStatError", "TransformedData"),
		fmt.Sprintf("vector[%d] %s = sqrt(%s) ./ (%s);",
			c.Channel.Bins, c.StdevName, strings.Join(variance, " + "), strings.Join(nominal, " + ")))
}

func (c *CombinedStatError) Model() trace.Fragment {
	return trace.Lines(trace.From("CombinedStatError", "Model"),
		sampling("normal", c.ParName, "1", c.StdevName))
}
