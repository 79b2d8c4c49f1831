package model

import (
	"fmt"
	"strings"

	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/trace"
)

// Channel is one binned region with a Poisson likelihood over the sum of
// its samples.
type Channel struct {
	base
	Name         string
	Bins         int
	Observed     []int64
	Samples      []*Sample
	ExpectedName string
	ObservedName string
}

// Modifiers returns the channel's modifiers in sample order.
func (c *Channel) Modifiers() []Modifier {
	var out []Modifier
	for _, s := range c.Samples {
		out = append(out, s.Modifiers...)
	}
	return out
}

func (c *Channel) Data() trace.Fragment {
	return trace.Lines(trace.From("Channel", "Data"),
		fmt.Sprintf("array[%d] int %s;", c.Bins, c.ObservedName))
}

func (c *Channel) DataCard() *trace.Card {
	return trace.NewCard(trace.From("Channel", "DataCard"), c.ObservedName, ir.IntArray(c.Observed))
}

func (c *Channel) TransformedParameters() trace.Fragment {
	total := fmt.Sprintf("rep_vector(0, %d)", c.Bins)
	if len(c.Samples) > 0 {
		names := make([]string, len(c.Samples))
		for i, s := range c.Samples {
			names[i] = s.ExpectedName
		}
		total = strings.Join(names, " + ")
	}
	return trace.Lines(trace.From("Channel", "TransformedParameters"),
		fmt.Sprintf("vector[%d] %s = %s;", c.Bins, c.ExpectedName, total))
}

func (c *Channel) Model() trace.Fragment {
	return trace.Lines(trace.From("Channel", "Model"),
		sampling("poisson", c.ObservedName, c.ExpectedName))
}

// GeneratedQuantities draws posterior-predictive counts.
func (c *Channel) GeneratedQuantities() trace.Fragment {
	return trace.Lines(trace.From("Channel", "GeneratedQuantities"),
		fmt.Sprintf("array[%d] int %s = poisson_rng(%s);", c.Bins, Join("rv", c.ExpectedName), c.ExpectedName))
}
