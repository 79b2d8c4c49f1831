package validate

import (
	"math"
	"math/rand/v2"

	"github.com/roach88/stanhf/internal/ir"
)

// DefaultScale is the default perturbation width relative to each value.
const DefaultScale = 0.01

// Point is a parameter assignment: ir.Real for scalars, ir.Vector for
// vectors.
type Point = ir.Object

// Perturber offsets every element v of a point to v + scale*max(|v|,1)*z
// with z standard normal.
type Perturber struct {
	Scale float64
	rng   *rand.Rand
}

// NewPerturber returns a seeded perturber. The same seed gives the same
// sequence of points.
func NewPerturber(scale float64, seed uint64) *Perturber {
	return &Perturber{Scale: scale, rng: rand.New(rand.NewPCG(seed, seed))}
}

// Perturb returns a perturbed copy of p. Keys are visited in sorted order
// so that the draws are reproducible.
func (pt *Perturber) Perturb(p Point) Point {
	out := make(Point, len(p))
	for _, k := range p.SortedKeys() {
		switch v := p[k].(type) {
		case ir.Real:
			out[k] = ir.Real(pt.offset(float64(v)))
		case ir.Vector:
			w := make(ir.Vector, len(v))
			for i, x := range v {
				w[i] = pt.offset(x)
			}
			out[k] = w
		default:
			out[k] = v
		}
	}
	return out
}

func (pt *Perturber) offset(v float64) float64 {
	return v + pt.Scale*math.Max(math.Abs(v), 1)*pt.rng.NormFloat64()
}
