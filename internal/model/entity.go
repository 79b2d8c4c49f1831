package model

import (
	"strings"

	"github.com/roach88/stanhf/internal/trace"
)

// Stage is one block of the generated program, in program order.
type Stage int

const (
	StageFunctions Stage = iota
	StageData
	StageTransformedData
	StageParameters
	StageTransformedParameters
	StageModel
	StageGeneratedQuantities
)

// Stages lists every stage in program order.
var Stages = []Stage{
	StageFunctions,
	StageData,
	StageTransformedData,
	StageParameters,
	StageTransformedParameters,
	StageModel,
	StageGeneratedQuantities,
}

// String returns the block keyword.
func (s Stage) String() string {
	switch s {
	case StageFunctions:
		return "functions"
	case StageData:
		return "data"
	case StageTransformedData:
		return "transformed data"
	case StageParameters:
		return "parameters"
	case StageTransformedParameters:
		return "transformed parameters"
	case StageModel:
		return "model"
	case StageGeneratedQuantities:
		return "generated quantities"
	}
	return "unknown"
}

// Entity is anything that contributes to the generated program. An empty
// fragment or a nil card means no contribution.
type Entity interface {
	Data() trace.Fragment
	TransformedData() trace.Fragment
	Parameters() trace.Fragment
	TransformedParameters() trace.Fragment
	Model() trace.Fragment
	GeneratedQuantities() trace.Fragment
	DataCard() *trace.Card
	InitCard() *trace.Card
}

// Emit returns the entity's fragment for a stage. Entities never
// contribute to the functions stage.
func Emit(e Entity, s Stage) trace.Fragment {
	switch s {
	case StageData:
		return e.Data()
	case StageTransformedData:
		return e.TransformedData()
	case StageParameters:
		return e.Parameters()
	case StageTransformedParameters:
		return e.TransformedParameters()
	case StageModel:
		return e.Model()
	case StageGeneratedQuantities:
		return e.GeneratedQuantities()
	}
	return trace.Fragment{}
}

// base gives entities an empty contribution to every stage.
type base struct{}

func (base) Data() trace.Fragment                  { return trace.Fragment{} }
func (base) TransformedData() trace.Fragment       { return trace.Fragment{} }
func (base) Parameters() trace.Fragment            { return trace.Fragment{} }
func (base) TransformedParameters() trace.Fragment { return trace.Fragment{} }
func (base) Model() trace.Fragment                 { return trace.Fragment{} }
func (base) GeneratedQuantities() trace.Fragment   { return trace.Fragment{} }
func (base) DataCard() *trace.Card                 { return nil }
func (base) InitCard() *trace.Card                 { return nil }

// sampling builds a "x ~ dist(args);" statement.
func sampling(dist, variate string, args ...string) string {
	return variate + " ~ " + dist + "(" + strings.Join(args, ", ") + ");"
}
