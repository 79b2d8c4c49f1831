package store

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stanhf/internal/convert"
	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/validate"
)

func conversion(root string) *Conversion {
	return &Conversion{
		Key:           "key-" + root,
		Workspace:     root + ".json",
		WorkspaceHash: "abc",
		Root:          root,
		ProgramHash:   "def",
		Summary: convert.Summary{
			Channels: 1, Samples: 2, Modifiers: 2, SharedBlocks: 1, POI: "mu",
			Parameters: convert.ParNames{Sampled: []string{"mu"}, Fixed: []string{}, Null: []string{}},
		},
		Warnings: []ir.Warning{ir.Warnf(ir.WarnEmissionSkipped, "%s_data.json is newer than its inputs", root)},
		Written:  []string{root + ".stan"},
	}
}

func TestWriteConversionAssignsIdentity(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	a, b := conversion("simple"), conversion("simple")
	require.NoError(t, s.WriteConversion(ctx, a))
	require.NoError(t, s.WriteConversion(ctx, b))

	assert.Len(t, a.ID, 36)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, int64(1), a.Seq)
	assert.Equal(t, int64(2), b.Seq)
	assert.Equal(t, ir.GeneratorVersion, a.GeneratorVersion)
	assert.False(t, a.CreatedAt.IsZero())
}

func TestListConversions(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for _, root := range []string{"simple", "full", "simple"} {
		require.NoError(t, s.WriteConversion(ctx, conversion(root)))
	}

	all, err := s.ListConversions(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].Seq, all[1].Seq, all[2].Seq})

	simple, err := s.ListConversions(ctx, "simple")
	require.NoError(t, err)
	require.Len(t, simple, 2)
	assert.Equal(t, conversion("simple").Summary, simple[0].Summary)
	assert.Equal(t, conversion("simple").Warnings, simple[0].Warnings)
	assert.Equal(t, []string{"simple.stan"}, simple[0].Written)
}

func TestListConversionsEmpty(t *testing.T) {
	s := openTest(t)
	got, err := s.ListConversions(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestReadConversion(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	c := conversion("simple")
	require.NoError(t, s.WriteConversion(ctx, c))

	got, err := s.ReadConversion(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Key, got.Key)
	assert.True(t, c.CreatedAt.Equal(got.CreatedAt))

	_, err = s.ReadConversion(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestWriteValidation(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	c := conversion("simple")
	require.NoError(t, s.WriteConversion(ctx, c))

	points, err := json.Marshal([2]ir.Object{{"free_mu": ir.Vector{1.01}}, {"free_mu": ir.Vector{0.99}}})
	require.NoError(t, err)
	passed := &Validation{ConversionID: c.ID, Passed: true, ProgramDelta: -0.5, OracleDelta: -0.5,
		Points: points, Seed: 1 << 63, Scale: 0.01, Tolerance: 1e-6}
	failed := &Validation{ConversionID: c.ID, Code: "E303", Message: "no agreement in target", Seed: 2, Scale: 0.01, Tolerance: 1e-6}
	require.NoError(t, s.WriteValidation(ctx, passed))
	require.NoError(t, s.WriteValidation(ctx, failed))

	got, err := s.ListValidations(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Passed)
	assert.Equal(t, uint64(1<<63), got[0].Seed)
	assert.JSONEq(t, `[{"free_mu":[1.01]},{"free_mu":[0.99]}]`, string(got[0].Points))
	assert.False(t, got[1].Passed)
	assert.Equal(t, "E303", got[1].Code)
	assert.JSONEq(t, `[]`, string(got[1].Points))
}

func TestWriteValidationNonFiniteDeltas(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	c := conversion("simple")
	require.NoError(t, s.WriteConversion(ctx, c))
	v := &Validation{ConversionID: c.ID, Code: "E303", Message: "no agreement in target",
		ProgramDelta: validate.Delta(math.NaN()), OracleDelta: validate.Delta(math.Inf(-1)), Seed: 1, Scale: 0.01, Tolerance: 1e-6}
	require.NoError(t, s.WriteValidation(ctx, v))

	got, err := s.ListValidations(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, math.IsNaN(float64(got[0].ProgramDelta)))
	assert.True(t, math.IsInf(float64(got[0].OracleDelta), -1))

	data, err := json.Marshal(got[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"program_delta":"NaN","oracle_delta":"-Inf"`)
}

func TestWriteValidationRequiresConversion(t *testing.T) {
	s := openTest(t)
	err := s.WriteValidation(context.Background(), &Validation{ConversionID: "missing", Scale: 0.01, Tolerance: 1e-6})
	assert.Error(t, err)
}
