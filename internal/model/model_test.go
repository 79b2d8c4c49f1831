package model

import (
	"fmt"
	"strings"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stanhf/internal/dedup"
	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/trace"
	"github.com/roach88/stanhf/internal/workspace"
)

func build(t *testing.T, ws *workspace.Workspace) (*Model, []ir.Warning) {
	t.Helper()
	m, warnings, err := Build(ws, dedup.New())
	require.NoError(t, err)
	return m, warnings
}

// stage renders every entity's fragment for one stage without origins.
func stage(m *Model, s Stage) string {
	var frags []trace.Fragment
	for _, e := range m.Entities() {
		frags = append(frags, Emit(e, s))
	}
	return trace.Join(frags, true)
}

// cardKeys merges all data cards and returns their keys.
func cardKeys(t *testing.T, m *Model, init bool) []string {
	t.Helper()
	var cards []*trace.Card
	for _, e := range m.Entities() {
		if init {
			cards = append(cards, e.InitCard())
		} else {
			cards = append(cards, e.DataCard())
		}
	}
	merged, err := trace.Merge(cards...)
	require.NoError(t, err)
	return merged.Keys()
}

func oneBin(mods ...workspace.Modifier) *workspace.Workspace {
	return &workspace.Workspace{
		Channels: []workspace.Channel{{
			Name:     "SR",
			Observed: []int64{10},
			Samples:  []workspace.Sample{{Name: "sig", Nominal: []float64{8}, Modifiers: mods}},
		}},
	}
}

func TestBuildNormFactor(t *testing.T) {
	m, warnings := build(t, oneBin(workspace.Modifier{Name: "mu", Kind: workspace.KindNormFactor}))
	assert.Empty(t, warnings)

	require.Len(t, m.Parameters, 1)
	assert.Equal(t, ClassFree, m.Parameters[0].Class())
	assert.Empty(t, m.Constraints)

	assert.Equal(t, "vector[1] nominal_SR_sig;\ntuple(real, real) lu_mu;\narray[1] int observed_SR;", stage(m, StageData))
	assert.Equal(t, "real<lower=lu_mu.1, upper=lu_mu.2> mu;", stage(m, StageParameters))
	assert.Equal(t, "vector[1] expected_SR_sig = nominal_SR_sig;\n"+
		"expected_SR_sig *= mu;\n"+
		"vector[1] expected_SR = expected_SR_sig;", stage(m, StageTransformedParameters))
	assert.Equal(t, "observed_SR ~ poisson(expected_SR);", stage(m, StageModel))
	assert.Equal(t, "array[1] int rv_expected_SR = poisson_rng(expected_SR);", stage(m, StageGeneratedQuantities))
	assert.Equal(t, "", stage(m, StageTransformedData))

	assert.Equal(t, []string{"nominal_SR_sig", "lu_mu", "observed_SR"}, cardKeys(t, m, false))
	assert.Equal(t, []string{"mu"}, cardKeys(t, m, true))
	v, _ := m.Parameters[0].InitCard().Get("mu")
	assert.Equal(t, ir.Real(1), v)
}

func TestBuildNullHistoSys(t *testing.T) {
	m, _ := build(t, oneBin(workspace.Modifier{
		Name: "jes", Kind: workspace.KindHistoSys, LoData: []float64{8}, HiData: []float64{8},
	}))

	require.Len(t, m.Parameters, 1)
	assert.Equal(t, ClassNull, m.Parameters[0].Class())
	assert.True(t, m.Modifiers[0].IsNull())
	assert.Empty(t, m.NonNullModifiers())
	assert.Empty(t, m.Constraints)

	for _, s := range Stages {
		assert.NotContains(t, stage(m, s), "jes", s.String())
	}
	assert.Equal(t, []string{"nominal_SR_sig", "observed_SR"}, cardKeys(t, m, false))
	assert.Empty(t, cardKeys(t, m, true))
}

func TestNormSysIsNull(t *testing.T) {
	m, _ := build(t, oneBin(
		workspace.Modifier{Name: "flat", Kind: workspace.KindNormSys, Lo: 1, Hi: 1},
		workspace.Modifier{Name: "xsec", Kind: workspace.KindNormSys, Lo: 0.9, Hi: 1.1},
	))
	assert.True(t, m.Modifiers[0].IsNull())
	assert.False(t, m.Modifiers[1].IsNull())
	assert.True(t, strings.HasSuffix(stage(m, StageModel), "\nxsec ~ std_normal();"))
	assert.NotContains(t, stage(m, StageModel), "flat")
}

func TestAdditiveModifiersFirst(t *testing.T) {
	m, _ := build(t, oneBin(
		workspace.Modifier{Name: "mu", Kind: workspace.KindNormFactor},
		workspace.Modifier{Name: "xsec", Kind: workspace.KindNormSys, Lo: 0.9, Hi: 1.1},
		workspace.Modifier{Name: "jes", Kind: workspace.KindHistoSys, LoData: []float64{7}, HiData: []float64{9}},
		workspace.Modifier{Name: "jer", Kind: workspace.KindHistoSys, LoData: []float64{7.5}, HiData: []float64{8.5}},
	))

	var kinds []string
	for _, mod := range m.Samples[0].Modifiers {
		kinds = append(kinds, mod.Name())
	}
	want := []string{"SR_sig_histosys_jes", "SR_sig_histosys_jer", "SR_sig_normfactor_mu", "SR_sig_normsys_xsec"}
	if diff := pretty.Compare(want, kinds); diff != "" {
		t.Errorf("modifier order (-want +got):\n%s", diff)
	}

	tp := stage(m, StageTransformedParameters)
	assert.Less(t, strings.Index(tp, "term_interp(jer"), strings.Index(tp, "*= mu"))
	assert.Less(t, strings.Index(tp, "*= mu"), strings.Index(tp, "factor_interp(xsec"))
}

func TestRepeatedModifiersCoalesced(t *testing.T) {
	m, warnings := build(t, oneBin(
		workspace.Modifier{Name: "xsec", Kind: workspace.KindNormSys, Lo: 0.9, Hi: 1.1},
		workspace.Modifier{Name: "mu", Kind: workspace.KindNormFactor},
		workspace.Modifier{Name: "xsec", Kind: workspace.KindNormSys, Lo: 0.8, Hi: 1.2},
	))

	require.Len(t, warnings, 1)
	assert.Equal(t, ir.WarnModifierOverwrite, warnings[0].Code)
	assert.Contains(t, warnings[0].Message, "SR_sig_normsys_xsec")

	mods := m.Samples[0].Modifiers
	require.Len(t, mods, 2)
	ns, ok := mods[0].(*NormSys)
	require.True(t, ok, "first position is kept")
	assert.Equal(t, 0.8, ns.Lo, "last value wins")
}

func TestDedupSharesEnvelope(t *testing.T) {
	env := workspace.Modifier{Name: "jes", Kind: workspace.KindHistoSys, LoData: []float64{7, 9}, HiData: []float64{9, 11}}
	ws := &workspace.Workspace{
		Channels: []workspace.Channel{{
			Name:     "SR",
			Observed: []int64{10, 10},
			Samples: []workspace.Sample{
				{Name: "a", Nominal: []float64{8, 10}, Modifiers: []workspace.Modifier{env}},
				{Name: "b", Nominal: []float64{8, 10}, Modifiers: []workspace.Modifier{env}},
				{Name: "c", Nominal: []float64{8, 10}, Modifiers: []workspace.Modifier{
					{Name: "jes", Kind: workspace.KindHistoSys, LoData: []float64{6, 9}, HiData: []float64{9, 11}},
				}},
			},
		}},
	}
	m, _ := build(t, ws)

	a := m.Samples[0].Modifiers[0].(*HistoSys)
	b := m.Samples[1].Modifiers[0].(*HistoSys)
	c := m.Samples[2].Modifiers[0].(*HistoSys)
	assert.Equal(t, "lu_SR_a_histosys_jes", a.LUName)
	assert.Equal(t, "lu_SR_a_histosys_jes", b.LUName, "identical envelope references the first declaration")
	assert.Equal(t, "lu_SR_c_histosys_jes", c.LUName)

	assert.False(t, trace.Empty(a.Data()))
	assert.True(t, trace.Empty(b.Data()))
	assert.Nil(t, b.DataCard())
	assert.Contains(t, b.TransformedParameters().Value, "term_interp(jes, nominal_SR_b, lu_SR_a_histosys_jes)")

	keys := cardKeys(t, m, false)
	assert.Contains(t, keys, "lu_SR_a_histosys_jes")
	assert.NotContains(t, keys, "lu_SR_b_histosys_jes")
	assert.Contains(t, keys, "lu_SR_c_histosys_jes")
}

func TestDedupIgnoresNullModifiers(t *testing.T) {
	// The null envelope must not claim the block that the second sample
	// declares.
	ws := &workspace.Workspace{
		Channels: []workspace.Channel{{
			Name:     "SR",
			Observed: []int64{10},
			Samples: []workspace.Sample{
				{Name: "a", Nominal: []float64{8}, Modifiers: []workspace.Modifier{
					{Name: "jes", Kind: workspace.KindHistoSys, LoData: []float64{8}, HiData: []float64{8}},
				}},
				{Name: "b", Nominal: []float64{5}, Modifiers: []workspace.Modifier{
					{Name: "jes", Kind: workspace.KindHistoSys, LoData: []float64{8}, HiData: []float64{8}},
				}},
			},
		}},
	}
	m, _ := build(t, ws)
	b := m.Samples[1].Modifiers[0].(*HistoSys)
	assert.Equal(t, "lu_SR_b_histosys_jes", b.LUName)
	assert.Contains(t, cardKeys(t, m, false), "lu_SR_b_histosys_jes")
}

func TestCombinedStatError(t *testing.T) {
	stat := workspace.Modifier{Name: "stat_bin0", Kind: workspace.KindStatError, Values: []float64{0.1}}
	ws := &workspace.Workspace{
		Channels: []workspace.Channel{{
			Name:     "SR",
			Observed: []int64{10},
			Samples: []workspace.Sample{
				{Name: "a", Nominal: []float64{4}, Modifiers: []workspace.Modifier{stat}},
				{Name: "b", Nominal: []float64{6}, Modifiers: []workspace.Modifier{stat}},
			},
		}},
	}
	m, warnings := build(t, ws)
	assert.Empty(t, warnings)

	require.Len(t, m.StatErrors, 1)
	c := m.StatErrors[0]
	assert.Equal(t, "stdev_SR_stat_bin0", c.StdevName)
	assert.Len(t, c.Members, 2)
	assert.Equal(t,
		"vector[1] stdev_SR_stat_bin0 = sqrt(stdev_SR_a_staterror_stat_bin0.^2 + stdev_SR_b_staterror_stat_bin0.^2) ./ (nominal_SR_a + nominal_SR_b);",
		c.TransformedData().Value)
	assert.Equal(t, "stat_bin0 ~ normal(1, stdev_SR_stat_bin0);", c.Model().Value)

	model := stage(m, StageModel)
	assert.Equal(t, 1, strings.Count(model, "~ normal(1,"))

	require.Len(t, m.Parameters, 1)
	assert.Equal(t, 1, m.Parameters[0].Size())
}

func TestZeroVarianceWarns(t *testing.T) {
	m, warnings := build(t, oneBin(workspace.Modifier{Name: "stat", Kind: workspace.KindStatError, Values: []float64{0}}))
	require.Len(t, m.StatErrors, 1)
	require.Len(t, warnings, 1)
	assert.Equal(t, ir.WarnZeroVariance, warnings[0].Code)
}

func TestStatErrorAcrossChannelsIsFatal(t *testing.T) {
	stat := workspace.Modifier{Name: "stat", Kind: workspace.KindStatError, Values: []float64{0.1}}
	ws := &workspace.Workspace{
		Channels: []workspace.Channel{
			{Name: "SR", Observed: []int64{1}, Samples: []workspace.Sample{{Name: "a", Nominal: []float64{1}, Modifiers: []workspace.Modifier{stat}}}},
			{Name: "CR", Observed: []int64{1}, Samples: []workspace.Sample{{Name: "a", Nominal: []float64{1}, Modifiers: []workspace.Modifier{stat}}}},
		},
	}
	_, _, err := Build(ws, dedup.New())
	require.Error(t, err)
	assert.True(t, IsConsistencyError(err))
	assert.Contains(t, err.Error(), ErrCodeCrossChannel)
}

func TestShapeSys(t *testing.T) {
	m, _ := build(t, oneBin(workspace.Modifier{Name: "bkg_unc", Kind: workspace.KindShapeSys, Values: []float64{2}}))
	mod := m.Samples[0].Modifiers[0].(*ShapeSys)

	assert.Equal(t, "vector[1] rel_error_SR_sig_shapesys_bkg_unc;", mod.Data().Value)
	assert.Equal(t, "vector[1] observed_SR_sig_shapesys_bkg_unc = square(nominal_SR_sig ./ rel_error_SR_sig_shapesys_bkg_unc);",
		mod.TransformedData().Value)
	assert.Equal(t, "expected_SR_sig .*= bkg_unc;\nvector[1] expected_SR_sig_shapesys_bkg_unc = bkg_unc .* observed_SR_sig_shapesys_bkg_unc;",
		mod.TransformedParameters().Value)
	assert.Equal(t, "observed_SR_sig_shapesys_bkg_unc ~ poisson_real(expected_SR_sig_shapesys_bkg_unc);", mod.Model().Value)

	p := m.Parameters[0]
	assert.Equal(t, ClassFree, p.Class())
	assert.Equal(t, "vector<lower=lu_bkg_unc.1, upper=lu_bkg_unc.2>[1] bkg_unc;", p.Parameters().Value)
	v, _ := p.DataCard().Get("lu_bkg_unc")
	assert.Equal(t, ir.VectorPair([]float64{0}, []float64{10}), v)
}

func TestSanitizedNames(t *testing.T) {
	ws := &workspace.Workspace{
		Channels: []workspace.Channel{{
			Name:     "SR-1 jet",
			Observed: []int64{3},
			Samples:  []workspace.Sample{{Name: "t.tbar", Nominal: []float64{2}}},
		}},
	}
	m, _ := build(t, ws)
	assert.Equal(t, "SR_1_jet", m.Channels[0].Name)
	assert.Equal(t, "SR_1_jet_t_tbar", m.Samples[0].Name)
	assert.Equal(t, "expected_SR_1_jet", m.Channels[0].ExpectedName)
}

func TestEmptyChannel(t *testing.T) {
	ws := &workspace.Workspace{Channels: []workspace.Channel{{Name: "SR", Observed: []int64{0, 0}}}}
	m, _ := build(t, ws)
	assert.Equal(t, "vector[2] expected_SR = rep_vector(0, 2);", m.Channels[0].TransformedParameters().Value)
}

func TestEntityOrder(t *testing.T) {
	ws := oneBin(
		workspace.Modifier{Name: "mu", Kind: workspace.KindNormFactor},
		workspace.Modifier{Name: "lumi", Kind: workspace.KindLumi},
		workspace.Modifier{Name: "xsec", Kind: workspace.KindNormSys, Lo: 0.9, Hi: 1.1},
		workspace.Modifier{Name: "stat", Kind: workspace.KindStatError, Values: []float64{0.5}},
	)
	ws.Config = workspace.Config{POI: "mu", Parameters: []workspace.ParameterConfig{
		{Name: "lumi", AuxData: []float64{1}, Sigmas: []float64{0.02}},
	}}
	m, _ := build(t, ws)

	var kinds []string
	for _, e := range m.Entities() {
		kinds = append(kinds, fmt.Sprintf("%T", e))
	}
	want := []string{
		"*model.Sample",
		"*model.POI", "*model.FreeParameter", "*model.FreeParameter", "*model.FreeParameter",
		"*model.Measured",
		"*model.Factor", "*model.Factor", "*model.NormSys", "*model.StatError",
		"*model.Channel",
		"*model.StandardNormal",
		"*model.CombinedStatError",
	}
	if diff := pretty.Compare(want, kinds); diff != "" {
		t.Errorf("entity order (-want +got):\n%s", diff)
	}
}
