package workspace

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/stanhf/internal/ir"
)

// Modifier kinds accepted in a workspace.
const (
	KindNormFactor  = "normfactor"
	KindLumi        = "lumi"
	KindShapeFactor = "shapefactor"
	KindStatError   = "staterror"
	KindShapeSys    = "shapesys"
	KindHistoSys    = "histosys"
	KindNormSys     = "normsys"
)

// Kinds lists every modifier kind in a fixed order.
var Kinds = []string{KindNormFactor, KindLumi, KindShapeFactor, KindStatError, KindShapeSys, KindHistoSys, KindNormSys}

var identRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// reserved are target-language keywords that cannot name a parameter.
var reserved = map[string]bool{
	"for": true, "in": true, "while": true, "repeat": true, "until": true,
	"if": true, "then": true, "else": true, "true": true, "false": true,
	"target": true, "int": true, "real": true, "complex": true,
	"vector": true, "array": true, "tuple": true, "matrix": true,
	"return": true, "void": true, "break": true, "continue": true,
	"profile": true, "print": true, "reject": true, "fatal_error": true,
}

// ValidIdentifier reports whether name can be used verbatim as a parameter
// identifier in the generated program.
func ValidIdentifier(name string) bool {
	return identRe.MatchString(name) && !strings.HasSuffix(name, "__") && !reserved[name]
}

// Workspace is the typed, validated view of a document for one measurement.
// It is immutable once returned by Parse.
type Workspace struct {
	Source   string // workspace file name
	Version  string // HistFactory schema version
	Hash     string // content hash of the (patched) document
	Patch    *PatchInfo
	Channels []Channel
	Config   Config
}

// Channel is one binned region.
type Channel struct {
	Name     string
	Observed []int64
	Samples  []Sample
}

// Bins returns the channel bin count.
func (c Channel) Bins() int {
	return len(c.Observed)
}

// Sample is one process contributing to a channel.
type Sample struct {
	Name      string
	Nominal   []float64
	Modifiers []Modifier
}

// Modifier is a decoded modifier. Which data fields are set depends on Kind.
type Modifier struct {
	Name string
	Kind string

	// Values holds staterror standard deviations or shapesys uncertainties.
	Values []float64

	// LoData/HiData hold histosys envelopes.
	LoData []float64
	HiData []float64

	// Lo/Hi hold normsys factors.
	Lo float64
	Hi float64
}

// Config is the measurement configuration.
type Config struct {
	Measurement string
	POI         string
	Parameters  []ParameterConfig
}

// ParameterConfig holds per-parameter settings. Nil slices mean unset.
type ParameterConfig struct {
	Name    string
	Inits   []float64
	Bounds  [][2]float64
	Fixed   bool
	AuxData []float64
	Sigmas  []float64
}

// Measured reports whether the entry describes an auxiliary measurement.
func (p ParameterConfig) Measured() bool {
	return len(p.AuxData) > 0 && len(p.Sigmas) > 0
}

// Lookup returns the settings for a parameter name.
func (c Config) Lookup(name string) (ParameterConfig, bool) {
	for _, p := range c.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterConfig{}, false
}

// Parse builds the typed workspace. measurement selects the configuration
// block; empty means the first one. Recoverable problems are returned as
// warnings in the order they were found.
func (d *Document) Parse(measurement string) (*Workspace, []ir.Warning, error) {
	var warnings []ir.Warning

	ws := &Workspace{
		Source:  d.Path,
		Version: d.parsed.Version,
		Hash:    d.Hash(),
		Patch:   d.patch,
	}

	if len(d.parsed.Channels) == 0 {
		return nil, nil, schemaErrorf(ErrCodeMissing, "channels", "workspace has no channels")
	}

	observed := make(map[string][]int64, len(d.parsed.Observations))
	for i, obs := range d.parsed.Observations {
		path := fmt.Sprintf("observations[%d]", i)
		counts, coerced, err := readObserved(path, obs.Data)
		if err != nil {
			return nil, nil, err
		}
		if coerced {
			warnings = append(warnings, ir.Warnf(ir.WarnObservedCoerced,
				"observed counts for %s converted to integer: %v vs. %v", obs.Name, counts, obs.Data))
		}
		observed[obs.Name] = counts
	}

	seen := make(map[string]bool, len(d.parsed.Channels))
	for i, rc := range d.parsed.Channels {
		path := fmt.Sprintf("channels[%d]", i)
		if seen[rc.Name] {
			return nil, nil, schemaErrorf(ErrCodeBadValue, path, "duplicate channel %q", rc.Name)
		}
		seen[rc.Name] = true

		counts, ok := observed[rc.Name]
		if !ok {
			return nil, nil, schemaErrorf(ErrCodeMissing, path, "no observations for channel %q", rc.Name)
		}
		ch := Channel{Name: rc.Name, Observed: counts}
		for j, rs := range rc.Samples {
			sample, err := parseSample(fmt.Sprintf("%s.samples[%d]", path, j), rs, len(counts))
			if err != nil {
				return nil, nil, err
			}
			ch.Samples = append(ch.Samples, sample)
		}
		ws.Channels = append(ws.Channels, ch)
	}

	cfg, warn, err := d.config(measurement)
	if err != nil {
		return nil, nil, err
	}
	if warn != nil {
		warnings = append(warnings, *warn)
	}
	ws.Config = cfg
	return ws, warnings, nil
}

// config selects a measurement. A document without measurements yields an
// empty configuration and a warning; a named measurement that does not
// exist is an error.
func (d *Document) config(name string) (Config, *ir.Warning, error) {
	if len(d.parsed.Measurements) == 0 {
		if name != "" {
			return Config{}, nil, schemaErrorf(ErrCodeMissing, "measurements", "no measurement named %q", name)
		}
		w := ir.Warnf(ir.WarnNoConfig, "no configuration data found")
		return Config{}, &w, nil
	}

	idx := 0
	if name != "" {
		idx = slices.IndexFunc(d.parsed.Measurements, func(m rawMeasurement) bool { return m.Name == name })
		if idx < 0 {
			return Config{}, nil, schemaErrorf(ErrCodeMissing, "measurements", "no measurement named %q", name)
		}
	}

	m := d.parsed.Measurements[idx]
	cfg := Config{Measurement: m.Name, POI: m.Config.POI}
	seen := make(map[string]bool)
	for i, p := range m.Config.Parameters {
		path := fmt.Sprintf("measurements[%d].config.parameters[%d]", idx, i)
		if seen[p.Name] {
			return Config{}, nil, schemaErrorf(ErrCodeBadValue, path, "duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		for _, b := range p.Bounds {
			if b[0] > b[1] {
				return Config{}, nil, schemaErrorf(ErrCodeBadValue, path, "bound %v has lower above upper", b)
			}
		}
		cfg.Parameters = append(cfg.Parameters, ParameterConfig{
			Name:    p.Name,
			Inits:   p.Inits,
			Bounds:  p.Bounds,
			Fixed:   p.Fixed,
			AuxData: p.AuxData,
			Sigmas:  p.Sigmas,
		})
	}
	return cfg, nil, nil
}

func parseSample(path string, rs rawSample, bins int) (Sample, error) {
	if len(rs.Data) != bins {
		return Sample{}, schemaErrorf(ErrCodeShape, path,
			"sample %q has %d bins, channel has %d", rs.Name, len(rs.Data), bins)
	}
	s := Sample{Name: rs.Name, Nominal: rs.Data}
	for k, rm := range rs.Modifiers {
		m, err := parseModifier(fmt.Sprintf("%s.modifiers[%d]", path, k), rm, bins)
		if err != nil {
			return Sample{}, err
		}
		s.Modifiers = append(s.Modifiers, m)
	}
	return s, nil
}

func parseModifier(path string, rm rawModifier, bins int) (Modifier, error) {
	if !ValidIdentifier(rm.Name) {
		return Modifier{}, schemaErrorf(ErrCodeBadValue, path,
			"modifier name %q is not a valid identifier", rm.Name)
	}
	m := Modifier{Name: rm.Name, Kind: rm.Type}

	switch rm.Type {
	case KindNormFactor, KindLumi, KindShapeFactor:
		return m, nil

	case KindStatError, KindShapeSys:
		if err := json.Unmarshal(rm.Data, &m.Values); err != nil {
			return Modifier{}, schemaErrorf(ErrCodeRead, path, "%s data: %v", rm.Type, err)
		}
		if len(m.Values) != bins {
			return Modifier{}, schemaErrorf(ErrCodeShape, path,
				"%s %q has %d bins, sample has %d", rm.Type, rm.Name, len(m.Values), bins)
		}
		return m, nil

	case KindHistoSys:
		var data struct {
			LoData []float64 `json:"lo_data"`
			HiData []float64 `json:"hi_data"`
		}
		if err := json.Unmarshal(rm.Data, &data); err != nil {
			return Modifier{}, schemaErrorf(ErrCodeRead, path, "histosys data: %v", err)
		}
		if len(data.LoData) != bins || len(data.HiData) != bins {
			return Modifier{}, schemaErrorf(ErrCodeShape, path,
				"histosys %q envelopes have %d/%d bins, sample has %d", rm.Name, len(data.LoData), len(data.HiData), bins)
		}
		m.LoData, m.HiData = data.LoData, data.HiData
		return m, nil

	case KindNormSys:
		var data struct {
			Lo float64 `json:"lo"`
			Hi float64 `json:"hi"`
		}
		if err := json.Unmarshal(rm.Data, &data); err != nil {
			return Modifier{}, schemaErrorf(ErrCodeRead, path, "normsys data: %v", err)
		}
		m.Lo, m.Hi = data.Lo, data.Hi
		return m, nil
	}

	return Modifier{}, schemaErrorf(ErrCodeBadValue, path, "unknown modifier type %q", rm.Type)
}

// readObserved converts observed counts to integers, truncating toward
// zero. coerced reports whether any value changed.
func readObserved(path string, data []float64) (counts []int64, coerced bool, err error) {
	counts = make([]int64, len(data))
	for i, v := range data {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false, schemaErrorf(ErrCodeBadValue, path, "observed count %v in bin %d is not a non-negative number", v, i)
		}
		t := math.Trunc(v)
		if t != v {
			coerced = true
		}
		counts[i] = int64(t)
	}
	return counts, coerced, nil
}
