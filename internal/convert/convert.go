package convert

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/stanhf/internal/dedup"
	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/model"
	"github.com/roach88/stanhf/internal/trace"
	"github.com/roach88/stanhf/internal/workspace"
)

// FunctionsFile names the embedded function library in the generated
// program.
const FunctionsFile = "stanhf.stanfunctions"

//go:embed stanhf.stanfunctions
var functions string

// Options configures a Converter.
type Options struct {
	// Plain omits the provenance comment on every generated line.
	Plain bool
	// Logf receives each warning as it is recorded. May be nil.
	Logf func(format string, v ...interface{})
}

// Converter turns one workspace into a program. It is not safe for
// concurrent use; convert independent workspaces with independent
// Converters.
type Converter struct {
	ws       *workspace.Workspace
	model    *model.Model
	cache    *dedup.Cache
	warnings []ir.Warning
	opts     Options
}

// New builds the IR for ws.
func New(ws *workspace.Workspace, opts Options) (*Converter, error) {
	cache := dedup.New()
	m, warnings, err := model.Build(ws, cache)
	if err != nil {
		return nil, err
	}
	c := &Converter{ws: ws, model: m, cache: cache, opts: opts}
	for _, w := range warnings {
		c.warn(w)
	}
	return c, nil
}

func (c *Converter) warn(w ir.Warning) {
	c.warnings = append(c.warnings, w)
	if c.opts.Logf != nil {
		c.opts.Logf("warning: %s", w)
	}
}

// Model returns the IR.
func (c *Converter) Model() *model.Model {
	return c.model
}

// Warnings returns the warnings recorded so far, in order.
func (c *Converter) Warnings() []ir.Warning {
	return slices.Clone(c.warnings)
}

// Block is one non-empty stage of the program.
type Block struct {
	Stage model.Stage
	Body  string
}

func (b Block) String() string {
	return b.Stage.String() + " {\n" + b.Body + "\n}"
}

// Blocks returns the non-empty stages in program order.
func (c *Converter) Blocks() []Block {
	entities := c.model.Entities()
	var blocks []Block
	for _, s := range model.Stages {
		var body string
		if s == model.StageFunctions {
			body = "// [" + FunctionsFile + "]\n" + strings.TrimRight(functions, "\n")
		} else {
			frags := make([]trace.Fragment, 0, len(entities))
			for _, e := range entities {
				frags = append(frags, model.Emit(e, s))
			}
			body = trace.Join(frags, c.opts.Plain)
		}
		if strings.TrimSpace(body) == "" {
			continue
		}
		blocks = append(blocks, Block{Stage: s, Body: body})
	}
	return blocks
}

// Header returns the comment lines that open the program.
func (c *Converter) Header() string {
	lines := []string{
		"// histfactory json " + c.ws.Source,
		"// histfactory spec version " + c.ws.Version,
		"// converted with stanhf " + ir.GeneratorVersion,
	}
	if p := c.ws.Patch; p != nil {
		lines = append(lines,
			"// patch file "+p.File,
			"// patch description "+p.Description,
			"// patch version "+p.Version,
			fmt.Sprintf("// patch name %s (index %d)", p.Name, p.Index))
	}
	return strings.Join(lines, "\n")
}

// Text returns the complete program source.
func (c *Converter) Text() string {
	parts := []string{c.Header()}
	for _, b := range c.Blocks() {
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n") + "\n"
}

// DataCard merges every entity's data card.
func (c *Converter) DataCard() (*trace.Card, error) {
	return c.merge(model.Entity.DataCard)
}

// InitCard merges every entity's init card.
func (c *Converter) InitCard() (*trace.Card, error) {
	return c.merge(model.Entity.InitCard)
}

func (c *Converter) merge(card func(model.Entity) *trace.Card) (*trace.Card, error) {
	entities := c.model.Entities()
	cards := make([]*trace.Card, 0, len(entities))
	for _, e := range entities {
		cards = append(cards, card(e))
	}
	return trace.Merge(cards...)
}

// ParNames groups parameter names by how the program treats them.
type ParNames struct {
	Sampled []string `json:"sampled"`
	Fixed   []string `json:"fixed"`
	Null    []string `json:"null"`
}

// ParNames returns the sampled (POI included), fixed and null parameter
// names in order of first appearance.
func (c *Converter) ParNames() ParNames {
	names := ParNames{Sampled: []string{}, Fixed: []string{}, Null: []string{}}
	for _, p := range c.model.Parameters {
		switch p.Class() {
		case model.ClassFixed:
			names.Fixed = append(names.Fixed, p.Name())
		case model.ClassNull:
			names.Null = append(names.Null, p.Name())
		default:
			names.Sampled = append(names.Sampled, p.Name())
		}
	}
	return names
}

// ParameterSize is a parameter name with its element count.
type ParameterSize struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// ParameterSizes returns every resolved parameter with its element count,
// one for scalars. Fixed and null parameters are included because an
// independent evaluator still declares them.
func (c *Converter) ParameterSizes() []ParameterSize {
	out := make([]ParameterSize, 0, len(c.model.Parameters))
	for _, p := range c.model.Parameters {
		out = append(out, ParameterSize{Name: p.Name(), Size: max(p.Size(), 1)})
	}
	return out
}

// SampledNames returns the identifiers declared in the parameters block.
func (c *Converter) SampledNames() []string {
	var out []string
	for _, p := range c.model.Parameters {
		switch p := p.(type) {
		case *model.POI:
			out = append(out, p.FreeName)
		case *model.FreeParameter:
			out = append(out, p.Name())
		}
	}
	return out
}

// Summary describes a conversion.
type Summary struct {
	Channels      int      `json:"channels"`
	Samples       int      `json:"samples"`
	Modifiers     int      `json:"modifiers"`
	NullModifiers int      `json:"null_modifiers"`
	SharedBlocks  int      `json:"shared_blocks"`
	POI           string   `json:"poi,omitempty"`
	Parameters    ParNames `json:"parameters"`
}

// Program is a complete conversion result.
type Program struct {
	Text     string
	Hash     string
	Data     *trace.Card
	Init     *trace.Card
	Summary  Summary
	Warnings []ir.Warning
}

// Program assembles the text and both cards. Nothing is returned unless
// every part succeeds.
func (c *Converter) Program() (*Program, error) {
	data, err := c.DataCard()
	if err != nil {
		return nil, fmt.Errorf("data card: %w", err)
	}
	init, err := c.InitCard()
	if err != nil {
		return nil, fmt.Errorf("init card: %w", err)
	}
	text := c.Text()
	return &Program{
		Text: text,
		Hash: ir.HashBytes(ir.DomainProgram, []byte(text)),
		Data: data,
		Init: init,
		Summary: Summary{
			Channels:      len(c.model.Channels),
			Samples:       len(c.model.Samples),
			Modifiers:     len(c.model.Modifiers),
			NullModifiers: len(c.model.Modifiers) - len(c.model.NonNullModifiers()),
			SharedBlocks:  c.cache.Len(),
			POI:           c.model.POI,
			Parameters:    c.ParNames(),
		},
		Warnings: c.Warnings(),
	}, nil
}
