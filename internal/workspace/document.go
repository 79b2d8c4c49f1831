package workspace

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
	"github.com/spf13/afero"

	"github.com/roach88/stanhf/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// Schema definitions checked by validateSchema.
const (
	defWorkspace = "#Workspace"
	defPatchSet  = "#PatchSet"
)

// Document is a loaded, schema-checked workspace file. It keeps the raw
// bytes so that patches can be applied and content hashed.
type Document struct {
	// Path is the file the document was read from.
	Path string

	raw    []byte
	parsed rawWorkspace
	patch  *PatchInfo
}

type rawWorkspace struct {
	Channels     []rawChannel     `json:"channels"`
	Observations []rawObservation `json:"observations"`
	Measurements []rawMeasurement `json:"measurements"`
	Version      string           `json:"version"`
}

type rawChannel struct {
	Name    string      `json:"name"`
	Samples []rawSample `json:"samples"`
}

type rawSample struct {
	Name      string        `json:"name"`
	Data      []float64     `json:"data"`
	Modifiers []rawModifier `json:"modifiers"`
}

type rawModifier struct {
	Name string          `json:"name"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type rawObservation struct {
	Name string    `json:"name"`
	Data []float64 `json:"data"`
}

type rawMeasurement struct {
	Name   string `json:"name"`
	Config struct {
		POI        string         `json:"poi"`
		Parameters []rawParameter `json:"parameters"`
	} `json:"config"`
}

type rawParameter struct {
	Name    string       `json:"name"`
	Inits   []float64    `json:"inits"`
	Bounds  [][2]float64 `json:"bounds"`
	Fixed   bool         `json:"fixed"`
	AuxData []float64    `json:"auxdata"`
	Sigmas  []float64    `json:"sigmas"`
}

// Load reads and schema-checks a workspace file.
func Load(fs afero.Fs, path string) (*Document, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	return Decode(path, data)
}

// Decode schema-checks and decodes workspace bytes. path is used for error
// positions and for naming outputs.
func Decode(path string, data []byte) (*Document, error) {
	if err := validateSchema(path, data, defWorkspace); err != nil {
		return nil, err
	}
	doc := &Document{Path: path, raw: data}
	if err := json.Unmarshal(data, &doc.parsed); err != nil {
		return nil, &SchemaError{Code: ErrCodeRead, Path: path, Message: err.Error()}
	}
	return doc, nil
}

// Bytes returns the document content, with any patch applied.
func (d *Document) Bytes() []byte {
	return d.raw
}

// Hash returns the content hash of the document.
func (d *Document) Hash() string {
	return ir.HashBytes(ir.DomainWorkspace, d.raw)
}

// Version returns the declared HistFactory schema version, if any.
func (d *Document) Version() string {
	return d.parsed.Version
}

// Patch describes the applied patch, or nil.
func (d *Document) Patch() *PatchInfo {
	return d.patch
}

// Measurements lists measurement names in document order.
func (d *Document) Measurements() []string {
	names := make([]string, 0, len(d.parsed.Measurements))
	for _, m := range d.parsed.Measurements {
		names = append(names, m.Name)
	}
	return names
}

var fileSafe = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Root is the output root name: the workspace path without its extension,
// extended by the patch name when a patch is applied.
func (d *Document) Root() string {
	root := strings.TrimSuffix(d.Path, filepath.Ext(d.Path))
	if d.patch != nil {
		root += "_" + fileSafe.ReplaceAllString(d.patch.Name, "_")
	}
	return root
}

// validateSchema unifies JSON data with a schema definition. Every call
// uses a fresh CUE context so independent conversions share nothing.
func validateSchema(filename string, data []byte, def string) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	expr, err := cuejson.Extract(filename, data)
	if err != nil {
		return &SchemaError{Code: ErrCodeRead, Path: filename, Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	value := ctx.BuildExpr(expr)
	if err := value.Err(); err != nil {
		return formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath(def)).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}
