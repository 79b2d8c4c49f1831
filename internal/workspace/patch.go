package workspace

import (
	"encoding/json"
	"fmt"
	"strconv"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/spf13/afero"
)

// PatchSet is a collection of named RFC 6902 patches for one workspace,
// typically one per signal hypothesis.
type PatchSet struct {
	// Path is the file the patchset was read from.
	Path string `json:"-"`

	Metadata struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"metadata"`
	Version string  `json:"version"`
	Patches []Patch `json:"patches"`
}

// Patch is one named entry of a PatchSet.
type Patch struct {
	Metadata struct {
		Name string `json:"name"`
	} `json:"metadata"`
	Operations json.RawMessage `json:"patch"`
}

// PatchSelector picks a patch by name or, when Name is empty, by index.
type PatchSelector struct {
	Index int
	Name  string
}

func (s PatchSelector) String() string {
	if s.Name != "" {
		return strconv.Quote(s.Name)
	}
	return fmt.Sprintf("#%d", s.Index)
}

// PatchInfo records which patch produced a document. It is written into
// the program header.
type PatchInfo struct {
	File        string
	Description string
	Version     string
	Name        string
	Index       int
}

// LoadPatch reads and schema-checks a patchset file.
func LoadPatch(fs afero.Fs, path string) (*PatchSet, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read patchset: %w", err)
	}
	return DecodePatch(path, data)
}

// DecodePatch schema-checks and decodes patchset bytes.
func DecodePatch(path string, data []byte) (*PatchSet, error) {
	if err := validateSchema(path, data, defPatchSet); err != nil {
		return nil, err
	}
	ps := &PatchSet{Path: path}
	if err := json.Unmarshal(data, ps); err != nil {
		return nil, &SchemaError{Code: ErrCodeRead, Path: path, Message: err.Error()}
	}
	return ps, nil
}

// Select returns the chosen patch and its index.
func (ps *PatchSet) Select(sel PatchSelector) (*Patch, int, error) {
	if sel.Name != "" {
		for i := range ps.Patches {
			if ps.Patches[i].Metadata.Name == sel.Name {
				return &ps.Patches[i], i, nil
			}
		}
		return nil, 0, schemaErrorf(ErrCodePatch, ps.Path, "no patch named %q", sel.Name)
	}
	if sel.Index < 0 || sel.Index >= len(ps.Patches) {
		return nil, 0, schemaErrorf(ErrCodePatch, ps.Path,
			"patch index %d out of range (%d patches)", sel.Index, len(ps.Patches))
	}
	return &ps.Patches[sel.Index], sel.Index, nil
}

// ApplyPatch returns a new document with the selected patch applied. The
// receiver is not modified.
func (d *Document) ApplyPatch(ps *PatchSet, sel PatchSelector) (*Document, error) {
	if d.patch != nil {
		return nil, schemaErrorf(ErrCodePatch, d.Path, "document already patched with %q", d.patch.Name)
	}

	p, index, err := ps.Select(sel)
	if err != nil {
		return nil, err
	}

	ops, err := jsonpatch.DecodePatch(p.Operations)
	if err != nil {
		return nil, schemaErrorf(ErrCodePatch, ps.Path, "decode patch %q: %v", p.Metadata.Name, err)
	}
	patched, err := ops.Apply(d.raw)
	if err != nil {
		return nil, schemaErrorf(ErrCodePatch, ps.Path, "apply patch %q: %v", p.Metadata.Name, err)
	}

	out, err := Decode(d.Path, patched)
	if err != nil {
		return nil, fmt.Errorf("patch %q: %w", p.Metadata.Name, err)
	}
	out.patch = &PatchInfo{
		File:        ps.Path,
		Description: ps.Metadata.Description,
		Version:     ps.Version,
		Name:        p.Metadata.Name,
		Index:       index,
	}
	return out, nil
}
