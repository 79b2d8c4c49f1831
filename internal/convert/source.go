package convert

import (
	"github.com/spf13/afero"

	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/workspace"
)

// Source names the inputs of one conversion.
type Source struct {
	Workspace   string
	Patch       string
	Selector    workspace.PatchSelector
	Measurement string
}

// Loaded is a parsed source.
type Loaded struct {
	Document  *workspace.Document
	Workspace *workspace.Workspace
	// Files lists the input files, for the re-emission policy.
	Files    []string
	Warnings []ir.Warning
}

// Load reads the workspace, applies the selected patch and parses the
// chosen measurement.
func Load(fs afero.Fs, src Source) (*Loaded, error) {
	doc, err := workspace.Load(fs, src.Workspace)
	if err != nil {
		return nil, err
	}
	files := []string{src.Workspace}
	if src.Patch != "" {
		ps, err := workspace.LoadPatch(fs, src.Patch)
		if err != nil {
			return nil, err
		}
		if doc, err = doc.ApplyPatch(ps, src.Selector); err != nil {
			return nil, err
		}
		files = append(files, src.Patch)
	}
	ws, warnings, err := doc.Parse(src.Measurement)
	if err != nil {
		return nil, err
	}
	return &Loaded{Document: doc, Workspace: ws, Files: files, Warnings: warnings}, nil
}

// Convert builds a Converter whose warnings start with those found while
// parsing.
func (l *Loaded) Convert(opts Options) (*Converter, error) {
	for _, w := range l.Warnings {
		if opts.Logf != nil {
			opts.Logf("warning: %s", w)
		}
	}
	c, err := New(l.Workspace, opts)
	if err != nil {
		return nil, err
	}
	c.warnings = append(append([]ir.Warning{}, l.Warnings...), c.warnings...)
	return c, nil
}
