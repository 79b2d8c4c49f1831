package cli

import (
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/stanhf/internal/convert"
	"github.com/roach88/stanhf/internal/workspace"
)

// sourceFlags select the patch and measurement of a workspace.
type sourceFlags struct {
	Patch       string
	PatchIndex  int
	PatchName   string
	Measurement string
}

func (s *sourceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.Patch, "patch", "", "patchset file to apply")
	cmd.Flags().IntVar(&s.PatchIndex, "patch-index", 0, "index of the patch to apply")
	cmd.Flags().StringVar(&s.PatchName, "patch-name", "", "name of the patch to apply")
	cmd.Flags().StringVarP(&s.Measurement, "measurement", "m", "", "measurement to convert (default: the first)")
	cmd.MarkFlagsMutuallyExclusive("patch-index", "patch-name")
}

func (s *sourceFlags) source(path string) convert.Source {
	return convert.Source{
		Workspace:   path,
		Patch:       s.Patch,
		Selector:    workspace.PatchSelector{Index: s.PatchIndex, Name: s.PatchName},
		Measurement: s.Measurement,
	}
}

// conversion is one converted source, checked for declaration order.
type conversion struct {
	Loaded    *convert.Loaded
	Converter *convert.Converter
	Program   *convert.Program
}

// Root is the default output root of the conversion.
func (c *conversion) Root() string {
	return c.Loaded.Document.Root()
}

// PatchName is the applied patch, or "".
func (c *conversion) PatchName() string {
	if p := c.Loaded.Document.Patch(); p != nil {
		return p.Name
	}
	return ""
}

func convertSource(fs afero.Fs, src convert.Source, plain bool) (*conversion, error) {
	loaded, err := convert.Load(fs, src)
	if err != nil {
		return nil, err
	}
	c, err := loaded.Convert(convert.Options{Plain: plain})
	if err != nil {
		return nil, err
	}
	p, err := c.Program()
	if err != nil {
		return nil, err
	}
	var merr *multierror.Error
	for _, oe := range convert.CheckOrder(p) {
		merr = multierror.Append(merr, oe)
	}
	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &conversion{Loaded: loaded, Converter: c, Program: p}, nil
}
