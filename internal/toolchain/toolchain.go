// Package toolchain drives a CmdStan installation: it builds the generated
// program into an executable, asks the compiler which parameters the
// program declares, and evaluates the log density at a point.
package toolchain

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/roach88/stanhf/internal/cmdutil"
	"github.com/roach88/stanhf/internal/convert"
	"github.com/roach88/stanhf/internal/ir"
)

// EnvCmdStan names the environment variable holding the CmdStan path.
const EnvCmdStan = "CMDSTAN"

// Toolchain error codes (E240-E249)
const (
	ErrCodeBuild  = "E240" // the program failed to compile
	ErrCodeLocate = "E241" // no usable CmdStan installation
)

// BuildError carries the compiler's own diagnostic. The generated text is
// never repaired.
type BuildError struct {
	Code    string
	Program string
	Output  string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("[%s] building %s failed:\n%s", e.Code, e.Program, strings.TrimRight(e.Output, "\n"))
}

// IsBuildError reports whether err is or wraps a BuildError.
func IsBuildError(err error) bool {
	var be *BuildError
	return errors.As(err, &be)
}

// CmdStan is a located installation.
type CmdStan struct {
	Root string
	// Make is the make program, "make" when empty.
	Make string
	Logf func(format string, v ...interface{})
}

// Locate finds CmdStan at path, or at $CMDSTAN when path is empty.
func Locate(path string) (*CmdStan, error) {
	if path == "" {
		path = os.Getenv(EnvCmdStan)
	}
	if path == "" {
		return nil, fmt.Errorf("[%s] CmdStan not found: set %s or pass its path", ErrCodeLocate, EnvCmdStan)
	}
	for _, f := range []string{"makefile", filepath.Join("bin", "stanc")} {
		if _, err := os.Stat(filepath.Join(path, f)); err != nil {
			return nil, fmt.Errorf("[%s] %s is not a CmdStan installation: %w", ErrCodeLocate, path, err)
		}
	}
	return &CmdStan{Root: path}, nil
}

func (c *CmdStan) opts(dir string) *cmdutil.Opts {
	return &cmdutil.Opts{Dir: dir, Logf: c.Logf}
}

// Build compiles <root>.stan into the executable <root>.
func (c *CmdStan) Build(ctx context.Context, root string) (*Model, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", root)
	}
	program, _, _ := convert.Paths(abs)
	if _, err := os.Stat(program); err != nil {
		return nil, errors.Wrapf(err, "no program to build")
	}

	mk := c.Make
	if mk == "" {
		mk = "make"
	}
	if _, err := cmdutil.Run(ctx, mk, []string{abs}, c.opts(c.Root)); err != nil {
		var exitErr *cmdutil.ExitError
		if errors.As(err, &exitErr) {
			return nil, &BuildError{Code: ErrCodeBuild, Program: program, Output: exitErr.Stderr}
		}
		return nil, errors.Wrapf(err, "build %s", program)
	}
	return c.Model(abs)
}

// Model returns an already built executable for root.
func (c *CmdStan) Model(root string) (*Model, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", root)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, errors.Wrapf(err, "no executable for %s", root)
	}
	program, data, _ := convert.Paths(abs)
	return &Model{
		Exe:    abs,
		Source: program,
		Data:   data,
		stanc:  filepath.Join(c.Root, "bin", "stanc"),
		logf:   c.Logf,
	}, nil
}

// Model is a built program with its data card.
type Model struct {
	Exe    string
	Source string
	Data   string
	stanc  string
	logf   func(format string, v ...interface{})
}

// SampleCommand is a suggested command line for sampling the model.
func (m *Model) SampleCommand() string {
	_, _, init := convert.Paths(m.Exe)
	return fmt.Sprintf("%s sample num_chains=4 data file=%s init=%s", m.Exe, m.Data, init)
}

// ParameterNames lists the parameters the compiler sees, sorted.
func (m *Model) ParameterNames(ctx context.Context) ([]string, error) {
	out, err := cmdutil.Run(ctx, m.stanc, []string{"--info", m.Source}, &cmdutil.Opts{Logf: m.logf})
	if err != nil {
		return nil, errors.Wrapf(err, "stanc --info")
	}
	var info struct {
		Parameters map[string]json.RawMessage `json:"parameters"`
	}
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, errors.Wrapf(err, "decode stanc --info")
	}
	names := make([]string, 0, len(info.Parameters))
	for name := range info.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// LogDensity evaluates the target at p, keyed like the init card, without
// the Jacobian adjustment.
func (m *Model) LogDensity(ctx context.Context, p ir.Object) (float64, error) {
	dir, err := os.MkdirTemp("", "stanhf-logprob-")
	if err != nil {
		return 0, errors.Wrapf(err, "temporary directory")
	}
	defer os.RemoveAll(dir)

	params, err := ir.MarshalCanonical(p)
	if err != nil {
		return 0, errors.Wrapf(err, "encode parameters")
	}
	paramsFile := filepath.Join(dir, "params.json")
	if err := os.WriteFile(paramsFile, params, 0o600); err != nil {
		return 0, errors.Wrapf(err, "write parameters")
	}
	outFile := filepath.Join(dir, "log_prob.csv")

	args := []string{
		"log_prob", "jacobian=0", "constrained_params=" + paramsFile,
		"data", "file=" + m.Data,
		"output", "file=" + outFile, "sig_figs=18",
	}
	if _, err := cmdutil.Run(ctx, m.Exe, args, &cmdutil.Opts{Dir: dir, Logf: m.logf}); err != nil {
		return 0, errors.Wrapf(err, "log_prob")
	}

	f, err := os.Open(outFile)
	if err != nil {
		return 0, errors.Wrapf(err, "open log_prob output")
	}
	defer f.Close()
	return readLogProb(f)
}

// readLogProb returns the lp__ column of the first row of CmdStan CSV.
func readLogProb(r io.Reader) (float64, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return 0, errors.Wrapf(err, "read log_prob header")
	}
	col := -1
	for i, h := range header {
		if strings.TrimSpace(h) == "lp__" {
			col = i
			break
		}
	}
	if col < 0 {
		return 0, errors.Errorf("log_prob output has no lp__ column: %v", header)
	}
	row, err := cr.Read()
	if err != nil {
		return 0, errors.Wrapf(err, "read log_prob row")
	}
	if col >= len(row) {
		return 0, errors.Errorf("log_prob row is short: %v", row)
	}
	lp, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse lp__")
	}
	return lp, nil
}
