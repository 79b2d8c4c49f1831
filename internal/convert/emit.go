package convert

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/roach88/stanhf/internal/ir"
)

// Paths returns the program, data card and init card file names for root.
func Paths(root string) (program, data, init string) {
	return root + ".stan", root + "_data.json", root + "_init.json"
}

// Emitter writes conversion artifacts. An existing output is rewritten
// only when it is older than one of the sources or was produced by a
// different generator version, unless Force is set.
type Emitter struct {
	Fs    afero.Fs
	Force bool
	Logf  func(format string, v ...interface{})
}

// Emitted reports which files were written and which were left alone.
type Emitted struct {
	Written  []string     `json:"written"`
	Skipped  []string     `json:"skipped"`
	Warnings []ir.Warning `json:"warnings,omitempty"`
}

// Emit renders every artifact first and only then writes the stale ones,
// each through a temporary file and a rename.
func (e *Emitter) Emit(root string, sources []string, p *Program) (*Emitted, error) {
	programPath, dataPath, initPath := Paths(root)
	data, err := p.Data.JSON(true)
	if err != nil {
		return nil, fmt.Errorf("render data card: %w", err)
	}
	init, err := p.Init.JSON(true)
	if err != nil {
		return nil, fmt.Errorf("render init card: %w", err)
	}
	files := []struct {
		path    string
		content []byte
	}{
		{programPath, []byte(p.Text)},
		{dataPath, data},
		{initPath, init},
	}

	newest, err := e.newest(sources)
	if err != nil {
		return nil, err
	}
	versionChanged := e.generatorChanged(programPath)

	out := &Emitted{Written: []string{}, Skipped: []string{}}
	for _, f := range files {
		fresh, err := e.fresh(f.path, newest)
		if err != nil {
			return nil, err
		}
		if fresh && !versionChanged && !e.Force {
			w := ir.Warnf(ir.WarnEmissionSkipped, "%s is newer than its inputs, not overwritten", f.path)
			out.Skipped = append(out.Skipped, f.path)
			out.Warnings = append(out.Warnings, w)
			e.logf("warning: %s", w)
			continue
		}
		if err := e.write(f.path, f.content); err != nil {
			return nil, err
		}
		out.Written = append(out.Written, f.path)
		e.logf("wrote %s", f.path)
	}
	return out, nil
}

func (e *Emitter) logf(format string, v ...interface{}) {
	if e.Logf != nil {
		e.Logf(format, v...)
	}
}

// newest returns the latest modification time among sources.
func (e *Emitter) newest(sources []string) (time.Time, error) {
	var newest time.Time
	for _, src := range sources {
		fi, err := e.Fs.Stat(src)
		if err != nil {
			return time.Time{}, fmt.Errorf("stat source: %w", err)
		}
		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}
	return newest, nil
}

// fresh reports whether path exists and is not older than newest.
func (e *Emitter) fresh(path string, newest time.Time) (bool, error) {
	fi, err := e.Fs.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat output: %w", err)
	}
	return !fi.ModTime().Before(newest), nil
}

// generatorChanged reports whether an existing program names a different
// generator version in its header.
func (e *Emitter) generatorChanged(programPath string) bool {
	f, err := e.Fs.Open(programPath)
	if err != nil {
		return false
	}
	defer f.Close()

	const prefix = "// converted with stanhf "
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "//") {
			break
		}
		if v, ok := strings.CutPrefix(line, prefix); ok {
			return v != ir.GeneratorVersion
		}
	}
	return true
}

func (e *Emitter) write(path string, content []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(e.Fs, tmp, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := e.Fs.Rename(tmp, path); err != nil {
		_ = e.Fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
