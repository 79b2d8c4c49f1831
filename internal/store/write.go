package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/stanhf/internal/convert"
	"github.com/roach88/stanhf/internal/ir"
	"github.com/roach88/stanhf/internal/validate"
)

// Conversion is one emitted program.
type Conversion struct {
	ID               string          `json:"id"`
	Seq              int64           `json:"seq"`
	Key              string          `json:"key"`
	Workspace        string          `json:"workspace"`
	WorkspaceHash    string          `json:"workspace_hash"`
	Measurement      string          `json:"measurement,omitempty"`
	Patch            string          `json:"patch,omitempty"`
	Root             string          `json:"root"`
	ProgramHash      string          `json:"program_hash"`
	GeneratorVersion string          `json:"generator_version"`
	Summary          convert.Summary `json:"summary"`
	Warnings         []ir.Warning    `json:"warnings"`
	Written          []string        `json:"written"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Validation is one validator run against a conversion.
type Validation struct {
	ID           string          `json:"id"`
	Seq          int64           `json:"seq"`
	ConversionID string          `json:"conversion_id"`
	Passed       bool            `json:"passed"`
	Code         string          `json:"code,omitempty"`
	Message      string          `json:"message,omitempty"`
	ProgramDelta validate.Delta  `json:"program_delta"`
	OracleDelta  validate.Delta  `json:"oracle_delta"`
	Points       json.RawMessage `json:"points"`
	Seed         uint64          `json:"seed"`
	Scale        float64         `json:"scale"`
	Tolerance    float64         `json:"tolerance"`
	CreatedAt    time.Time       `json:"created_at"`
}

// WriteConversion records c. A missing ID is filled with a new random run
// id; Seq is always assigned by the store. The assigned fields are written
// back into c.
func (s *Store) WriteConversion(ctx context.Context, c *Conversion) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.GeneratorVersion == "" {
		c.GeneratorVersion = ir.GeneratorVersion
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Warnings == nil {
		c.Warnings = []ir.Warning{}
	}
	if c.Written == nil {
		c.Written = []string{}
	}

	summary, err := marshalText("summary", c.Summary)
	if err != nil {
		return fmt.Errorf("write conversion: %w", err)
	}
	warnings, err := marshalText("warnings", c.Warnings)
	if err != nil {
		return fmt.Errorf("write conversion: %w", err)
	}
	written, err := marshalText("written", c.Written)
	if err != nil {
		return fmt.Errorf("write conversion: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write conversion: begin: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSeq(ctx, tx, "conversions")
	if err != nil {
		return fmt.Errorf("write conversion: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversions
		(id, seq, conversion_key, workspace, workspace_hash, measurement, patch, root,
		 program_hash, generator_version, summary, warnings, written, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, seq, c.Key, c.Workspace, c.WorkspaceHash, c.Measurement, c.Patch, c.Root,
		c.ProgramHash, c.GeneratorVersion, summary, warnings, written,
		c.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write conversion: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write conversion: commit: %w", err)
	}
	c.Seq = seq
	return nil
}

// WriteValidation records v. The conversion it names must exist (foreign
// key constraint).
func (s *Store) WriteValidation(ctx context.Context, v *Validation) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	points := string(v.Points)
	if points == "" {
		points = "[]"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write validation: begin: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSeq(ctx, tx, "validations")
	if err != nil {
		return fmt.Errorf("write validation: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO validations
		(id, seq, conversion_id, passed, code, message, program_delta, oracle_delta,
		 points, seed, scale, tolerance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		v.ID, seq, v.ConversionID, v.Passed, v.Code, v.Message, nullable(v.ProgramDelta), nullable(v.OracleDelta),
		points, int64(v.Seed), v.Scale, v.Tolerance, v.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write validation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write validation: commit: %w", err)
	}
	v.Seq = seq
	return nil
}

// nullable maps NaN to NULL, which is what SQLite would store for it.
func nullable(d validate.Delta) sql.NullFloat64 {
	return sql.NullFloat64{Float64: float64(d), Valid: !math.IsNaN(float64(d))}
}
