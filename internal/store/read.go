package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roach88/stanhf/internal/validate"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

const conversionColumns = `id, seq, conversion_key, workspace, workspace_hash, measurement, patch, root,
	program_hash, generator_version, summary, warnings, written, created_at`

// ListConversions returns the recorded conversions in seq order. A non-empty
// root restricts the listing to that output root.
func (s *Store) ListConversions(ctx context.Context, root string) ([]Conversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM conversions`
	var args []any
	if root != "" {
		query += ` WHERE root = ?`
		args = append(args, root)
	}
	query += ` ORDER BY seq ASC, id ASC COLLATE BINARY`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()

	out := []Conversion{}
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversions: %w", err)
	}
	return out, nil
}

// ReadConversion returns the conversion with the given run id.
func (s *Store) ReadConversion(ctx context.Context, id string) (Conversion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+conversionColumns+` FROM conversions WHERE id = ?`, id)
	if err != nil {
		return Conversion{}, fmt.Errorf("read conversion: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Conversion{}, fmt.Errorf("read conversion: %w", err)
		}
		return Conversion{}, fmt.Errorf("conversion %s: %w", id, ErrNotFound)
	}
	return scanConversion(rows)
}

// ListValidations returns the validations of one conversion in seq order.
func (s *Store) ListValidations(ctx context.Context, conversionID string) ([]Validation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, conversion_id, passed, code, message, program_delta, oracle_delta,
		       points, seed, scale, tolerance, created_at
		FROM validations
		WHERE conversion_id = ?
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`, conversionID)
	if err != nil {
		return nil, fmt.Errorf("list validations: %w", err)
	}
	defer rows.Close()

	out := []Validation{}
	for rows.Next() {
		var v Validation
		var points, created string
		var seed int64
		var programDelta, oracleDelta sql.NullFloat64
		if err := rows.Scan(&v.ID, &v.Seq, &v.ConversionID, &v.Passed, &v.Code, &v.Message,
			&programDelta, &oracleDelta, &points, &seed, &v.Scale, &v.Tolerance, &created); err != nil {
			return nil, fmt.Errorf("scan validation: %w", err)
		}
		v.ProgramDelta, v.OracleDelta = delta(programDelta), delta(oracleDelta)
		v.Points = json.RawMessage(points)
		v.Seed = uint64(seed)
		if v.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validations: %w", err)
	}
	return out, nil
}

func scanConversion(rows *sql.Rows) (Conversion, error) {
	var c Conversion
	var summary, warnings, written, created string
	if err := rows.Scan(&c.ID, &c.Seq, &c.Key, &c.Workspace, &c.WorkspaceHash, &c.Measurement,
		&c.Patch, &c.Root, &c.ProgramHash, &c.GeneratorVersion,
		&summary, &warnings, &written, &created); err != nil {
		return Conversion{}, fmt.Errorf("scan conversion: %w", err)
	}
	if err := unmarshalText("summary", summary, &c.Summary); err != nil {
		return Conversion{}, err
	}
	if err := unmarshalText("warnings", warnings, &c.Warnings); err != nil {
		return Conversion{}, err
	}
	if err := unmarshalText("written", written, &c.Written); err != nil {
		return Conversion{}, err
	}
	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return Conversion{}, err
	}
	return c, nil
}

// delta reads back a difference stored by nullable.
func delta(f sql.NullFloat64) validate.Delta {
	if !f.Valid {
		return validate.Delta(math.NaN())
	}
	return validate.Delta(f.Float64)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", s, err)
	}
	return t, nil
}
