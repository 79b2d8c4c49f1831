package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// History schema versions, kept in PRAGMA user_version:
//
//	1 validations are indexed by conversion for `stanhf history`
//	2 the log-density differences of a validation may be NULL (NaN)
const currentSchemaVersion = 2

// Store records conversions and the validation runs made against them.
type Store struct {
	db *sql.DB
}

// Open opens the history database at path, creating it and bringing its
// schema up to date as needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	// Every write takes the next seq inside its transaction; one connection
	// keeps those transactions serial.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database. It is a no-op on a zero Store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// configure sets the connection pragmas. Validations reference their
// conversion, so foreign keys are enforced.
func configure(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("configure history: %q: %w", pragma, err)
		}
	}
	return nil
}

func createSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create history tables: %w", err)
	}
	if err := migrate(db); err != nil {
		return fmt.Errorf("migrate history: %w", err)
	}
	return nil
}

// migrate upgrades a database written by an older stanhf.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	steps := []func(*sql.DB) error{indexValidations, nullableDeltas}
	for v := version; v < len(steps); v++ {
		if err := steps[v](db); err != nil {
			return fmt.Errorf("schema version %d: %w", v+1, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

func indexValidations(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_validations_conversion ON validations(conversion_id, seq)`)
	return err
}

// nullableDeltas rebuilds validations tables whose program_delta and
// oracle_delta columns were declared NOT NULL. SQLite stores NaN as NULL,
// and a validation whose evaluator returned NaN must still be recorded.
func nullableDeltas(db *sql.DB) error {
	var notNull int
	err := db.QueryRow(`SELECT "notnull" FROM pragma_table_info('validations') WHERE name = 'program_delta'`).Scan(&notNull)
	if err != nil {
		return fmt.Errorf("inspect validations: %w", err)
	}
	if notNull == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DROP INDEX IF EXISTS idx_validations_conversion`,
		`ALTER TABLE validations RENAME TO validations_old`,
		validationsTable,
		`INSERT INTO validations SELECT id, seq, conversion_id, passed, code, message, program_delta,
		 oracle_delta, points, seed, scale, tolerance, created_at FROM validations_old`,
		`DROP TABLE validations_old`,
		`CREATE INDEX IF NOT EXISTS idx_validations_conversion ON validations(conversion_id, seq)`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("rebuild validations: %w", err)
		}
	}
	return tx.Commit()
}

// validationsTable matches the validations table in schema.sql.
const validationsTable = `CREATE TABLE validations (
    id            TEXT PRIMARY KEY,
    seq           INTEGER NOT NULL UNIQUE,
    conversion_id TEXT NOT NULL REFERENCES conversions(id),
    passed        INTEGER NOT NULL,
    code          TEXT NOT NULL DEFAULT '',
    message       TEXT NOT NULL DEFAULT '',
    program_delta REAL,
    oracle_delta  REAL,
    points        TEXT NOT NULL DEFAULT '[]',
    seed          INTEGER NOT NULL,
    scale         REAL NOT NULL,
    tolerance     REAL NOT NULL,
    created_at    TEXT NOT NULL
)`

// nextSeq allocates the next seq of table inside tx.
func nextSeq(ctx context.Context, tx *sql.Tx, table string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT COALESCE(MAX(seq), 0) + 1 FROM %s", table)).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next seq for %s: %w", table, err)
	}
	return seq, nil
}

// pragma returns the current value of a pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
