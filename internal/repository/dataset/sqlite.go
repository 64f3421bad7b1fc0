package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/kailas-cloud/blockrisk/internal/domain"
	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
	"github.com/kailas-cloud/blockrisk/internal/domain/sample"
)

const samplesTable = "samples"

// SQLite stores a dataset as a single table in a SQLite database file.
type SQLite struct {
	path string
}

// NewSQLite creates a SQLite store at path.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

// Path returns the database file location.
func (s *SQLite) Path() string { return s.path }

func createTableSQL() string {
	kinds := columnKinds()
	cols := feature.Columns()
	defs := make([]string, len(cols))
	for i, c := range cols {
		typ := "REAL"
		if kinds[i] == feature.Integer {
			typ = "INTEGER"
		}
		defs[i] = c + " " + typ + " NOT NULL"
	}
	return "CREATE TABLE " + samplesTable + " (" + strings.Join(defs, ", ") + ")"
}

func insertSQL() string {
	cols := feature.Columns()
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return "INSERT INTO " + samplesTable + " (" + strings.Join(cols, ", ") + ") VALUES (" + marks + ")"
}

// Write builds a fresh database next to the target and swaps it in.
func (s *SQLite) Write(ctx context.Context, ds sample.Dataset) error {
	return replaceFile(s.path, func(tmp string) error {
		db, err := sql.Open("sqlite", tmp)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		defer db.Close()

		if err := writeTable(ctx, db, ds); err != nil {
			return err
		}
		if err := db.Close(); err != nil {
			return fmt.Errorf("close sqlite: %w", err)
		}
		return nil
	})
}

func writeTable(ctx context.Context, db *sql.DB, ds sample.Dataset) error {
	if _, err := db.ExecContext(ctx, createTableSQL()); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertSQL())
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	kinds := columnKinds()
	args := make([]any, len(kinds))
	for i, smp := range ds.Samples {
		for j, v := range toRow(smp) {
			if kinds[j] == feature.Integer {
				args[j] = int64(v)
			} else {
				args[j] = quantize(kinds[j], v)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Read loads every row of the samples table in insertion order.
func (s *SQLite) Read(ctx context.Context) (sample.Dataset, error) {
	if err := statDataset(s.path); err != nil {
		return sample.Dataset{}, err
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return sample.Dataset{}, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	names, err := tableColumns(ctx, db)
	if err != nil {
		return sample.Dataset{}, err
	}
	if len(names) == 0 {
		return sample.Dataset{}, fmt.Errorf("%w: %s has no %s table", domain.ErrDatasetNotFound, s.path, samplesTable)
	}
	if err := checkColumns(names); err != nil {
		return sample.Dataset{}, fmt.Errorf("%s: %w", s.path, err)
	}

	query := "SELECT " + strings.Join(feature.Columns(), ", ") + " FROM " + samplesTable + " ORDER BY rowid"
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return sample.Dataset{}, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	vals := make([]float64, len(names))
	dest := make([]any, len(names))
	for i := range vals {
		dest[i] = &vals[i]
	}
	var samples []sample.Labeled
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return sample.Dataset{}, fmt.Errorf("scan row %d: %w", len(samples), err)
		}
		smp, err := fromRow(vals)
		if err != nil {
			return sample.Dataset{}, fmt.Errorf("row %d: %w", len(samples), err)
		}
		samples = append(samples, smp)
	}
	if err := rows.Err(); err != nil {
		return sample.Dataset{}, fmt.Errorf("iterate samples: %w", err)
	}
	return sample.Dataset{Samples: samples}, nil
}

func tableColumns(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info('"+samplesTable+"') ORDER BY cid")
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	return names, nil
}
