// Package dataset persists labeled datasets as flat tables. The format is chosen by
// file extension: .csv (default), .parquet, or .db/.sqlite/.sqlite3.
//
// Every reader validates the stored columns against the canonical feature schema and
// every writer replaces the target file atomically.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/blockrisk/internal/domain"
	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
	"github.com/kailas-cloud/blockrisk/internal/domain/sample"
	"github.com/kailas-cloud/blockrisk/internal/domain/score"
)

// Store reads and writes a dataset at a fixed path.
type Store interface {
	Write(ctx context.Context, ds sample.Dataset) error
	Read(ctx context.Context) (sample.Dataset, error)
	Path() string
}

// Open returns the store matching the extension of path.
func Open(path string) (Store, error) {
	if path == "" {
		return nil, errors.New("dataset path is required")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", "":
		return NewCSV(path), nil
	case ".parquet":
		return NewParquet(path), nil
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLite(path), nil
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
}

// toRow flattens a sample in feature.Columns() order.
func toRow(s sample.Labeled) []float64 {
	row := make([]float64, 0, feature.Count+2)
	row = append(row, float64(s.BlockID))
	row = append(row, s.Features.Values()...)
	return append(row, s.RiskScore)
}

// fromRow is the inverse of toRow.
func fromRow(row []float64) (sample.Labeled, error) {
	if len(row) != feature.Count+2 {
		return sample.Labeled{}, fmt.Errorf("expected %d columns, got %d", feature.Count+2, len(row))
	}
	v, err := feature.FromValues(row[1 : 1+feature.Count])
	if err != nil {
		return sample.Labeled{}, err
	}
	return sample.Labeled{
		BlockID:   int(row[0]),
		Features:  v,
		RiskScore: row[len(row)-1],
	}, nil
}

// columnKinds returns the numeric kind of each column in feature.Columns() order.
func columnKinds() []feature.Kind {
	kinds := make([]feature.Kind, 0, feature.Count+2)
	kinds = append(kinds, feature.Integer)
	for _, f := range feature.Schema() {
		kinds = append(kinds, f.Kind)
	}
	return append(kinds, feature.Float)
}

// quantize applies the on-disk precision of a column kind.
func quantize(kind feature.Kind, v float64) float64 {
	if kind == feature.Integer {
		return math.Trunc(v)
	}
	return score.Round2(v)
}

func checkColumns(got []string) error {
	want := feature.Columns()
	if len(got) != len(want) {
		return fmt.Errorf("%w: stored columns %v, expected %v", domain.ErrSchemaMismatch, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("%w: stored columns %v, expected %v", domain.ErrSchemaMismatch, got, want)
		}
	}
	return nil
}

func notFound(path string) error {
	return fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, path)
}

func statDataset(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return notFound(path)
		}
		return fmt.Errorf("stat dataset: %w", err)
	}
	return nil
}

// replaceFile calls fill with a temporary path next to path and renames it over path
// only if fill succeeds.
func replaceFile(path string, fill func(tmp string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	_ = f.Close()

	if err := fill(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename dataset: %w", err)
	}
	return nil
}
