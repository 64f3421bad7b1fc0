package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
	"github.com/kailas-cloud/blockrisk/internal/domain/sample"
)

// CSV stores a dataset as comma-separated text with a header row.
type CSV struct {
	path string
}

// NewCSV creates a CSV store at path.
func NewCSV(path string) *CSV {
	return &CSV{path: path}
}

// Path returns the file location.
func (s *CSV) Path() string { return s.path }

// Write replaces the file with ds.
func (s *CSV) Write(ctx context.Context, ds sample.Dataset) error {
	return replaceFile(s.path, func(tmp string) error {
		f, err := os.OpenFile(filepath.Clean(tmp), os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("open %s: %w", tmp, err)
		}
		if err := writeCSV(ctx, f, ds); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return fmt.Errorf("sync %s: %w", tmp, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", tmp, err)
		}
		return nil
	})
}

func writeCSV(ctx context.Context, w io.Writer, ds sample.Dataset) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	if err := cw.Write(feature.Columns()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	kinds := columnKinds()
	record := make([]string, len(kinds))
	for i, s := range ds.Samples {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
		}
		for j, v := range toRow(s) {
			record[j] = formatValue(kinds[j], v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func formatValue(kind feature.Kind, v float64) string {
	if kind == feature.Integer {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(quantize(kind, v), 'f', -1, 64)
}

// Read loads the dataset, failing with domain.ErrDatasetNotFound if the file is missing
// and domain.ErrSchemaMismatch if the header differs from the canonical columns.
func (s *CSV) Read(ctx context.Context) (sample.Dataset, error) {
	if err := statDataset(s.path); err != nil {
		return sample.Dataset{}, err
	}
	f, err := os.Open(filepath.Clean(s.path))
	if err != nil {
		return sample.Dataset{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReader(f))
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return sample.Dataset{}, fmt.Errorf("%s: empty file: %w", s.path, checkColumns(nil))
		}
		return sample.Dataset{}, fmt.Errorf("read header: %w", err)
	}
	if err := checkColumns(header); err != nil {
		return sample.Dataset{}, fmt.Errorf("%s: %w", s.path, err)
	}

	kinds := columnKinds()
	var samples []sample.Labeled
	row := make([]float64, len(kinds))
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sample.Dataset{}, fmt.Errorf("read line %d: %w", line, err)
		}
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return sample.Dataset{}, fmt.Errorf("read csv: %w", err)
			}
		}
		for j, field := range record {
			v, err := parseValue(kinds[j], field)
			if err != nil {
				return sample.Dataset{}, fmt.Errorf("line %d, column %s: %w", line, header[j], err)
			}
			row[j] = v
		}
		smp, err := fromRow(row)
		if err != nil {
			return sample.Dataset{}, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, smp)
	}
	return sample.Dataset{Samples: samples}, nil
}

func parseValue(kind feature.Kind, field string) (float64, error) {
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", field, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", field)
	}
	if kind == feature.Integer && v != math.Trunc(v) {
		return 0, fmt.Errorf("expected integer, got %q", field)
	}
	return v, nil
}
