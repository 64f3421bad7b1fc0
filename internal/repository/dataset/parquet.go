package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
	"github.com/kailas-cloud/blockrisk/internal/domain/sample"
)

// parquetRow mirrors feature.Columns(); tags must stay in sync with the schema names.
type parquetRow struct {
	BlockID       int64   `parquet:"block_id"`
	Hour          int64   `parquet:"hour"`
	LightingScore int64   `parquet:"lighting_score"`
	PoliceStnDist float64 `parquet:"police_stn_dist"`
	PastIncidents int64   `parquet:"past_incidents"`
	CrowdDensity  int64   `parquet:"crowd_density"`
	RiskScore     float64 `parquet:"risk_score"`
}

// Parquet stores a dataset as a single parquet file.
type Parquet struct {
	path string
}

// NewParquet creates a parquet store at path.
func NewParquet(path string) *Parquet {
	return &Parquet{path: path}
}

// Path returns the file location.
func (s *Parquet) Path() string { return s.path }

// Write replaces the file with ds.
func (s *Parquet) Write(ctx context.Context, ds sample.Dataset) error {
	rows := make([]parquetRow, len(ds.Samples))
	for i, smp := range ds.Samples {
		v := smp.Features
		rows[i] = parquetRow{
			BlockID:       int64(smp.BlockID),
			Hour:          int64(v.Hour),
			LightingScore: int64(v.LightingScore),
			PoliceStnDist: quantize(feature.Float, v.PoliceStnDist),
			PastIncidents: int64(v.PastIncidents),
			CrowdDensity:  int64(v.CrowdDensity),
			RiskScore:     quantize(feature.Float, smp.RiskScore),
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}
	return replaceFile(s.path, func(tmp string) error {
		if err := parquet.WriteFile(tmp, rows); err != nil {
			return fmt.Errorf("write parquet: %w", err)
		}
		return nil
	})
}

// Read loads the dataset after checking the file's columns against the feature schema.
func (s *Parquet) Read(ctx context.Context) (sample.Dataset, error) {
	if err := statDataset(s.path); err != nil {
		return sample.Dataset{}, err
	}
	if err := s.checkSchema(); err != nil {
		return sample.Dataset{}, err
	}
	if err := ctx.Err(); err != nil {
		return sample.Dataset{}, fmt.Errorf("read parquet: %w", err)
	}

	rows, err := parquet.ReadFile[parquetRow](s.path)
	if err != nil {
		return sample.Dataset{}, fmt.Errorf("read parquet: %w", err)
	}
	samples := make([]sample.Labeled, len(rows))
	for i, r := range rows {
		samples[i] = sample.Labeled{
			BlockID: int(r.BlockID),
			Features: feature.Vector{
				Hour:          int(r.Hour),
				LightingScore: int(r.LightingScore),
				PoliceStnDist: r.PoliceStnDist,
				PastIncidents: int(r.PastIncidents),
				CrowdDensity:  int(r.CrowdDensity),
			},
			RiskScore: r.RiskScore,
		}
	}
	return sample.Dataset{Samples: samples}, nil
}

func (s *Parquet) checkSchema() error {
	f, err := os.Open(filepath.Clean(s.path))
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return fmt.Errorf("open parquet: %w", err)
	}

	var names []string
	for _, path := range pf.Schema().Columns() {
		if len(path) > 0 {
			names = append(names, path[0])
		}
	}
	if err := checkColumns(names); err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}
	return nil
}
