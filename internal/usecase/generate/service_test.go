package generate

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/blockrisk/internal/domain/sample"
)

// --- Mocks ---

type mockWriter struct {
	written sample.Dataset
	calls   int
	err     error
}

func (m *mockWriter) Write(_ context.Context, ds sample.Dataset) error {
	m.calls++
	m.written = ds
	return m.err
}

func (m *mockWriter) Path() string { return "mock.csv" }

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Samples = 2000
	return cfg
}

// --- Tests ---

func TestGenerate_RangesHold(t *testing.T) {
	cfg := smallConfig()
	ds, err := New(cfg, nil, zap.NewNop()).Generate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Len() != cfg.Samples {
		t.Fatalf("expected %d samples, got %d", cfg.Samples, ds.Len())
	}

	for i, s := range ds.Samples {
		if s.RiskScore < 0 || s.RiskScore > 100 {
			t.Fatalf("sample %d: risk score %f outside [0,100]", i, s.RiskScore)
		}
		if s.BlockID < 1 || s.BlockID > cfg.Blocks {
			t.Fatalf("sample %d: block id %d outside [1,%d]", i, s.BlockID, cfg.Blocks)
		}
		f := s.Features
		if f.Hour < 0 || f.Hour > 23 {
			t.Fatalf("sample %d: hour %d", i, f.Hour)
		}
		if f.LightingScore < 0 || f.LightingScore > 10 {
			t.Fatalf("sample %d: lighting %d", i, f.LightingScore)
		}
		if f.CrowdDensity < 0 || f.CrowdDensity > 10 {
			t.Fatalf("sample %d: crowd %d", i, f.CrowdDensity)
		}
		if f.PastIncidents < 0 || f.PastIncidents > cfg.MaxIncidents {
			t.Fatalf("sample %d: incidents %d", i, f.PastIncidents)
		}
		if f.PoliceStnDist < cfg.MinDistanceKm || f.PoliceStnDist > cfg.MaxDistanceKm {
			t.Fatalf("sample %d: distance %f", i, f.PoliceStnDist)
		}
	}
}

func TestGenerate_CoversDomains(t *testing.T) {
	ds, err := New(smallConfig(), nil, zap.NewNop()).Generate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hours := make(map[int]bool)
	clamped := 0
	for _, s := range ds.Samples {
		hours[s.Features.Hour] = true
		if s.RiskScore == 100 {
			clamped++
		}
	}
	if len(hours) != 24 {
		t.Errorf("expected all 24 hours sampled, got %d", len(hours))
	}
	if clamped == 0 {
		t.Error("expected some labels clamped at 100")
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	cfg := smallConfig()
	a, err := New(cfg, nil, zap.NewNop()).Generate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := New(cfg, nil, zap.NewNop()).Generate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different datasets")
	}

	cfg.Seed = 7
	c, err := New(cfg, nil, zap.NewNop()).Generate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reflect.DeepEqual(a, c) {
		t.Error("different seeds produced identical datasets")
	}
}

func TestGenerate_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero samples", func(c *Config) { c.Samples = 0 }},
		{"zero blocks", func(c *Config) { c.Blocks = 0 }},
		{"negative incidents", func(c *Config) { c.MaxIncidents = -1 }},
		{"inverted distance", func(c *Config) { c.MinDistanceKm, c.MaxDistanceKm = 5, 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg, nil, zap.NewNop()).Generate(context.Background()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRun_WritesDataset(t *testing.T) {
	w := &mockWriter{}
	cfg := smallConfig()
	cfg.Samples = 10
	ds, err := New(cfg, w, zap.NewNop()).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.calls != 1 {
		t.Fatalf("expected 1 write, got %d", w.calls)
	}
	if !reflect.DeepEqual(w.written, ds) {
		t.Error("written dataset differs from returned dataset")
	}
}

func TestRun_WriteError(t *testing.T) {
	w := &mockWriter{err: errors.New("disk full")}
	cfg := smallConfig()
	cfg.Samples = 10
	if _, err := New(cfg, w, zap.NewNop()).Run(context.Background()); err == nil {
		t.Fatal("expected error from writer")
	}
}

func TestRun_NoWriter(t *testing.T) {
	if _, err := New(smallConfig(), nil, zap.NewNop()).Run(context.Background()); err == nil {
		t.Fatal("expected error without writer")
	}
}
