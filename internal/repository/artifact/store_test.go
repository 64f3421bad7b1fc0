package artifact_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/blockrisk/internal/domain"
	domart "github.com/kailas-cloud/blockrisk/internal/domain/artifact"
	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
	"github.com/kailas-cloud/blockrisk/internal/forest"
	"github.com/kailas-cloud/blockrisk/internal/repository/artifact"
)

func fittedArtifact(t *testing.T) *domart.Artifact {
	t.Helper()
	x := [][]float64{
		{23, 0, 9.5, 40, 0},
		{22, 1, 8.0, 30, 1},
		{2, 2, 7.5, 20, 2},
		{12, 9, 0.5, 1, 9},
		{14, 10, 0.2, 0, 8},
		{10, 8, 1.0, 2, 10},
	}
	y := []float64{100, 95, 90, 10, 5, 12}
	params := forest.Params{Trees: 5, Seed: 1, Workers: 1}
	m, err := forest.Fit(context.Background(), x, y, feature.Names(), params)
	require.NoError(t, err)
	return &domart.Artifact{
		FormatVersion: domart.FormatVersion,
		RunID:         "run-1",
		TrainedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Schema:        feature.Names(),
		Target:        feature.Target,
		Params:        params,
		Metrics:       domart.Metrics{MSE: 1.5, R2: 0.9, TrainRows: 5, TestRows: 1},
		Model:         m,
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "model.json.gz")
	s := artifact.NewFileStore(path)
	a := fittedArtifact(t)

	require.NoError(t, s.Save(a))
	got, err := s.Load()
	require.NoError(t, err)

	assert.Equal(t, a.RunID, got.RunID)
	assert.True(t, a.TrainedAt.Equal(got.TrainedAt))
	assert.Equal(t, a.Metrics, got.Metrics)
	assert.Equal(t, a.Model, got.Model)

	v := feature.Vector{Hour: 23, LightingScore: 1, PoliceStnDist: 9, PastIncidents: 35, CrowdDensity: 1}
	want, err := a.Predict(v)
	require.NoError(t, err)
	have, err := got.Predict(v)
	require.NoError(t, err)
	assert.Equal(t, want, have)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_SaveInvalidKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json.gz")
	s := artifact.NewFileStore(path)
	require.NoError(t, s.Save(fittedArtifact(t)))

	bad := fittedArtifact(t)
	bad.Schema = []string{"hour"}
	bad.RunID = "run-2"
	err := s.Save(bad)
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
}

func TestFileStore_LoadErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := artifact.NewFileStore(filepath.Join(t.TempDir(), "nope.json.gz")).Load()
		assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
		assert.ErrorIs(t, err, domain.ErrArtifactLoadFailed)
	})

	t.Run("not gzip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.json.gz")
		require.NoError(t, os.WriteFile(path, []byte(`{"format_version":1}`), 0o600))
		_, err := artifact.NewFileStore(path).Load()
		assert.ErrorIs(t, err, domain.ErrArtifactLoadFailed)
	})

	t.Run("truncated", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.json.gz")
		require.NoError(t, artifact.NewFileStore(path).Save(fittedArtifact(t)))
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, raw[:len(raw)/2], 0o600))

		_, err = artifact.NewFileStore(path).Load()
		assert.ErrorIs(t, err, domain.ErrArtifactLoadFailed)
	})
}
