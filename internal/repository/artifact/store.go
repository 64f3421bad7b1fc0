// Package artifact persists model artifacts as gzip-compressed JSON files.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/kailas-cloud/blockrisk/internal/domain"
	domart "github.com/kailas-cloud/blockrisk/internal/domain/artifact"
	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
)

// FileStore reads and writes a single artifact file.
type FileStore struct {
	path string
}

// NewFileStore creates a store for the artifact at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the artifact location.
func (s *FileStore) Path() string { return s.path }

// Save writes a to a temporary file, reloads it, checks that the reloaded model predicts
// exactly like the in-memory one, and only then renames it over the target. A failed save
// leaves any previous artifact untouched.
func (s *FileStore) Save(a *domart.Artifact) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid artifact: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	cleanup := func() { _ = os.Remove(tmp) }

	if err := encode(f, a); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		cleanup()
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close artifact: %w", err)
	}

	reloaded, err := readFile(tmp)
	if err != nil {
		cleanup()
		return fmt.Errorf("verify artifact: %w", err)
	}
	if err := samePredictions(a, reloaded); err != nil {
		cleanup()
		return fmt.Errorf("verify artifact: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		cleanup()
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// Load reads and validates the artifact. Every failure matches domain.ErrArtifactLoadFailed;
// a missing file also matches domain.ErrArtifactNotFound.
func (s *FileStore) Load() (*domart.Artifact, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w: %s", domain.ErrArtifactLoadFailed, domain.ErrArtifactNotFound, s.path)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrArtifactLoadFailed, err)
	}
	return readFile(s.path)
}

func encode(w io.Writer, a *domart.Artifact) error {
	zw := gzip.NewWriter(w)
	if err := json.NewEncoder(zw).Encode(a); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress artifact: %w", err)
	}
	return nil
}

func readFile(path string) (*domart.Artifact, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrArtifactLoadFailed, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %w", domain.ErrArtifactLoadFailed, err)
	}
	defer zr.Close()

	var a domart.Artifact
	if err := json.NewDecoder(zr).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", domain.ErrArtifactLoadFailed, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrArtifactLoadFailed, err)
	}
	return &a, nil
}

// probes covers the defaults, the low end of every domain and a high-risk corner.
func probes() []feature.Vector {
	low := make([]float64, 0, feature.Count)
	for _, f := range feature.Schema() {
		low = append(low, f.Min)
	}
	lowVec, _ := feature.FromValues(low)
	return []feature.Vector{
		feature.Defaults(),
		lowVec,
		{Hour: 23, LightingScore: 0, PoliceStnDist: 10, PastIncidents: 50, CrowdDensity: 0},
	}
}

func samePredictions(want, got *domart.Artifact) error {
	for _, v := range probes() {
		a, err := want.Predict(v)
		if err != nil {
			return err
		}
		b, err := got.Predict(v)
		if err != nil {
			return err
		}
		if a != b {
			return fmt.Errorf("reloaded model predicts %v for %+v, in-memory model %v", b, v, a)
		}
	}
	return nil
}
