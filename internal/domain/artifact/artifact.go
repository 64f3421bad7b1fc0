// Package artifact defines the persisted model: a fitted forest plus the schema and
// evaluation it was produced with.
package artifact

import (
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/blockrisk/internal/domain"
	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
	"github.com/kailas-cloud/blockrisk/internal/forest"
)

// FormatVersion is bumped whenever the serialized layout changes incompatibly.
const FormatVersion = 1

// Metrics is the held-out evaluation of a training run.
type Metrics struct {
	MSE       float64 `json:"mse" yaml:"mse"`
	R2        float64 `json:"r2" yaml:"r2"`
	TrainRows int     `json:"train_rows" yaml:"train_rows"`
	TestRows  int     `json:"test_rows" yaml:"test_rows"`
}

// Artifact is the unit the trainer writes and the server loads.
type Artifact struct {
	FormatVersion int            `json:"format_version"`
	RunID         string         `json:"run_id"`
	TrainedAt     time.Time      `json:"trained_at"`
	Schema        []string       `json:"schema"`
	Target        string         `json:"target"`
	Params        forest.Params  `json:"params"`
	Metrics       Metrics        `json:"metrics"`
	Model         *forest.Forest `json:"model"`
}

// Validate checks that the artifact can be served by this binary: known format, a
// schema identical to the canonical one, and a structurally sound model.
func (a *Artifact) Validate() error {
	if a.FormatVersion != FormatVersion {
		return fmt.Errorf("unsupported format version %d", a.FormatVersion)
	}
	if !feature.SameOrder(a.Schema) {
		return fmt.Errorf("%w: artifact columns %v, expected %v", domain.ErrSchemaMismatch, a.Schema, feature.Names())
	}
	if a.Target != feature.Target {
		return fmt.Errorf("%w: artifact target %q, expected %q", domain.ErrSchemaMismatch, a.Target, feature.Target)
	}
	if a.Model == nil {
		return errors.New("artifact has no model")
	}
	if !feature.SameOrder(a.Model.Features) {
		return fmt.Errorf("%w: model columns %v, expected %v", domain.ErrSchemaMismatch, a.Model.Features, feature.Names())
	}
	if err := a.Model.Validate(); err != nil {
		return fmt.Errorf("validate model: %w", err)
	}
	return nil
}

// Predict returns the raw model output for v, before clamping.
func (a *Artifact) Predict(v feature.Vector) (float64, error) {
	out, err := a.Model.Predict(v.Values())
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	return out, nil
}

// Version identifies the training run that produced the artifact.
func (a *Artifact) Version() string { return a.RunID }

// Importances maps each feature to its share of the total variance reduction.
func (a *Artifact) Importances() map[string]float64 {
	out := make(map[string]float64, len(a.Schema))
	if a.Model == nil {
		return out
	}
	for i, name := range a.Model.Features {
		if i < len(a.Model.Importances) {
			out[name] = a.Model.Importances[i]
		}
	}
	return out
}
