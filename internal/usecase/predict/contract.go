package predict

import (
	"context"

	"github.com/kailas-cloud/blockrisk/internal/domain/artifact"
	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
)

// ArtifactLoader reads the trained model.
type ArtifactLoader interface {
	Load() (*artifact.Artifact, error)
	Path() string
}

// ScoreCache memoizes scores per model version and resolved input. Implementations
// swallow their own errors: a failing cache only costs a recomputation.
type ScoreCache interface {
	Get(ctx context.Context, version string, v feature.Vector) (float64, bool)
	Set(ctx context.Context, version string, v feature.Vector, score float64)
}
