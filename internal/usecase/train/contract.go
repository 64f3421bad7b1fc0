package train

import (
	"context"

	"github.com/kailas-cloud/blockrisk/internal/domain/artifact"
	"github.com/kailas-cloud/blockrisk/internal/domain/sample"
)

// DatasetReader loads the dataset the generator wrote.
type DatasetReader interface {
	Read(ctx context.Context) (sample.Dataset, error)
	Path() string
}

// ArtifactSaver persists a trained model, replacing any previous one.
type ArtifactSaver interface {
	Save(a *artifact.Artifact) error
	Path() string
}
