package generate

import (
	"context"

	"github.com/kailas-cloud/blockrisk/internal/domain/sample"
)

// DatasetWriter persists a generated dataset.
type DatasetWriter interface {
	Write(ctx context.Context, ds sample.Dataset) error
	Path() string
}
