package blockrisk

import "github.com/kailas-cloud/blockrisk/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrArtifactNotFound   = domain.ErrArtifactNotFound
	ErrArtifactLoadFailed = domain.ErrArtifactLoadFailed
	ErrSchemaMismatch     = domain.ErrSchemaMismatch
	ErrServiceUnavailable = domain.ErrServiceUnavailable
	ErrInvalidInput       = domain.ErrInvalidInput
)
