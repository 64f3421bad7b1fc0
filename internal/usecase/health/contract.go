package health

import "context"

// ModelChecker reports whether a model is loaded.
type ModelChecker interface {
	ModelLoaded() bool
}

// CachePinger checks prediction cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}
