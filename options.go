package blockrisk

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultArtifactPath is the artifact riskctl writes when no path is configured.
const DefaultArtifactPath = "model.json.gz"

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	artifactPath     string
	rejectOutOfRange bool

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithArtifactPath sets the model artifact to load. Default: model.json.gz.
func WithArtifactPath(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.artifactPath = path
	})
}

// WithRejectOutOfRange makes inputs outside a field's documented domain fail with
// ErrInvalidInput instead of being scored.
func WithRejectOutOfRange() Option {
	return optionFunc(func(c *clientConfig) {
		c.rejectOutOfRange = true
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
