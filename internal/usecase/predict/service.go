package predict

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/blockrisk/internal/domain"
	"github.com/kailas-cloud/blockrisk/internal/domain/artifact"
	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
	"github.com/kailas-cloud/blockrisk/internal/domain/score"
	"github.com/kailas-cloud/blockrisk/internal/metrics"
)

// State is the model lifecycle of a Service.
type State string

const (
	// Unstarted means Load has not been called.
	Unstarted State = "unstarted"
	// Loading means Load is in progress.
	Loading State = "loading"
	// Ready means a model is loaded and serving.
	Ready State = "ready"
	// LoadFailed means the single load attempt failed; only a restart retries it.
	LoadFailed State = "load_failed"
)

// Prediction outcomes recorded in metrics.
const (
	outcomeOK          = "ok"
	outcomeInvalid     = "invalid"
	outcomeUnavailable = "unavailable"
	outcomeError       = "error"
)

// Options tunes prediction behavior.
type Options struct {
	// RejectOutOfRange turns inputs outside a field's documented domain into
	// ErrInvalidInput instead of passing them to the model.
	RejectOutOfRange bool
	// Cache is optional.
	Cache ScoreCache
}

// Status is a point-in-time view of the service.
type Status struct {
	State        State
	Loaded       bool
	ArtifactPath string
	Artifact     *artifact.Artifact // nil unless Loaded
	LoadErr      error
}

// Prediction is a served score plus the resolved input it was computed from.
type Prediction struct {
	RiskScore    float64
	Features     feature.Vector
	ModelVersion string
	Cached       bool
}

type snapshot struct {
	state   State
	model   *artifact.Artifact
	loadErr error
}

// Service owns the loaded model and serves predictions from it. The model is loaded
// at most once per Service and shared read-only afterwards.
type Service struct {
	loader ArtifactLoader
	opts   Options
	logger *zap.Logger

	once sync.Once
	snap atomic.Pointer[snapshot]
}

// New creates an unstarted Service.
func New(loader ArtifactLoader, opts Options, logger *zap.Logger) *Service {
	s := &Service{loader: loader, opts: opts, logger: logger}
	s.snap.Store(&snapshot{state: Unstarted})
	return s
}

// Load reads the artifact exactly once. Later calls return the outcome of the first.
// A failed load leaves the service in LoadFailed; it never panics or exits.
func (s *Service) Load(ctx context.Context) error {
	s.once.Do(func() {
		s.snap.Store(&snapshot{state: Loading})
		start := time.Now()

		var (
			a   *artifact.Artifact
			err = ctx.Err()
		)
		if err == nil {
			a, err = s.loader.Load()
		}
		if err != nil {
			s.snap.Store(&snapshot{state: LoadFailed, loadErr: err})
			metrics.ModelLoaded.Set(0)
			s.logger.Error("Failed to load model",
				zap.String("path", s.loader.Path()),
				zap.Error(err),
			)
			return
		}

		s.snap.Store(&snapshot{state: Ready, model: a})
		metrics.ModelLoaded.Set(1)
		s.logger.Info("Model loaded",
			zap.String("path", s.loader.Path()),
			zap.String("run_id", a.RunID),
			zap.Time("trained_at", a.TrainedAt),
			zap.Float64("r2", a.Metrics.R2),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
	return s.snap.Load().loadErr
}

// Status reports the current state. It has no side effects.
func (s *Service) Status() Status {
	sn := s.snap.Load()
	return Status{
		State:        sn.state,
		Loaded:       sn.state == Ready,
		ArtifactPath: s.loader.Path(),
		Artifact:     sn.model,
		LoadErr:      sn.loadErr,
	}
}

// Predict resolves a partial feature map (missing fields take their defaults) and scores it.
func (s *Service) Predict(ctx context.Context, raw map[string]any) (Prediction, error) {
	model, err := s.ready()
	if err != nil {
		return Prediction{}, err
	}
	v, err := feature.Resolve(raw)
	if err != nil {
		metrics.PredictionsTotal.WithLabelValues(outcomeInvalid).Inc()
		return Prediction{}, err
	}
	return s.score(ctx, model, v)
}

// PredictVector scores an already resolved vector.
func (s *Service) PredictVector(ctx context.Context, v feature.Vector) (Prediction, error) {
	model, err := s.ready()
	if err != nil {
		return Prediction{}, err
	}
	return s.score(ctx, model, v)
}

// CheckReady returns the ErrServiceUnavailable Predict would return, or nil when Ready.
func (s *Service) CheckReady() error {
	_, err := s.ready()
	return err
}

func (s *Service) ready() (*artifact.Artifact, error) {
	sn := s.snap.Load()
	if sn.state != Ready {
		metrics.PredictionsTotal.WithLabelValues(outcomeUnavailable).Inc()
		cause := sn.loadErr
		if cause == nil {
			cause = fmt.Errorf("state %s", sn.state)
		}
		return nil, domain.NewUnavailable(s.loader.Path(), cause)
	}
	return sn.model, nil
}

func (s *Service) score(ctx context.Context, model *artifact.Artifact, v feature.Vector) (Prediction, error) {
	if err := s.checkDomain(v); err != nil {
		metrics.PredictionsTotal.WithLabelValues(outcomeInvalid).Inc()
		return Prediction{}, err
	}

	version := model.Version()
	if s.opts.Cache != nil {
		if cached, ok := s.opts.Cache.Get(ctx, version, v); ok {
			metrics.PredictionsTotal.WithLabelValues(outcomeOK).Inc()
			metrics.PredictionScore.Observe(cached)
			return Prediction{RiskScore: cached, Features: v, ModelVersion: version, Cached: true}, nil
		}
	}

	raw, err := model.Predict(v)
	if err != nil {
		metrics.PredictionsTotal.WithLabelValues(outcomeError).Inc()
		s.logger.Error("Prediction failed", zap.Any("features", v), zap.Error(err))
		return Prediction{}, fmt.Errorf("score features: %w", err)
	}
	out := score.Normalize(raw)

	if s.opts.Cache != nil {
		s.opts.Cache.Set(ctx, version, v, out)
	}
	metrics.PredictionsTotal.WithLabelValues(outcomeOK).Inc()
	metrics.PredictionScore.Observe(out)
	return Prediction{RiskScore: out, Features: v, ModelVersion: version}, nil
}

// checkDomain counts every out-of-domain field and, if configured, rejects the first one.
func (s *Service) checkDomain(v feature.Vector) error {
	fields := v.OutOfRange()
	for _, name := range fields {
		metrics.InputOutOfRangeTotal.WithLabelValues(string(name)).Inc()
	}
	if len(fields) == 0 || !s.opts.RejectOutOfRange {
		return nil
	}
	f, _ := feature.Lookup(fields[0])
	return domain.NewInvalidInput(string(f.Name),
		fmt.Sprintf("%v outside documented domain [%v, %v]", v.Get(f.Name), f.Min, f.Max))
}

// ModelLoaded reports whether the service is Ready.
func (s *Service) ModelLoaded() bool {
	return s.snap.Load().state == Ready
}
