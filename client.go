package blockrisk

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
	artifactrepo "github.com/kailas-cloud/blockrisk/internal/repository/artifact"
	predictuc "github.com/kailas-cloud/blockrisk/internal/usecase/predict"
)

// Internal interface for substitution in tests.
type predictUseCase interface {
	Load(ctx context.Context) error
	Status() predictuc.Status
	Predict(ctx context.Context, raw map[string]any) (predictuc.Prediction, error)
	PredictVector(ctx context.Context, v feature.Vector) (predictuc.Prediction, error)
}

// Client is the blockrisk SDK entry point. It is safe for concurrent use.
type Client struct {
	svc predictUseCase
	obs *observer
}

// New creates a Client and loads the model artifact.
// The provided context bounds the load.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{artifactPath: DefaultArtifactPath}
	for _, o := range opts {
		o.apply(cfg)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	svc := predictuc.New(
		artifactrepo.NewFileStore(cfg.artifactPath),
		predictuc.Options{RejectOutOfRange: cfg.rejectOutOfRange},
		zap.NewNop(),
	)
	return load(ctx, svc, obs)
}

func load(ctx context.Context, svc predictUseCase, obs *observer) (*Client, error) {
	start := time.Now()
	err := svc.Load(ctx)
	st := svc.Status()
	obs.observe("load", start, err, "path", st.ArtifactPath)
	if err != nil {
		return nil, fmt.Errorf("blockrisk: load model: %w", err)
	}
	return &Client{svc: svc, obs: obs}, nil
}

// Score returns the clamped, rounded risk score for a complete set of inputs.
func (c *Client) Score(ctx context.Context, f Features) (Result, error) {
	start := time.Now()
	p, err := c.svc.PredictVector(ctx, f.vector())
	c.obs.observe("score", start, err)
	if err != nil {
		return Result{}, fmt.Errorf("score: %w", err)
	}
	return toResult(p), nil
}

// ScorePartial scores a decoded JSON object. Missing fields take DefaultFeatures values,
// unknown keys are ignored, and numbers or numeric strings are accepted.
func (c *Client) ScorePartial(ctx context.Context, raw map[string]any) (Result, error) {
	start := time.Now()
	p, err := c.svc.Predict(ctx, raw)
	c.obs.observe("score_partial", start, err)
	if err != nil {
		return Result{}, fmt.Errorf("score: %w", err)
	}
	return toResult(p), nil
}

// Status describes the loaded model.
func (c *Client) Status() Status {
	st := c.svc.Status()
	out := Status{
		Loaded:       st.Loaded,
		State:        string(st.State),
		ArtifactPath: st.ArtifactPath,
	}
	if a := st.Artifact; a != nil {
		out.RunID = a.RunID
		out.TrainedAt = a.TrainedAt
		out.MSE = a.Metrics.MSE
		out.R2 = a.Metrics.R2
		out.Importances = a.Importances()
	}
	return out
}

func toResult(p predictuc.Prediction) Result {
	return Result{
		RiskScore:    p.RiskScore,
		Features:     featuresFromVector(p.Features),
		ModelVersion: p.ModelVersion,
	}
}
