package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kailas-cloud/blockrisk/internal/domain"
	"github.com/kailas-cloud/blockrisk/internal/domain/artifact"
	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
	"github.com/kailas-cloud/blockrisk/internal/domain/sample"
	"github.com/kailas-cloud/blockrisk/internal/forest"
)

// Config holds split and model settings.
type Config struct {
	TestFraction float64
	SplitSeed    uint64
	Forest       forest.Params
}

// DefaultConfig returns an 80/20 split and a 100-tree forest, both seeded with 42.
func DefaultConfig() Config {
	return Config{
		TestFraction: 0.2,
		SplitSeed:    42,
		Forest:       forest.Params{Trees: 100, Seed: 42},
	}
}

// Validate checks the training settings.
func (c Config) Validate() error {
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		return fmt.Errorf("test fraction must be in (0, 1), got %g", c.TestFraction)
	}
	if c.Forest.Trees < 0 || c.Forest.MaxDepth < 0 || c.Forest.MinSamplesLeaf < 0 || c.Forest.MaxFeatures < 0 {
		return errors.New("forest parameters must be non-negative")
	}
	if c.Forest.MaxFeatures > feature.Count {
		return fmt.Errorf("max features %d exceeds feature count %d", c.Forest.MaxFeatures, feature.Count)
	}
	return nil
}

// Report summarizes a training run.
type Report struct {
	Artifact    *artifact.Artifact
	DatasetPath string
	Path        string
	Elapsed     time.Duration
}

// Service fits the risk model on a stored dataset.
type Service struct {
	cfg    Config
	reader DatasetReader
	saver  ArtifactSaver
	logger *zap.Logger
	now    func() time.Time
}

// New creates a trainer. reader and saver may be nil when only Train is used.
func New(cfg Config, reader DatasetReader, saver ArtifactSaver, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		reader: reader,
		saver:  saver,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Split shuffles row indices with the split seed and returns the held-out rows first
// (ceil(fraction*n) of them) and the training rows second. Both partitions are non-empty.
func Split(n int, fraction float64, seed uint64) (train, test []int, err error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: %d rows, need at least 2", domain.ErrEmptyDataset, n)
	}
	nTest := int(math.Ceil(fraction * float64(n)))
	nTest = max(1, min(nTest, n-1))

	perm := rand.New(rand.NewPCG(seed, 0)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// Train splits ds, fits a forest on the training partition and evaluates it on the
// held-out partition.
func (s *Service) Train(ctx context.Context, ds sample.Dataset) (*artifact.Artifact, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("trainer config: %w", err)
	}
	trainIdx, testIdx, err := Split(ds.Len(), s.cfg.TestFraction, s.cfg.SplitSeed)
	if err != nil {
		return nil, err
	}

	xTrain, yTrain := ds.Subset(trainIdx).Matrix()
	xTest, yTest := ds.Subset(testIdx).Matrix()

	model, err := forest.Fit(ctx, xTrain, yTrain, feature.Names(), s.cfg.Forest)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	pred, err := model.PredictBatch(xTest)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	mse, r2 := Evaluate(pred, yTest)

	return &artifact.Artifact{
		FormatVersion: artifact.FormatVersion,
		RunID:         uuid.NewString(),
		TrainedAt:     s.now(),
		Schema:        feature.Names(),
		Target:        feature.Target,
		Params:        s.cfg.Forest.WithDefaults(),
		Metrics: artifact.Metrics{
			MSE:       mse,
			R2:        r2,
			TrainRows: len(trainIdx),
			TestRows:  len(testIdx),
		},
		Model: model,
	}, nil
}

// Evaluate returns the mean squared error and coefficient of determination of pred
// against actual. R² of a constant target is 1 for a perfect fit and 0 otherwise.
func Evaluate(pred, actual []float64) (mse, r2 float64) {
	if len(actual) == 0 {
		return 0, 0
	}
	d := floats.Distance(pred, actual, 2)
	mse = d * d / float64(len(actual))

	r2 = stat.RSquaredFrom(pred, actual, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		if mse == 0 {
			return mse, 1
		}
		return mse, 0
	}
	return mse, r2
}

// Run reads the dataset, trains and saves the artifact.
func (s *Service) Run(ctx context.Context) (Report, error) {
	if s.reader == nil || s.saver == nil {
		return Report{}, errors.New("train: dataset reader and artifact saver are required")
	}
	start := time.Now()

	ds, err := s.reader.Read(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read dataset: %w", err)
	}
	s.logger.Info("Training model",
		zap.String("dataset", s.reader.Path()),
		zap.Int("rows", ds.Len()),
		zap.Int("trees", s.cfg.Forest.WithDefaults().Trees),
		zap.Uint64("seed", s.cfg.Forest.Seed),
	)

	a, err := s.Train(ctx, ds)
	if err != nil {
		return Report{}, err
	}
	if err := s.saver.Save(a); err != nil {
		return Report{}, fmt.Errorf("save artifact: %w", err)
	}

	rep := Report{
		Artifact:    a,
		DatasetPath: s.reader.Path(),
		Path:        s.saver.Path(),
		Elapsed:     time.Since(start),
	}
	s.logger.Info("Model trained",
		zap.String("run_id", a.RunID),
		zap.String("path", rep.Path),
		zap.Float64("mse", a.Metrics.MSE),
		zap.Float64("r2", a.Metrics.R2),
		zap.Int("train_rows", a.Metrics.TrainRows),
		zap.Int("test_rows", a.Metrics.TestRows),
		zap.Duration("elapsed", rep.Elapsed),
	)
	return rep, nil
}
