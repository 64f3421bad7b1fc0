package main

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/kailas-cloud/blockrisk/internal/config"
	domart "github.com/kailas-cloud/blockrisk/internal/domain/artifact"
	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
	"github.com/kailas-cloud/blockrisk/internal/forest"
	artifactrepo "github.com/kailas-cloud/blockrisk/internal/repository/artifact"
	"github.com/kailas-cloud/blockrisk/internal/repository/dataset"
	"github.com/kailas-cloud/blockrisk/internal/usecase/generate"
	predictuc "github.com/kailas-cloud/blockrisk/internal/usecase/predict"
	"github.com/kailas-cloud/blockrisk/internal/usecase/train"
)

const (
	samplesFlag      = "samples"
	genSeedFlag      = "seed"
	treesFlag        = "trees"
	trainSeedFlag    = "train-seed"
	testFractionFlag = "test-fraction"
	maxDepthFlag     = "max-depth"
	workersFlag      = "workers"
	featuresFlag     = "features"
)

func generateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: samplesFlag, Usage: "Number of rows to generate (default from config: 10000)"},
		&cli.IntFlag{Name: genSeedFlag, Usage: "Generator seed (default from config: 42)"},
	}
}

func trainFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: treesFlag, Usage: "Number of trees (default from config: 100)"},
		&cli.IntFlag{Name: trainSeedFlag, Usage: "Forest seed (default from config: 42)"},
		&cli.FloatFlag{Name: testFractionFlag, Usage: "Held-out share of rows (default from config: 0.2)"},
		&cli.IntFlag{Name: maxDepthFlag, Usage: "Maximum tree depth, 0 for unlimited"},
		&cli.IntFlag{Name: workersFlag, Usage: "Parallel tree builders, 0 for GOMAXPROCS"},
	}
}

func (a *app) generateCmd() *cli.Command {
	return &cli.Command{
		Name:   "generate",
		Usage:  "Generate a synthetic labeled dataset",
		Flags:  generateFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error { return a.generate(ctx, cmd) },
	}
}

func (a *app) trainCmd() *cli.Command {
	return &cli.Command{
		Name:   "train",
		Usage:  "Train the risk model on the dataset and write the artifact",
		Flags:  trainFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error { return a.train(ctx, cmd) },
	}
}

func (a *app) pipelineCmd() *cli.Command {
	return &cli.Command{
		Name:  "pipeline",
		Usage: "Run generate, then train",
		Flags: append(generateFlags(), trainFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := a.generate(ctx, cmd); err != nil {
				return err
			}
			return a.train(ctx, cmd)
		},
	}
}

func (a *app) inspectCmd() *cli.Command {
	return &cli.Command{
		Name:   "inspect",
		Usage:  "Print artifact metadata, evaluation and feature importances",
		Flags:  []cli.Flag{newFormatFlag()},
		Action: func(_ context.Context, cmd *cli.Command) error { return a.inspect(cmd) },
	}
}

func (a *app) scoreCmd() *cli.Command {
	return &cli.Command{
		Name:  "score",
		Usage: "Score one input against the artifact without starting the server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  featuresFlag,
				Usage: `JSON object of inputs, e.g. '{"hour": 2, "lighting_score": 1}'; missing fields take defaults`,
			},
			newFormatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error { return a.score(ctx, cmd) },
	}
}

// generateConfig maps config plus flag overrides onto the generator settings.
func generateConfig(cfg config.GeneratorConfig, cmd *cli.Command) generate.Config {
	gc := generate.Config{
		Samples:       cfg.Samples,
		Seed:          cfg.Seed,
		Blocks:        cfg.Blocks,
		MaxIncidents:  cfg.MaxIncidents,
		MinDistanceKm: cfg.MinDistanceKm,
		MaxDistanceKm: cfg.MaxDistanceKm,
	}
	if cmd.IsSet(samplesFlag) {
		gc.Samples = int(cmd.Int(samplesFlag))
	}
	if cmd.IsSet(genSeedFlag) {
		gc.Seed = uint64(cmd.Int(genSeedFlag))
	}
	return gc
}

// trainConfig maps config plus flag overrides onto the trainer settings.
func trainConfig(cfg config.TrainerConfig, cmd *cli.Command) train.Config {
	tc := train.Config{
		TestFraction: cfg.TestFraction,
		SplitSeed:    cfg.SplitSeed,
		Forest: forest.Params{
			Trees:          cfg.Trees,
			Seed:           cfg.Seed,
			MaxDepth:       cfg.MaxDepth,
			MinSamplesLeaf: cfg.MinSamplesLeaf,
			MaxFeatures:    cfg.MaxFeatures,
			Workers:        cfg.Workers,
		},
	}
	if cmd.IsSet(treesFlag) {
		tc.Forest.Trees = int(cmd.Int(treesFlag))
	}
	if cmd.IsSet(trainSeedFlag) {
		tc.Forest.Seed = uint64(cmd.Int(trainSeedFlag))
	}
	if cmd.IsSet(testFractionFlag) {
		tc.TestFraction = cmd.Float(testFractionFlag)
	}
	if cmd.IsSet(maxDepthFlag) {
		tc.Forest.MaxDepth = int(cmd.Int(maxDepthFlag))
	}
	if cmd.IsSet(workersFlag) {
		tc.Forest.Workers = int(cmd.Int(workersFlag))
	}
	return tc
}

func (a *app) generate(ctx context.Context, cmd *cli.Command) error {
	store, err := dataset.Open(a.cfg.Dataset.Path)
	if err != nil {
		return err
	}
	gc := generateConfig(a.cfg.Generator, cmd)
	if err := gc.Validate(); err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	ds, err := generate.New(gc, store, a.logger).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %d samples to %s\n", ds.Len(), store.Path())
	return nil
}

func (a *app) train(ctx context.Context, cmd *cli.Command) error {
	store, err := dataset.Open(a.cfg.Dataset.Path)
	if err != nil {
		return err
	}
	tc := trainConfig(a.cfg.Trainer, cmd)
	svc := train.New(tc, store, artifactrepo.NewFileStore(a.cfg.Model.ArtifactPath), a.logger)
	rep, err := svc.Run(ctx)
	if err != nil {
		return explain(err)
	}
	m := rep.Artifact.Metrics
	fmt.Fprintf(a.out, "trained %s on %d rows: mse=%.4f r2=%.4f, saved to %s\n",
		rep.Artifact.RunID, m.TrainRows, m.MSE, m.R2, rep.Path)
	return nil
}

// inspectView is the printed form of an artifact.
type inspectView struct {
	Path          string             `json:"path" yaml:"path"`
	RunID         string             `json:"run_id" yaml:"run_id"`
	TrainedAt     time.Time          `json:"trained_at" yaml:"trained_at"`
	FormatVersion int                `json:"format_version" yaml:"format_version"`
	Schema        []string           `json:"schema" yaml:"schema"`
	Target        string             `json:"target" yaml:"target"`
	Trees         int                `json:"trees" yaml:"trees"`
	Nodes         int                `json:"nodes" yaml:"nodes"`
	Seed          uint64             `json:"seed" yaml:"seed"`
	MaxDepth      int                `json:"max_depth" yaml:"max_depth"`
	Metrics       domart.Metrics     `json:"metrics" yaml:"metrics"`
	Importances   []importanceView   `json:"importances" yaml:"importances"`
	Defaults      map[string]float64 `json:"defaults" yaml:"defaults"`
}

type importanceView struct {
	Feature    string  `json:"feature" yaml:"feature"`
	Importance float64 `json:"importance" yaml:"importance"`
}

func newInspectView(path string, a *domart.Artifact) inspectView {
	imp := a.Importances()
	names := slices.Collect(maps.Keys(imp))
	// Highest importance first; ties keep schema order.
	slices.SortFunc(names, func(x, y string) int {
		switch {
		case imp[x] > imp[y]:
			return -1
		case imp[x] < imp[y]:
			return 1
		}
		return slices.Index(a.Schema, x) - slices.Index(a.Schema, y)
	})
	ranked := make([]importanceView, len(names))
	for i, n := range names {
		ranked[i] = importanceView{Feature: n, Importance: imp[n]}
	}

	defaults := make(map[string]float64, feature.Count)
	d := feature.Defaults()
	for _, f := range feature.Schema() {
		defaults[string(f.Name)] = d.Get(f.Name)
	}

	return inspectView{
		Path:          path,
		RunID:         a.RunID,
		TrainedAt:     a.TrainedAt,
		FormatVersion: a.FormatVersion,
		Schema:        a.Schema,
		Target:        a.Target,
		Trees:         len(a.Model.Trees),
		Nodes:         a.Model.Nodes(),
		Seed:          a.Params.Seed,
		MaxDepth:      a.Params.MaxDepth,
		Metrics:       a.Metrics,
		Importances:   ranked,
		Defaults:      defaults,
	}
}

func (a *app) inspect(cmd *cli.Command) error {
	store := artifactrepo.NewFileStore(a.cfg.Model.ArtifactPath)
	art, err := store.Load()
	if err != nil {
		return explain(err)
	}
	return a.encode(cmd.String(formatFlag), newInspectView(store.Path(), art))
}

type scoreView struct {
	RiskScore    float64        `json:"risk_score" yaml:"risk_score"`
	Features     feature.Vector `json:"features" yaml:"features"`
	ModelVersion string         `json:"model_version" yaml:"model_version"`
	OutOfRange   []string       `json:"out_of_range,omitempty" yaml:"out_of_range,omitempty"`
}

func (a *app) score(ctx context.Context, cmd *cli.Command) error {
	raw := map[string]any{}
	if s := cmd.String(featuresFlag); s != "" {
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("--features must be a JSON object: %w", err)
		}
	}

	svc := predictuc.New(artifactrepo.NewFileStore(a.cfg.Model.ArtifactPath),
		predictuc.Options{RejectOutOfRange: a.cfg.Predict.RejectOutOfRange}, a.logger)
	if err := svc.Load(ctx); err != nil {
		return explain(err)
	}
	p, err := svc.Predict(ctx, raw)
	if err != nil {
		return err
	}
	a.logger.Debug("Scored input", zap.Any("features", p.Features), zap.Float64("risk_score", p.RiskScore))

	var out []string
	for _, n := range p.Features.OutOfRange() {
		out = append(out, string(n))
	}
	return a.encode(cmd.String(formatFlag), scoreView{
		RiskScore:    p.RiskScore,
		Features:     p.Features,
		ModelVersion: p.ModelVersion,
		OutOfRange:   out,
	})
}
