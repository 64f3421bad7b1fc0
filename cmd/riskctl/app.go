package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/blockrisk/internal/config"
	"github.com/kailas-cloud/blockrisk/internal/domain"
	logpkg "github.com/kailas-cloud/blockrisk/internal/logger"
	"github.com/kailas-cloud/blockrisk/internal/version"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// Flag names.
const (
	configFlag   = "config"
	envFlag      = "env"
	datasetFlag  = "dataset"
	artifactFlag = "artifact"
	logLevelFlag = "log-level"
	formatFlag   = "format"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  configFlag,
			Usage: "Path to a YAML config file (default: config/<env>.yaml when present)",
		},
		&cli.StringFlag{
			Name:    envFlag,
			Usage:   "Config environment name",
			Value:   "local",
			Sources: cli.EnvVars("ENV"),
		},
		&cli.StringFlag{
			Name:    datasetFlag,
			Aliases: []string{"d"},
			Usage:   "Dataset path; the extension selects the format (.csv, .parquet, .db)",
			Sources: cli.EnvVars("BLOCKRISK_DATASET"),
		},
		&cli.StringFlag{
			Name:    artifactFlag,
			Aliases: []string{"m"},
			Usage:   "Model artifact path",
			Sources: cli.EnvVars("BLOCKRISK_ARTIFACT"),
		},
		&cli.StringFlag{
			Name:  logLevelFlag,
			Usage: "Log level [debug, info, warn, error]",
		},
	}
}

func newFormatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  formatFlag,
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}
}

// app carries state shared by every command. Before fills cfg and logger.
type app struct {
	out    io.Writer
	cfg    config.Config
	logger *zap.Logger
}

func newApp(out io.Writer) *app {
	return &app{out: out, logger: zap.NewNop()}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:            "riskctl",
		Usage:           "Generate block risk datasets, train the model and inspect artifacts",
		Version:         fmt.Sprintf("%s (%s)", version.Version, version.Commit),
		Writer:          a.out,
		HideHelpCommand: true,
		Flags:           globalFlags(),
		Commands: []*cli.Command{
			a.generateCmd(),
			a.trainCmd(),
			a.pipelineCmd(),
			a.inspectCmd(),
			a.scoreCmd(),
		},
		Before: a.before,
		After: func(context.Context, *cli.Command) error {
			_ = a.logger.Sync()
			return nil
		},
	}
}

// before loads config, applies the global flag overrides and builds the logger.
func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var (
		cfg config.Config
		err error
	)
	if path := cmd.String(configFlag); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.LoadOrDefault(cmd.String(envFlag))
	}
	if err != nil {
		return ctx, err
	}

	if v := cmd.String(datasetFlag); v != "" {
		cfg.Dataset.Path = v
	}
	if v := cmd.String(artifactFlag); v != "" {
		cfg.Model.ArtifactPath = v
	}
	if v := cmd.String(logLevelFlag); v != "" {
		cfg.Logging.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return ctx, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logpkg.NewLogger("cli", cfg.Logging.Level)
	if err != nil {
		return ctx, fmt.Errorf("create logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return logpkg.ContextWithLogger(ctx, logger), nil
}

// explain adds the next step to errors a user can fix by running another command.
func explain(err error) error {
	switch {
	case errors.Is(err, domain.ErrDatasetNotFound):
		return fmt.Errorf("%w (run `riskctl generate` first)", err)
	case errors.Is(err, domain.ErrArtifactNotFound):
		return fmt.Errorf("%w (run `riskctl train` first)", err)
	}
	return err
}

func (a *app) encode(format string, v any) error {
	switch format {
	case formatYAML, "yml":
		enc := yaml.NewEncoder(a.out)
		defer enc.Close()
		return enc.Encode(v)
	case formatJSON, "":
		e := json.NewEncoder(a.out)
		e.SetIndent("", "  ")
		return e.Encode(v)
	}
	return fmt.Errorf("unknown output format %q", format)
}
