package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the blockrisk configuration shared by the server and riskctl.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Generator GeneratorConfig `yaml:"generator"`
	Trainer   TrainerConfig   `yaml:"trainer"`
	Model     ModelConfig     `yaml:"model"`
	Predict   PredictConfig   `yaml:"predict"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"` // empty = auth disabled
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	RoutePrefix     string   `yaml:"route_prefix"` // e.g. "/ml"; empty mounts at root
	CORSOrigins     []string `yaml:"cors_origins"`
}

// DatasetConfig locates the dataset file. The extension selects the format.
type DatasetConfig struct {
	Path string `yaml:"path"`
}

// GeneratorConfig holds synthetic data settings.
type GeneratorConfig struct {
	Samples       int     `yaml:"samples"`
	Seed          uint64  `yaml:"seed"`
	Blocks        int     `yaml:"blocks"`
	MaxIncidents  int     `yaml:"max_incidents"`
	MinDistanceKm float64 `yaml:"min_distance_km"`
	MaxDistanceKm float64 `yaml:"max_distance_km"`
}

// TrainerConfig holds split and forest settings.
type TrainerConfig struct {
	TestFraction   float64 `yaml:"test_fraction"`
	SplitSeed      uint64  `yaml:"split_seed"`
	Trees          int     `yaml:"trees"`
	Seed           uint64  `yaml:"seed"`
	MaxDepth       int     `yaml:"max_depth"`        // 0 = unlimited
	MinSamplesLeaf int     `yaml:"min_samples_leaf"` // default 1
	MaxFeatures    int     `yaml:"max_features"`     // 0 = all
	Workers        int     `yaml:"workers"`          // 0 = GOMAXPROCS
}

// ModelConfig locates the model artifact.
type ModelConfig struct {
	ArtifactPath string `yaml:"artifact_path"`
}

// PredictConfig holds serving policy.
type PredictConfig struct {
	RejectOutOfRange bool `yaml:"reject_out_of_range"`
}

// CacheConfig holds the optional prediction cache connection.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLSec           int      `yaml:"ttl_sec"` // 0 = no expiry
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit YAML path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(env string) (Config, error) {
	path := findConfigPath(env)
	if !fileExists(path) {
		return Default(), nil
	}
	return LoadFile(path)
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// Default returns a configuration with every default applied, used when no config
// file exists (riskctl runs without one).
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 5000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Dataset.Path == "" {
		c.Dataset.Path = "crime_data.csv"
	}
	if c.Generator.Samples <= 0 {
		c.Generator.Samples = 10000
	}
	if c.Generator.Seed == 0 {
		c.Generator.Seed = 42
	}
	if c.Generator.Blocks <= 0 {
		c.Generator.Blocks = 100
	}
	if c.Generator.MaxIncidents <= 0 {
		c.Generator.MaxIncidents = 50
	}
	if c.Generator.MinDistanceKm == 0 && c.Generator.MaxDistanceKm == 0 {
		c.Generator.MinDistanceKm = 0.1
		c.Generator.MaxDistanceKm = 10.0
	}
	if c.Trainer.TestFraction == 0 {
		c.Trainer.TestFraction = 0.2
	}
	if c.Trainer.SplitSeed == 0 {
		c.Trainer.SplitSeed = 42
	}
	if c.Trainer.Trees <= 0 {
		c.Trainer.Trees = 100
	}
	if c.Trainer.Seed == 0 {
		c.Trainer.Seed = 42
	}
	if c.Trainer.MinSamplesLeaf <= 0 {
		c.Trainer.MinSamplesLeaf = 1
	}
	if c.Model.ArtifactPath == "" {
		c.Model.ArtifactPath = "model.json.gz"
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if p := c.HTTP.RoutePrefix; p != "" && (!strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/")) {
		return fmt.Errorf("http.route_prefix must start with / and not end with /, got %q", p)
	}
	if c.Generator.MinDistanceKm < 0 || c.Generator.MaxDistanceKm < c.Generator.MinDistanceKm {
		return fmt.Errorf("generator distance range [%g, %g] is invalid",
			c.Generator.MinDistanceKm, c.Generator.MaxDistanceKm)
	}
	if c.Trainer.TestFraction <= 0 || c.Trainer.TestFraction >= 1 {
		return fmt.Errorf("trainer.test_fraction must be in (0, 1), got %g", c.Trainer.TestFraction)
	}
	if c.Trainer.MaxDepth < 0 || c.Trainer.MaxFeatures < 0 || c.Trainer.Workers < 0 {
		return errors.New("trainer.max_depth, trainer.max_features and trainer.workers must be non-negative")
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return errors.New("cache.addrs is required when cache is enabled")
	}
	if c.Cache.TTLSec < 0 {
		return fmt.Errorf("cache.ttl_sec must be non-negative, got %d", c.Cache.TTLSec)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
