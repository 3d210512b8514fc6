package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Scorer    ScorerConfig    `yaml:"scorer" mapstructure:"scorer"`
	Rules     RulesConfig     `yaml:"rules" mapstructure:"rules"`
	Graph     GraphConfig     `yaml:"graph" mapstructure:"graph"`
	Matrix    MatrixConfig    `yaml:"matrix" mapstructure:"matrix"`
	Validate  ValidateConfig  `yaml:"validate" mapstructure:"validate"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ReconcileConfig tunes the reconciliation engine. Boost and penalty
// magnitudes are tuning heuristics, not invariants, so they are exposed
// here with documented defaults.
type ReconcileConfig struct {
	ConsensusBoost      float64 `yaml:"consensus_boost" mapstructure:"consensus_boost"`
	DisagreementPenalty float64 `yaml:"disagreement_penalty" mapstructure:"disagreement_penalty"`
	ConsensusCap        float64 `yaml:"consensus_cap" mapstructure:"consensus_cap"`
	RollbackThreshold   float64 `yaml:"rollback_threshold" mapstructure:"rollback_threshold"`
}

// ScorerConfig configures confidence scoring.
type ScorerConfig struct {
	ModelPath            string  `yaml:"model_path" mapstructure:"model_path"`
	PatternWeight        float64 `yaml:"pattern_weight" mapstructure:"pattern_weight"`
	SourceWeight         float64 `yaml:"source_weight" mapstructure:"source_weight"`
	ProximityWeight      float64 `yaml:"proximity_weight" mapstructure:"proximity_weight"`
	FieldTypeWeight      float64 `yaml:"field_type_weight" mapstructure:"field_type_weight"`
	CrossValidationBonus float64 `yaml:"cross_validation_bonus" mapstructure:"cross_validation_bonus"`
}

// RuleSourceConfig declares one rule source to load.
type RuleSourceConfig struct {
	Kind     string `yaml:"kind" mapstructure:"kind"`         // manual_yaml, dataset_a_json, dataset_b_csv, dataset_b_xlsx
	Location string `yaml:"location" mapstructure:"location"` // file path, http(s):// or ftp:// URL
	Priority int    `yaml:"priority" mapstructure:"priority"`
}

// RulesConfig configures rule loading and inference.
type RulesConfig struct {
	Sources          []RuleSourceConfig `yaml:"sources" mapstructure:"sources"`
	InferredPriority int                `yaml:"inferred_priority" mapstructure:"inferred_priority"`
	FetchTimeoutSecs int                `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
}

// GraphConfig configures transitive traversal.
type GraphConfig struct {
	MaxDepth int `yaml:"max_depth" mapstructure:"max_depth"`
}

// MatrixConfig configures matrix building.
type MatrixConfig struct {
	IDLHDangerPPM        float64 `yaml:"idlh_danger_ppm" mapstructure:"idlh_danger_ppm"`
	TransitiveConfidence float64 `yaml:"transitive_confidence" mapstructure:"transitive_confidence"`
}

// ValidateConfig configures external reference cross-validation.
type ValidateConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey         string  `yaml:"api_key" mapstructure:"api_key"`
	Workers        int     `yaml:"workers" mapstructure:"workers"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FailurePenalty float64 `yaml:"failure_penalty" mapstructure:"failure_penalty"`
}

// ServerConfig configures the read-only collaborator API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CHEMSAFE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "chemsafe.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("reconcile.consensus_boost", 0.15)
	v.SetDefault("reconcile.disagreement_penalty", 0.05)
	v.SetDefault("reconcile.consensus_cap", 0.98)
	v.SetDefault("reconcile.rollback_threshold", 0.6)
	v.SetDefault("scorer.pattern_weight", 0.35)
	v.SetDefault("scorer.source_weight", 0.25)
	v.SetDefault("scorer.proximity_weight", 0.15)
	v.SetDefault("scorer.field_type_weight", 0.10)
	v.SetDefault("scorer.cross_validation_bonus", 0.15)
	v.SetDefault("rules.inferred_priority", 0)
	v.SetDefault("rules.fetch_timeout_secs", 30)
	v.SetDefault("graph.max_depth", 2)
	v.SetDefault("matrix.idlh_danger_ppm", 50)
	v.SetDefault("matrix.transitive_confidence", 0.5)
	v.SetDefault("validate.workers", 5)
	v.SetDefault("validate.rate_per_second", 5)
	v.SetDefault("validate.timeout_secs", 10)
	v.SetDefault("validate.failure_penalty", 0.1)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var validSourceKinds = map[string]bool{
	"manual_yaml":    true,
	"dataset_a_json": true,
	"dataset_b_csv":  true,
	"dataset_b_xlsx": true,
}

// validate fails fast on configuration-level errors. Malformed rule
// sources or missing priority orderings halt startup rather than being
// silently defaulted.
func (c *Config) validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	seen := make(map[int]string, len(c.Rules.Sources))
	for i, s := range c.Rules.Sources {
		if !validSourceKinds[s.Kind] {
			return eris.Errorf("config: rule source %d: unknown kind %q", i, s.Kind)
		}
		if s.Location == "" {
			return eris.Errorf("config: rule source %d (%s): missing location", i, s.Kind)
		}
		if s.Priority <= c.Rules.InferredPriority {
			return eris.Errorf("config: rule source %d (%s): priority %d must exceed inferred priority %d",
				i, s.Kind, s.Priority, c.Rules.InferredPriority)
		}
		if other, dup := seen[s.Priority]; dup {
			return eris.Errorf("config: rule sources %s and %s share priority %d", other, s.Kind, s.Priority)
		}
		seen[s.Priority] = s.Kind
	}

	if c.Reconcile.ConsensusCap <= 0 || c.Reconcile.ConsensusCap > 1 {
		return eris.Errorf("config: consensus cap %v out of (0,1]", c.Reconcile.ConsensusCap)
	}
	if c.Validate.Workers <= 0 {
		return eris.Errorf("config: validate workers must be positive, got %d", c.Validate.Workers)
	}
	if c.Graph.MaxDepth < 1 {
		return eris.Errorf("config: graph max depth must be at least 1, got %d", c.Graph.MaxDepth)
	}

	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
