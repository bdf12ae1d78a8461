package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Keys       KeysConfig       `yaml:"keys" mapstructure:"keys"`
	Identity   IdentityConfig   `yaml:"identity" mapstructure:"identity"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Run        RunConfig        `yaml:"run" mapstructure:"run"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the key-value backend holding the profiles.
type StoreConfig struct {
	Driver    string        `yaml:"driver" mapstructure:"driver"`
	URL       string        `yaml:"url" mapstructure:"url"`
	Path      string        `yaml:"path" mapstructure:"path"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int           `yaml:"burst" mapstructure:"burst"`
	Retry     RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
	Pool      PoolConfig    `yaml:"pool" mapstructure:"pool"`
}

// RetryConfig tunes retries of transient store errors.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig tunes the breaker guarding commit writes.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// PoolConfig holds optional postgres connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// KeyPattern is one known naming scheme for profile documents. The template
// holds literal text, an optional {id} placeholder and optional * wildcards.
type KeyPattern struct {
	Template  string `yaml:"template" mapstructure:"template"`
	Legacy    bool   `yaml:"legacy" mapstructure:"legacy"`
	Preferred bool   `yaml:"preferred" mapstructure:"preferred"`
}

// KeysConfig describes the store's key naming history.
type KeysConfig struct {
	Canonical   string       `yaml:"canonical" mapstructure:"canonical"`
	Patterns    []KeyPattern `yaml:"patterns" mapstructure:"patterns"`
	Exclude     []string     `yaml:"exclude" mapstructure:"exclude"`
	IndexPrefix string       `yaml:"index_prefix" mapstructure:"index_prefix"`
}

// IdentityConfig lists the document fields that may carry a user handle,
// in lookup order.
type IdentityConfig struct {
	HandleFields []string `yaml:"handle_fields" mapstructure:"handle_fields"`
}

// ScoringConfig holds the additive weights used to rank the documents of an
// identity group.
type ScoringConfig struct {
	PreferredKeyWeight float64            `yaml:"preferred_key_weight" mapstructure:"preferred_key_weight"`
	ApprovedWeight     float64            `yaml:"approved_weight" mapstructure:"approved_weight"`
	RoleWeights        map[string]float64 `yaml:"role_weights" mapstructure:"role_weights"`
	FieldWeight        float64            `yaml:"field_weight" mapstructure:"field_weight"`
	AgeWeightPerDay    float64            `yaml:"age_weight_per_day" mapstructure:"age_weight_per_day"`
	AgeCap             float64            `yaml:"age_cap" mapstructure:"age_cap"`
}

// RunConfig configures where run artifacts go and how commits are gated.
type RunConfig struct {
	OutputDir     string `yaml:"output_dir" mapstructure:"output_dir"`
	BackupDir     string `yaml:"backup_dir" mapstructure:"backup_dir"`
	ConfirmPhrase string `yaml:"confirm_phrase" mapstructure:"confirm_phrase"`
	// ReadConcurrency bounds parallel document reads.
	ReadConcurrency int `yaml:"read_concurrency" mapstructure:"read_concurrency"`
}

// ServerConfig configures the ops server.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	CORSOrigins       []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	DriftIntervalSecs int      `yaml:"drift_interval_secs" mapstructure:"drift_interval_secs"`
}

// MonitoringConfig configures run metrics and alert delivery.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	OrphanThreshold      int     `yaml:"orphan_threshold" mapstructure:"orphan_threshold"`
	MetricsFile          string  `yaml:"metrics_file" mapstructure:"metrics_file"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultKeyPatterns returns the naming schemes profiles have been written
// under over time.
func DefaultKeyPatterns() []KeyPattern {
	return []KeyPattern{
		{Template: "user:{id}"},
		{Template: "user:profile:{id}", Legacy: true, Preferred: true},
		{Template: "profile:{id}", Legacy: true},
		{Template: "users:{id}", Legacy: true},
		{Template: "kol:profile:{id}", Legacy: true},
	}
}

// DefaultRoleWeights returns role weights ordered by privilege.
func DefaultRoleWeights() map[string]float64 {
	return map[string]float64{
		"admin":  500,
		"core":   400,
		"team":   300,
		"kol":    200,
		"scout":  200,
		"user":   100,
		"viewer": 0,
	}
}

// Load reads configuration from file and environment. An optional .env file
// in the working directory is loaded into the process environment first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEDUPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "redis")
	v.SetDefault("store.url", "redis://localhost:6379/0")
	v.SetDefault("store.path", "profiles.db")
	v.SetDefault("store.rate_limit", 0)
	v.SetDefault("store.burst", 10)
	v.SetDefault("store.retry.max_attempts", 3)
	v.SetDefault("store.retry.initial_backoff_ms", 200)
	v.SetDefault("store.retry.max_backoff_ms", 5000)
	v.SetDefault("store.retry.multiplier", 2.0)
	v.SetDefault("store.retry.jitter_fraction", 0.25)
	v.SetDefault("store.circuit.failure_threshold", 5)
	v.SetDefault("store.circuit.reset_timeout_secs", 30)
	v.SetDefault("keys.canonical", "user:{id}")
	v.SetDefault("keys.patterns", patternDefaults())
	v.SetDefault("keys.exclude", []string{"user:*:sessions", "user:*:nonce", "idx:*"})
	v.SetDefault("keys.index_prefix", "idx")
	v.SetDefault("identity.handle_fields", []string{"handle", "twitterHandle", "xHandle", "username"})
	v.SetDefault("scoring.preferred_key_weight", 1000)
	v.SetDefault("scoring.approved_weight", 800)
	v.SetDefault("scoring.role_weights", DefaultRoleWeights())
	v.SetDefault("scoring.field_weight", 25)
	v.SetDefault("scoring.age_weight_per_day", 0.05)
	v.SetDefault("scoring.age_cap", 20)
	v.SetDefault("run.output_dir", "reports")
	v.SetDefault("run.backup_dir", "backups")
	v.SetDefault("run.confirm_phrase", "MIGRATE PROFILES")
	v.SetDefault("run.read_concurrency", 8)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.drift_interval_secs", 3600)
	v.SetDefault("monitoring.failure_rate_threshold", 0.1)
	v.SetDefault("monitoring.orphan_threshold", 25)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// patternDefaults renders DefaultKeyPatterns in the shape viper decodes.
func patternDefaults() []map[string]any {
	patterns := DefaultKeyPatterns()
	out := make([]map[string]any, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, map[string]any{
			"template":  p.Template,
			"legacy":    p.Legacy,
			"preferred": p.Preferred,
		})
	}
	return out
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "memory":
	case "redis", "postgres":
		if c.Store.URL == "" {
			errs = append(errs, "store.url is required for driver "+c.Store.Driver)
		}
	case "badger", "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required for driver "+c.Store.Driver)
		}
	default:
		errs = append(errs, "unsupported store.driver "+c.Store.Driver)
	}

	if c.Keys.Canonical == "" {
		errs = append(errs, "keys.canonical is required")
	} else if strings.Count(c.Keys.Canonical, "{id}") != 1 {
		errs = append(errs, "keys.canonical must contain exactly one {id}")
	}
	if len(c.Keys.Patterns) == 0 {
		errs = append(errs, "keys.patterns must not be empty")
	}
	if len(c.Identity.HandleFields) == 0 {
		errs = append(errs, "identity.handle_fields must not be empty")
	}

	switch mode {
	case "preview":
	case "commit":
		if c.Run.BackupDir == "" {
			errs = append(errs, "run.backup_dir is required to commit")
		}
		if strings.TrimSpace(c.Run.ConfirmPhrase) == "" {
			errs = append(errs, "run.confirm_phrase must not be blank")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
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
