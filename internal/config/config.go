package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Scorer    ScorerConfig    `yaml:"scorer" mapstructure:"scorer"`
	Recommend RecommendConfig `yaml:"recommend" mapstructure:"recommend"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the catalog/profile database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the optional catalog cache. An empty Addr disables it.
type RedisConfig struct {
	Addr            string `yaml:"addr" mapstructure:"addr"`
	Password        string `yaml:"password" mapstructure:"password"`
	DB              int    `yaml:"db" mapstructure:"db"`
	CatalogTTLSecs  int    `yaml:"catalog_ttl_secs" mapstructure:"catalog_ttl_secs"`
	CatalogKeyScale int    `yaml:"catalog_key_scale" mapstructure:"catalog_key_scale"`
}

// CatalogTTL returns the cache TTL as a duration.
func (c RedisConfig) CatalogTTL() time.Duration {
	return time.Duration(c.CatalogTTLSecs) * time.Second
}

// AuthConfig holds the token verification settings.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours" mapstructure:"token_ttl_hours"`
	RecommendRole string `yaml:"recommend_role" mapstructure:"recommend_role"`
	FeedbackRole  string `yaml:"feedback_role" mapstructure:"feedback_role"`
}

// TokenTTL returns the lifetime of issued tokens.
func (c AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// ScorerConfig selects and tunes the ranking backend.
type ScorerConfig struct {
	// Driver is "process" (external program) or "content" (in-process).
	Driver        string   `yaml:"driver" mapstructure:"driver"`
	Command       string   `yaml:"command" mapstructure:"command"`
	Args          []string `yaml:"args" mapstructure:"args"`
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConcurrent int      `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	// BreakerThreshold consecutive failures open the scorer breaker. 0 disables it.
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// Timeout returns the per-call scorer timeout.
func (c ScorerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RecommendConfig tunes candidate selection and the result score curve.
type RecommendConfig struct {
	RadiusKM       float64 `yaml:"radius_km" mapstructure:"radius_km"`
	MaxRadiusKM    float64 `yaml:"max_radius_km" mapstructure:"max_radius_km"`
	CandidateLimit int     `yaml:"candidate_limit" mapstructure:"candidate_limit"`
	Count          int     `yaml:"count" mapstructure:"count"`
	MaxCount       int     `yaml:"max_count" mapstructure:"max_count"`
	ScoreBase      float64 `yaml:"score_base" mapstructure:"score_base"`
	ScoreStep      float64 `yaml:"score_step" mapstructure:"score_step"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimitRequests   int      `yaml:"rate_limit_requests" mapstructure:"rate_limit_requests"`
	RateLimitWindowSecs int      `yaml:"rate_limit_window_secs" mapstructure:"rate_limit_window_secs"`
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
	v.SetEnvPrefix("YOUCHEWS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.catalog_ttl_secs", 300)
	v.SetDefault("redis.catalog_key_scale", 1000)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_hours", 5)
	v.SetDefault("auth.recommend_role", "user")
	v.SetDefault("auth.feedback_role", "user")
	v.SetDefault("scorer.driver", "process")
	v.SetDefault("scorer.command", "python3")
	v.SetDefault("scorer.args", []string{"recommender-system/src/main.py"})
	v.SetDefault("scorer.timeout_secs", 30)
	v.SetDefault("scorer.max_concurrent", 4)
	v.SetDefault("scorer.breaker_threshold", 5)
	v.SetDefault("scorer.breaker_reset_secs", 30)
	v.SetDefault("recommend.radius_km", 10.0)
	v.SetDefault("recommend.max_radius_km", 100.0)
	v.SetDefault("recommend.candidate_limit", 50)
	v.SetDefault("recommend.count", 10)
	v.SetDefault("recommend.max_count", 50)
	v.SetDefault("recommend.score_base", 9.8)
	v.SetDefault("recommend.score_step", 0.15)
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit_requests", 100)
	v.SetDefault("server.rate_limit_window_secs", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	return &cfg, nil
}

// Validate checks the settings required by the given command mode.
// Modes: "serve", "recommend", "store", "token".
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := mode == "serve" || mode == "recommend" || mode == "store"
	if needStore {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
		}
	}

	if mode == "serve" || mode == "token" {
		if c.Auth.JWTSecret == "" {
			errs = append(errs, "auth.jwt_secret is required")
		}
	}

	if mode == "serve" || mode == "recommend" {
		switch c.Scorer.Driver {
		case "process":
			if c.Scorer.Command == "" {
				errs = append(errs, "scorer.command is required for the process driver")
			}
		case "content":
		default:
			errs = append(errs, fmt.Sprintf("scorer.driver %q is not supported", c.Scorer.Driver))
		}
		if c.Scorer.TimeoutSecs <= 0 {
			errs = append(errs, "scorer.timeout_secs must be > 0")
		}
		if c.Recommend.RadiusKM <= 0 {
			errs = append(errs, "recommend.radius_km must be > 0")
		}
		if c.Recommend.MaxRadiusKM < c.Recommend.RadiusKM {
			errs = append(errs, "recommend.max_radius_km must be >= recommend.radius_km")
		}
		if c.Recommend.CandidateLimit <= 0 {
			errs = append(errs, "recommend.candidate_limit must be > 0")
		}
		if c.Recommend.Count <= 0 || c.Recommend.Count > c.Recommend.MaxCount {
			errs = append(errs, "recommend.count must be between 1 and recommend.max_count")
		}
		if c.Recommend.ScoreStep <= 0 {
			errs = append(errs, "recommend.score_step must be > 0")
		}
	}

	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
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
