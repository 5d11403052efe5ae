package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int    `mapstructure:"port"`
	InternalSecret string `mapstructure:"internal_secret"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AuthConfig contains JWT signing key locations and token lifetimes.
type AuthConfig struct {
	PrivateKeyPath      string `mapstructure:"private_key_path"`
	PublicKeyPath       string `mapstructure:"public_key_path"`
	AccessTokenTTLMin   int    `mapstructure:"access_token_ttl_minutes"`
	RefreshTokenTTLHour int    `mapstructure:"refresh_token_ttl_hours"`
}

// EngineConfig contains fit-engine tunables.
//
// ModelArtifactPath may be empty, in which case the engine runs on its
// deterministic heuristic fallback instead of the trained classifier.
// BonusTable selects the rank-reward preset ("classic" or "legacy").
type EngineConfig struct {
	ModelArtifactPath  string `mapstructure:"model_artifact_path"`
	BonusTable         string `mapstructure:"bonus_table"`
	FraudPenaltyPoints int    `mapstructure:"fraud_penalty_points"`
	RecomputeChunkSize int    `mapstructure:"recompute_chunk_size"`
}

// WorkerConfig contains asynq consumer settings.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "unimatch")
	v.SetDefault("database.user", "unimatch")
	v.SetDefault("database.password", "unimatch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("auth.access_token_ttl_minutes", 15)
	v.SetDefault("auth.refresh_token_ttl_hours", 168)
	v.SetDefault("engine.model_artifact_path", "")
	v.SetDefault("engine.bonus_table", "classic")
	v.SetDefault("engine.fraud_penalty_points", 10)
	v.SetDefault("engine.recompute_chunk_size", 200)
	v.SetDefault("worker.concurrency", 10)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                      "API_PORT",
		"api.internal_secret":           "INTERNAL_API_SECRET",
		"database.host":                 "DATABASE_HOST",
		"database.port":                 "DATABASE_PORT",
		"database.name":                 "POSTGRES_DB",
		"database.user":                 "POSTGRES_USER",
		"database.password":             "POSTGRES_PASSWORD",
		"database.sslmode":              "DATABASE_SSLMODE",
		"redis.host":                    "REDIS_HOST",
		"redis.port":                    "REDIS_PORT",
		"auth.private_key_path":         "AUTH_PRIVATE_KEY_PATH",
		"auth.public_key_path":          "AUTH_PUBLIC_KEY_PATH",
		"auth.access_token_ttl_minutes": "AUTH_ACCESS_TOKEN_TTL_MINUTES",
		"auth.refresh_token_ttl_hours":  "AUTH_REFRESH_TOKEN_TTL_HOURS",
		"engine.model_artifact_path":    "ENGINE_MODEL_ARTIFACT_PATH",
		"engine.bonus_table":            "ENGINE_BONUS_TABLE",
		"engine.fraud_penalty_points":   "ENGINE_FRAUD_PENALTY_POINTS",
		"engine.recompute_chunk_size":   "ENGINE_RECOMPUTE_CHUNK_SIZE",
		"worker.concurrency":            "WORKER_CONCURRENCY",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.Auth.AccessTokenTTLMin <= 0 {
		return errors.New("access token ttl must be positive")
	}
	if cfg.Auth.RefreshTokenTTLHour <= 0 {
		return errors.New("refresh token ttl must be positive")
	}
	switch cfg.Engine.BonusTable {
	case "classic", "legacy":
	default:
		return fmt.Errorf("unknown bonus table preset %q", cfg.Engine.BonusTable)
	}
	if cfg.Engine.FraudPenaltyPoints < 0 {
		return errors.New("fraud penalty points must not be negative")
	}
	if cfg.Engine.RecomputeChunkSize <= 0 {
		return errors.New("recompute chunk size must be positive")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	return nil
}
