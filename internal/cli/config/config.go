package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/asgardtech/pathsec/pkg/pathsec"
)

// EnvPrefix prefixes every environment variable override, e.g.
// PATHSEC_ENGINE_PLATFORM=posix
const EnvPrefix = "PATHSEC"

// Config represents the pathsec configuration
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// EngineConfig configures the validation engine
type EngineConfig struct {
	Platform           string   `mapstructure:"platform" validate:"oneof=portable windows posix"`
	MaxInputSize       string   `mapstructure:"max_input_size" validate:"required,humansize"`
	MaxDecodeRounds    int      `mapstructure:"max_decode_rounds" validate:"min=1,max=16"`
	AllowAbsolute      bool     `mapstructure:"allow_absolute"`
	StrictSeparators   bool     `mapstructure:"strict_separators"`
	Placeholder        string   `mapstructure:"placeholder" validate:"required"`
	ProjectPlaceholder string   `mapstructure:"project_placeholder" validate:"required"`
	DenyGlobs          []string `mapstructure:"deny_globs"`
	DenySystemPaths    bool     `mapstructure:"deny_system_paths"`
}

// ServerConfig represents HTTP server configuration. Profiling endpoints are
// served on PprofAddr when it is set.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     string        `mapstructure:"max_body_size" validate:"required,humansize"`
	MaxBatchSize    int           `mapstructure:"max_batch_size" validate:"min=1"`
	TLSCertFile     string        `mapstructure:"tls_cert_file" validate:"required_with=TLSKeyFile"`
	TLSKeyFile      string        `mapstructure:"tls_key_file" validate:"required_with=TLSCertFile"`
	PprofAddr       string        `mapstructure:"pprof_addr"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// CacheConfig configures the verdict cache used by the HTTP server
type CacheConfig struct {
	Driver string        `mapstructure:"driver" validate:"oneof=none memory redis"`
	TTL    time.Duration `mapstructure:"ttl"`
	Prefix string        `mapstructure:"prefix"`
}

// RateLimitConfig configures per-client rate limiting
type RateLimitConfig struct {
	Driver string        `mapstructure:"driver" validate:"oneof=none memory redis"`
	Limit  int           `mapstructure:"limit" validate:"min=1"`
	Window time.Duration `mapstructure:"window"`
}

// RedisConfig is shared by the redis cache and rate limiter
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

// AuditConfig configures the audit trail of rejected inputs
type AuditConfig struct {
	Driver    string        `mapstructure:"driver" validate:"oneof=none sqlite3 pgx"`
	DSN       string        `mapstructure:"dsn"`
	Table     string        `mapstructure:"table" validate:"required"`
	Retention time.Duration `mapstructure:"retention"`
}

// AuthConfig configures bearer token authentication for the HTTP server.
// Authentication is disabled when JWTSecret is empty.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.platform", pathsec.PlatformPortable)
	v.SetDefault("engine.max_input_size", "64KiB")
	v.SetDefault("engine.max_decode_rounds", pathsec.DefaultMaxDecodeRounds)
	v.SetDefault("engine.allow_absolute", true)
	v.SetDefault("engine.strict_separators", true)
	v.SetDefault("engine.placeholder", "_")
	v.SetDefault("engine.project_placeholder", "project")
	v.SetDefault("engine.deny_globs", []string{})
	v.SetDefault("engine.deny_system_paths", false)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_size", "1MiB")
	v.SetDefault("server.max_batch_size", 1000)
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")
	v.SetDefault("server.pprof_addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.prefix", "pathsec:")

	v.SetDefault("ratelimit.driver", "none")
	v.SetDefault("ratelimit.limit", 600)
	v.SetDefault("ratelimit.window", time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("audit.driver", "none")
	v.SetDefault("audit.dsn", "")
	v.SetDefault("audit.table", "pathsec_audit")
	v.SetDefault("audit.retention", 30*24*time.Hour)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
}

// Load loads the configuration from path, or from pathsec.yml/pathsec.yaml in
// the working directory when path is empty. Variables from a .env file and
// PATHSEC_* environment variables override file values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pathsec")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration used when no file or environment
// overrides are present
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// EngineOptions converts the engine section into engine options
func (c *Config) EngineOptions() (*pathsec.Config, error) {
	rules, err := pathsec.RulesFor(c.Engine.Platform)
	if err != nil {
		return nil, err
	}
	maxInput, err := units.RAMInBytes(c.Engine.MaxInputSize)
	if err != nil {
		return nil, fmt.Errorf("engine.max_input_size: %w", err)
	}

	opts := pathsec.DefaultConfig()
	opts.Rules = rules
	opts.MaxInputSize = int(maxInput)
	opts.MaxDecodeRounds = c.Engine.MaxDecodeRounds
	opts.AllowAbsolute = c.Engine.AllowAbsolute
	opts.StrictSeparators = c.Engine.StrictSeparators
	opts.Placeholder = c.Engine.Placeholder
	opts.ProjectPlaceholder = c.Engine.ProjectPlaceholder
	opts.DenyGlobs = append(opts.DenyGlobs, c.Engine.DenyGlobs...)
	if c.Engine.DenySystemPaths {
		opts.DenyGlobs = append(opts.DenyGlobs, pathsec.SystemDenyGlobs...)
	}
	return opts, nil
}

// NewEngine builds a validation engine from the engine section
func (c *Config) NewEngine() (*pathsec.Engine, error) {
	opts, err := c.EngineOptions()
	if err != nil {
		return nil, err
	}
	return pathsec.NewEngine(opts)
}

// MaxBodyBytes returns the server body limit in bytes
func (c *Config) MaxBodyBytes() int64 {
	n, err := units.RAMInBytes(c.Server.MaxBodySize)
	if err != nil {
		return 1 << 20
	}
	return n
}

// Address returns the host:port the server listens on
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.Split(fld.Tag.Get("mapstructure"), ",")[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("humansize", validHumanSize)
	return v
}

// validHumanSize accepts sizes like "64KiB", "1MB" or "4096"
func validHumanSize(fl validator.FieldLevel) bool {
	n, err := units.RAMInBytes(fl.Field().String())
	return err == nil && n > 0
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s=%v fails %q", configKey(fe.Namespace()), fe.Value(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if (cfg.Cache.Driver == "redis" || cfg.RateLimit.Driver == "redis") && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when a redis driver is selected")
	}
	if cfg.Audit.Driver != "none" && cfg.Audit.DSN == "" {
		return fmt.Errorf("audit.dsn is required for audit driver %q", cfg.Audit.Driver)
	}
	if cfg.RateLimit.Driver != "none" && cfg.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be greater than 0")
	}
	return nil
}

// configKey turns a validator namespace like "Config.engine.platform" into
// the config key "engine.platform"
func configKey(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
