// Package config loads service configuration from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/vadimbarashkov/shortener/internal/shortcode"
	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Env             string `yaml:"env"`
	LogLevel        string `yaml:"log_level"`
	ShortCodeLength int    `yaml:"short_code_length"`
	Storage         `yaml:"storage"`
	HTTPServer      `yaml:"http_server"`
	Postgres        `yaml:"postgres"`
	Redis           `yaml:"redis"`
}

type Storage struct {
	Backend string `yaml:"backend"`
}

type HTTPServer struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"`
	CertFile        string        `yaml:"cert_file"`
	KeyFile         string        `yaml:"key_file"`
}

var defaultHTTPServer = HTTPServer{
	Port:            8080,
	ReadTimeout:     5 * time.Second,
	WriteTimeout:    10 * time.Second,
	IdleTimeout:     time.Minute,
	ShutdownTimeout: 10 * time.Second,
	MaxHeaderBytes:  1 << 20,
}

func (s *HTTPServer) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// TLS reports whether both certificate files are configured.
func (s *HTTPServer) TLS() bool {
	return s.CertFile != "" && s.KeyFile != ""
}

type Postgres struct {
	URL             string        `yaml:"url"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	AcquireTimeout  time.Duration `yaml:"acquire_timeout"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    5,
	AcquireTimeout:  30 * time.Second,
}

// DSN returns URL when set and otherwise builds one from the individual parts.
func (p *Postgres) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

type Redis struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	KeyPrefix   string        `yaml:"key_prefix"`
}

var defaultRedis = Redis{
	Addr:        "localhost:6379",
	PoolSize:    10,
	DialTimeout: 5 * time.Second,
	KeyPrefix:   "url",
}

// envOverrides are the environment variables that take precedence over the file.
// Unset variables leave the file value untouched.
type envOverrides struct {
	DatabaseURL           string `envconfig:"DATABASE_URL"`
	MaxConnections        int    `envconfig:"POSTGRES_MAX_CONNECTIONS"`
	ConnectionTimeoutSecs int    `envconfig:"POSTGRES_CONNECTION_TIMEOUT_SECS"`
	Host                  string `envconfig:"HOST"`
	Port                  int    `envconfig:"PORT"`
	StorageBackend        string `envconfig:"STORAGE_BACKEND"`
	RedisAddr             string `envconfig:"REDIS_ADDR"`
	LogLevel              string `envconfig:"LOG_LEVEL"`
}

// Load reads the YAML file at path on top of the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	var cfg Config
	setDefaults(&cfg)

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to open config file: %w", op, err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if env.DatabaseURL != "" {
		cfg.Postgres.URL = env.DatabaseURL
	}
	if env.MaxConnections != 0 {
		cfg.Postgres.MaxOpenConns = env.MaxConnections
	}
	if env.ConnectionTimeoutSecs != 0 {
		cfg.Postgres.AcquireTimeout = time.Duration(env.ConnectionTimeoutSecs) * time.Second
	}
	if env.Host != "" {
		cfg.HTTPServer.Host = env.Host
	}
	if env.Port != 0 {
		cfg.HTTPServer.Port = env.Port
	}
	if env.StorageBackend != "" {
		cfg.Storage.Backend = env.StorageBackend
	}
	if env.RedisAddr != "" {
		cfg.Redis.Addr = env.RedisAddr
	}
	if env.LogLevel != "" {
		cfg.LogLevel = env.LogLevel
	}

	return nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDev, EnvStage, EnvProd:
	default:
		return fmt.Errorf("%w: unknown env %q", ErrInvalidConfig, c.Env)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}

	if c.ShortCodeLength < shortcode.MinLength || c.ShortCodeLength > shortcode.MaxLength {
		return fmt.Errorf("%w: short code length %d is outside [%d, %d]",
			ErrInvalidConfig, c.ShortCodeLength, shortcode.MinLength, shortcode.MaxLength)
	}

	if c.HTTPServer.Port <= 0 || c.HTTPServer.Port > 65535 {
		return fmt.Errorf("%w: invalid http port %d", ErrInvalidConfig, c.HTTPServer.Port)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.MaxOpenConns <= 0 {
			return fmt.Errorf("%w: postgres max_open_conns must be positive", ErrInvalidConfig)
		}
		if c.Postgres.URL == "" && c.Postgres.DB == "" {
			return fmt.Errorf("%w: postgres url or db is required", ErrInvalidConfig)
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis addr is required", ErrInvalidConfig)
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("%w: redis pool_size must be positive", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	return nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.LogLevel = "info"
	cfg.ShortCodeLength = shortcode.DefaultLength
	cfg.Storage.Backend = BackendMemory
	cfg.HTTPServer = defaultHTTPServer
	cfg.Postgres = defaultPostgres
	cfg.Redis = defaultRedis
}
