// Package config loads the server configuration.
//
// Configuration comes from a single YAML file named by the --config flag
// or the ASSET_LEDGER_CONFIG environment variable. With neither set the
// defaults are used. REDIS_ADDR, MYSQL_DSN and MONGO_URI override the
// matching store settings after the file is read.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/asset-ledger/internal/core/domain"
)

// EnvConfig names the environment variable holding the config path.
const EnvConfig = "ASSET_LEDGER_CONFIG"

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
	BackendMongo  = "mongo"
)

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Store      StoreConfig      `yaml:"store"`
	Allocator  AllocatorConfig  `yaml:"allocator"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	Log        LogConfig        `yaml:"log"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig selects the persistence backend. Only the section matching
// Backend is used.
type StoreConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
	MySQL   MySQLConfig `yaml:"mysql"`
	Mongo   MongoConfig `yaml:"mongo"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type AllocatorConfig struct {
	// MaxAttempts bounds the optimistic retries of seat and group writes.
	MaxAttempts int `yaml:"max_attempts"`
}

type DispatcherConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// LifecycleConfig replaces the built-in transition table when Edges is
// non-empty.
type LifecycleConfig struct {
	Edges []EdgeConfig `yaml:"edges"`
}

type EdgeConfig struct {
	From    string   `yaml:"from"`
	To      string   `yaml:"to"`
	Effects []string `yaml:"effects"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr: ":50051",
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 100,
			},
			MySQL: MySQLConfig{
				DSN:             "root:root@tcp(localhost:3306)/assetledger?parseTime=true",
				MaxOpenConns:    50,
				MaxIdleConns:    25,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "asset_ledger",
			},
		},
		Allocator: AllocatorConfig{
			MaxAttempts: 3,
		},
		Dispatcher: DispatcherConfig{
			Workers:   4,
			QueueSize: 10000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Flags holds the command-line values that feed Load.
type Flags struct {
	ConfigPath string
	Backend    string
	LogLevel   string
}

// AddFlags registers the shared server flags on fs.
func (f *Flags) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", "", "path to the YAML config file (default $"+EnvConfig+")")
	fs.StringVar(&f.Backend, "store", "", "store backend: memory, redis, mysql or mongo")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level: debug, info, warn or error")
}

// Load builds the configuration: defaults, then the config file, then
// environment overrides, then flags. The result is validated.
func Load(flags Flags) (*Config, error) {
	cfg := Default()

	path := flags.ConfigPath
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if flags.Backend != "" {
		cfg.Store.Backend = flags.Backend
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads path over the defaults without consulting the
// environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.Store.MySQL.DSN = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Store.Mongo.URI = v
	}
}

// Validate checks values that would otherwise fail late, at connect or
// first use.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendMemory, BackendRedis, BackendMySQL, BackendMongo:
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if c.HTTP.Addr == "" && c.GRPC.Addr == "" {
		errs = append(errs, errors.New("http.addr and grpc.addr: at least one listener is required"))
	}
	if c.Allocator.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("allocator.max_attempts: must be at least 1, got %d", c.Allocator.MaxAttempts))
	}
	if c.Dispatcher.Workers < 1 {
		errs = append(errs, fmt.Errorf("dispatcher.workers: must be at least 1, got %d", c.Dispatcher.Workers))
	}
	if c.Dispatcher.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("dispatcher.queue_size: must be at least 1, got %d", c.Dispatcher.QueueSize))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if len(c.Lifecycle.Edges) > 0 {
		if _, err := c.TransitionTable(); err != nil {
			errs = append(errs, fmt.Errorf("lifecycle.edges: %w", err))
		}
	}

	return errors.Join(errs...)
}

// TransitionTable returns the configured table, or the built-in one when
// no edges are configured.
func (c *Config) TransitionTable() (*domain.TransitionTable, error) {
	if len(c.Lifecycle.Edges) == 0 {
		return domain.DefaultTransitionTable(), nil
	}

	edges := make([]domain.Edge, 0, len(c.Lifecycle.Edges))
	for _, e := range c.Lifecycle.Edges {
		from, err := domain.ParseStatus(e.From)
		if err != nil {
			return nil, err
		}
		to, err := domain.ParseStatus(e.To)
		if err != nil {
			return nil, err
		}
		effects := make([]domain.Effect, 0, len(e.Effects))
		for _, effect := range e.Effects {
			effects = append(effects, domain.Effect(effect))
		}
		edges = append(edges, domain.Edge{From: from, To: to, Effects: effects})
	}
	return domain.NewTransitionTable(edges)
}

// Logger builds the process logger from the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
