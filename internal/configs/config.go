package configs

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

const PasswordEnv = "DB_PASSWORD"

type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Listen   ListenConfig   `yaml:"listen"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Sink     SinkConfig     `yaml:"sink"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
}

type SourceConfig struct {
	Driver       string        `yaml:"driver"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Database     string        `yaml:"database"`
	User         string        `yaml:"user"`
	SSLMode      string        `yaml:"ssl_mode"`
	WALHint      bool          `yaml:"wal_hint"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	MaxConns     int           `yaml:"max_conns"`
	Password     string        `yaml:"-"`
}

type ListenConfig struct {
	DefaultInterval time.Duration          `yaml:"default_interval"`
	StrictStop      bool                   `yaml:"strict_stop"`
	Tables          map[string]TableListen `yaml:"tables"`
}

type TableListen struct {
	Interval time.Duration `yaml:"interval"`
}

type PipelineConfig struct {
	Tables         map[string]TableOptions `yaml:"tables"`
	DefaultRoute   string                  `yaml:"default_route"`
	ExcludedTables []string                `yaml:"excluded_tables"`
}

type TableOptions struct {
	Kinds    []string  `yaml:"kinds"`
	PIIMasks []PIIMask `yaml:"pii_masks"`
	Route    string    `yaml:"route_to"`
}

type PIIMask struct {
	Field  string `yaml:"field"`
	Action string `yaml:"action"`
}

type SinkConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Compression   string        `yaml:"compression"`
	BatchSize     int           `yaml:"batch_size"` // KiB
	FlushInterval time.Duration `yaml:"flush_interval"`
	Encoding      string        `yaml:"encoding"`
}

type AdminConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// IntervalFor returns the table's poll interval, falling back to the default.
func (l ListenConfig) IntervalFor(table string) time.Duration {
	if t, ok := l.Tables[table]; ok && t.Interval > 0 {
		return t.Interval
	}
	return l.DefaultInterval
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML document, reads the password from the environment and
// applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("CONFIG ERR: %w", err)
	}

	cfg.Source.Password = os.Getenv(PasswordEnv)
	applyDefaults(&cfg)

	if err := verifyConfig(&cfg); err != nil {
		return nil, fmt.Errorf("CONFIG ERR: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Driver == "" {
		cfg.Source.Driver = "postgres"
	}
	if cfg.Source.SSLMode == "" {
		cfg.Source.SSLMode = "disable"
	}
	if cfg.Source.Port == 0 {
		switch cfg.Source.Driver {
		case "postgres":
			cfg.Source.Port = 5432
		case "mysql":
			cfg.Source.Port = 3306
		}
	}
	if cfg.Listen.DefaultInterval == 0 {
		cfg.Listen.DefaultInterval = time.Second
	}
	if cfg.Pipeline.DefaultRoute == "" {
		cfg.Pipeline.DefaultRoute = "table-changes"
	}
	if cfg.Sink.Encoding == "" {
		cfg.Sink.Encoding = "json"
	}
	if cfg.Sink.BatchSize == 0 {
		cfg.Sink.BatchSize = 1024
	}
	if cfg.Sink.FlushInterval == 0 {
		cfg.Sink.FlushInterval = 100 * time.Millisecond
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func verifyConfig(cfg *Config) error {
	var errs []error

	switch cfg.Source.Driver {
	case "postgres", "mysql":
		if cfg.Source.Password == "" {
			errs = append(errs, fmt.Errorf("empty %s env variable", PasswordEnv))
		}
	case "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("unsupported source driver %q", cfg.Source.Driver))
	}
	if cfg.Source.Database == "" {
		errs = append(errs, errors.New("source.database is required"))
	}
	if len(cfg.Listen.Tables) == 0 {
		errs = append(errs, errors.New("listen.tables must name at least one table"))
	}
	if cfg.Listen.DefaultInterval < 0 {
		errs = append(errs, errors.New("listen.default_interval must be positive"))
	}
	for table, t := range cfg.Listen.Tables {
		if t.Interval < 0 {
			errs = append(errs, fmt.Errorf("listen.tables.%s.interval must be positive", table))
		}
	}
	switch cfg.Sink.Encoding {
	case "json", "msgpack":
	default:
		errs = append(errs, fmt.Errorf("unsupported sink encoding %q", cfg.Sink.Encoding))
	}

	return errors.Join(errs...)
}
