package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissing is returned when a required setting is absent.
var ErrMissing = errors.New("missing required configuration")

// Identity modes.
const (
	ModeAdmin = "admin"
	ModeToken = "token"
)

const (
	DefaultIdentityEndpoint = "https://identitytoolkit.googleapis.com/v1"
	DefaultIdentityTimeout  = 10 * time.Second
)

type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Identity IdentityConfig `yaml:"identity"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Report   ReportConfig   `yaml:"report"`
}

type SourceConfig struct {
	Backend    string `yaml:"backend"` // "gcs" | "s3" | "file"
	Bucket     string `yaml:"bucket"`
	Key        string `yaml:"key"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`
}

type IdentityConfig struct {
	Mode            string        `yaml:"mode"` // "admin" | "token"
	CredentialsJSON string        `yaml:"-"`
	WebAPIKey       string        `yaml:"-"`
	ProjectID       string        `yaml:"project_id"`
	Endpoint        string        `yaml:"endpoint"`
	Timeout         time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

type ReportConfig struct {
	Key string `yaml:"key"`
}

// Load builds the configuration from the environment. If CONFIG_FILE points to
// a YAML file its values act as defaults; environment variables win.
// Credentials are only ever read from the environment.
func Load(getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	var cfg Config
	if path := getenv("CONFIG_FILE"); path != "" {
		fileCfg, err := ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	timeout := cfg.Identity.Timeout
	if v := getenv("IDENTITY_TIMEOUT"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("IDENTITY_TIMEOUT %q: %w", v, err)
		}
		timeout = parsed
	}
	if timeout <= 0 {
		timeout = DefaultIdentityTimeout
	}

	cfg = Config{
		Source: SourceConfig{
			Backend:    getenvDefault(getenv, "STORAGE_BACKEND", orDefault(cfg.Source.Backend, "gcs")),
			Bucket:     getenvDefault(getenv, "GCS_BUCKET_NAME", cfg.Source.Bucket),
			Key:        getenvDefault(getenv, "GCS_CSV_FILE_NAME", cfg.Source.Key),
			S3Endpoint: getenvDefault(getenv, "S3_ENDPOINT", cfg.Source.S3Endpoint),
			S3Region:   getenvDefault(getenv, "S3_REGION", cfg.Source.S3Region),
		},
		Identity: IdentityConfig{
			Mode:            strings.ToLower(getenvDefault(getenv, "IDENTITY_MODE", cfg.Identity.Mode)),
			CredentialsJSON: getenv("FIREBASE_CREDENTIALS_JSON"),
			WebAPIKey:       getenv("FIREBASE_WEB_API_KEY"),
			ProjectID:       getenvDefault(getenv, "FIREBASE_PROJECT_ID", cfg.Identity.ProjectID),
			Endpoint:        getenvDefault(getenv, "IDENTITY_ENDPOINT", orDefault(cfg.Identity.Endpoint, DefaultIdentityEndpoint)),
			Timeout:         timeout,
		},
		Logging: LoggingConfig{
			Format: getenvDefault(getenv, "LOG_FORMAT", orDefault(cfg.Logging.Format, "text")),
			Level:  getenvDefault(getenv, "LOG_LEVEL", orDefault(cfg.Logging.Level, "info")),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: getenvDefault(getenv, "METRICS_PUSHGATEWAY_URL", cfg.Metrics.PushgatewayURL),
			Job:            getenvDefault(getenv, "METRICS_JOB", orDefault(cfg.Metrics.Job, "email_rename")),
		},
		Report: ReportConfig{
			Key: getenvDefault(getenv, "REPORT_KEY", cfg.Report.Key),
		},
	}

	if err := cfg.resolve(); err != nil {
		return Config{}, err
	}

	slog.Debug("configuration loaded",
		"component", "config",
		"backend", cfg.Source.Backend,
		"bucket", cfg.Source.Bucket,
		"key", cfg.Source.Key,
		"mode", cfg.Identity.Mode,
	)
	return cfg, nil
}

// ReadFile parses a YAML configuration file.
func ReadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// resolve validates required settings and picks the identity mode.
func (c *Config) resolve() error {
	if c.Source.Bucket == "" {
		return fmt.Errorf("%w: GCS_BUCKET_NAME", ErrMissing)
	}
	if c.Source.Key == "" {
		return fmt.Errorf("%w: GCS_CSV_FILE_NAME", ErrMissing)
	}

	switch c.Source.Backend {
	case "gcs", "s3", "file":
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Source.Backend)
	}

	switch c.Identity.Mode {
	case "":
		switch {
		case c.Identity.CredentialsJSON != "":
			c.Identity.Mode = ModeAdmin
		case c.Identity.WebAPIKey != "":
			c.Identity.Mode = ModeToken
		default:
			return fmt.Errorf("%w: FIREBASE_CREDENTIALS_JSON or FIREBASE_WEB_API_KEY", ErrMissing)
		}
	case ModeAdmin:
		if c.Identity.CredentialsJSON == "" {
			return fmt.Errorf("%w: FIREBASE_CREDENTIALS_JSON", ErrMissing)
		}
	case ModeToken:
		if c.Identity.WebAPIKey == "" {
			return fmt.Errorf("%w: FIREBASE_WEB_API_KEY", ErrMissing)
		}
	default:
		return fmt.Errorf("unknown identity mode: %s", c.Identity.Mode)
	}

	return nil
}

func getenvDefault(getenv func(string) string, key, def string) string {
	if val := getenv(key); val != "" {
		return val
	}
	return def
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
