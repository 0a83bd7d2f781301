package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
)

// DefaultPath is the config file read when no explicit path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for ekaya-profiler.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Target database to profile
	Datasource DatasourceConfig `yaml:"datasource"`

	// Analysis limits and timeouts
	Profiler ProfilerConfig `yaml:"profiler"`
}

// DatasourceConfig describes the database being profiled.
type DatasourceConfig struct {
	Type     string `yaml:"type" env:"DATASOURCE_TYPE" env-default:"postgres"`
	Host     string `yaml:"host" env:"DATASOURCE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DATASOURCE_PORT" env-default:"0"` // 0 = adapter default
	User     string `yaml:"user" env:"DATASOURCE_USER"`
	Password string `yaml:"-" env:"DATASOURCE_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"DATASOURCE_DATABASE"`

	// PostgreSQL only
	SSLMode string `yaml:"ssl_mode" env:"DATASOURCE_SSL_MODE" env-default:""`

	// SQL Server only
	Encrypt                string `yaml:"encrypt" env:"DATASOURCE_ENCRYPT" env-default:"true"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate" env:"DATASOURCE_TRUST_SERVER_CERTIFICATE" env-default:"false"`
	// "sql" or "service_principal"; inferred from the credentials when empty.
	AuthMethod   string `yaml:"auth_method" env:"DATASOURCE_AUTH_METHOD"`
	TenantID     string `yaml:"tenant_id" env:"DATASOURCE_TENANT_ID"`
	ClientID     string `yaml:"client_id" env:"DATASOURCE_CLIENT_ID"`
	ClientSecret string `yaml:"-" env:"DATASOURCE_CLIENT_SECRET"` // Secret - not in YAML

	// PoolMaxConns is the maximum number of connections in the datasource pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"4"`
}

// ProfilerConfig holds analysis limits.
type ProfilerConfig struct {
	// Timeout for lightweight catalog and sanity queries.
	MetadataQueryTimeout time.Duration `yaml:"metadata_query_timeout" env:"PROFILER_METADATA_QUERY_TIMEOUT" env-default:"30s"`
	// Timeout for statements that scan table data.
	ScanQueryTimeout time.Duration `yaml:"scan_query_timeout" env:"PROFILER_SCAN_QUERY_TIMEOUT" env-default:"5m"`
	// Columns analyzed concurrently within one table. 1 = sequential.
	MaxParallelColumns int `yaml:"max_parallel_columns" env:"PROFILER_MAX_PARALLEL_COLUMNS" env-default:"1"`

	DefaultPageSize        int  `yaml:"default_page_size" env:"PROFILER_DEFAULT_PAGE_SIZE" env-default:"20"`
	MaxPageSize            int  `yaml:"max_page_size" env:"PROFILER_MAX_PAGE_SIZE" env-default:"1000"`
	PatternSampleLimit     int  `yaml:"pattern_sample_limit" env:"PROFILER_PATTERN_SAMPLE_LIMIT" env-default:"10000"`
	CorrelationSampleLimit int  `yaml:"correlation_sample_limit" env:"PROFILER_CORRELATION_SAMPLE_LIMIT" env-default:"1000"`
	TopValuesLimit         int  `yaml:"top_values_limit" env:"PROFILER_TOP_VALUES_LIMIT" env-default:"10"`
	HistogramBuckets       int  `yaml:"histogram_buckets" env:"PROFILER_HISTOGRAM_BUCKETS" env-default:"20"`
	IncludeDateTimeline    bool `yaml:"include_date_timeline" env:"PROFILER_INCLUDE_DATE_TIMELINE" env-default:"true"`

	// Optional YAML file with pattern rules merged over the built-in list.
	PatternRulesFile string `yaml:"pattern_rules_file" env:"PROFILER_PATTERN_RULES_FILE" env-default:""`
}

// Load reads config.yaml from the working directory with environment
// variable overrides. When config.yaml does not exist, configuration comes
// from the environment alone.
func Load(version string) (*Config, error) {
	if _, err := os.Stat(DefaultPath); errors.Is(err, os.ErrNotExist) {
		cfg := &Config{Version: version}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
		return cfg, cfg.Validate()
	}
	return LoadFile(DefaultPath, version)
}

// LoadFile reads configuration from path with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks limits that would otherwise make analyses misbehave.
func (c *Config) Validate() error {
	p := c.Profiler
	switch {
	case p.MetadataQueryTimeout <= 0:
		return fmt.Errorf("%w: metadata_query_timeout must be positive", apperrors.ErrInvalidConfig)
	case p.ScanQueryTimeout <= 0:
		return fmt.Errorf("%w: scan_query_timeout must be positive", apperrors.ErrInvalidConfig)
	case p.MaxParallelColumns < 1:
		return fmt.Errorf("%w: max_parallel_columns must be at least 1", apperrors.ErrInvalidConfig)
	case p.DefaultPageSize < 1 || p.MaxPageSize < p.DefaultPageSize:
		return fmt.Errorf("%w: default_page_size must be between 1 and max_page_size", apperrors.ErrInvalidConfig)
	case p.PatternSampleLimit < 1 || p.CorrelationSampleLimit < 3:
		return fmt.Errorf("%w: sample limits too small", apperrors.ErrInvalidConfig)
	case p.TopValuesLimit < 1 || p.HistogramBuckets < 1:
		return fmt.Errorf("%w: top_values_limit and histogram_buckets must be positive", apperrors.ErrInvalidConfig)
	}
	return nil
}

// ToMap converts the datasource section into the generic map consumed by
// the adapter registry. Zero-valued optional fields are omitted so adapter
// defaults apply.
func (d DatasourceConfig) ToMap() map[string]any {
	m := map[string]any{
		"host":                     d.Host,
		"user":                     d.User,
		"password":                 d.Password,
		"database":                 d.Database,
		"encrypt":                  d.Encrypt,
		"trust_server_certificate": d.TrustServerCertificate,
	}
	if d.Port > 0 {
		m["port"] = d.Port
	}
	if d.SSLMode != "" {
		m["ssl_mode"] = d.SSLMode
	}
	for key, v := range map[string]string{
		"auth_method":   d.AuthMethod,
		"tenant_id":     d.TenantID,
		"client_id":     d.ClientID,
		"client_secret": d.ClientSecret,
	} {
		if v != "" {
			m[key] = v
		}
	}
	if d.PoolMaxConns > 0 {
		m["pool_max_conns"] = int(d.PoolMaxConns)
	}
	return m
}
