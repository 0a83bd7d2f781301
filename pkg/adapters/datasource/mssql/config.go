package mssql

import (
	"fmt"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthSQL or AuthServicePrincipal (Entra ID application).
	AuthMethod string

	Username string
	Password string

	TenantID     string
	ClientID     string
	ClientSecret string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
	MaxOpenConns           int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// DefaultMaxOpenConns bounds the connections used by one profiling run.
func DefaultMaxOpenConns() int {
	return 4
}

const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

// FromMap builds a Config from the registry's option map. The auth method
// is taken from auth_method, or inferred: a client_id selects service
// principal, a user or username selects SQL authentication.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              intOpt(config, "port", DefaultPort()),
		Encrypt:           true,
		ConnectionTimeout: intOpt(config, "connection_timeout", DefaultConnectionTimeout()),
		MaxOpenConns:      intOpt(config, "pool_max_conns", DefaultMaxOpenConns()),
	}

	if cfg.Host = stringOpt(config, "host"); cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.Database = stringOpt(config, "database", "name"); cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}

	switch v := config["encrypt"].(type) {
	case bool:
		cfg.Encrypt = v
	case string:
		// "true", "false" or "strict"; empty keeps the default.
		if v != "" {
			cfg.Encrypt = v == "true" || v == "strict"
		}
	}
	if trust, ok := config["trust_server_certificate"].(bool); ok {
		cfg.TrustServerCertificate = trust
	}

	cfg.AuthMethod = stringOpt(config, "auth_method")
	if cfg.AuthMethod == "" {
		switch {
		case stringOpt(config, "client_id") != "":
			cfg.AuthMethod = AuthServicePrincipal
		case stringOpt(config, "username", "user") != "":
			cfg.AuthMethod = AuthSQL
		default:
			return nil, fmt.Errorf("could not auto-detect auth method; no credentials provided")
		}
	}

	switch cfg.AuthMethod {
	case AuthSQL:
		cfg.Username = stringOpt(config, "username", "user")
		cfg.Password = stringOpt(config, "password")
	case AuthServicePrincipal:
		cfg.TenantID = stringOpt(config, "tenant_id")
		cfg.ClientID = stringOpt(config, "client_id")
		cfg.ClientSecret = stringOpt(config, "client_secret")
	default:
		return nil, fmt.Errorf("invalid auth method: %s (must be %s or %s)", cfg.AuthMethod, AuthSQL, AuthServicePrincipal)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stringOpt returns the first non-empty string stored under one of keys.
func stringOpt(config map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := config[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// intOpt reads an int, accepting float64 since JSON numbers decode that
// way. Missing or non-positive values yield def.
func intOpt(config map[string]any, key string, def int) int {
	switch v := config[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return def
}

// Validate checks if the config has all required fields for the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case AuthSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case AuthServicePrincipal:
		if c.TenantID == "" {
			return fmt.Errorf("tenant_id is required for service principal authentication")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id is required for service principal authentication")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("client_secret is required for service principal authentication")
		}
	default:
		return fmt.Errorf("invalid auth method: %s", c.AuthMethod)
	}

	return nil
}
