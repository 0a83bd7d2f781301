package postgres

import "fmt"

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string // "disable", "require", "verify-ca", "verify-full"
	PoolMaxConns int32
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// DefaultPoolMaxConns bounds the pool used by one profiling run.
func DefaultPoolMaxConns() int32 {
	return 4
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:         DefaultPort(),
		SSLMode:      DefaultSSLMode(),
		PoolMaxConns: DefaultPoolMaxConns(),
	}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if port, ok := config["port"].(float64); ok { // JSON numbers are float64
		cfg.Port = int(port)
	} else if port, ok := config["port"].(int); ok {
		cfg.Port = port
	}

	if user, ok := config["user"].(string); ok && user != "" {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("user is required")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	} else if name, ok := config["name"].(string); ok && name != "" {
		cfg.Database = name
	} else {
		return nil, fmt.Errorf("database is required")
	}

	if sslMode, ok := config["ssl_mode"].(string); ok && sslMode != "" {
		cfg.SSLMode = sslMode
	}

	switch n := config["pool_max_conns"].(type) {
	case int32:
		cfg.PoolMaxConns = n
	case int:
		cfg.PoolMaxConns = int32(n)
	case float64:
		cfg.PoolMaxConns = int32(n)
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns()
	}

	return cfg, nil
}
