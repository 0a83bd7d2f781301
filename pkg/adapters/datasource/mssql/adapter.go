package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/config"
	"github.com/ekaya-inc/ekaya-profiler/pkg/logging"
	"github.com/ekaya-inc/ekaya-profiler/pkg/retry"
)

// Adapter implements datasource.Datasource for SQL Server and Azure SQL.
type Adapter struct {
	config *Config
	db     *sql.DB
	opts   datasource.Options
	logger *zap.Logger
}

// NewAdapter opens a SQL Server connection pool. Supported authentication:
//  1. SQL Authentication (username/password)
//  2. Service Principal (Azure AD with client credentials)
func NewAdapter(ctx context.Context, cfg *Config, opts datasource.Options) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts = opts.WithDefaults()
	logger := opts.Logger.Named("mssql")

	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*sql.DB, error) {
		var db *sql.DB
		var err error
		switch cfg.AuthMethod {
		case AuthSQL:
			db, err = createSQLAuthConnection(cfg)
		case AuthServicePrincipal:
			db, err = createServicePrincipalConnection(cfg)
		default:
			return nil, fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
		}
		if err != nil {
			return nil, err
		}

		pingCtx, cancel := opts.MetadataContext(ctx)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, fmt.Errorf("connection test failed: %w", err)
		}
		return db, nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to sql server: %s", logging.SanitizeError(err))
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)

	logger.Debug("Opened sql server pool",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("auth_method", cfg.AuthMethod))

	return &Adapter{
		config: cfg,
		db:     db,
		opts:   opts,
		logger: logger,
	}, nil
}

func connectionQuery(cfg *Config) url.Values {
	query := url.Values{}
	query.Add("database", cfg.Database)

	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}
	return query
}

// buildSQLAuthConnectionString builds a sqlserver:// URL with escaped credentials.
func buildSQLAuthConnectionString(cfg *Config) string {
	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		config.ResolveLoopbackHost(cfg.Host),
		cfg.Port,
		connectionQuery(cfg).Encode(),
	)
}

// buildServicePrincipalConnectionString uses the fedauth parameter for Azure AD.
func buildServicePrincipalConnectionString(cfg *Config) string {
	query := connectionQuery(cfg)
	query.Add("fedauth", "ActiveDirectoryServicePrincipal")
	query.Add("user id", cfg.ClientID)
	query.Add("password", cfg.ClientSecret)
	query.Add("tenant id", cfg.TenantID)

	return fmt.Sprintf("sqlserver://%s:%d?%s",
		cfg.Host,
		cfg.Port,
		query.Encode(),
	)
}

// createSQLAuthConnection creates a connection using SQL Server authentication.
func createSQLAuthConnection(cfg *Config) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", buildSQLAuthConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("open SQL auth connection: %w", err)
	}
	return db, nil
}

// createServicePrincipalConnection creates a connection using Azure AD Service Principal.
func createServicePrincipalConnection(cfg *Config) (*sql.DB, error) {
	// For Azure AD, use azuresql driver
	db, err := sql.Open("azuresql", buildServicePrincipalConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("open service principal connection: %w", err)
	}
	return db, nil
}

// Type returns the registry name of this adapter.
func (a *Adapter) Type() string {
	return "mssql"
}

// TestConnection verifies the database is reachable with valid credentials
// and that the session landed in the configured database.
func (a *Adapter) TestConnection(ctx context.Context) error {
	ctx, cancel := a.opts.MetadataContext(ctx)
	defer cancel()

	if err := retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
		return a.db.PingContext(ctx)
	}); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := a.db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&currentDB); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	if !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}

	return nil
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Adapter) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		a.logger.Debug("Query failed",
			zap.String("query", logging.SanitizeQuery(query)),
			zap.Error(err))
		return nil, err
	}
	return rows, nil
}

func (a *Adapter) queryRow(ctx context.Context, query string, args []any, dest ...any) error {
	if err := a.db.QueryRowContext(ctx, query, args...).Scan(dest...); err != nil {
		a.logger.Debug("Query failed",
			zap.String("query", logging.SanitizeQuery(query)),
			zap.Error(err))
		return err
	}
	return nil
}

var _ datasource.Datasource = (*Adapter)(nil)
