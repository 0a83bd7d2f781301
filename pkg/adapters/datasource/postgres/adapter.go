package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/config"
	"github.com/ekaya-inc/ekaya-profiler/pkg/logging"
	"github.com/ekaya-inc/ekaya-profiler/pkg/retry"
)

// Adapter implements datasource.Datasource for PostgreSQL. One pool is
// owned per adapter and released by Close.
type Adapter struct {
	config *Config
	pool   *pgxpool.Pool
	opts   datasource.Options
	logger *zap.Logger
}

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// User-provided fields are URL-escaped so passwords containing @, /, # or ?
// survive URL parsing. When running in Docker, localhost is resolved to
// host.docker.internal.
func buildConnectionString(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	host := config.ResolveLoopbackHost(cfg.Host)

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		sslMode,
	)
}

// NewAdapter opens a connection pool and verifies it with a ping. Transient
// startup failures (database starting up, too many clients) are retried.
func NewAdapter(ctx context.Context, cfg *Config, opts datasource.Options) (*Adapter, error) {
	opts = opts.WithDefaults()
	logger := opts.Logger.Named("postgres")

	poolCfg, err := pgxpool.ParseConfig(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %s", logging.SanitizeError(err))
	}
	poolCfg.MaxConns = cfg.PoolMaxConns

	pool, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*pgxpool.Pool, error) {
		connectCtx, cancel := opts.MetadataContext(ctx)
		defer cancel()

		p, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := p.Ping(connectCtx); err != nil {
			p.Close()
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	logger.Debug("Opened postgres pool",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.Int32("max_conns", cfg.PoolMaxConns))

	return &Adapter{
		config: cfg,
		pool:   pool,
		opts:   opts,
		logger: logger,
	}, nil
}

// Type returns the registry name of this adapter.
func (a *Adapter) Type() string {
	return "postgres"
}

// TestConnection verifies the database is reachable with valid credentials.
// It checks:
// 1. Server connectivity (ping)
// 2. Database access (simple query)
// 3. Correct database name (to prevent connecting to wrong/default database)
func (a *Adapter) TestConnection(ctx context.Context) error {
	ctx, cancel := a.opts.MetadataContext(ctx)
	defer cancel()

	// A server that is still starting up answers the first ping with a
	// retryable error; bad credentials fail immediately.
	if err := retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
		return a.pool.Ping(ctx)
	}); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := a.pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	var currentDB string
	if err := a.pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}

	// Case-insensitive to match MSSQL behavior and common configuration slips.
	if !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}

	return nil
}

// Close releases the pool.
func (a *Adapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
	}
	return nil
}

// query runs a statement under ctx, logging the sanitized text on failure.
func (a *Adapter) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := a.pool.Query(ctx, sql, args...)
	if err != nil {
		a.logger.Debug("Query failed",
			zap.String("query", logging.SanitizeQuery(sql)),
			zap.Error(err))
		return nil, err
	}
	return rows, nil
}

// queryRow scans a single-row result into dest.
func (a *Adapter) queryRow(ctx context.Context, sql string, args []any, dest ...any) error {
	if err := a.pool.QueryRow(ctx, sql, args...).Scan(dest...); err != nil {
		a.logger.Debug("Query failed",
			zap.String("query", logging.SanitizeQuery(sql)),
			zap.Error(err))
		return err
	}
	return nil
}

var _ datasource.Datasource = (*Adapter)(nil)
