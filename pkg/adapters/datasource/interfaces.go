package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

// ConnectionTester tests database connectivity.
// Each implementation owns its connection and must be closed when done.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid credentials.
	// Returns nil if connection is healthy, error otherwise.
	TestConnection(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}

// SchemaDiscoverer reads catalog metadata.
type SchemaDiscoverer interface {
	// DiscoverTables returns all user tables (excludes system schemas).
	DiscoverTables(ctx context.Context) ([]TableMetadata, error)

	// DiscoverColumns returns columns for a specific table in ordinal order.
	DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]ColumnMetadata, error)

	// DiscoverForeignKeys returns all declared foreign key relationships.
	DiscoverForeignKeys(ctx context.Context) ([]ForeignKeyMetadata, error)

	// SupportsForeignKeys returns true if the database supports FK discovery.
	SupportsForeignKeys() bool
}

// TableProfiler runs the per-table and per-column statistics queries.
// Every method validates and quotes identifiers before building SQL and
// binds literal values as parameters.
type TableProfiler interface {
	// TableStatistics reads planner statistics (row estimate, per-column
	// distinct/null/width estimates) without scanning the table.
	TableStatistics(ctx context.Context, ref models.TableRef) (*TableStatistics, error)

	// ColumnCounts returns total, null and distinct counts for a column.
	ColumnCounts(ctx context.Context, ref models.TableRef, column string) (*ColumnCounts, error)

	// NumericSummary returns min/max/population mean and stddev/percentiles.
	NumericSummary(ctx context.Context, ref models.TableRef, column string) (*NumericSummary, error)

	// Histogram counts values into equal-width buckets over [lo, hi].
	Histogram(ctx context.Context, ref models.TableRef, column string, lo, hi float64, buckets int) ([]models.HistogramBucket, error)

	// CountOutside counts non-null values strictly below lower or strictly above upper.
	CountOutside(ctx context.Context, ref models.TableRef, column string, lower, upper float64) (int64, error)

	// SampleOutside returns up to limit values strictly outside [lower, upper].
	SampleOutside(ctx context.Context, ref models.TableRef, column string, lower, upper float64, limit int) ([]float64, error)

	// DateSummary returns min/max and, when timeline is set, monthly counts.
	DateSummary(ctx context.Context, ref models.TableRef, column string, timeline bool) (*DateSummary, error)

	// TextLengths returns min/max/avg character length of non-null values.
	TextLengths(ctx context.Context, ref models.TableRef, column string) (*models.TextStats, error)

	// BooleanCounts returns true/false/null counts.
	BooleanCounts(ctx context.Context, ref models.TableRef, column string) (*BooleanCounts, error)

	// TopValues returns the most frequent non-null values, most frequent first.
	TopValues(ctx context.Context, ref models.TableRef, column string, limit int) ([]ValueCount, error)

	// SampleValues returns up to limit non-null values rendered as text,
	// drawn through the sampling strategy.
	SampleValues(ctx context.Context, ref models.TableRef, column string, strategy models.SamplingStrategy, limit int) ([]string, error)

	// NumericPairs returns up to limit rows where both columns are non-null,
	// drawn through the sampling strategy.
	NumericPairs(ctx context.Context, ref models.TableRef, columnA, columnB string, strategy models.SamplingStrategy, limit int) ([]NumericPair, error)

	// StatusDateCounts counts active rows of a flag column and the subset
	// whose date column is null.
	StatusDateCounts(ctx context.Context, ref models.TableRef, flag FlagColumn, dateColumn string) (*StatusDateCounts, error)

	// OutlierRows returns one page of rows whose value lies outside the
	// bounds, ordered by distance from the mean (most extreme first).
	OutlierRows(ctx context.Context, q OutlierQuery) ([]models.OutlierRow, error)

	// SampleQuery renders the scan statement for a sampling strategy.
	SampleQuery(ref models.TableRef, strategy models.SamplingStrategy, columns []string) (string, error)
}

// Datasource is everything the profiling engine needs from one database.
type Datasource interface {
	ConnectionTester
	SchemaDiscoverer
	TableProfiler

	// Type returns the registered adapter type ("postgres", "mssql").
	Type() string
}
