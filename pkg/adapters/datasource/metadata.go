package datasource

import (
	"time"

	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

// TypeFamily is a dialect-independent grouping of declared column types.
type TypeFamily string

const (
	FamilyNumeric  TypeFamily = "numeric"
	FamilyText     TypeFamily = "text"
	FamilyDateTime TypeFamily = "datetime"
	FamilyBoolean  TypeFamily = "boolean"
	FamilyOther    TypeFamily = "other"
)

// TableMetadata represents a discovered database table.
type TableMetadata struct {
	SchemaName string
	TableName  string
	RowCount   int64
}

// ColumnMetadata represents a discovered database column.
type ColumnMetadata struct {
	ColumnName      string
	DataType        string
	Family          TypeFamily
	IsNullable      bool
	IsPrimaryKey    bool
	IsUnique        bool
	OrdinalPosition int
	DefaultValue    *string
}

// ForeignKeyMetadata represents a discovered foreign key constraint.
type ForeignKeyMetadata struct {
	ConstraintName string
	SourceSchema   string
	SourceTable    string
	SourceColumn   string
	TargetSchema   string
	TargetTable    string
	TargetColumn   string
}

// ColumnStatistics is the planner's estimate for one column.
type ColumnStatistics struct {
	ColumnName string
	// NDistinct follows the PostgreSQL convention: positive values are
	// absolute counts, negative values are minus the fraction of rows.
	NDistinct    float64
	NullFraction float64
	AvgWidth     int
}

// DistinctEstimate converts NDistinct to an absolute count.
func (c ColumnStatistics) DistinctEstimate(rowCount int64) float64 {
	if c.NDistinct < 0 {
		return -c.NDistinct * float64(rowCount)
	}
	return c.NDistinct
}

// TableStatistics is the sampling planner's input.
type TableStatistics struct {
	RowCount         int64
	Columns          []ColumnStatistics
	PrimaryKeyColumn string
	HasUniqueIndex   bool
}

// ColumnCounts holds the base counts for a column.
type ColumnCounts struct {
	Total    int64
	Nulls    int64
	Distinct int64
}

// NumericSummary holds aggregate statistics of a numeric column.
// Nil pointers mean the column has no non-null values.
type NumericSummary struct {
	Count  int64
	Min    *float64
	Max    *float64
	Mean   *float64
	StdDev *float64 // population
	P25    *float64
	P50    *float64
	P75    *float64
	P90    *float64
	P95    *float64
}

// DateSummary holds the range and optional monthly timeline of a date column.
type DateSummary struct {
	Min      *time.Time
	Max      *time.Time
	Timeline []models.TimelineBucket
}

// BooleanCounts holds the split of a boolean column.
type BooleanCounts struct {
	True  int64
	False int64
	Nulls int64
}

// ValueCount is one row of a GROUP BY value frequency query.
type ValueCount struct {
	Value string
	Count int64
}

// NumericPair is one co-non-null row of two numeric columns.
type NumericPair struct {
	A float64
	B float64
}

// FlagColumn describes a status column used in the status/date check.
// Boolean columns are compared as booleans; other columns are compared as
// lowercased text against ActiveValues.
type FlagColumn struct {
	Name         string
	IsBoolean    bool
	ActiveValues []string
}

// StatusDateCounts is the result of one status/date pair check.
type StatusDateCounts struct {
	Active       int64
	Inconsistent int64
	// Distinct active-indicating values actually present, as text.
	ActiveSamples []string
}

// OutlierQuery selects one page of outlier rows.
type OutlierQuery struct {
	Table  models.TableRef
	Column string
	Lower  float64
	Upper  float64
	Mean   float64
	// OrderKeys break ties between rows at equal distance; empty means the
	// adapter's physical row identifier.
	OrderKeys []string
	Offset    int
	Limit     int
}
