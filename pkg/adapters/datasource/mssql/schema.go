package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

// DiscoverTables returns all user tables (excludes system schemas).
func (a *Adapter) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	ctx, cancel := a.opts.MetadataContext(ctx)
	defer cancel()

	query := `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(t.schema_id) AS table_schema,
	    t.name AS table_name,
	    SUM(p.rows) AS row_count
	FROM sys.tables t
	INNER JOIN sys.partitions p ON t.object_id = p.object_id
	WHERE p.index_id IN (0, 1)  -- Heap or clustered index
	  AND t.is_ms_shipped = 0   -- Exclude system tables
	GROUP BY t.schema_id, t.name
	ORDER BY table_schema, table_name
	`

	rows, err := a.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableMetadata
	for rows.Next() {
		var table datasource.TableMetadata
		if err := rows.Scan(&table.SchemaName, &table.TableName, &table.RowCount); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, table)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}

	return tables, nil
}

// DiscoverColumns returns columns for a specific table.
func (a *Adapter) DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]datasource.ColumnMetadata, error) {
	ctx, cancel := a.opts.MetadataContext(ctx)
	defer cancel()

	if schemaName == "" {
		schemaName = defaultSchema
	}

	query := `
	SET NOCOUNT ON;
	SELECT
	    c.name AS column_name,
	    tp.name AS data_type,
	    CASE WHEN c.is_nullable = 1 THEN 1 ELSE 0 END AS is_nullable,
	    c.column_id AS ordinal_position,
	    CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS is_primary_key,
	    CASE WHEN uq.column_id IS NOT NULL THEN 1 ELSE 0 END AS is_unique
	FROM sys.columns c
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	LEFT JOIN (
	    SELECT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	    WHERE i.is_primary_key = 1
	) pk ON c.object_id = pk.object_id AND c.column_id = pk.column_id
	LEFT JOIN (
	    SELECT DISTINCT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	    WHERE i.is_unique = 1 AND i.is_primary_key = 0
	      AND (SELECT COUNT(*) FROM sys.index_columns x
	           WHERE x.object_id = i.object_id AND x.index_id = i.index_id AND x.is_included_column = 0) = 1
	) uq ON c.object_id = uq.object_id AND c.column_id = uq.column_id
	WHERE c.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	ORDER BY c.column_id
	`

	rows, err := a.query(ctx, query,
		sql.Named("schema", schemaName),
		sql.Named("table", tableName),
	)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []datasource.ColumnMetadata
	for rows.Next() {
		var col datasource.ColumnMetadata
		var isNullable, isPrimary, isUnique int

		if err := rows.Scan(
			&col.ColumnName,
			&col.DataType,
			&isNullable,
			&col.OrdinalPosition,
			&isPrimary,
			&isUnique,
		); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}

		col.IsNullable = isNullable == 1
		col.IsPrimaryKey = isPrimary == 1
		col.IsUnique = isUnique == 1
		col.Family = typeFamily(col.DataType)
		col.DataType = mapSQLServerType(col.DataType)

		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s.%s: %w", schemaName, tableName, apperrors.ErrNotFound)
	}

	return columns, nil
}

// DiscoverForeignKeys returns all foreign key relationships.
func (a *Adapter) DiscoverForeignKeys(ctx context.Context) ([]datasource.ForeignKeyMetadata, error) {
	ctx, cancel := a.opts.MetadataContext(ctx)
	defer cancel()

	query := `
	SET NOCOUNT ON;
	SELECT
	    fk.name AS constraint_name,
	    SCHEMA_NAME(fk.schema_id) AS source_schema,
	    OBJECT_NAME(fk.parent_object_id) AS source_table,
	    COL_NAME(fkc.parent_object_id, fkc.parent_column_id) AS source_column,
	    SCHEMA_NAME(rt.schema_id) AS target_schema,
	    OBJECT_NAME(fk.referenced_object_id) AS target_table,
	    COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id) AS target_column
	FROM sys.foreign_keys fk
	INNER JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
	INNER JOIN sys.tables rt ON fk.referenced_object_id = rt.object_id
	WHERE fk.is_ms_shipped = 0
	ORDER BY source_schema, source_table, fk.name, fkc.constraint_column_id
	`

	rows, err := a.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []datasource.ForeignKeyMetadata
	for rows.Next() {
		var fk datasource.ForeignKeyMetadata
		if err := rows.Scan(
			&fk.ConstraintName,
			&fk.SourceSchema,
			&fk.SourceTable,
			&fk.SourceColumn,
			&fk.TargetSchema,
			&fk.TargetTable,
			&fk.TargetColumn,
		); err != nil {
			return nil, fmt.Errorf("scan foreign key row: %w", err)
		}
		fks = append(fks, fk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign key rows: %w", err)
	}

	return fks, nil
}

// SupportsForeignKeys returns true since SQL Server supports foreign keys.
func (a *Adapter) SupportsForeignKeys() bool {
	return true
}

// TableStatistics reads the row count from sys.partitions and key info from
// sys.indexes. SQL Server keeps per-column histograms in statistics objects
// that cannot be read without DBCC, so Columns is left empty and the
// sampling planner works from the row count alone.
func (a *Adapter) TableStatistics(ctx context.Context, ref models.TableRef) (*datasource.TableStatistics, error) {
	ctx, cancel := a.opts.MetadataContext(ctx)
	defer cancel()

	schema := ref.Schema
	if schema == "" {
		schema = defaultSchema
	}

	query := `
	SET NOCOUNT ON;
	SELECT
	    COALESCE((SELECT SUM(p.rows) FROM sys.partitions p
	              WHERE p.object_id = t.object_id AND p.index_id IN (0, 1)), 0) AS row_count,
	    COALESCE((SELECT TOP (1) COL_NAME(ic.object_id, ic.column_id)
	              FROM sys.indexes i
	              INNER JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	              WHERE i.object_id = t.object_id AND i.is_primary_key = 1
	                AND (SELECT COUNT(*) FROM sys.index_columns x
	                     WHERE x.object_id = i.object_id AND x.index_id = i.index_id) = 1), N'') AS pk_column,
	    CASE WHEN EXISTS (SELECT 1 FROM sys.indexes i
	                      WHERE i.object_id = t.object_id AND i.is_unique = 1 AND i.is_primary_key = 0)
	         THEN 1 ELSE 0 END AS has_unique
	FROM sys.tables t
	WHERE t.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	`

	stats := &datasource.TableStatistics{}
	var hasUnique int
	err := a.queryRow(ctx, query,
		[]any{sql.Named("schema", schema), sql.Named("table", ref.Table)},
		&stats.RowCount, &stats.PrimaryKeyColumn, &hasUnique)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("table %s: %w", ref, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("read table statistics: %w", err)
	}
	stats.HasUniqueIndex = hasUnique == 1

	return stats, nil
}
