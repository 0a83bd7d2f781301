package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-profiler/pkg/sql"
)

// quoteIdent validates name and returns it double-quoted.
func quoteIdent(name string) (string, error) {
	if err := sqlutil.ValidateIdentifier(name); err != nil {
		return "", err
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

// qualifiedTableName returns a properly quoted table reference.
// If the schema is empty, returns just the quoted table name.
// Otherwise returns "schema"."table".
func qualifiedTableName(ref models.TableRef) (string, error) {
	quotedTable, err := quoteIdent(ref.Table)
	if err != nil {
		return "", err
	}
	if ref.Schema == "" {
		return quotedTable, nil
	}
	quotedSchema, err := quoteIdent(ref.Schema)
	if err != nil {
		return "", err
	}
	return quotedSchema + "." + quotedTable, nil
}

// resolveSchema maps an empty schema to the session's current_schema(), the
// same schema unqualified table names in profiling queries resolve to.
func (a *Adapter) resolveSchema(ctx context.Context, schema string) (string, error) {
	if schema != "" {
		return schema, nil
	}
	if err := a.queryRow(ctx, "SELECT current_schema()", nil, &schema); err != nil {
		return "", fmt.Errorf("resolve current schema: %w", err)
	}
	return schema, nil
}

// tableAndColumn quotes a table reference and one of its columns.
func tableAndColumn(ref models.TableRef, column string) (string, string, error) {
	table, err := qualifiedTableName(ref)
	if err != nil {
		return "", "", err
	}
	col, err := quoteIdent(column)
	if err != nil {
		return "", "", err
	}
	return table, col, nil
}

// typeFamily maps information_schema data_type values to a TypeFamily.
func typeFamily(dataType string) datasource.TypeFamily {
	t := strings.ToLower(strings.TrimSpace(dataType))
	switch {
	case t == "boolean":
		return datasource.FamilyBoolean
	case t == "smallint", t == "integer", t == "bigint", t == "numeric", t == "decimal",
		t == "real", t == "double precision", t == "money", t == "smallserial", t == "serial", t == "bigserial":
		return datasource.FamilyNumeric
	case t == "date", strings.HasPrefix(t, "timestamp"):
		return datasource.FamilyDateTime
	case t == "text", t == "uuid", t == "name", t == "citext",
		strings.HasPrefix(t, "character"), strings.HasPrefix(t, "varchar"), strings.HasPrefix(t, "char"):
		return datasource.FamilyText
	default:
		return datasource.FamilyOther
	}
}

// SupportsForeignKeys returns true since PostgreSQL supports FK discovery.
func (a *Adapter) SupportsForeignKeys() bool {
	return true
}

// DiscoverTables returns all user tables (excludes system schemas).
func (a *Adapter) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	ctx, cancel := a.opts.MetadataContext(ctx)
	defer cancel()

	const query = `
		SELECT
			t.table_schema,
			t.table_name,
			GREATEST(COALESCE(c.reltuples::bigint, 0), 0) as row_count
		FROM information_schema.tables t
		LEFT JOIN pg_namespace n ON n.nspname = t.table_schema
		LEFT JOIN pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY t.table_schema, t.table_name
	`

	rows, err := a.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableMetadata
	for rows.Next() {
		var t datasource.TableMetadata
		if err := rows.Scan(&t.SchemaName, &t.TableName, &t.RowCount); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// DiscoverColumns returns columns for a specific table.
// Uses pg_index for primary key and unique detection, which correctly identifies
// primary keys even when created as unique indexes (common with ORMs).
func (a *Adapter) DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]datasource.ColumnMetadata, error) {
	ctx, cancel := a.opts.MetadataContext(ctx)
	defer cancel()

	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' as is_nullable,
			COALESCE(pk.is_pk, false) as is_primary_key,
			COALESCE(uq.is_unique, false) as is_unique,
			c.ordinal_position,
			c.column_default
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname as column_name, true as is_pk
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisprimary = true
			  AND n.nspname = $1
			  AND t.relname = $2
			  AND array_length(ix.indkey, 1) = 1
		) pk ON c.column_name = pk.column_name
		LEFT JOIN (
			SELECT DISTINCT a.attname as column_name, true as is_unique
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisunique = true
			  AND ix.indisprimary = false
			  AND n.nspname = $1
			  AND t.relname = $2
			  AND array_length(ix.indkey, 1) = 1
		) uq ON c.column_name = uq.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	schemaName, err := a.resolveSchema(ctx, schemaName)
	if err != nil {
		return nil, err
	}

	rows, err := a.query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []datasource.ColumnMetadata
	for rows.Next() {
		var c datasource.ColumnMetadata
		if err := rows.Scan(&c.ColumnName, &c.DataType, &c.IsNullable, &c.IsPrimaryKey, &c.IsUnique, &c.OrdinalPosition, &c.DefaultValue); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.Family = typeFamily(c.DataType)
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
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

	const query = `
		SELECT
			tc.constraint_name,
			kcu.table_schema as source_schema,
			kcu.table_name as source_table,
			kcu.column_name as source_column,
			ccu.table_schema as target_schema,
			ccu.table_name as target_table,
			ccu.column_name as target_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY kcu.table_schema, kcu.table_name, tc.constraint_name
	`

	rows, err := a.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []datasource.ForeignKeyMetadata
	for rows.Next() {
		var fk datasource.ForeignKeyMetadata
		if err := rows.Scan(&fk.ConstraintName, &fk.SourceSchema, &fk.SourceTable, &fk.SourceColumn,
			&fk.TargetSchema, &fk.TargetTable, &fk.TargetColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	return fks, nil
}

// TableStatistics reads pg_class/pg_stats. When the table has never been
// analyzed (reltuples < 0, or 0 on older servers), the row count falls back
// to COUNT(*) under the scan timeout.
func (a *Adapter) TableStatistics(ctx context.Context, ref models.TableRef) (*datasource.TableStatistics, error) {
	table, err := qualifiedTableName(ref)
	if err != nil {
		return nil, err
	}

	metaCtx, cancel := a.opts.MetadataContext(ctx)
	defer cancel()

	const classQuery = `
		SELECT
			c.reltuples::bigint,
			COALESCE((
				SELECT a.attname
				FROM pg_index ix
				JOIN pg_attribute a ON a.attrelid = ix.indrelid AND a.attnum = ix.indkey[0]
				WHERE ix.indrelid = c.oid AND ix.indisprimary AND ix.indnatts = 1
				LIMIT 1
			), '') as pk_column,
			EXISTS (
				SELECT 1 FROM pg_index ix
				WHERE ix.indrelid = c.oid AND ix.indisunique AND NOT ix.indisprimary
			) as has_unique
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2 AND c.relkind IN ('r', 'p', 'm')
	`

	schema, err := a.resolveSchema(metaCtx, ref.Schema)
	if err != nil {
		return nil, err
	}

	stats := &datasource.TableStatistics{}
	if err := a.queryRow(metaCtx, classQuery, []any{schema, ref.Table}, &stats.RowCount, &stats.PrimaryKeyColumn, &stats.HasUniqueIndex); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("table %s: %w", ref, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("read table statistics: %w", err)
	}

	const statsQuery = `
		SELECT attname, COALESCE(n_distinct, 0)::float8, COALESCE(null_frac, 0)::float8, COALESCE(avg_width, 0)
		FROM pg_stats
		WHERE schemaname = $1 AND tablename = $2
	`
	rows, err := a.query(metaCtx, statsQuery, schema, ref.Table)
	if err != nil {
		return nil, fmt.Errorf("read column statistics: %w", err)
	}
	for rows.Next() {
		var cs datasource.ColumnStatistics
		var width int32
		if err := rows.Scan(&cs.ColumnName, &cs.NDistinct, &cs.NullFraction, &width); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan column statistics: %w", err)
		}
		cs.AvgWidth = int(width)
		stats.Columns = append(stats.Columns, cs)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column statistics: %w", err)
	}

	if stats.RowCount <= 0 {
		scanCtx, scanCancel := a.opts.ScanContext(ctx)
		defer scanCancel()

		if err := a.queryRow(scanCtx, "SELECT COUNT(*) FROM "+table, nil, &stats.RowCount); err != nil {
			return nil, fmt.Errorf("count rows: %w", err)
		}
		a.logger.Debug("Table has no planner estimate, counted rows",
			zap.String("table", ref.String()),
			zap.Int64("row_count", stats.RowCount))
	}

	return stats, nil
}
