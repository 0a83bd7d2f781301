package mssql

import (
	"strings"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-profiler/pkg/sql"
)

// defaultSchema is used when a table reference carries no schema.
const defaultSchema = "dbo"

// quoteName validates an identifier and wraps it in brackets, escaping ] as ]]
// the way QUOTENAME() does.
func quoteName(identifier string) (string, error) {
	return sqlutil.QuoteIdentifier(identifier, sqlutil.QuoteBracket)
}

// buildFullyQualifiedName builds a fully qualified table name: [schema].[table]
func buildFullyQualifiedName(ref models.TableRef) (string, error) {
	schema := ref.Schema
	if schema == "" {
		schema = defaultSchema
	}
	return sqlutil.QuoteQualified(schema, ref.Table, sqlutil.QuoteBracket)
}

// tableAndColumn quotes a table reference and one of its columns.
func tableAndColumn(ref models.TableRef, column string) (string, string, error) {
	table, err := buildFullyQualifiedName(ref)
	if err != nil {
		return "", "", err
	}
	col, err := quoteName(column)
	if err != nil {
		return "", "", err
	}
	return table, col, nil
}

// mapSQLServerType maps SQL Server type names to standard type names.
// This provides a consistent interface across different database adapters.
func mapSQLServerType(sqlServerType string) string {
	sqlServerType = strings.ToUpper(sqlServerType)

	switch sqlServerType {
	// Integer types
	case "TINYINT":
		return "TINYINT"
	case "SMALLINT":
		return "SMALLINT"
	case "INT":
		return "INTEGER"
	case "BIGINT":
		return "BIGINT"

	// Decimal types
	case "DECIMAL", "NUMERIC":
		return "NUMERIC"
	case "MONEY", "SMALLMONEY":
		return "MONEY"
	case "FLOAT":
		return "DOUBLE PRECISION"
	case "REAL":
		return "REAL"

	// String types
	case "CHAR", "NCHAR":
		return "CHAR"
	case "VARCHAR", "NVARCHAR":
		return "VARCHAR"
	case "TEXT", "NTEXT":
		return "TEXT"

	// Binary types
	case "BINARY", "VARBINARY":
		return "BYTEA"
	case "IMAGE":
		return "BLOB"

	// Date/Time types
	case "DATE":
		return "DATE"
	case "TIME":
		return "TIME"
	case "DATETIME", "DATETIME2", "SMALLDATETIME":
		return "TIMESTAMP"
	case "DATETIMEOFFSET":
		return "TIMESTAMP WITH TIME ZONE"

	case "BIT":
		return "BOOLEAN"

	case "UNIQUEIDENTIFIER":
		return "UUID"

	case "JSON":
		return "JSON"

	case "XML":
		return "XML"

	default:
		return sqlServerType
	}
}

// isNumericType returns true if the type is a numeric type in SQL Server.
func isNumericType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "TINYINT", "SMALLINT", "INT", "BIGINT",
		"DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY",
		"FLOAT", "REAL":
		return true
	}
	return false
}

// isStringType returns true if the type is a string type in SQL Server.
func isStringType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "CHAR", "NCHAR", "VARCHAR", "NVARCHAR",
		"TEXT", "NTEXT", "UNIQUEIDENTIFIER":
		return true
	}
	return false
}

// isDateTimeType returns true for types that carry a calendar date.
// TIME alone has no date part and is not profiled as a date.
func isDateTimeType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "DATE", "DATETIME", "DATETIME2",
		"SMALLDATETIME", "DATETIMEOFFSET":
		return true
	}
	return false
}

// typeFamily groups a native SQL Server type name.
func typeFamily(sqlType string) datasource.TypeFamily {
	switch {
	case strings.EqualFold(sqlType, "BIT"):
		return datasource.FamilyBoolean
	case isNumericType(sqlType):
		return datasource.FamilyNumeric
	case isDateTimeType(sqlType):
		return datasource.FamilyDateTime
	case isStringType(sqlType):
		return datasource.FamilyText
	default:
		return datasource.FamilyOther
	}
}
