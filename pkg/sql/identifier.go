package sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
)

// MaxIdentifierLength bounds schema, table and column names.
// PostgreSQL truncates at 63 bytes and SQL Server at 128 characters.
const MaxIdentifierLength = 128

// ErrInvalidIdentifier is returned when a name fails validation.
var ErrInvalidIdentifier = apperrors.ErrInvalidIdentifier

// QuoteStyle selects the delimiter pair used by a SQL dialect.
type QuoteStyle int

const (
	// QuoteANSI wraps names in double quotes (PostgreSQL).
	QuoteANSI QuoteStyle = iota
	// QuoteBracket wraps names in square brackets (SQL Server).
	QuoteBracket
)

// Letters, digits, underscore, dollar, hyphen and space. Anything else is
// rejected before a name reaches generated SQL.
var identifierPattern = regexp.MustCompile(`^[\p{L}\p{N}_$\- ]+$`)

// ValidateIdentifier checks a schema, table or column name against the
// character allowlist and screens it with libinjection.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidIdentifier)
	}
	if len(name) > MaxIdentifierLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidIdentifier, name, MaxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q contains disallowed characters", ErrInvalidIdentifier, name)
	}
	if result := CheckParameterForInjection("identifier", name); result != nil {
		return fmt.Errorf("%w: %q matches injection fingerprint %s", ErrInvalidIdentifier, name, result.Fingerprint)
	}
	return nil
}

// QuoteIdentifier validates name and wraps it in the dialect's delimiters,
// doubling any embedded closing delimiter.
func QuoteIdentifier(name string, style QuoteStyle) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", err
	}
	return quote(name, style), nil
}

// QuoteQualified quotes schema and table and joins them with a dot.
// An empty schema yields just the quoted table.
func QuoteQualified(schema, table string, style QuoteStyle) (string, error) {
	quotedTable, err := QuoteIdentifier(table, style)
	if err != nil {
		return "", err
	}
	if schema == "" {
		return quotedTable, nil
	}
	quotedSchema, err := QuoteIdentifier(schema, style)
	if err != nil {
		return "", err
	}
	return quotedSchema + "." + quotedTable, nil
}

func quote(name string, style QuoteStyle) string {
	switch style {
	case QuoteBracket:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}
