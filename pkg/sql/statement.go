package sql

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMultipleStatements is returned when generated SQL would run more than
// one statement.
var ErrMultipleStatements = errors.New("multiple SQL statements")

// SingleStatement trims whitespace and one trailing semicolon and rejects
// SQL that still contains a statement separator outside string literals,
// double-quoted names or bracketed names.
func SingleStatement(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("empty statement")
	}
	query = strings.TrimRight(strings.TrimSuffix(query, ";"), " \t\r\n")

	if separatorOutsideQuotes(query) {
		return "", fmt.Errorf("%w: %s", ErrMultipleStatements, truncate(query, 80))
	}
	return query, nil
}

// separatorOutsideQuotes scans for ';' while tracking '...', "..." and
// [...] runs. A doubled closing delimiter ('' "" ]]) stays inside the run.
func separatorOutsideQuotes(query string) bool {
	runes := []rune(query)
	var closer rune
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if closer != 0 {
			if r == closer {
				if i+1 < len(runes) && runes[i+1] == closer {
					i++
					continue
				}
				closer = 0
			}
			continue
		}
		switch r {
		case ';':
			return true
		case '\'', '"':
			closer = r
		case '[':
			closer = ']'
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
