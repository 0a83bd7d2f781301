package apperrors

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrUnsupportedDatasource = errors.New("unsupported datasource type")
	ErrInvalidIdentifier     = errors.New("invalid identifier")
	ErrNotNumeric            = errors.New("column is not numeric")
	ErrInvalidPage           = errors.New("invalid page")
	ErrInvalidConfig         = errors.New("invalid configuration")
)

// AnalysisError is returned when a table- or column-level analysis cannot
// produce any result. It carries the context needed to reproduce the failure.
type AnalysisError struct {
	Op     string
	Schema string
	Table  string
	Column string
	Err    error
}

func (e *AnalysisError) Error() string {
	target := e.Table
	if e.Schema != "" {
		target = e.Schema + "." + e.Table
	}
	if e.Column != "" {
		target += "." + e.Column
	}
	return fmt.Sprintf("%s %s: %v", e.Op, target, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err means the connection itself can no
// longer be trusted: network failures, broken driver connections, deadlines
// and cancellation. Such errors abort the whole analysis instead of being
// recorded against a single column.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"conn closed",
		"closed pool",
		"unexpected eof",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"canceling statement due to user request",
		"terminating connection",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
