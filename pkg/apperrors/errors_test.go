package apperrors

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConnectivity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, true},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"bad conn", driver.ErrBadConn, true},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"refused string", errors.New("dial tcp 10.0.0.1:5432: connection refused"), true},
		{"pg cancel", errors.New("ERROR: canceling statement due to user request (SQLSTATE 57014)"), true},
		{"division by zero", errors.New("ERROR: division by zero (SQLSTATE 22012)"), false},
		{"bad cast", errors.New("ERROR: invalid input syntax for type numeric"), false},
		{"not found", ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectivity(tt.err))
		})
	}
}

func TestAnalysisError(t *testing.T) {
	err := &AnalysisError{
		Op:     "collect basic metrics",
		Schema: "public",
		Table:  "orders",
		Column: "amount",
		Err:    context.DeadlineExceeded,
	}

	assert.Equal(t, "collect basic metrics public.orders.amount: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var target *AnalysisError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &target))
	assert.Equal(t, "orders", target.Table)

	noSchema := &AnalysisError{Op: "discover", Table: "orders", Err: ErrNotFound}
	assert.Equal(t, "discover orders: not found", noSchema.Error())
}
