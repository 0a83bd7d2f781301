//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestTestDB_FixtureLoaded(t *testing.T) {
	testDB := GetTestDB(t)

	ctx := context.Background()

	tests := []struct {
		table    string
		expected int
	}{
		{"profiling.customers", 100},
		{"profiling.orders", 101},
	}

	for _, tt := range tests {
		var count int
		err := testDB.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+tt.table).Scan(&count)
		if err != nil {
			t.Errorf("failed to count %s: %v", tt.table, err)
			continue
		}
		if count != tt.expected {
			t.Errorf("expected %d rows in %s, got %d", tt.expected, tt.table, count)
		}
	}
}

func TestTestDB_DatasourceConfig(t *testing.T) {
	testDB := GetTestDB(t)

	cfg := testDB.DatasourceConfig()
	if cfg["host"] != testDB.Host {
		t.Errorf("expected host %q, got %v", testDB.Host, cfg["host"])
	}
	if cfg["port"] != testDB.Port {
		t.Errorf("expected port %d, got %v", testDB.Port, cfg["port"])
	}
}
