package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

func TestSamplingPlanner_DecisionTable(t *testing.T) {
	planner := NewSamplingPlanner(zap.NewNop())

	tests := []struct {
		name     string
		rows     int64
		wantMode models.SamplingMode
		wantSize int64
	}{
		{"empty table", 0, models.SamplingFullScan, 0},
		{"small table", 500, models.SamplingFullScan, 500},
		{"full scan boundary", 1_000, models.SamplingFullScan, 1_000},
		{"random minimum size", 20_000, models.SamplingRandom, 5_000},
		{"random ten percent", 100_000, models.SamplingRandom, 10_000},
		{"systematic", 500_000, models.SamplingSystematic, 10_000},
		{"systematic boundary", 1_000_000, models.SamplingSystematic, 10_000},
		{"adaptive", 5_000_000, models.SamplingAdaptive, 15_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := planner.Decide(&datasource.TableStatistics{RowCount: tt.rows})
			assert.Equal(t, tt.wantMode, s.Mode)
			assert.Equal(t, tt.wantSize, s.SampleSize)
			assert.Equal(t, tt.rows, s.RowCount)
			assert.NotEmpty(t, s.Rationale)
		})
	}
}

func TestSamplingPlanner_PrimaryKeySwitchesRandomToSystematic(t *testing.T) {
	planner := NewSamplingPlanner(zap.NewNop())

	s := planner.Decide(&datasource.TableStatistics{RowCount: 50_000, PrimaryKeyColumn: "id"})

	assert.Equal(t, models.SamplingSystematic, s.Mode)
	assert.Equal(t, int64(5_000), s.SampleSize)
	assert.Equal(t, "id", s.PrimaryKeyColumn)
	assert.Contains(t, s.Rationale[len(s.Rationale)-1], "primary key")
}

func TestSamplingPlanner_DoublesOnceForSeveralConditions(t *testing.T) {
	planner := NewSamplingPlanner(zap.NewNop())

	var cols []datasource.ColumnStatistics
	// Four near-unique columns (negative n_distinct is a fraction of rows).
	for range 4 {
		cols = append(cols, datasource.ColumnStatistics{NDistinct: -0.95})
	}
	// Three mostly-null columns.
	for range 3 {
		cols = append(cols, datasource.ColumnStatistics{NDistinct: 10, NullFraction: 0.7})
	}

	s := planner.Decide(&datasource.TableStatistics{RowCount: 100_000, Columns: cols})

	assert.Equal(t, models.SamplingRandom, s.Mode)
	assert.Equal(t, int64(20_000), s.SampleSize, "doubled once, not once per condition")
	// decision + two conditions + doubling
	assert.Len(t, s.Rationale, 4)
}

func TestSamplingPlanner_UniqueIndexShrinksLargeSamples(t *testing.T) {
	planner := NewSamplingPlanner(zap.NewNop())

	cols := []datasource.ColumnStatistics{{AvgWidth: 300}, {AvgWidth: 250}}
	s := planner.Decide(&datasource.TableStatistics{
		RowCount:       5_000_000,
		Columns:        cols,
		HasUniqueIndex: true,
	})

	assert.Equal(t, models.SamplingAdaptive, s.Mode)
	assert.Equal(t, int64(24_000), s.SampleSize) // 15,000 doubled, then -20%
}

func TestSamplingPlanner_UniqueIndexLeavesSmallSamples(t *testing.T) {
	planner := NewSamplingPlanner(zap.NewNop())

	s := planner.Decide(&datasource.TableStatistics{RowCount: 500_000, HasUniqueIndex: true})

	assert.Equal(t, int64(10_000), s.SampleSize)
}

func TestSamplingPlanner_FullScanIgnoresAdjustments(t *testing.T) {
	planner := NewSamplingPlanner(zap.NewNop())

	cols := []datasource.ColumnStatistics{{AvgWidth: 300}, {AvgWidth: 250}}
	s := planner.Decide(&datasource.TableStatistics{RowCount: 800, Columns: cols, PrimaryKeyColumn: "id"})

	assert.Equal(t, models.SamplingFullScan, s.Mode)
	assert.Equal(t, int64(800), s.SampleSize)
	assert.Len(t, s.Rationale, 1)
}

func TestSamplingPlanner_StatisticsFailureFallsBack(t *testing.T) {
	ds := newMockDatasource()
	ds.addTable("public", "orders", []datasource.ColumnMetadata{intCol("amount")}, nil)
	ds.failures["TableStatistics"] = errors.New("permission denied for relation pg_stats")

	s := NewSamplingPlanner(zap.NewNop()).Plan(context.Background(), ds, models.TableRef{Schema: "public", Table: "orders"})

	assert.Equal(t, models.SamplingRandom, s.Mode)
	assert.Equal(t, int64(1_000), s.SampleSize)
	require.Len(t, s.Rationale, 1)
	assert.Contains(t, s.Rationale[0], "permission denied")
}
