package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

var contractsRef = models.TableRef{Schema: "public", Table: "contracts"}

// newContractsTable has a boolean flag, a text flag, a date, and three
// numeric columns: price tracks quantity exactly, noise does not.
func newContractsTable() (*mockDatasource, []datasource.ColumnMetadata) {
	cols := []datasource.ColumnMetadata{
		pkCol("id"),
		boolCol("is_active"),
		textCol("fl_signed"),
		dateCol("dt_active"),
		intCol("quantity"),
		floatCol("price"),
		floatCol("noise"),
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	noise := []float64{5, 1, 4, 1, 5, 9, 2, 6, 5, 3}

	var rows [][]any
	for i := 1; i <= 40; i++ {
		active := i%2 == 0
		var activated any = base.AddDate(0, 0, i)
		if active && i <= 8 {
			activated = nil // 4 active rows without a date
		}
		signed := "N"
		if i%4 == 0 {
			signed = "S"
		}
		rows = append(rows, []any{i, active, signed, activated, i, float64(i) * 2.5, noise[i%len(noise)]})
	}

	ds := newMockDatasource()
	ds.addTable("public", "contracts", cols, rows)
	return ds, ds.tables["public.contracts"].columns
}

func fullScan(rows int64) models.SamplingStrategy {
	return models.SamplingStrategy{Mode: models.SamplingFullScan, RowCount: rows, SampleSize: rows}
}

func TestRelationshipAnalyzer_StatusDate(t *testing.T) {
	ds, cols := newContractsTable()
	a := NewRelationshipAnalyzer(1000, zap.NewNop())

	metrics, err := a.Analyze(context.Background(), ds, contractsRef, cols, nil, fullScan(40))
	require.NoError(t, err)

	var boolRel, textRel *models.StatusDateRelationship
	for i := range metrics.StatusDate {
		switch metrics.StatusDate[i].StatusColumn {
		case "is_active":
			boolRel = &metrics.StatusDate[i]
		case "fl_signed":
			textRel = &metrics.StatusDate[i]
		}
	}

	require.NotNil(t, boolRel)
	assert.Equal(t, "dt_active", boolRel.DateColumn)
	assert.Equal(t, int64(20), boolRel.ActiveCount)
	assert.Equal(t, int64(4), boolRel.InconsistentCount)
	assert.InDelta(t, 20.0, boolRel.InconsistencyPercentage, 1e-9)
	assert.Equal(t, "active", boolRel.CommonRadical)

	// "S" is active; rows 4 and 8 are signed and have no date.
	require.NotNil(t, textRel)
	assert.Equal(t, int64(10), textRel.ActiveCount)
	assert.Equal(t, int64(2), textRel.InconsistentCount)
	assert.Equal(t, []string{"S"}, textRel.ActiveValues)
}

func TestRelationshipAnalyzer_Correlations(t *testing.T) {
	ds, cols := newContractsTable()
	a := NewRelationshipAnalyzer(1000, zap.NewNop())

	metrics, err := a.Analyze(context.Background(), ds, contractsRef, cols, nil, fullScan(40))
	require.NoError(t, err)

	var qtyPrice *models.Correlation
	for i := range metrics.Correlations {
		c := metrics.Correlations[i]
		assert.Greater(t, math.Abs(c.Coefficient), 0.1)
		assert.LessOrEqual(t, math.Abs(c.Coefficient), 1.0)
		assert.GreaterOrEqual(t, c.SampleSize, 3)
		if c.ColumnA == "quantity" && c.ColumnB == "price" {
			qtyPrice = &metrics.Correlations[i]
		}
	}

	require.NotNil(t, qtyPrice)
	assert.InDelta(t, 1.0, qtyPrice.Coefficient, 1e-9)
	assert.Equal(t, models.CorrelationVeryStrong, qtyPrice.Strength)
	assert.Equal(t, 40, qtyPrice.SampleSize)
}

func TestRelationshipAnalyzer_SkipsCorrelationWithOneNumericColumn(t *testing.T) {
	ds := newMockDatasource()
	cols := []datasource.ColumnMetadata{textCol("name"), floatCol("amount")}
	ds.addTable("public", "contracts", cols, [][]any{{"a", 1.0}, {"b", 2.0}, {"c", 3.0}})

	metrics, err := NewRelationshipAnalyzer(1000, zap.NewNop()).Analyze(context.Background(), ds, contractsRef, cols, nil, fullScan(3))
	require.NoError(t, err)

	assert.Empty(t, metrics.Correlations)
	assert.Equal(t, 0, ds.callCount("NumericPairs"))
}

func TestRelationshipAnalyzer_UsesKnownDistinctCounts(t *testing.T) {
	ds, cols := newContractsTable()

	_, err := NewRelationshipAnalyzer(1000, zap.NewNop()).Analyze(context.Background(), ds, contractsRef, cols,
		map[string]int64{"fl_signed": 2}, fullScan(40))
	require.NoError(t, err)

	assert.Equal(t, 0, ds.callCount("ColumnCounts"))
}

func TestRelationshipAnalyzer_PairFailureBecomesWarning(t *testing.T) {
	ds, cols := newContractsTable()
	ds.failures["NumericPairs:quantity,noise"] = errors.New("division by zero")

	metrics, err := NewRelationshipAnalyzer(1000, zap.NewNop()).Analyze(context.Background(), ds, contractsRef, cols, nil, fullScan(40))
	require.NoError(t, err)

	require.Len(t, metrics.Warnings, 1)
	assert.Contains(t, metrics.Warnings[0], "quantity,noise")
}

func TestRelationshipAnalyzer_ConnectivityFailureAborts(t *testing.T) {
	ds, cols := newContractsTable()
	ds.failures["StatusDateCounts"] = context.DeadlineExceeded

	metrics, err := NewRelationshipAnalyzer(1000, zap.NewNop()).Analyze(context.Background(), ds, contractsRef, cols, nil, fullScan(40))

	assert.Nil(t, metrics)
	var analysisErr *apperrors.AnalysisError
	require.ErrorAs(t, err, &analysisErr)
	assert.Equal(t, "status_date", analysisErr.Op)
}

func TestCommonRadical(t *testing.T) {
	tests := []struct {
		status, date, want string
	}{
		{"is_active", "dt_active", "active"},
		{"fl_cancel", "cancel_date", "cancel"},
		{"is_paid", "paid_at", "paid"},
		{"is_active", "active_since", "active"},
		{"has_paid", "data_paid", "paid"},
		{"is_blocked", "created_at", "blocked/created"},
	}
	for _, tt := range tests {
		t.Run(tt.status+"_"+tt.date, func(t *testing.T) {
			assert.Equal(t, tt.want, CommonRadical(tt.status, tt.date))
		})
	}
}
