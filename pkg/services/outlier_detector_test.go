package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

var measurementsRef = models.TableRef{Schema: "public", Table: "measurements"}

// newSpikeTable builds 1..100 plus one extreme value.
func newSpikeTable() *mockDatasource {
	ds := newMockDatasource()
	var rows [][]any
	for i := 1; i <= 100; i++ {
		rows = append(rows, []any{i, float64(i)})
	}
	rows = append(rows, []any{101, 10000.0})
	ds.addTable("public", "measurements", []datasource.ColumnMetadata{pkCol("id"), floatCol("reading")}, rows)
	return ds
}

// newOutlierTable builds 1,000 zero readings plus 45 readings spread far
// from the mean, with distinct distances.
func newOutlierTable() *mockDatasource {
	ds := newMockDatasource()
	var rows [][]any
	id := 0
	for i := 0; i < 1000; i++ {
		id++
		rows = append(rows, []any{id, 0.0})
	}
	for i := 0; i < 45; i++ {
		id++
		v := 1000.0 + float64(i)*10
		if i%2 == 1 {
			v = -v
		}
		rows = append(rows, []any{id, v})
	}
	ds.addTable("public", "measurements", []datasource.ColumnMetadata{pkCol("id"), floatCol("reading")}, rows)
	return ds
}

func readingRequest(page, pageSize int) OutlierRequest {
	return OutlierRequest{
		Table:     measurementsRef,
		Column:    floatCol("reading"),
		OrderKeys: []string{"id"},
		Page:      page,
		PageSize:  pageSize,
	}
}

func TestOutlierDetector_SpikeScenario(t *testing.T) {
	ds := newSpikeTable()
	d := NewOutlierDetector(20, 1000, zap.NewNop())

	set, err := d.Detect(context.Background(), ds, readingRequest(0, 20))
	require.NoError(t, err)

	assert.Equal(t, int64(101), set.TotalValues)
	assert.InDelta(t, set.Mean-3*set.StdDev, set.LowerBound, 1e-9)
	assert.InDelta(t, set.Mean+3*set.StdDev, set.UpperBound, 1e-9)
	assert.Equal(t, int64(1), set.OutlierCount)
	assert.Equal(t, 1, set.TotalPages)

	require.Len(t, set.Items, 1)
	assert.Equal(t, 10000.0, set.Items[0].Value)
	for _, item := range set.Items {
		assert.True(t, item.Value < set.LowerBound || item.Value > set.UpperBound)
	}

	// The full row comes back, not only the flagged value.
	require.Len(t, set.Items[0].Row, 2)
	assert.Equal(t, "id", set.Items[0].Row[0].Name)
	assert.Equal(t, models.IntValue(101), set.Items[0].Row[0].Value)
}

func TestOutlierDetector_Pagination(t *testing.T) {
	ds := newOutlierTable()
	d := NewOutlierDetector(20, 1000, zap.NewNop())
	ctx := context.Background()

	first, err := d.Detect(ctx, ds, readingRequest(0, 20))
	require.NoError(t, err)
	require.Equal(t, int64(45), first.OutlierCount)
	require.Equal(t, 3, first.TotalPages)

	var all []models.OutlierRow
	seen := make(map[string]bool)
	wantSizes := []int{20, 20, 5}
	for page := 0; page < first.TotalPages; page++ {
		set, err := d.Detect(ctx, ds, readingRequest(page, 20))
		require.NoError(t, err)
		assert.Len(t, set.Items, wantSizes[page], "page %d", page)
		for _, item := range set.Items {
			key := item.Row[0].Value.String()
			assert.False(t, seen[key], "duplicate row %s", key)
			seen[key] = true
			assert.True(t, item.Value < set.LowerBound || item.Value > set.UpperBound)
		}
		all = append(all, set.Items...)
	}

	assert.Len(t, all, 45)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Distance, all[i].Distance, "rows must be ordered by distance from the mean")
	}
}

func TestOutlierDetector_PagePastEndIsEmpty(t *testing.T) {
	ds := newOutlierTable()
	d := NewOutlierDetector(20, 1000, zap.NewNop())

	set, err := d.Detect(context.Background(), ds, readingRequest(3, 20))
	require.NoError(t, err)

	assert.Empty(t, set.Items)
	assert.NotNil(t, set.Items)
	assert.Equal(t, 3, set.TotalPages)
	assert.Equal(t, 0, ds.callCount("OutlierRows"))
}

func TestOutlierDetector_PageSizeDefaultsAndCap(t *testing.T) {
	ds := newOutlierTable()
	d := NewOutlierDetector(20, 30, zap.NewNop())
	ctx := context.Background()

	set, err := d.Detect(ctx, ds, readingRequest(0, 0))
	require.NoError(t, err)
	assert.Equal(t, 20, set.PageSize)

	set, err = d.Detect(ctx, ds, readingRequest(0, 5000))
	require.NoError(t, err)
	assert.Equal(t, 30, set.PageSize)
	assert.Equal(t, 2, set.TotalPages)
	assert.Len(t, set.Items, 30)
}

func TestOutlierDetector_RejectsNonNumericColumn(t *testing.T) {
	d := NewOutlierDetector(20, 1000, zap.NewNop())
	req := readingRequest(0, 20)
	req.Column = textCol("notes")

	_, err := d.Detect(context.Background(), newMockDatasource(), req)
	assert.ErrorIs(t, err, apperrors.ErrNotNumeric)
}

func TestOutlierDetector_RejectsNegativePage(t *testing.T) {
	d := NewOutlierDetector(20, 1000, zap.NewNop())

	_, err := d.Detect(context.Background(), newSpikeTable(), readingRequest(-1, 20))
	assert.ErrorIs(t, err, apperrors.ErrInvalidPage)
}

func TestOutlierDetector_ConstantColumnHasNoOutliers(t *testing.T) {
	ds := newMockDatasource()
	rows := [][]any{{1, 5.0}, {2, 5.0}, {3, 5.0}}
	ds.addTable("public", "measurements", []datasource.ColumnMetadata{pkCol("id"), floatCol("reading")}, rows)

	set, err := NewOutlierDetector(20, 1000, zap.NewNop()).Detect(context.Background(), ds, readingRequest(0, 20))
	require.NoError(t, err)

	assert.Equal(t, int64(0), set.OutlierCount)
	assert.Equal(t, 0, set.TotalPages)
	assert.Empty(t, set.Items)
}

func TestOutlierDetector_PropagatesQueryErrors(t *testing.T) {
	ds := newSpikeTable()
	ds.failures["CountOutside"] = errors.New("statement timeout")

	_, err := NewOutlierDetector(20, 1000, zap.NewNop()).Detect(context.Background(), ds, readingRequest(0, 20))
	assert.ErrorContains(t, err, "statement timeout")
}
