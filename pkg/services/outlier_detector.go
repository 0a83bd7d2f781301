package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

const (
	sigmaMultiplier = 3.0

	DefaultOutlierPageSize = 20
	MaxOutlierPageSize     = 1_000
)

// OutlierDetector finds values more than three population standard
// deviations from the mean. The heuristic assumes a roughly symmetric
// distribution; on heavily skewed data a single extreme value inflates the
// stddev enough to hide moderate outliers.
type OutlierDetector struct {
	defaultPageSize int
	maxPageSize     int
	logger          *zap.Logger
}

// NewOutlierDetector creates an OutlierDetector. Non-positive sizes use
// DefaultOutlierPageSize and MaxOutlierPageSize.
func NewOutlierDetector(defaultPageSize, maxPageSize int, logger *zap.Logger) *OutlierDetector {
	if maxPageSize <= 0 {
		maxPageSize = MaxOutlierPageSize
	}
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultOutlierPageSize
	}
	defaultPageSize = min(defaultPageSize, maxPageSize)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutlierDetector{
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		logger:          logger.Named("outlier-detector"),
	}
}

// OutlierRequest selects one page of outliers. Page is 0-based; a
// non-positive PageSize uses the default.
type OutlierRequest struct {
	Table  models.TableRef
	Column datasource.ColumnMetadata
	// OrderKeys order rows at equal distance; together they should
	// identify a row.
	OrderKeys []string
	Page      int
	PageSize  int
}

// Detect computes the bounds, counts all outliers once and reads the
// requested page. A page past the end yields no items.
func (d *OutlierDetector) Detect(ctx context.Context, ds datasource.TableProfiler, req OutlierRequest) (*models.OutlierSet, error) {
	if req.Column.Family != datasource.FamilyNumeric {
		return nil, fmt.Errorf("%s (%s): %w", req.Column.ColumnName, req.Column.DataType, apperrors.ErrNotNumeric)
	}
	if req.Page < 0 {
		return nil, fmt.Errorf("page %d: %w", req.Page, apperrors.ErrInvalidPage)
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = d.defaultPageSize
	}
	pageSize = min(pageSize, d.maxPageSize)

	column := req.Column.ColumnName
	set := &models.OutlierSet{
		ColumnName: column,
		Page:       req.Page,
		PageSize:   pageSize,
		Items:      []models.OutlierRow{},
	}

	summary, err := ds.NumericSummary(ctx, req.Table, column)
	if err != nil {
		return nil, fmt.Errorf("numeric summary: %w", err)
	}
	if summary == nil || summary.Count == 0 || summary.Mean == nil {
		return set, nil
	}

	set.TotalValues = summary.Count
	set.Mean = *summary.Mean
	set.StdDev = deref(summary.StdDev)
	set.LowerBound, set.UpperBound = populationBounds(set.Mean, set.StdDev, sigmaMultiplier)

	// With zero spread no value lies strictly outside the bounds.
	if set.StdDev == 0 {
		return set, nil
	}

	count, err := ds.CountOutside(ctx, req.Table, column, set.LowerBound, set.UpperBound)
	if err != nil {
		return nil, fmt.Errorf("count outliers: %w", err)
	}
	set.OutlierCount = count
	set.OutlierPercentage = float64(count) / float64(set.TotalValues) * 100
	set.TotalPages = models.TotalPages(count, pageSize)

	if req.Page >= set.TotalPages {
		return set, nil
	}

	rows, err := ds.OutlierRows(ctx, datasource.OutlierQuery{
		Table:     req.Table,
		Column:    column,
		Lower:     set.LowerBound,
		Upper:     set.UpperBound,
		Mean:      set.Mean,
		OrderKeys: req.OrderKeys,
		Offset:    req.Page * pageSize,
		Limit:     pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("read outlier page: %w", err)
	}

	for _, row := range rows {
		if row.Value < set.LowerBound || row.Value > set.UpperBound {
			set.Items = append(set.Items, row)
			continue
		}
		d.logger.Warn("Dropping row inside bounds from outlier page",
			zap.String("schema", req.Table.Schema),
			zap.String("table", req.Table.Table),
			zap.String("column", column),
			zap.Float64("value", row.Value))
	}

	return set, nil
}
