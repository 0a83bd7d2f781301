package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-profiler/pkg/logging"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

const (
	iqrMultiplier       = 1.5
	iqrOutlierSampleMax = 5
)

// ColumnProfilerConfig holds the limits applied to every column.
type ColumnProfilerConfig struct {
	TopValuesLimit      int
	HistogramBuckets    int
	IncludeDateTimeline bool
}

// ColumnProfiler computes counts, classification and type statistics for
// one column at a time.
type ColumnProfiler struct {
	cfg    ColumnProfilerConfig
	logger *zap.Logger
}

// NewColumnProfiler creates a ColumnProfiler.
func NewColumnProfiler(cfg ColumnProfilerConfig, logger *zap.Logger) *ColumnProfiler {
	if cfg.TopValuesLimit <= 0 {
		cfg.TopValuesLimit = 10
	}
	if cfg.HistogramBuckets <= 0 {
		cfg.HistogramBuckets = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ColumnProfiler{cfg: cfg, logger: logger.Named("column-profiler")}
}

// Profile analyzes a single column. Query failures are recorded in the
// profile's warnings and in the returned skip list; only connectivity
// failures are returned as an error, since nothing else on the table can
// succeed after one.
func (p *ColumnProfiler) Profile(ctx context.Context, ds datasource.TableProfiler, ref models.TableRef, col datasource.ColumnMetadata) (*models.ColumnProfile, []models.SkippedColumn, error) {
	run := &columnRun{
		profiler: p,
		ref:      ref,
		profile: &models.ColumnProfile{
			ColumnName: col.ColumnName,
			DataType:   col.DataType,
		},
	}
	prof := run.profile

	counts, err := ds.ColumnCounts(ctx, ref, col.ColumnName)
	if err := run.check("counts", err); err != nil {
		return nil, nil, err
	}
	if counts == nil {
		prof.Classification = models.ClassificationOther
		return prof, run.skipped, nil
	}

	prof.TotalCount = counts.Total
	prof.NullCount = counts.Nulls
	prof.DistinctCount = counts.Distinct
	filled := prof.FilledCount()
	if prof.TotalCount > 0 {
		prof.CompletenessRate = float64(filled) / float64(prof.TotalCount) * 100
	}
	if filled > 0 {
		prof.CardinalityRate = float64(prof.DistinctCount) / float64(filled) * 100
	}

	prof.Classification = ClassifyColumn(ColumnFacts{
		Name:            col.ColumnName,
		Family:          col.Family,
		DistinctCount:   prof.DistinctCount,
		CardinalityRate: prof.CardinalityRate,
	})

	if filled > 0 {
		if err := p.typeStats(ctx, ds, run, col); err != nil {
			return nil, nil, err
		}

		if prof.Classification != models.ClassificationUniqueID && prof.Classification != models.ClassificationDateTime {
			top, err := ds.TopValues(ctx, ref, col.ColumnName, p.cfg.TopValuesLimit)
			if err := run.check("top_values", err); err != nil {
				return nil, nil, err
			}
			for _, vc := range top {
				prof.TopValues = append(prof.TopValues, models.ValueFrequency{
					Value:      vc.Value,
					Count:      vc.Count,
					Percentage: float64(vc.Count) / float64(filled) * 100,
				})
			}
			prof.Anomalies = DetectAnomalies(col.ColumnName, filled, prof.TopValues)
		}
	}

	prof.Recommendation = Recommend(prof)
	return prof, run.skipped, nil
}

// typeStats fills the stat block matching the classification. Blocks need
// the declared type to agree, since the queries cast the column.
func (p *ColumnProfiler) typeStats(ctx context.Context, ds datasource.TableProfiler, run *columnRun, col datasource.ColumnMetadata) error {
	prof := run.profile
	switch prof.Classification {
	case models.ClassificationNumeric, models.ClassificationGeographic:
		if col.Family == datasource.FamilyNumeric {
			return p.numericStats(ctx, ds, run, col.ColumnName)
		}
	case models.ClassificationDateTime:
		if col.Family == datasource.FamilyDateTime {
			summary, err := ds.DateSummary(ctx, run.ref, col.ColumnName, p.cfg.IncludeDateTimeline)
			if err := run.check("date_summary", err); err != nil {
				return err
			}
			if summary != nil {
				prof.Date = &models.DateStats{Min: summary.Min, Max: summary.Max, Timeline: summary.Timeline}
			}
		}
	case models.ClassificationText:
		lengths, err := ds.TextLengths(ctx, run.ref, col.ColumnName)
		if err := run.check("text_lengths", err); err != nil {
			return err
		}
		prof.Text = lengths
	case models.ClassificationBoolean:
		bc, err := ds.BooleanCounts(ctx, run.ref, col.ColumnName)
		if err := run.check("boolean_counts", err); err != nil {
			return err
		}
		if bc != nil {
			prof.Boolean = booleanStats(bc)
		}
	}
	return nil
}

func (p *ColumnProfiler) numericStats(ctx context.Context, ds datasource.TableProfiler, run *columnRun, column string) error {
	summary, err := ds.NumericSummary(ctx, run.ref, column)
	if err := run.check("numeric_summary", err); err != nil {
		return err
	}
	if summary == nil || summary.Count == 0 || summary.Min == nil || summary.Max == nil {
		return nil
	}

	stats := &models.NumericStats{
		Min:    deref(summary.Min),
		Max:    deref(summary.Max),
		Mean:   deref(summary.Mean),
		StdDev: deref(summary.StdDev),
		P25:    deref(summary.P25),
		P50:    deref(summary.P50),
		P75:    deref(summary.P75),
		P90:    deref(summary.P90),
		P95:    deref(summary.P95),
	}
	run.profile.Numeric = stats

	hist, err := ds.Histogram(ctx, run.ref, column, stats.Min, stats.Max, p.cfg.HistogramBuckets)
	if err := run.check("histogram", err); err != nil {
		return err
	}
	stats.Histogram = hist

	iqr := stats.IQR()
	stats.IQRLowerBound = stats.P25 - iqrMultiplier*iqr
	stats.IQRUpperBound = stats.P75 + iqrMultiplier*iqr

	count, err := ds.CountOutside(ctx, run.ref, column, stats.IQRLowerBound, stats.IQRUpperBound)
	if err := run.check("iqr_outliers", err); err != nil {
		return err
	}
	stats.IQROutlierCount = count
	if count == 0 {
		return nil
	}

	sample, err := ds.SampleOutside(ctx, run.ref, column, stats.IQRLowerBound, stats.IQRUpperBound, iqrOutlierSampleMax)
	if err := run.check("iqr_outlier_sample", err); err != nil {
		return err
	}
	stats.IQROutlierSample = sample
	return nil
}

func booleanStats(bc *datasource.BooleanCounts) *models.BooleanStats {
	stats := &models.BooleanStats{
		TrueCount:  bc.True,
		FalseCount: bc.False,
		NullCount:  bc.Nulls,
	}
	if total := bc.True + bc.False + bc.Nulls; total > 0 {
		stats.TruePercentage = float64(bc.True) / float64(total) * 100
		stats.FalsePercentage = float64(bc.False) / float64(total) * 100
		stats.NullPercentage = float64(bc.Nulls) / float64(total) * 100
	}
	return stats
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// columnRun tracks the partial-failure trail of one column.
type columnRun struct {
	profiler *ColumnProfiler
	ref      models.TableRef
	profile  *models.ColumnProfile
	skipped  []models.SkippedColumn
}

// check records a failed analysis and returns an error only when the
// failure is a connectivity failure.
func (r *columnRun) check(analysis string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsConnectivity(err) {
		return &apperrors.AnalysisError{
			Op:     analysis,
			Schema: r.ref.Schema,
			Table:  r.ref.Table,
			Column: r.profile.ColumnName,
			Err:    err,
		}
	}

	reason := logging.SanitizeError(err)
	r.profiler.logger.Warn("Column analysis failed",
		zap.String("schema", r.ref.Schema),
		zap.String("table", r.ref.Table),
		zap.String("column", r.profile.ColumnName),
		zap.String("analysis", analysis),
		zap.String("error", reason))

	r.profile.Warnings = append(r.profile.Warnings, fmt.Sprintf("%s: %s", analysis, reason))
	r.skipped = append(r.skipped, models.SkippedColumn{
		ColumnName: r.profile.ColumnName,
		Analysis:   analysis,
		Reason:     reason,
	})
	return nil
}
