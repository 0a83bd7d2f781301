package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/logging"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

// Row-count thresholds and sample sizes used by the sampling decision table.
const (
	fullScanMaxRows   = 1_000
	randomMaxRows     = 100_000
	systematicMaxRows = 1_000_000

	minRandomSample    = 5_000
	systematicSample   = 10_000
	adaptiveSample     = 15_000
	maxSampleSize      = 50_000
	fallbackSampleSize = 1_000

	// uniqueIndexShrinkAbove is the sample size above which tables with a
	// unique index get a 20% smaller sample.
	uniqueIndexShrinkAbove = 20_000
)

// Column-shape thresholds that trigger a larger sample.
const (
	highCardinalityRatio   = 0.8
	highCardinalityColumns = 3
	highNullFraction       = 0.5
	highNullColumns        = 2
	wideColumnBytes        = 100
	wideColumns            = 1
)

// SamplingPlanner picks how a table is read for value-level analyses.
type SamplingPlanner struct {
	logger *zap.Logger
}

// NewSamplingPlanner creates a SamplingPlanner.
func NewSamplingPlanner(logger *zap.Logger) *SamplingPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SamplingPlanner{logger: logger.Named("sampling-planner")}
}

// Plan reads planner statistics for the table and decides a strategy.
// It never fails: when statistics cannot be read the table is sampled
// randomly with a small fixed size and the error is kept in the rationale.
func (p *SamplingPlanner) Plan(ctx context.Context, ds datasource.TableProfiler, ref models.TableRef) models.SamplingStrategy {
	stats, err := ds.TableStatistics(ctx, ref)
	if err != nil {
		p.logger.Warn("Table statistics unavailable, using fallback sampling",
			zap.String("schema", ref.Schema),
			zap.String("table", ref.Table),
			zap.Error(err))
		return fallbackStrategy(err)
	}
	strategy := p.Decide(stats)
	p.logger.Debug("Sampling strategy selected",
		zap.String("schema", ref.Schema),
		zap.String("table", ref.Table),
		zap.String("mode", string(strategy.Mode)),
		zap.Int64("sample_size", strategy.SampleSize),
		zap.Int64("row_count", strategy.RowCount))
	return strategy
}

// Decide applies the decision table and the column-shape adjustments to
// already collected statistics.
func (p *SamplingPlanner) Decide(stats *datasource.TableStatistics) models.SamplingStrategy {
	if stats == nil {
		return fallbackStrategy(errors.New("no statistics"))
	}

	rows := stats.RowCount
	if rows < 0 {
		rows = 0
	}

	s := models.SamplingStrategy{
		RowCount:         rows,
		PrimaryKeyColumn: stats.PrimaryKeyColumn,
	}

	switch {
	case rows <= fullScanMaxRows:
		s.Mode = models.SamplingFullScan
		s.SampleSize = rows
		s.AddReason(fmt.Sprintf("%d rows: small enough for a full scan", rows))
		// A full scan already reads every row.
		return s
	case rows <= randomMaxRows:
		s.Mode = models.SamplingRandom
		s.SampleSize = max(minRandomSample, rows/10)
		s.AddReason(fmt.Sprintf("%d rows: random sample of %d", rows, s.SampleSize))
	case rows <= systematicMaxRows:
		s.Mode = models.SamplingSystematic
		s.SampleSize = systematicSample
		s.AddReason(fmt.Sprintf("%d rows: systematic sample of %d", rows, s.SampleSize))
	default:
		s.Mode = models.SamplingAdaptive
		s.SampleSize = adaptiveSample
		s.AddReason(fmt.Sprintf("%d rows: adaptive block sample of %d", rows, s.SampleSize))
	}

	var highCard, highNull, wide int
	for _, c := range stats.Columns {
		if rows > 0 && c.DistinctEstimate(rows) > highCardinalityRatio*float64(rows) {
			highCard++
		}
		if c.NullFraction > highNullFraction {
			highNull++
		}
		if c.AvgWidth > wideColumnBytes {
			wide++
		}
	}

	grow := false
	if highCard > highCardinalityColumns {
		s.AddReason(fmt.Sprintf("%d high-cardinality columns", highCard))
		grow = true
	}
	if highNull > highNullColumns {
		s.AddReason(fmt.Sprintf("%d columns are mostly null", highNull))
		grow = true
	}
	if wide > wideColumns {
		s.AddReason(fmt.Sprintf("%d wide columns (avg > %d bytes)", wide, wideColumnBytes))
		grow = true
	}
	if grow {
		s.SampleSize = min(s.SampleSize*2, maxSampleSize)
		s.AddReason(fmt.Sprintf("sample size doubled to %d (cap %d)", s.SampleSize, maxSampleSize))
	}

	if s.PrimaryKeyColumn != "" && s.Mode == models.SamplingRandom {
		s.Mode = models.SamplingSystematic
		s.AddReason(fmt.Sprintf("primary key %s available: systematic sampling", s.PrimaryKeyColumn))
	}

	if stats.HasUniqueIndex && s.SampleSize > uniqueIndexShrinkAbove {
		s.SampleSize = s.SampleSize * 8 / 10
		s.AddReason(fmt.Sprintf("unique index present: sample reduced to %d", s.SampleSize))
	}

	return s
}

func fallbackStrategy(err error) models.SamplingStrategy {
	s := models.SamplingStrategy{
		Mode:       models.SamplingRandom,
		SampleSize: fallbackSampleSize,
	}
	s.AddReason(fmt.Sprintf("statistics unavailable (%s): random sample of %d", logging.SanitizeError(err), fallbackSampleSize))
	return s
}
