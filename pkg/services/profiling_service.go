package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-profiler/pkg/logging"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-profiler/pkg/sql"
)

// ProfilingService is the entry point for table- and database-level data
// quality analysis. Every call is a fresh, stateless pass over live data.
type ProfilingService interface {
	// TestConnection verifies the datasource is reachable.
	TestConnection(ctx context.Context) error

	// AnalyzeTablePatterns profiles every column of a table and scores text
	// columns against the pattern rules.
	AnalyzeTablePatterns(ctx context.Context, ref models.TableRef) ([]models.ColumnProfile, error)

	// AnalyzeTableRelationships runs the status/date and correlation checks.
	AnalyzeTableRelationships(ctx context.Context, ref models.TableRef) (*models.RelationshipMetrics, error)

	// AnalyzeColumnOutliers returns one 0-based page of 3-sigma outliers.
	// A non-positive pageSize uses the configured default.
	AnalyzeColumnOutliers(ctx context.Context, ref models.TableRef, column string, page, pageSize int) (*models.OutlierSet, error)

	// CollectBasicMetrics builds the full table profile: column profiles,
	// patterns and relationship metrics.
	CollectBasicMetrics(ctx context.Context, ref models.TableRef) (*models.TableProfile, error)

	// DiscoverSchema inventories declared and implicit relations across the database.
	DiscoverSchema(ctx context.Context) (*models.SchemaDiscovery, error)
}

// ProfilingConfig holds the analysis limits of a ProfilingService.
type ProfilingConfig struct {
	MaxParallelColumns     int
	DefaultPageSize        int
	MaxPageSize            int
	PatternSampleLimit     int
	CorrelationSampleLimit int
	TopValuesLimit         int
	HistogramBuckets       int
	IncludeDateTimeline    bool
	// PatternRules defaults to DefaultPatternRules when nil.
	PatternRules []models.PatternRule
}

// DefaultProfilingConfig returns the limits used when nothing is configured.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		MaxParallelColumns:     1,
		DefaultPageSize:        DefaultOutlierPageSize,
		MaxPageSize:            MaxOutlierPageSize,
		PatternSampleLimit:     defaultPatternSampleLimit,
		CorrelationSampleLimit: defaultCorrelationSampleLimit,
		TopValuesLimit:         10,
		HistogramBuckets:       20,
		IncludeDateTimeline:    true,
	}
}

type profilingService struct {
	ds            datasource.Datasource
	cfg           ProfilingConfig
	planner       *SamplingPlanner
	profiler      *ColumnProfiler
	matcher       *PatternMatcher
	outliers      *OutlierDetector
	relationships *RelationshipAnalyzer
	schema        *SchemaRelationshipDiscoverer
	logger        *zap.Logger
}

// NewProfilingService creates a ProfilingService over an open datasource.
// The caller owns ds and closes it.
func NewProfilingService(ds datasource.Datasource, cfg ProfilingConfig, logger *zap.Logger) ProfilingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxParallelColumns < 1 {
		cfg.MaxParallelColumns = 1
	}
	rules := cfg.PatternRules
	if rules == nil {
		rules = DefaultPatternRules()
	}

	matcher := NewPatternMatcher(rules, cfg.PatternSampleLimit, logger)
	logger.Named("profiling").Debug("Profiling service ready",
		zap.Int("max_parallel_columns", cfg.MaxParallelColumns),
		zap.Strings("pattern_rules", matcher.RuleNames()))

	return &profilingService{
		ds:      ds,
		cfg:     cfg,
		planner: NewSamplingPlanner(logger),
		profiler: NewColumnProfiler(ColumnProfilerConfig{
			TopValuesLimit:      cfg.TopValuesLimit,
			HistogramBuckets:    cfg.HistogramBuckets,
			IncludeDateTimeline: cfg.IncludeDateTimeline,
		}, logger),
		matcher:       matcher,
		outliers:      NewOutlierDetector(cfg.DefaultPageSize, cfg.MaxPageSize, logger),
		relationships: NewRelationshipAnalyzer(cfg.CorrelationSampleLimit, logger),
		schema:        NewSchemaRelationshipDiscoverer(logger),
		logger:        logger.Named("profiling"),
	}
}

var _ ProfilingService = (*profilingService)(nil)

func (s *profilingService) TestConnection(ctx context.Context) error {
	if err := s.ds.TestConnection(ctx); err != nil {
		return fmt.Errorf("test %s connection: %w", s.ds.Type(), err)
	}
	return nil
}

func (s *profilingService) AnalyzeTablePatterns(ctx context.Context, ref models.TableRef) ([]models.ColumnProfile, error) {
	scan, err := s.scanTable(ctx, ref)
	if err != nil {
		return nil, err
	}
	return scan.profiles, nil
}

func (s *profilingService) AnalyzeTableRelationships(ctx context.Context, ref models.TableRef) (*models.RelationshipMetrics, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	columns, err := s.discoverColumns(ctx, ref)
	if err != nil {
		return nil, err
	}
	strategy := s.planner.Plan(ctx, s.ds, ref)

	metrics, err := s.relationships.Analyze(ctx, s.ds, ref, columns, nil, strategy)
	if err != nil {
		s.logFailure("relationships", ref, err)
		return nil, err
	}
	return metrics, nil
}

func (s *profilingService) AnalyzeColumnOutliers(ctx context.Context, ref models.TableRef, column string, page, pageSize int) (*models.OutlierSet, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	if err := sqlutil.ValidateIdentifier(column); err != nil {
		return nil, err
	}

	columns, err := s.discoverColumns(ctx, ref)
	if err != nil {
		return nil, err
	}
	col, ok := findColumn(columns, column)
	if !ok {
		return nil, fmt.Errorf("column %s.%s: %w", ref, column, apperrors.ErrNotFound)
	}

	set, err := s.outliers.Detect(ctx, s.ds, OutlierRequest{
		Table:    ref,
		Column:   col,
		OrderKeys: tieBreakColumns(columns),
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		s.logFailure("outliers", ref, err, zap.String("column", column))
		return nil, &apperrors.AnalysisError{Op: "outliers", Schema: ref.Schema, Table: ref.Table, Column: col.ColumnName, Err: err}
	}

	s.logger.Debug("Outlier page computed",
		zap.String("schema", ref.Schema),
		zap.String("table", ref.Table),
		zap.String("column", col.ColumnName),
		zap.Int64("outliers", set.OutlierCount),
		zap.Int("page", set.Page),
		zap.Int("total_pages", set.TotalPages))
	return set, nil
}

func (s *profilingService) CollectBasicMetrics(ctx context.Context, ref models.TableRef) (*models.TableProfile, error) {
	start := time.Now()

	scan, err := s.scanTable(ctx, ref)
	if err != nil {
		return nil, err
	}

	metrics, err := s.relationships.Analyze(ctx, s.ds, ref, scan.columns, knownDistinct(scan.profiles), scan.strategy)
	if err != nil {
		s.logFailure("relationships", ref, err)
		return nil, err
	}

	profile := &models.TableProfile{
		AnalysisID:     uuid.New(),
		SchemaName:     ref.Schema,
		TableName:      ref.Table,
		CollectedAt:    start.UTC(),
		RowCount:       rowCount(scan),
		Sampling:       scan.strategy,
		Columns:        scan.profiles,
		Relationships:  metrics,
		SkippedColumns: scan.skipped,
		Status:         models.ProfileStatusComplete,
	}
	if len(scan.skipped) > 0 || len(metrics.Warnings) > 0 {
		profile.Status = models.ProfileStatusPartial
	}
	profile.Duration = time.Since(start)

	s.logger.Info("Table profile collected",
		zap.String("analysis_id", profile.AnalysisID.String()),
		zap.String("schema", ref.Schema),
		zap.String("table", ref.Table),
		zap.Int("columns", len(profile.Columns)),
		zap.Int("skipped", len(profile.SkippedColumns)),
		zap.String("status", string(profile.Status)),
		zap.Duration("duration", profile.Duration))

	return profile, nil
}

func (s *profilingService) DiscoverSchema(ctx context.Context) (*models.SchemaDiscovery, error) {
	discovery, err := s.schema.Discover(ctx, s.ds)
	if err != nil {
		s.logger.Error("Schema discovery failed", zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}
	return discovery, nil
}

// tableScan is the per-column work shared by the table-level operations.
type tableScan struct {
	columns  []datasource.ColumnMetadata
	strategy models.SamplingStrategy
	profiles []models.ColumnProfile
	skipped  []models.SkippedColumn
}

// scanTable profiles every column through a bounded worker group, scores
// text columns against the pattern rules and attaches the first page of 3σ
// outliers to numeric columns. Results are written by column ordinal, so no
// locking is needed. The first connectivity failure cancels the group and
// discards all results.
func (s *profilingService) scanTable(ctx context.Context, ref models.TableRef) (*tableScan, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	columns, err := s.discoverColumns(ctx, ref)
	if err != nil {
		return nil, err
	}

	scan := &tableScan{
		columns:  columns,
		strategy: s.planner.Plan(ctx, s.ds, ref),
		profiles: make([]models.ColumnProfile, len(columns)),
	}
	skipped := make([][]models.SkippedColumn, len(columns))
	orderKeys := tieBreakColumns(columns)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallelColumns)

	for i, col := range columns {
		g.Go(func() error {
			prof, skips, err := s.profiler.Profile(gctx, s.ds, ref, col)
			if err != nil {
				return err
			}

			if col.Family == datasource.FamilyText && prof.FilledCount() > 0 {
				matches, err := s.matcher.AnalyzeColumn(gctx, s.ds, ref, col.ColumnName, scan.strategy)
				switch {
				case err == nil:
					prof.Patterns = matches
				case apperrors.IsConnectivity(err):
					return &apperrors.AnalysisError{Op: "patterns", Schema: ref.Schema, Table: ref.Table, Column: col.ColumnName, Err: err}
				default:
					skips = append(skips, s.skipAnalysis(ref, prof, "patterns", err))
				}
			}

			if hasOutlierCheck(col, prof) {
				set, err := s.outliers.Detect(gctx, s.ds, OutlierRequest{
					Table:     ref,
					Column:    col,
					OrderKeys: orderKeys,
					PageSize:  s.cfg.DefaultPageSize,
				})
				switch {
				case err == nil:
					prof.Outliers = set
				case apperrors.IsConnectivity(err):
					return &apperrors.AnalysisError{Op: "outliers", Schema: ref.Schema, Table: ref.Table, Column: col.ColumnName, Err: err}
				default:
					skips = append(skips, s.skipAnalysis(ref, prof, "outliers", err))
				}
			}

			scan.profiles[i] = *prof
			skipped[i] = skips
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logFailure("profile", ref, err)
		return nil, err
	}

	for _, skips := range skipped {
		scan.skipped = append(scan.skipped, skips...)
	}
	return scan, nil
}

// skipAnalysis records a failed column-level analysis as a warning on the
// profile and returns the matching skip entry.
func (s *profilingService) skipAnalysis(ref models.TableRef, prof *models.ColumnProfile, analysis string, err error) models.SkippedColumn {
	reason := logging.SanitizeError(err)
	s.logger.Warn("Column analysis failed",
		zap.String("schema", ref.Schema),
		zap.String("table", ref.Table),
		zap.String("column", prof.ColumnName),
		zap.String("analysis", analysis),
		zap.String("error", reason))
	prof.Warnings = append(prof.Warnings, analysis+": "+reason)
	return models.SkippedColumn{ColumnName: prof.ColumnName, Analysis: analysis, Reason: reason}
}

func hasOutlierCheck(col datasource.ColumnMetadata, prof *models.ColumnProfile) bool {
	if col.Family != datasource.FamilyNumeric || prof.FilledCount() == 0 {
		return false
	}
	return prof.Classification == models.ClassificationNumeric || prof.Classification == models.ClassificationGeographic
}

func (s *profilingService) discoverColumns(ctx context.Context, ref models.TableRef) ([]datasource.ColumnMetadata, error) {
	columns, err := s.ds.DiscoverColumns(ctx, ref.Schema, ref.Table)
	if err != nil {
		return nil, &apperrors.AnalysisError{Op: "discover_columns", Schema: ref.Schema, Table: ref.Table, Err: err}
	}
	return columns, nil
}

func (s *profilingService) logFailure(op string, ref models.TableRef, err error, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("op", op),
		zap.String("schema", ref.Schema),
		zap.String("table", ref.Table),
		zap.Bool("connectivity", apperrors.IsConnectivity(err)),
		zap.String("error", logging.SanitizeError(err)),
	}, fields...)
	s.logger.Error("Analysis failed", fields...)
}

func validateRef(ref models.TableRef) error {
	if ref.Schema != "" {
		if err := sqlutil.ValidateIdentifier(ref.Schema); err != nil {
			return err
		}
	}
	return sqlutil.ValidateIdentifier(ref.Table)
}

func findColumn(columns []datasource.ColumnMetadata, name string) (datasource.ColumnMetadata, bool) {
	for _, c := range columns {
		if c.ColumnName == name {
			return c, true
		}
	}
	for _, c := range columns {
		if strings.EqualFold(c.ColumnName, name) {
			return c, true
		}
	}
	return datasource.ColumnMetadata{}, false
}

// unorderableTypes cannot appear in ORDER BY (SQL Server LOB types).
var unorderableTypes = map[string]bool{"text": true, "ntext": true, "image": true, "xml": true}

// tieBreakColumns picks the columns that order outlier rows at equal
// distance: a single-column primary key, else a unique non-null column,
// else every orderable column in ordinal order. Nil leaves the tie-break
// to the adapter's physical row id.
func tieBreakColumns(columns []datasource.ColumnMetadata) []string {
	if pk := singlePrimaryKey(columns); pk != "" {
		return []string{pk}
	}
	for _, c := range columns {
		if c.IsUnique && !c.IsNullable {
			return []string{c.ColumnName}
		}
	}

	var keys []string
	for _, c := range columns {
		if c.Family == datasource.FamilyOther || unorderableTypes[strings.ToLower(c.DataType)] {
			continue
		}
		keys = append(keys, c.ColumnName)
	}
	return keys
}

// singlePrimaryKey returns the primary key column when the key has exactly
// one column, since only then is it unique on its own.
func singlePrimaryKey(columns []datasource.ColumnMetadata) string {
	pk := ""
	for _, c := range columns {
		if !c.IsPrimaryKey {
			continue
		}
		if pk != "" {
			return ""
		}
		pk = c.ColumnName
	}
	return pk
}

func knownDistinct(profiles []models.ColumnProfile) map[string]int64 {
	m := make(map[string]int64, len(profiles))
	for _, p := range profiles {
		if p.TotalCount > 0 {
			m[p.ColumnName] = p.DistinctCount
		}
	}
	return m
}

func rowCount(scan *tableScan) int64 {
	var n int64
	for _, p := range scan.profiles {
		n = max(n, p.TotalCount)
	}
	if n == 0 {
		return scan.strategy.RowCount
	}
	return n
}
