package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-profiler/pkg/logging"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

const (
	defaultCorrelationSampleLimit = 1_000
	minReportedCorrelation        = 0.1
	flagMaxDistinct               = 2
)

// activeFlagValues are the text renderings treated as "true" in flag columns.
var activeFlagValues = []string{"1", "true", "t", "s", "y", "yes", "sim", "active", "ativo", "a"}

var (
	flagNamePrefixes  = []string{"is_", "has_", "fl_"}
	flagNameFragments = []string{"flag", "active", "ativo"}

	radicalPrefixes = []string{"is_", "has_", "fl_", "dt_", "data_"}
	radicalSuffixes = []string{"_at", "_date", "_dt"}
)

// RelationshipAnalyzer looks for cross-column signals inside one table:
// active flags without their companion date, and linear correlation
// between numeric columns.
type RelationshipAnalyzer struct {
	correlationLimit int
	logger           *zap.Logger
}

// NewRelationshipAnalyzer creates a RelationshipAnalyzer.
func NewRelationshipAnalyzer(correlationLimit int, logger *zap.Logger) *RelationshipAnalyzer {
	if correlationLimit < minCorrelationSamples {
		correlationLimit = defaultCorrelationSampleLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelationshipAnalyzer{
		correlationLimit: correlationLimit,
		logger:           logger.Named("relationship-analyzer"),
	}
}

// Analyze runs both checks. distinct carries known distinct counts per
// column; flag candidates missing from it are counted on demand. Failures of
// individual pairs become warnings; connectivity failures abort.
func (a *RelationshipAnalyzer) Analyze(
	ctx context.Context,
	ds datasource.TableProfiler,
	ref models.TableRef,
	columns []datasource.ColumnMetadata,
	distinct map[string]int64,
	strategy models.SamplingStrategy,
) (*models.RelationshipMetrics, error) {
	metrics := &models.RelationshipMetrics{
		StatusDate:   []models.StatusDateRelationship{},
		Correlations: []models.Correlation{},
	}

	flags, err := a.flagColumns(ctx, ds, ref, columns, distinct, metrics)
	if err != nil {
		return nil, err
	}

	var dates, numerics []datasource.ColumnMetadata
	for _, c := range columns {
		switch c.Family {
		case datasource.FamilyDateTime:
			dates = append(dates, c)
		case datasource.FamilyNumeric:
			numerics = append(numerics, c)
		}
	}

	for _, flag := range flags {
		for _, date := range dates {
			if flag.Name == date.ColumnName {
				continue
			}
			rel, err := a.statusDate(ctx, ds, ref, flag, date.ColumnName)
			if err != nil {
				if apperrors.IsConnectivity(err) {
					return nil, &apperrors.AnalysisError{Op: "status_date", Schema: ref.Schema, Table: ref.Table, Column: flag.Name, Err: err}
				}
				a.warn(metrics, ref, fmt.Sprintf("status/date %s,%s", flag.Name, date.ColumnName), err)
				continue
			}
			if rel != nil {
				metrics.StatusDate = append(metrics.StatusDate, *rel)
			}
		}
	}

	if len(numerics) < 2 {
		return metrics, nil
	}

	limit := int(strategy.Limit(int64(a.correlationLimit)))
	for i := 0; i < len(numerics); i++ {
		for j := i + 1; j < len(numerics); j++ {
			colA, colB := numerics[i].ColumnName, numerics[j].ColumnName
			pairs, err := ds.NumericPairs(ctx, ref, colA, colB, strategy, limit)
			if err != nil {
				if apperrors.IsConnectivity(err) {
					return nil, &apperrors.AnalysisError{Op: "correlation", Schema: ref.Schema, Table: ref.Table, Column: colA, Err: err}
				}
				a.warn(metrics, ref, fmt.Sprintf("correlation %s,%s", colA, colB), err)
				continue
			}
			r, ok := PearsonCorrelation(pairs)
			if !ok || math.Abs(r) <= minReportedCorrelation {
				continue
			}
			metrics.Correlations = append(metrics.Correlations, models.Correlation{
				ColumnA:     colA,
				ColumnB:     colB,
				Coefficient: r,
				Strength:    models.StrengthOf(r),
				SampleSize:  len(pairs),
			})
		}
	}

	return metrics, nil
}

func (a *RelationshipAnalyzer) statusDate(ctx context.Context, ds datasource.TableProfiler, ref models.TableRef, flag datasource.FlagColumn, dateColumn string) (*models.StatusDateRelationship, error) {
	counts, err := ds.StatusDateCounts(ctx, ref, flag, dateColumn)
	if err != nil {
		return nil, err
	}
	if counts == nil || counts.Active <= 0 || counts.Inconsistent <= 0 {
		return nil, nil
	}
	return &models.StatusDateRelationship{
		StatusColumn:            flag.Name,
		DateColumn:              dateColumn,
		ActiveCount:             counts.Active,
		InconsistentCount:       counts.Inconsistent,
		InconsistencyPercentage: float64(counts.Inconsistent) / float64(counts.Active) * 100,
		ActiveValues:            counts.ActiveSamples,
		CommonRadical:           CommonRadical(flag.Name, dateColumn),
	}, nil
}

// flagColumns returns boolean columns plus flag-named columns holding at
// most two distinct values.
func (a *RelationshipAnalyzer) flagColumns(
	ctx context.Context,
	ds datasource.TableProfiler,
	ref models.TableRef,
	columns []datasource.ColumnMetadata,
	distinct map[string]int64,
	metrics *models.RelationshipMetrics,
) ([]datasource.FlagColumn, error) {
	var flags []datasource.FlagColumn
	for _, c := range columns {
		if c.Family == datasource.FamilyBoolean {
			flags = append(flags, datasource.FlagColumn{Name: c.ColumnName, IsBoolean: true})
			continue
		}
		if c.Family == datasource.FamilyDateTime || !isFlagNamed(c.ColumnName) {
			continue
		}

		n, known := distinct[c.ColumnName]
		if !known {
			counts, err := ds.ColumnCounts(ctx, ref, c.ColumnName)
			if err != nil {
				if apperrors.IsConnectivity(err) {
					return nil, &apperrors.AnalysisError{Op: "flag_detection", Schema: ref.Schema, Table: ref.Table, Column: c.ColumnName, Err: err}
				}
				a.warn(metrics, ref, "flag detection "+c.ColumnName, err)
				continue
			}
			n = counts.Distinct
		}
		if n > 0 && n <= flagMaxDistinct {
			flags = append(flags, datasource.FlagColumn{Name: c.ColumnName, ActiveValues: activeFlagValues})
		}
	}
	return flags, nil
}

func (a *RelationshipAnalyzer) warn(metrics *models.RelationshipMetrics, ref models.TableRef, what string, err error) {
	reason := logging.SanitizeError(err)
	a.logger.Warn("Relationship check failed",
		zap.String("schema", ref.Schema),
		zap.String("table", ref.Table),
		zap.String("check", what),
		zap.String("error", reason))
	metrics.Warnings = append(metrics.Warnings, what+": "+reason)
}

func isFlagNamed(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range flagNamePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	for _, f := range flagNameFragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// CommonRadical links a status column and a date column by the name stem
// they share once flag and date affixes are removed, e.g. is_active and
// dt_active give "active". Unrelated names are joined with "/".
func CommonRadical(statusColumn, dateColumn string) string {
	a := radical(statusColumn)
	b := radical(dateColumn)
	switch {
	case a == b:
		return a
	case strings.HasPrefix(b, a):
		return a
	case strings.HasPrefix(a, b):
		return b
	default:
		return a + "/" + b
	}
}

func radical(name string) string {
	r := strings.ToLower(name)
	for _, p := range radicalPrefixes {
		if strings.HasPrefix(r, p) && len(r) > len(p) {
			r = r[len(p):]
			break
		}
	}
	for _, s := range radicalSuffixes {
		if strings.HasSuffix(r, s) && len(r) > len(s) {
			r = r[:len(r)-len(s)]
			break
		}
	}
	return r
}
