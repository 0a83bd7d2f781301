package mssql

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-profiler/pkg/sql"
)

// adaptiveOversample is how much larger the TABLESAMPLE percentage is than
// the target fraction, since SYSTEM sampling reads whole pages.
const adaptiveOversample = 2.0

// SampleQuery renders the scan statement for a sampling strategy as a
// SELECT that can be wrapped in a derived table. Row limits are integers
// computed from table statistics, never caller input.
func (a *Adapter) SampleQuery(ref models.TableRef, strategy models.SamplingStrategy, columns []string) (string, error) {
	query, err := renderSample(ref, strategy, columns)
	if err != nil {
		return "", err
	}
	return sqlutil.SingleStatement(query)
}

func renderSample(ref models.TableRef, strategy models.SamplingStrategy, columns []string) (string, error) {
	table, err := buildFullyQualifiedName(ref)
	if err != nil {
		return "", err
	}

	selectList := "*"
	if len(columns) > 0 {
		quoted := make([]string, 0, len(columns))
		for _, c := range columns {
			q, err := quoteName(c)
			if err != nil {
				return "", err
			}
			quoted = append(quoted, q)
		}
		selectList = strings.Join(quoted, ", ")
	}

	if strategy.Mode == models.SamplingFullScan {
		return fmt.Sprintf("SELECT %s FROM %s", selectList, table), nil
	}

	n := strategy.SampleSize
	if n <= 0 {
		return "", fmt.Errorf("sampling mode %s requires a positive sample size", strategy.Mode)
	}

	switch strategy.Mode {
	case models.SamplingRandom:
		return fmt.Sprintf("SELECT TOP (%d) %s FROM %s ORDER BY NEWID()", n, selectList, table), nil

	case models.SamplingSystematic:
		orderKey := "(SELECT NULL)"
		if strategy.PrimaryKeyColumn != "" {
			if orderKey, err = quoteName(strategy.PrimaryKeyColumn); err != nil {
				return "", err
			}
		}
		step := int64(1)
		if strategy.RowCount > n {
			step = strategy.RowCount / n
		}
		return fmt.Sprintf(
			"SELECT TOP (%d) %s FROM (SELECT %s, ROW_NUMBER() OVER (ORDER BY %s) AS [__profiler_rn] FROM %s) s WHERE s.[__profiler_rn] %% %d = 0",
			n, selectList, selectList, orderKey, table, step), nil

	case models.SamplingAdaptive:
		return fmt.Sprintf("SELECT TOP (%d) %s FROM %s TABLESAMPLE SYSTEM (%s PERCENT)",
			n, selectList, table, samplePercent(n, strategy.RowCount)), nil

	default:
		return "", fmt.Errorf("unknown sampling mode %q", strategy.Mode)
	}
}

// samplePercent returns the TABLESAMPLE SYSTEM percentage for n of rows.
func samplePercent(n, rows int64) string {
	pct := 100.0
	if rows > 0 {
		pct = float64(n) / float64(rows) * 100 * adaptiveOversample
	}
	pct = math.Max(0.01, math.Min(100, pct))
	return strconv.FormatFloat(pct, 'f', 4, 64)
}
