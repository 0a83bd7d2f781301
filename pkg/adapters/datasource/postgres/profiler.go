package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

// Synthetic column aliases appended to outlier rows; stripped before the
// row snapshot is returned.
const (
	outlierValueAlias    = "__profiler_value"
	outlierDistanceAlias = "__profiler_distance"
)

// ColumnCounts returns total, null and distinct counts. Types without an
// equality operator (json, point) are retried with a text cast.
func (a *Adapter) ColumnCounts(ctx context.Context, ref models.TableRef, column string) (*datasource.ColumnCounts, error) {
	table, col, err := tableAndColumn(ref, column)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	var c datasource.ColumnCounts
	query := fmt.Sprintf(`SELECT COUNT(*), COUNT(*) - COUNT(%s), COUNT(DISTINCT %s) FROM %s`, col, col, table)
	if err := a.queryRow(ctx, query, nil, &c.Total, &c.Nulls, &c.Distinct); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("count column values: %w", err)
		}
		a.logger.Debug("Distinct count failed, retrying with text cast",
			zap.String("table", ref.String()),
			zap.String("column", column),
			zap.Error(err))

		retryQuery := fmt.Sprintf(`SELECT COUNT(*), COUNT(*) - COUNT(%s), COUNT(DISTINCT %s::text) FROM %s`, col, col, table)
		if retryErr := a.queryRow(ctx, retryQuery, nil, &c.Total, &c.Nulls, &c.Distinct); retryErr != nil {
			return nil, fmt.Errorf("count column values: %w", retryErr)
		}
	}
	return &c, nil
}

// NumericSummary computes aggregates and percentiles in one pass.
func (a *Adapter) NumericSummary(ctx context.Context, ref models.TableRef, column string) (*datasource.NumericSummary, error) {
	table, col, err := tableAndColumn(ref, column)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	v := col + "::float8"
	query := fmt.Sprintf(`
		SELECT
			COUNT(%[1]s),
			MIN(%[1]s), MAX(%[1]s), AVG(%[1]s), STDDEV_POP(%[1]s),
			percentile_cont(0.25) WITHIN GROUP (ORDER BY %[1]s),
			percentile_cont(0.50) WITHIN GROUP (ORDER BY %[1]s),
			percentile_cont(0.75) WITHIN GROUP (ORDER BY %[1]s),
			percentile_cont(0.90) WITHIN GROUP (ORDER BY %[1]s),
			percentile_cont(0.95) WITHIN GROUP (ORDER BY %[1]s)
		FROM %[2]s
		WHERE %[3]s
	`, v, table, finite(col))

	var s datasource.NumericSummary
	if err := a.queryRow(ctx, query, nil,
		&s.Count, &s.Min, &s.Max, &s.Mean, &s.StdDev,
		&s.P25, &s.P50, &s.P75, &s.P90, &s.P95); err != nil {
		return nil, fmt.Errorf("numeric summary: %w", err)
	}
	return &s, nil
}

// Histogram uses width_bucket, which is 1-based and puts hi itself in bucket n+1.
func (a *Adapter) Histogram(ctx context.Context, ref models.TableRef, column string, lo, hi float64, buckets int) ([]models.HistogramBucket, error) {
	table, col, err := tableAndColumn(ref, column)
	if err != nil {
		return nil, err
	}
	if buckets <= 0 {
		return nil, nil
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	counts := make(map[int]int64)
	if hi <= lo {
		var n int64
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, table, finite(col))
		if err := a.queryRow(ctx, query, nil, &n); err != nil {
			return nil, fmt.Errorf("histogram: %w", err)
		}
		counts[0] = n
		return datasource.BuildHistogram(lo, hi, buckets, counts), nil
	}

	query := fmt.Sprintf(`
		SELECT width_bucket(%[1]s::float8, $1::float8, $2::float8, $3::int) - 1 AS bucket, COUNT(*)
		FROM %[2]s
		WHERE %[3]s
		GROUP BY bucket
		ORDER BY bucket
	`, col, table, finite(col))

	rows, err := a.query(ctx, query, lo, hi, buckets)
	if err != nil {
		return nil, fmt.Errorf("histogram: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idx int32
		var n int64
		if err := rows.Scan(&idx, &n); err != nil {
			return nil, fmt.Errorf("scan histogram bucket: %w", err)
		}
		counts[int(idx)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate histogram buckets: %w", err)
	}

	return datasource.BuildHistogram(lo, hi, buckets, counts), nil
}

// CountOutside counts values strictly outside [lower, upper].
func (a *Adapter) CountOutside(ctx context.Context, ref models.TableRef, column string, lower, upper float64) (int64, error) {
	table, col, err := tableAndColumn(ref, column)
	if err != nil {
		return 0, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %[2]s WHERE %[3]s AND (%[1]s::float8 < $1 OR %[1]s::float8 > $2)`, col, table, finite(col))
	var n int64
	if err := a.queryRow(ctx, query, []any{lower, upper}, &n); err != nil {
		return 0, fmt.Errorf("count outside bounds: %w", err)
	}
	return n, nil
}

// SampleOutside returns up to limit values strictly outside [lower, upper].
func (a *Adapter) SampleOutside(ctx context.Context, ref models.TableRef, column string, lower, upper float64, limit int) ([]float64, error) {
	table, col, err := tableAndColumn(ref, column)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %[1]s::float8 FROM %[2]s
		WHERE %[3]s AND (%[1]s::float8 < $1 OR %[1]s::float8 > $2)
		ORDER BY ABS(%[1]s::float8 - ($1 + $2) / 2) DESC
		LIMIT $3
	`, col, table, finite(col))

	rows, err := a.query(ctx, query, lower, upper, limit)
	if err != nil {
		return nil, fmt.Errorf("sample outside bounds: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan outside value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outside values: %w", err)
	}
	return values, nil
}

// DateSummary returns the range and, optionally, counts per calendar month.
func (a *Adapter) DateSummary(ctx context.Context, ref models.TableRef, column string, timeline bool) (*datasource.DateSummary, error) {
	table, col, err := tableAndColumn(ref, column)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	var s datasource.DateSummary
	query := fmt.Sprintf(`SELECT MIN(%[1]s::timestamp), MAX(%[1]s::timestamp) FROM %[2]s`, col, table)
	if err := a.queryRow(ctx, query, nil, &s.Min, &s.Max); err != nil {
		return nil, fmt.Errorf("date range: %w", err)
	}

	if !timeline || s.Min == nil {
		return &s, nil
	}

	timelineQuery := fmt.Sprintf(`
		SELECT date_trunc('month', %[1]s::timestamp) AS month, COUNT(*)
		FROM %[2]s
		WHERE %[1]s IS NOT NULL
		GROUP BY month
		ORDER BY month
	`, col, table)

	rows, err := a.query(ctx, timelineQuery)
	if err != nil {
		return nil, fmt.Errorf("date timeline: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var month time.Time
		var n int64
		if err := rows.Scan(&month, &n); err != nil {
			return nil, fmt.Errorf("scan timeline bucket: %w", err)
		}
		s.Timeline = append(s.Timeline, models.TimelineBucket{Month: month, Count: n})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline: %w", err)
	}
	return &s, nil
}

// TextLengths returns character length statistics.
func (a *Adapter) TextLengths(ctx context.Context, ref models.TableRef, column string) (*models.TextStats, error) {
	table, col, err := tableAndColumn(ref, column)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT
			COALESCE(MIN(LENGTH(%[1]s::text)), 0)::bigint,
			COALESCE(MAX(LENGTH(%[1]s::text)), 0)::bigint,
			COALESCE(AVG(LENGTH(%[1]s::text)), 0)::float8
		FROM %[2]s
		WHERE %[1]s IS NOT NULL
	`, col, table)

	var s models.TextStats
	if err := a.queryRow(ctx, query, nil, &s.MinLength, &s.MaxLength, &s.AvgLength); err != nil {
		return nil, fmt.Errorf("text lengths: %w", err)
	}
	return &s, nil
}

// BooleanCounts returns the true/false/null split.
func (a *Adapter) BooleanCounts(ctx context.Context, ref models.TableRef, column string) (*datasource.BooleanCounts, error) {
	table, col, err := tableAndColumn(ref, column)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE %[1]s IS TRUE),
			COUNT(*) FILTER (WHERE %[1]s IS FALSE),
			COUNT(*) FILTER (WHERE %[1]s IS NULL)
		FROM %[2]s
	`, col, table)

	var c datasource.BooleanCounts
	if err := a.queryRow(ctx, query, nil, &c.True, &c.False, &c.Nulls); err != nil {
		return nil, fmt.Errorf("boolean counts: %w", err)
	}
	return &c, nil
}

// TopValues returns the most frequent non-null values; ties are broken by
// the text value so results are stable.
func (a *Adapter) TopValues(ctx context.Context, ref models.TableRef, column string, limit int) ([]datasource.ValueCount, error) {
	table, col, err := tableAndColumn(ref, column)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %[1]s::text AS value, COUNT(*) AS cnt
		FROM %[2]s
		WHERE %[1]s IS NOT NULL
		GROUP BY 1
		ORDER BY cnt DESC, value
		LIMIT $1
	`, col, table)

	rows, err := a.query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("top values: %w", err)
	}
	defer rows.Close()

	var values []datasource.ValueCount
	for rows.Next() {
		var vc datasource.ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, fmt.Errorf("scan top value: %w", err)
		}
		values = append(values, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top values: %w", err)
	}
	return values, nil
}

// SampleValues draws non-null text renderings through the sampling strategy.
func (a *Adapter) SampleValues(ctx context.Context, ref models.TableRef, column string, strategy models.SamplingStrategy, limit int) ([]string, error) {
	col, err := quoteIdent(column)
	if err != nil {
		return nil, err
	}
	sample, err := a.SampleQuery(ref, strategy, []string{column})
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT s.%[1]s::text FROM (%[2]s) s WHERE s.%[1]s IS NOT NULL LIMIT $1`, col, sample)
	rows, err := a.query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("sample values: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan sample value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample values: %w", err)
	}
	return values, nil
}

// NumericPairs draws co-non-null pairs through the sampling strategy.
func (a *Adapter) NumericPairs(ctx context.Context, ref models.TableRef, columnA, columnB string, strategy models.SamplingStrategy, limit int) ([]datasource.NumericPair, error) {
	colA, err := quoteIdent(columnA)
	if err != nil {
		return nil, err
	}
	colB, err := quoteIdent(columnB)
	if err != nil {
		return nil, err
	}
	sample, err := a.SampleQuery(ref, strategy, []string{columnA, columnB})
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT s.%[1]s::float8, s.%[2]s::float8
		FROM (%[3]s) s
		WHERE %[4]s AND %[5]s
		LIMIT $1
	`, colA, colB, sample, finite("s."+colA), finite("s."+colB))

	rows, err := a.query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("numeric pairs: %w", err)
	}
	defer rows.Close()

	var pairs []datasource.NumericPair
	for rows.Next() {
		var p datasource.NumericPair
		if err := rows.Scan(&p.A, &p.B); err != nil {
			return nil, fmt.Errorf("scan numeric pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate numeric pairs: %w", err)
	}
	return pairs, nil
}

// StatusDateCounts counts active flag rows and those missing a date.
func (a *Adapter) StatusDateCounts(ctx context.Context, ref models.TableRef, flag datasource.FlagColumn, dateColumn string) (*datasource.StatusDateCounts, error) {
	table, flagCol, err := tableAndColumn(ref, flag.Name)
	if err != nil {
		return nil, err
	}
	dateCol, err := quoteIdent(dateColumn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	var c datasource.StatusDateCounts
	if flag.IsBoolean {
		query := fmt.Sprintf(`
			SELECT
				COUNT(*) FILTER (WHERE %[1]s IS TRUE),
				COUNT(*) FILTER (WHERE %[1]s IS TRUE AND %[2]s IS NULL)
			FROM %[3]s
		`, flagCol, dateCol, table)
		if err := a.queryRow(ctx, query, nil, &c.Active, &c.Inconsistent); err != nil {
			return nil, fmt.Errorf("status/date counts: %w", err)
		}
		if c.Active > 0 {
			c.ActiveSamples = []string{"true"}
		}
		return &c, nil
	}

	active := fmt.Sprintf(`LOWER(TRIM(%s::text)) = ANY($1::text[])`, flagCol)
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE %[1]s),
			COUNT(*) FILTER (WHERE %[1]s AND %[2]s IS NULL)
		FROM %[3]s
	`, active, dateCol, table)
	if err := a.queryRow(ctx, query, []any{flag.ActiveValues}, &c.Active, &c.Inconsistent); err != nil {
		return nil, fmt.Errorf("status/date counts: %w", err)
	}
	if c.Active == 0 {
		return &c, nil
	}

	samplesQuery := fmt.Sprintf(`SELECT DISTINCT %s::text FROM %s WHERE %s ORDER BY 1 LIMIT 5`, flagCol, table, active)
	rows, err := a.query(ctx, samplesQuery, flag.ActiveValues)
	if err != nil {
		return nil, fmt.Errorf("active flag values: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan active flag value: %w", err)
		}
		c.ActiveSamples = append(c.ActiveSamples, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active flag values: %w", err)
	}
	return &c, nil
}

// OutlierRows returns one page of full rows whose value lies outside the
// bounds, most extreme first. Ties are broken by OrderKeys, then ctid.
func (a *Adapter) OutlierRows(ctx context.Context, q datasource.OutlierQuery) ([]models.OutlierRow, error) {
	table, col, err := tableAndColumn(q.Table, q.Column)
	if err != nil {
		return nil, err
	}
	tieBreak, err := tieBreakClause(q.OrderKeys)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT *, %[1]s::float8 AS %[4]q, ABS(%[1]s::float8 - $3::float8) AS %[5]q
		FROM %[2]s
		WHERE %[6]s AND (%[1]s::float8 < $1::float8 OR %[1]s::float8 > $2::float8)
		ORDER BY %[5]q DESC, %[3]s
		LIMIT $4 OFFSET $5
	`, col, table, tieBreak, outlierValueAlias, outlierDistanceAlias, finite(col))

	rows, err := a.query(ctx, query, q.Lower, q.Upper, q.Mean, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("outlier rows: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, fd := range fields {
		names[i] = fd.Name
	}
	width := len(names) - 2

	var result []models.OutlierRow
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read outlier row: %w", err)
		}
		value, _ := datasource.ValueFromDriver(values[width]).Float64()
		distance, _ := datasource.ValueFromDriver(values[width+1]).Float64()
		result = append(result, models.OutlierRow{
			Value:    value,
			Distance: distance,
			Row:      datasource.RowSnapshot(names[:width], values[:width]),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outlier rows: %w", err)
	}
	return result, nil
}

// tieBreakClause quotes the order keys and appends ctid, which is unique
// within a single snapshot of the table.
func tieBreakClause(keys []string) (string, error) {
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		quoted, err := quoteIdent(k)
		if err != nil {
			return "", err
		}
		parts = append(parts, quoted)
	}
	return strings.Join(append(parts, "ctid"), ", "), nil
}

// finite keeps non-null, finite values of a numeric expression. numeric and
// float8 both admit NaN, which turns AVG and STDDEV_POP into NaN and sorts
// above every bound; float8 also admits ±Infinity.
func finite(expr string) string {
	return fmt.Sprintf("%s::float8 NOT IN ('NaN'::float8, 'Infinity'::float8, '-Infinity'::float8)", expr)
}
