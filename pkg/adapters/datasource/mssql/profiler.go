package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	mssqldb "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

const (
	outlierValueAlias    = "[__profiler_value]"
	outlierDistanceAlias = "[__profiler_distance]"
)

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// ColumnCounts returns total, null and distinct counts. Types that cannot be
// compared (text, ntext, image, xml) are retried with an NVARCHAR cast.
func (a *Adapter) ColumnCounts(ctx context.Context, ref models.TableRef, column string) (*datasource.ColumnCounts, error) {
	table, col, err := tableAndColumn(ref, column)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	var c datasource.ColumnCounts
	query := fmt.Sprintf(`SELECT COUNT_BIG(*), COUNT_BIG(*) - COUNT_BIG(%[1]s), COUNT_BIG(DISTINCT %[1]s) FROM %[2]s`, col, table)
	if err := a.queryRow(ctx, query, nil, &c.Total, &c.Nulls, &c.Distinct); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("count column values: %w", err)
		}
		a.logger.Debug("Distinct count failed, retrying with NVARCHAR cast",
			zap.String("table", ref.String()),
			zap.String("column", column),
			zap.Error(err))

		retryQuery := fmt.Sprintf(`SELECT COUNT_BIG(*), COUNT_BIG(*) - COUNT_BIG(%[1]s), COUNT_BIG(DISTINCT CAST(%[1]s AS NVARCHAR(4000))) FROM %[2]s`, col, table)
		if retryErr := a.queryRow(ctx, retryQuery, nil, &c.Total, &c.Nulls, &c.Distinct); retryErr != nil {
			return nil, fmt.Errorf("count column values: %w", retryErr)
		}
	}
	return &c, nil
}

// NumericSummary runs the aggregates, then PERCENTILE_CONT as a window
// function since SQL Server has no ordered-set aggregate form.
func (a *Adapter) NumericSummary(ctx context.Context, ref models.TableRef, column string) (*datasource.NumericSummary, error) {
	table, col, err := tableAndColumn(ref, column)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	v := fmt.Sprintf("CAST(%s AS FLOAT)", col)
	query := fmt.Sprintf(`SELECT COUNT_BIG(%[1]s), MIN(%[1]s), MAX(%[1]s), AVG(%[1]s), STDEVP(%[1]s) FROM %[2]s`, v, table)

	var s datasource.NumericSummary
	var minV, maxV, mean, stddev sql.NullFloat64
	if err := a.queryRow(ctx, query, nil, &s.Count, &minV, &maxV, &mean, &stddev); err != nil {
		return nil, fmt.Errorf("numeric summary: %w", err)
	}
	s.Min, s.Max, s.Mean, s.StdDev = nullFloat(minV), nullFloat(maxV), nullFloat(mean), nullFloat(stddev)
	if s.Count == 0 {
		return &s, nil
	}

	percentiles := fmt.Sprintf(`
		SELECT TOP (1)
			PERCENTILE_CONT(0.25) WITHIN GROUP (ORDER BY v) OVER (),
			PERCENTILE_CONT(0.50) WITHIN GROUP (ORDER BY v) OVER (),
			PERCENTILE_CONT(0.75) WITHIN GROUP (ORDER BY v) OVER (),
			PERCENTILE_CONT(0.90) WITHIN GROUP (ORDER BY v) OVER (),
			PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY v) OVER ()
		FROM (SELECT %[1]s AS v FROM %[2]s WHERE %[3]s IS NOT NULL) s
	`, v, table, col)

	var p25, p50, p75, p90, p95 sql.NullFloat64
	if err := a.queryRow(ctx, percentiles, nil, &p25, &p50, &p75, &p90, &p95); err != nil {
		return nil, fmt.Errorf("numeric percentiles: %w", err)
	}
	s.P25, s.P50, s.P75, s.P90, s.P95 = nullFloat(p25), nullFloat(p50), nullFloat(p75), nullFloat(p90), nullFloat(p95)
	return &s, nil
}

// Histogram buckets values with FLOOR over a fixed width.
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
		if err := a.queryRow(ctx, fmt.Sprintf(`SELECT COUNT_BIG(%s) FROM %s`, col, table), nil, &n); err != nil {
			return nil, fmt.Errorf("histogram: %w", err)
		}
		counts[0] = n
		return datasource.BuildHistogram(lo, hi, buckets, counts), nil
	}

	query := fmt.Sprintf(`
		SELECT bucket, COUNT_BIG(*)
		FROM (
			SELECT CAST(FLOOR((CAST(%[1]s AS FLOAT) - @lo) / @width) AS INT) AS bucket
			FROM %[2]s
			WHERE %[1]s IS NOT NULL
		) s
		GROUP BY bucket
		ORDER BY bucket
	`, col, table)

	rows, err := a.query(ctx, query,
		sql.Named("lo", lo),
		sql.Named("width", (hi-lo)/float64(buckets)))
	if err != nil {
		return nil, fmt.Errorf("histogram: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var n int64
		if err := rows.Scan(&idx, &n); err != nil {
			return nil, fmt.Errorf("scan histogram bucket: %w", err)
		}
		counts[idx] += n
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

	query := fmt.Sprintf(`SELECT COUNT_BIG(*) FROM %[2]s WHERE CAST(%[1]s AS FLOAT) < @lower OR CAST(%[1]s AS FLOAT) > @upper`, col, table)
	var n int64
	if err := a.queryRow(ctx, query, []any{sql.Named("lower", lower), sql.Named("upper", upper)}, &n); err != nil {
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
		SELECT TOP (@limit) CAST(%[1]s AS FLOAT)
		FROM %[2]s
		WHERE CAST(%[1]s AS FLOAT) < @lower OR CAST(%[1]s AS FLOAT) > @upper
		ORDER BY ABS(CAST(%[1]s AS FLOAT) - (@lower + @upper) / 2) DESC
	`, col, table)

	rows, err := a.query(ctx, query,
		sql.Named("limit", limit),
		sql.Named("lower", lower),
		sql.Named("upper", upper))
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

	var minV, maxV sql.NullTime
	query := fmt.Sprintf(`SELECT MIN(CAST(%[1]s AS DATETIME2)), MAX(CAST(%[1]s AS DATETIME2)) FROM %[2]s`, col, table)
	if err := a.queryRow(ctx, query, nil, &minV, &maxV); err != nil {
		return nil, fmt.Errorf("date range: %w", err)
	}
	s := datasource.DateSummary{Min: nullTime(minV), Max: nullTime(maxV)}

	if !timeline || s.Min == nil {
		return &s, nil
	}

	timelineQuery := fmt.Sprintf(`
		SELECT m, COUNT_BIG(*)
		FROM (
			SELECT DATEFROMPARTS(YEAR(%[1]s), MONTH(%[1]s), 1) AS m
			FROM %[2]s
			WHERE %[1]s IS NOT NULL
		) s
		GROUP BY m
		ORDER BY m
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

	length := fmt.Sprintf("LEN(CAST(%s AS NVARCHAR(MAX)))", col)
	query := fmt.Sprintf(`
		SELECT
			COALESCE(MIN(CAST(%[1]s AS BIGINT)), 0),
			COALESCE(MAX(CAST(%[1]s AS BIGINT)), 0),
			COALESCE(AVG(CAST(%[1]s AS FLOAT)), 0)
		FROM %[2]s
		WHERE %[3]s IS NOT NULL
	`, length, table, col)

	var s models.TextStats
	if err := a.queryRow(ctx, query, nil, &s.MinLength, &s.MaxLength, &s.AvgLength); err != nil {
		return nil, fmt.Errorf("text lengths: %w", err)
	}
	return &s, nil
}

// BooleanCounts returns the true/false/null split of a BIT column.
func (a *Adapter) BooleanCounts(ctx context.Context, ref models.TableRef, column string) (*datasource.BooleanCounts, error) {
	table, col, err := tableAndColumn(ref, column)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT
			COUNT_BIG(CASE WHEN %[1]s = 1 THEN 1 END),
			COUNT_BIG(CASE WHEN %[1]s = 0 THEN 1 END),
			COUNT_BIG(CASE WHEN %[1]s IS NULL THEN 1 END)
		FROM %[2]s
	`, col, table)

	var c datasource.BooleanCounts
	if err := a.queryRow(ctx, query, nil, &c.True, &c.False, &c.Nulls); err != nil {
		return nil, fmt.Errorf("boolean counts: %w", err)
	}
	return &c, nil
}

// TopValues returns the most frequent non-null values, ties broken by value.
func (a *Adapter) TopValues(ctx context.Context, ref models.TableRef, column string, limit int) ([]datasource.ValueCount, error) {
	table, col, err := tableAndColumn(ref, column)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT TOP (@limit) v, COUNT_BIG(*) AS cnt
		FROM (SELECT CAST(%[1]s AS NVARCHAR(4000)) AS v FROM %[2]s WHERE %[1]s IS NOT NULL) s
		GROUP BY v
		ORDER BY cnt DESC, v
	`, col, table)

	rows, err := a.query(ctx, query, sql.Named("limit", limit))
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
	col, err := quoteName(column)
	if err != nil {
		return nil, err
	}
	sample, err := a.SampleQuery(ref, strategy, []string{column})
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT TOP (@limit) CAST(s.%[1]s AS NVARCHAR(4000)) FROM (%[2]s) s WHERE s.%[1]s IS NOT NULL`, col, sample)
	rows, err := a.query(ctx, query, sql.Named("limit", limit))
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
	colA, err := quoteName(columnA)
	if err != nil {
		return nil, err
	}
	colB, err := quoteName(columnB)
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
		SELECT TOP (@limit) CAST(s.%[1]s AS FLOAT), CAST(s.%[2]s AS FLOAT)
		FROM (%[3]s) s
		WHERE s.%[1]s IS NOT NULL AND s.%[2]s IS NOT NULL
	`, colA, colB, sample)

	rows, err := a.query(ctx, query, sql.Named("limit", limit))
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
// Text flags are compared trimmed and lowercased against named parameters.
func (a *Adapter) StatusDateCounts(ctx context.Context, ref models.TableRef, flag datasource.FlagColumn, dateColumn string) (*datasource.StatusDateCounts, error) {
	table, flagCol, err := tableAndColumn(ref, flag.Name)
	if err != nil {
		return nil, err
	}
	dateCol, err := quoteName(dateColumn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.opts.ScanContext(ctx)
	defer cancel()

	var c datasource.StatusDateCounts
	if flag.IsBoolean {
		query := fmt.Sprintf(`
			SELECT
				COUNT_BIG(CASE WHEN %[1]s = 1 THEN 1 END),
				COUNT_BIG(CASE WHEN %[1]s = 1 AND %[2]s IS NULL THEN 1 END)
			FROM %[3]s
		`, flagCol, dateCol, table)
		if err := a.queryRow(ctx, query, nil, &c.Active, &c.Inconsistent); err != nil {
			return nil, fmt.Errorf("status/date counts: %w", err)
		}
		if c.Active > 0 {
			c.ActiveSamples = []string{"1"}
		}
		return &c, nil
	}

	if len(flag.ActiveValues) == 0 {
		return &c, nil
	}

	placeholders := make([]string, len(flag.ActiveValues))
	args := make([]any, len(flag.ActiveValues))
	for i, v := range flag.ActiveValues {
		name := "v" + strconv.Itoa(i)
		placeholders[i] = "@" + name
		args[i] = sql.Named(name, v)
	}
	flagText := fmt.Sprintf("CAST(%s AS NVARCHAR(255))", flagCol)
	active := fmt.Sprintf("LOWER(LTRIM(RTRIM(%s))) IN (%s)", flagText, strings.Join(placeholders, ", "))

	query := fmt.Sprintf(`
		SELECT
			COUNT_BIG(CASE WHEN %[1]s THEN 1 END),
			COUNT_BIG(CASE WHEN %[1]s AND %[2]s IS NULL THEN 1 END)
		FROM %[3]s
	`, active, dateCol, table)
	if err := a.queryRow(ctx, query, args, &c.Active, &c.Inconsistent); err != nil {
		return nil, fmt.Errorf("status/date counts: %w", err)
	}
	if c.Active == 0 {
		return &c, nil
	}

	samplesQuery := fmt.Sprintf(`SELECT DISTINCT TOP (5) %[1]s AS v FROM %[2]s WHERE %[3]s ORDER BY v`, flagText, table, active)
	rows, err := a.query(ctx, samplesQuery, args...)
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
// bounds, most extreme first, with ties ordered by OrderKeys.
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

	v := fmt.Sprintf("CAST(%s AS FLOAT)", col)
	query := fmt.Sprintf(`
		SELECT *, %[1]s AS %[4]s, ABS(%[1]s - @mean) AS %[5]s
		FROM %[2]s
		WHERE %[1]s < @lower OR %[1]s > @upper
		ORDER BY %[5]s DESC, %[3]s
		OFFSET @offset ROWS FETCH NEXT @limit ROWS ONLY
	`, v, table, tieBreak, outlierValueAlias, outlierDistanceAlias)

	rows, err := a.query(ctx, query,
		sql.Named("mean", q.Mean),
		sql.Named("lower", q.Lower),
		sql.Named("upper", q.Upper),
		sql.Named("offset", q.Offset),
		sql.Named("limit", q.Limit))
	if err != nil {
		return nil, fmt.Errorf("outlier rows: %w", err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read outlier columns: %w", err)
	}
	names := make([]string, len(colTypes))
	for i, ct := range colTypes {
		names[i] = ct.Name()
	}
	width := len(names) - 2

	var result []models.OutlierRow
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("read outlier row: %w", err)
		}
		for i := 0; i < width; i++ {
			values[i] = normalizeValue(colTypes[i].DatabaseTypeName(), values[i])
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

// tieBreakClause quotes the order keys. SQL Server has no stable physical
// row id, so without keys ties keep whatever order the plan produces.
func tieBreakClause(keys []string) (string, error) {
	if len(keys) == 0 {
		return "(SELECT NULL)", nil
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		quoted, err := quoteName(k)
		if err != nil {
			return "", err
		}
		parts[i] = quoted
	}
	return strings.Join(parts, ", "), nil
}

// normalizeValue converts driver encodings that would otherwise surface as
// raw bytes: decimals arrive as their text form, GUIDs in mixed-endian order.
func normalizeValue(typeName string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	switch strings.ToUpper(typeName) {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
		return string(b)
	case "UNIQUEIDENTIFIER":
		var id mssqldb.UniqueIdentifier
		if err := id.Scan(b); err == nil {
			return id.String()
		}
	}
	return v
}
