package services

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

// mockTable is an in-memory table. Rows hold nil, int, int64, float64,
// string, bool or time.Time cells in column order.
type mockTable struct {
	columns []datasource.ColumnMetadata
	rows    [][]any
	stats   *datasource.TableStatistics
}

// mockDatasource answers every profiling query by computing it over
// in-memory rows. Failures are injected per method ("NumericSummary") or
// per method and column ("NumericSummary:amount").
type mockDatasource struct {
	tables      map[string]*mockTable
	fks         []datasource.ForeignKeyMetadata
	supportsFKs bool
	failures    map[string]error

	mu        sync.Mutex
	calls     []string
	orderKeys [][]string
}

func newMockDatasource() *mockDatasource {
	return &mockDatasource{
		tables:      make(map[string]*mockTable),
		supportsFKs: true,
		failures:    make(map[string]error),
	}
}

func (m *mockDatasource) addTable(schema, name string, columns []datasource.ColumnMetadata, rows [][]any) *mockTable {
	for i := range columns {
		columns[i].OrdinalPosition = i + 1
	}
	t := &mockTable{columns: columns, rows: rows}
	m.tables[schema+"."+name] = t
	return t
}

func (m *mockDatasource) record(method, column string) error {
	m.mu.Lock()
	m.calls = append(m.calls, method+":"+column)
	m.mu.Unlock()

	if err := m.failures[method+":"+column]; err != nil {
		return err
	}
	return m.failures[method]
}

func (m *mockDatasource) callCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if strings.HasPrefix(c, method+":") {
			n++
		}
	}
	return n
}

func (m *mockDatasource) table(ref models.TableRef) (*mockTable, error) {
	schema := ref.Schema
	if schema == "" {
		schema = "public"
	}
	t, ok := m.tables[schema+"."+ref.Table]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", ref, apperrors.ErrNotFound)
	}
	return t, nil
}

func (t *mockTable) column(name string) (int, error) {
	for i, c := range t.columns {
		if c.ColumnName == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column %s: %w", name, apperrors.ErrNotFound)
}

func (m *mockDatasource) values(ref models.TableRef, column string) ([]any, error) {
	t, err := m.table(ref)
	if err != nil {
		return nil, err
	}
	idx, err := t.column(column)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[idx]
	}
	return out, nil
}

func (m *mockDatasource) floats(ref models.TableRef, column string) ([]float64, error) {
	vals, err := m.values(ref, column)
	if err != nil {
		return nil, err
	}
	var out []float64
	for _, v := range vals {
		if f, ok := mockFloat(v); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func mockFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func mockText(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(t)
	}
}

// ConnectionTester

func (m *mockDatasource) TestConnection(ctx context.Context) error {
	return m.record("TestConnection", "")
}

func (m *mockDatasource) Close() error { return nil }

func (m *mockDatasource) Type() string { return "mock" }

// SchemaDiscoverer

func (m *mockDatasource) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	if err := m.record("DiscoverTables", ""); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.tables))
	for k := range m.tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tables := make([]datasource.TableMetadata, 0, len(keys))
	for _, k := range keys {
		schema, name, _ := strings.Cut(k, ".")
		tables = append(tables, datasource.TableMetadata{
			SchemaName: schema,
			TableName:  name,
			RowCount:   int64(len(m.tables[k].rows)),
		})
	}
	return tables, nil
}

func (m *mockDatasource) DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]datasource.ColumnMetadata, error) {
	if err := m.record("DiscoverColumns", tableName); err != nil {
		return nil, err
	}
	t, err := m.table(models.TableRef{Schema: schemaName, Table: tableName})
	if err != nil {
		return nil, err
	}
	cols := make([]datasource.ColumnMetadata, len(t.columns))
	copy(cols, t.columns)
	return cols, nil
}

func (m *mockDatasource) DiscoverForeignKeys(ctx context.Context) ([]datasource.ForeignKeyMetadata, error) {
	if err := m.record("DiscoverForeignKeys", ""); err != nil {
		return nil, err
	}
	return m.fks, nil
}

func (m *mockDatasource) SupportsForeignKeys() bool { return m.supportsFKs }

// TableProfiler

func (m *mockDatasource) TableStatistics(ctx context.Context, ref models.TableRef) (*datasource.TableStatistics, error) {
	if err := m.record("TableStatistics", ""); err != nil {
		return nil, err
	}
	t, err := m.table(ref)
	if err != nil {
		return nil, err
	}
	if t.stats != nil {
		return t.stats, nil
	}
	stats := &datasource.TableStatistics{RowCount: int64(len(t.rows))}
	for _, c := range t.columns {
		if c.IsPrimaryKey {
			stats.PrimaryKeyColumn = c.ColumnName
		}
	}
	return stats, nil
}

func (m *mockDatasource) ColumnCounts(ctx context.Context, ref models.TableRef, column string) (*datasource.ColumnCounts, error) {
	if err := m.record("ColumnCounts", column); err != nil {
		return nil, err
	}
	vals, err := m.values(ref, column)
	if err != nil {
		return nil, err
	}
	counts := &datasource.ColumnCounts{Total: int64(len(vals))}
	distinct := make(map[string]bool)
	for _, v := range vals {
		if v == nil {
			counts.Nulls++
			continue
		}
		distinct[mockText(v)] = true
	}
	counts.Distinct = int64(len(distinct))
	return counts, nil
}

func (m *mockDatasource) NumericSummary(ctx context.Context, ref models.TableRef, column string) (*datasource.NumericSummary, error) {
	if err := m.record("NumericSummary", column); err != nil {
		return nil, err
	}
	xs, err := m.floats(ref, column)
	if err != nil {
		return nil, err
	}
	summary := &datasource.NumericSummary{Count: int64(len(xs))}
	if len(xs) == 0 {
		return summary, nil
	}

	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	std := math.Sqrt(sq / float64(len(xs)))

	ptr := func(v float64) *float64 { return &v }
	summary.Min = ptr(sorted[0])
	summary.Max = ptr(sorted[len(sorted)-1])
	summary.Mean = ptr(mean)
	summary.StdDev = ptr(std)
	summary.P25 = ptr(percentileCont(sorted, 0.25))
	summary.P50 = ptr(percentileCont(sorted, 0.50))
	summary.P75 = ptr(percentileCont(sorted, 0.75))
	summary.P90 = ptr(percentileCont(sorted, 0.90))
	summary.P95 = ptr(percentileCont(sorted, 0.95))
	return summary, nil
}

// percentileCont interpolates linearly between closest ranks.
func percentileCont(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func (m *mockDatasource) Histogram(ctx context.Context, ref models.TableRef, column string, lo, hi float64, buckets int) ([]models.HistogramBucket, error) {
	if err := m.record("Histogram", column); err != nil {
		return nil, err
	}
	xs, err := m.floats(ref, column)
	if err != nil {
		return nil, err
	}
	counts := make(map[int]int64)
	width := (hi - lo) / float64(buckets)
	for _, x := range xs {
		idx := 0
		if width > 0 {
			idx = int(math.Floor((x - lo) / width))
		}
		counts[idx]++
	}
	return datasource.BuildHistogram(lo, hi, buckets, counts), nil
}

func (m *mockDatasource) CountOutside(ctx context.Context, ref models.TableRef, column string, lower, upper float64) (int64, error) {
	if err := m.record("CountOutside", column); err != nil {
		return 0, err
	}
	xs, err := m.floats(ref, column)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, x := range xs {
		if x < lower || x > upper {
			n++
		}
	}
	return n, nil
}

func (m *mockDatasource) SampleOutside(ctx context.Context, ref models.TableRef, column string, lower, upper float64, limit int) ([]float64, error) {
	if err := m.record("SampleOutside", column); err != nil {
		return nil, err
	}
	xs, err := m.floats(ref, column)
	if err != nil {
		return nil, err
	}
	var out []float64
	for _, x := range xs {
		if (x < lower || x > upper) && len(out) < limit {
			out = append(out, x)
		}
	}
	return out, nil
}

func (m *mockDatasource) DateSummary(ctx context.Context, ref models.TableRef, column string, timeline bool) (*datasource.DateSummary, error) {
	if err := m.record("DateSummary", column); err != nil {
		return nil, err
	}
	vals, err := m.values(ref, column)
	if err != nil {
		return nil, err
	}
	summary := &datasource.DateSummary{}
	months := make(map[time.Time]int64)
	for _, v := range vals {
		ts, ok := v.(time.Time)
		if !ok {
			continue
		}
		if summary.Min == nil || ts.Before(*summary.Min) {
			tsCopy := ts
			summary.Min = &tsCopy
		}
		if summary.Max == nil || ts.After(*summary.Max) {
			tsCopy := ts
			summary.Max = &tsCopy
		}
		months[time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)]++
	}
	if timeline {
		for month, n := range months {
			summary.Timeline = append(summary.Timeline, models.TimelineBucket{Month: month, Count: n})
		}
		sort.Slice(summary.Timeline, func(i, j int) bool {
			return summary.Timeline[i].Month.Before(summary.Timeline[j].Month)
		})
	}
	return summary, nil
}

func (m *mockDatasource) TextLengths(ctx context.Context, ref models.TableRef, column string) (*models.TextStats, error) {
	if err := m.record("TextLengths", column); err != nil {
		return nil, err
	}
	vals, err := m.values(ref, column)
	if err != nil {
		return nil, err
	}
	stats := &models.TextStats{}
	var total, n int64
	for _, v := range vals {
		if v == nil {
			continue
		}
		l := int64(len([]rune(mockText(v))))
		if n == 0 || l < stats.MinLength {
			stats.MinLength = l
		}
		if l > stats.MaxLength {
			stats.MaxLength = l
		}
		total += l
		n++
	}
	if n > 0 {
		stats.AvgLength = float64(total) / float64(n)
	}
	return stats, nil
}

func (m *mockDatasource) BooleanCounts(ctx context.Context, ref models.TableRef, column string) (*datasource.BooleanCounts, error) {
	if err := m.record("BooleanCounts", column); err != nil {
		return nil, err
	}
	vals, err := m.values(ref, column)
	if err != nil {
		return nil, err
	}
	counts := &datasource.BooleanCounts{}
	for _, v := range vals {
		switch v {
		case nil:
			counts.Nulls++
		case true:
			counts.True++
		default:
			counts.False++
		}
	}
	return counts, nil
}

func (m *mockDatasource) TopValues(ctx context.Context, ref models.TableRef, column string, limit int) ([]datasource.ValueCount, error) {
	if err := m.record("TopValues", column); err != nil {
		return nil, err
	}
	vals, err := m.values(ref, column)
	if err != nil {
		return nil, err
	}
	freq := make(map[string]int64)
	for _, v := range vals {
		if v != nil {
			freq[mockText(v)]++
		}
	}
	top := make([]datasource.ValueCount, 0, len(freq))
	for v, n := range freq {
		top = append(top, datasource.ValueCount{Value: v, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Value < top[j].Value
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

func (m *mockDatasource) SampleValues(ctx context.Context, ref models.TableRef, column string, strategy models.SamplingStrategy, limit int) ([]string, error) {
	if err := m.record("SampleValues", column); err != nil {
		return nil, err
	}
	vals, err := m.values(ref, column)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, v := range vals {
		if v != nil && len(out) < limit {
			out = append(out, mockText(v))
		}
	}
	return out, nil
}

func (m *mockDatasource) NumericPairs(ctx context.Context, ref models.TableRef, columnA, columnB string, strategy models.SamplingStrategy, limit int) ([]datasource.NumericPair, error) {
	if err := m.record("NumericPairs", columnA+","+columnB); err != nil {
		return nil, err
	}
	as, err := m.values(ref, columnA)
	if err != nil {
		return nil, err
	}
	bs, err := m.values(ref, columnB)
	if err != nil {
		return nil, err
	}
	var pairs []datasource.NumericPair
	for i := range as {
		a, okA := mockFloat(as[i])
		b, okB := mockFloat(bs[i])
		if okA && okB && len(pairs) < limit {
			pairs = append(pairs, datasource.NumericPair{A: a, B: b})
		}
	}
	return pairs, nil
}

func (m *mockDatasource) StatusDateCounts(ctx context.Context, ref models.TableRef, flag datasource.FlagColumn, dateColumn string) (*datasource.StatusDateCounts, error) {
	if err := m.record("StatusDateCounts", flag.Name+","+dateColumn); err != nil {
		return nil, err
	}
	flags, err := m.values(ref, flag.Name)
	if err != nil {
		return nil, err
	}
	dates, err := m.values(ref, dateColumn)
	if err != nil {
		return nil, err
	}

	active := make(map[string]bool, len(flag.ActiveValues))
	for _, v := range flag.ActiveValues {
		active[v] = true
	}

	counts := &datasource.StatusDateCounts{}
	seen := make(map[string]bool)
	for i, f := range flags {
		if f == nil {
			continue
		}
		var isActive bool
		if flag.IsBoolean {
			isActive = f == true
		} else {
			isActive = active[strings.ToLower(strings.TrimSpace(mockText(f)))]
		}
		if !isActive {
			continue
		}
		counts.Active++
		if dates[i] == nil {
			counts.Inconsistent++
		}
		if text := mockText(f); !seen[text] && len(counts.ActiveSamples) < 5 {
			seen[text] = true
			counts.ActiveSamples = append(counts.ActiveSamples, text)
		}
	}
	return counts, nil
}

func (m *mockDatasource) OutlierRows(ctx context.Context, q datasource.OutlierQuery) ([]models.OutlierRow, error) {
	if err := m.record("OutlierRows", q.Column); err != nil {
		return nil, err
	}
	t, err := m.table(q.Table)
	if err != nil {
		return nil, err
	}
	idx, err := t.column(q.Column)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.orderKeys = append(m.orderKeys, q.OrderKeys)
	execution := len(m.orderKeys)
	m.mu.Unlock()

	keyIdx := make([]int, len(q.OrderKeys))
	for i, k := range q.OrderKeys {
		if keyIdx[i], err = t.column(k); err != nil {
			return nil, err
		}
	}

	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.ColumnName
	}

	type candidate struct {
		row models.OutlierRow
		raw []any
	}
	var found []candidate
	for _, r := range t.rows {
		v, ok := mockFloat(r[idx])
		if !ok || (v >= q.Lower && v <= q.Upper) {
			continue
		}
		found = append(found, candidate{
			row: models.OutlierRow{
				Value:    v,
				Distance: math.Abs(v - q.Mean),
				Row:      datasource.RowSnapshot(names, r),
			},
			raw: r,
		})
	}
	// Without order keys, ties come back in a different order on every
	// other execution, like a plan with no stable row id.
	if len(keyIdx) == 0 && execution%2 == 0 {
		slices.Reverse(found)
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].row.Distance != found[j].row.Distance {
			return found[i].row.Distance > found[j].row.Distance
		}
		for _, k := range keyIdx {
			if c := compareCells(found[i].raw[k], found[j].raw[k]); c != 0 {
				return c < 0
			}
		}
		return false
	})

	rows := make([]models.OutlierRow, len(found))
	for i, c := range found {
		rows[i] = c.row
	}

	if q.Offset >= len(rows) {
		return nil, nil
	}
	end := min(q.Offset+q.Limit, len(rows))
	return rows[q.Offset:end], nil
}

// compareCells orders NULLs last, numbers numerically and the rest as text.
func compareCells(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if x, ok := mockFloat(a); ok {
		if y, ok := mockFloat(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(mockText(a), mockText(b))
}

func (m *mockDatasource) lastOrderKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.orderKeys) == 0 {
		return nil
	}
	return m.orderKeys[len(m.orderKeys)-1]
}

func (m *mockDatasource) SampleQuery(ref models.TableRef, strategy models.SamplingStrategy, columns []string) (string, error) {
	return "SELECT * FROM " + ref.String(), nil
}

var _ datasource.Datasource = (*mockDatasource)(nil)

// Column helpers for test tables.

func intCol(name string) datasource.ColumnMetadata {
	return datasource.ColumnMetadata{ColumnName: name, DataType: "integer", Family: datasource.FamilyNumeric, IsNullable: true}
}

func floatCol(name string) datasource.ColumnMetadata {
	return datasource.ColumnMetadata{ColumnName: name, DataType: "double precision", Family: datasource.FamilyNumeric, IsNullable: true}
}

func textCol(name string) datasource.ColumnMetadata {
	return datasource.ColumnMetadata{ColumnName: name, DataType: "text", Family: datasource.FamilyText, IsNullable: true}
}

func boolCol(name string) datasource.ColumnMetadata {
	return datasource.ColumnMetadata{ColumnName: name, DataType: "boolean", Family: datasource.FamilyBoolean, IsNullable: true}
}

func dateCol(name string) datasource.ColumnMetadata {
	return datasource.ColumnMetadata{ColumnName: name, DataType: "timestamp", Family: datasource.FamilyDateTime, IsNullable: true}
}

func pkCol(name string) datasource.ColumnMetadata {
	c := intCol(name)
	c.IsPrimaryKey = true
	c.IsNullable = false
	return c
}
