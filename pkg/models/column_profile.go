package models

import "time"

// TypeClassification is the semantic class assigned to a column.
// It selects which type-specific statistics are computed.
type TypeClassification string

const (
	ClassificationUniqueID    TypeClassification = "unique_id"
	ClassificationNumeric     TypeClassification = "numeric"
	ClassificationDateTime    TypeClassification = "datetime"
	ClassificationBoolean     TypeClassification = "boolean"
	ClassificationCategorical TypeClassification = "categorical"
	ClassificationText        TypeClassification = "text"
	ClassificationGeographic  TypeClassification = "geographic"
	ClassificationOther       TypeClassification = "other"
)

// Anomaly types raised from top-value inspection.
const (
	AnomalySuspiciousFrequency = "suspicious_frequency"
	AnomalyPatternViolation    = "pattern_violation"
)

// ColumnProfile holds everything computed for a single column.
// Stat blocks are nil when they do not apply to the classification or when
// the underlying query failed (see Warnings).
type ColumnProfile struct {
	ColumnName       string             `json:"column_name"`
	DataType         string             `json:"data_type"`
	TotalCount       int64              `json:"total_count"`
	NullCount        int64              `json:"null_count"`
	DistinctCount    int64              `json:"distinct_count"`
	CompletenessRate float64            `json:"completeness_rate"`
	CardinalityRate  float64            `json:"cardinality_rate"`
	Classification   TypeClassification `json:"classification"`

	Numeric *NumericStats `json:"numeric,omitempty"`
	Date    *DateStats    `json:"date,omitempty"`
	Text    *TextStats    `json:"text,omitempty"`
	Boolean *BooleanStats `json:"boolean,omitempty"`

	TopValues      []ValueFrequency `json:"top_values,omitempty"`
	Anomalies      []Anomaly        `json:"anomalies,omitempty"`
	Recommendation string           `json:"recommendation,omitempty"`
	Patterns       []PatternMatch   `json:"patterns,omitempty"`
	Outliers       *OutlierSet      `json:"outliers,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// FilledCount is the number of non-null values.
func (c *ColumnProfile) FilledCount() int64 {
	return c.TotalCount - c.NullCount
}

// NumericStats is the stat block for numeric and geographic columns.
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P25    float64 `json:"p25"`
	P50    float64 `json:"p50"`
	P75    float64 `json:"p75"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`

	Histogram []HistogramBucket `json:"histogram,omitempty"`

	// IQR-based outlier summary: values outside [P25 - 1.5*IQR, P75 + 1.5*IQR].
	IQRLowerBound    float64   `json:"iqr_lower_bound"`
	IQRUpperBound    float64   `json:"iqr_upper_bound"`
	IQROutlierCount  int64     `json:"iqr_outlier_count"`
	IQROutlierSample []float64 `json:"iqr_outlier_sample,omitempty"`
}

// IQR returns the interquartile range P75 - P25.
func (n *NumericStats) IQR() float64 {
	return n.P75 - n.P25
}

// HistogramBucket is one linear bucket [Lower, Upper) of a numeric histogram.
// The last bucket is closed on the right.
type HistogramBucket struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int64   `json:"count"`
}

// DateStats is the stat block for date/time columns.
type DateStats struct {
	Min      *time.Time       `json:"min,omitempty"`
	Max      *time.Time       `json:"max,omitempty"`
	Timeline []TimelineBucket `json:"timeline,omitempty"`
}

// TimelineBucket counts rows per calendar month.
type TimelineBucket struct {
	Month time.Time `json:"month"`
	Count int64     `json:"count"`
}

// TextStats is the stat block for text columns.
type TextStats struct {
	MinLength int64   `json:"min_length"`
	MaxLength int64   `json:"max_length"`
	AvgLength float64 `json:"avg_length"`
}

// BooleanStats is the stat block for boolean columns.
type BooleanStats struct {
	TrueCount       int64   `json:"true_count"`
	FalseCount      int64   `json:"false_count"`
	NullCount       int64   `json:"null_count"`
	TruePercentage  float64 `json:"true_percentage"`
	FalsePercentage float64 `json:"false_percentage"`
	NullPercentage  float64 `json:"null_percentage"`
}

// ValueFrequency is one entry of a top-values list.
type ValueFrequency struct {
	Value      string  `json:"value"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"` // share of filled rows (0-100)
}

// Anomaly is a data-quality signal raised from a column's value distribution.
type Anomaly struct {
	Type        string  `json:"type"`
	Severity    float64 `json:"severity"` // 0.0-1.0
	Value       string  `json:"value,omitempty"`
	Description string  `json:"description"`
}
