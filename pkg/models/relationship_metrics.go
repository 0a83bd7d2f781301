package models

import "math"

// CorrelationStrength is the qualitative label of |r|.
type CorrelationStrength string

const (
	CorrelationVeryStrong CorrelationStrength = "very_strong"
	CorrelationStrong     CorrelationStrength = "strong"
	CorrelationModerate   CorrelationStrength = "moderate"
	CorrelationWeak       CorrelationStrength = "weak"
	CorrelationVeryWeak   CorrelationStrength = "very_weak"
)

// StrengthOf maps a Pearson coefficient to its strength label.
func StrengthOf(coefficient float64) CorrelationStrength {
	abs := math.Abs(coefficient)
	switch {
	case abs >= 0.9:
		return CorrelationVeryStrong
	case abs >= 0.7:
		return CorrelationStrong
	case abs >= 0.5:
		return CorrelationModerate
	case abs >= 0.3:
		return CorrelationWeak
	default:
		return CorrelationVeryWeak
	}
}

// Correlation is the Pearson coefficient between two numeric columns.
type Correlation struct {
	ColumnA     string              `json:"column_a"`
	ColumnB     string              `json:"column_b"`
	Coefficient float64             `json:"coefficient"`
	Strength    CorrelationStrength `json:"strength"`
	SampleSize  int                 `json:"sample_size"`
}

// StatusDateRelationship reports rows whose flag says "active" while the
// paired date column is empty.
type StatusDateRelationship struct {
	StatusColumn            string   `json:"status_column"`
	DateColumn              string   `json:"date_column"`
	ActiveCount             int64    `json:"active_count"`
	InconsistentCount       int64    `json:"inconsistent_count"`
	InconsistencyPercentage float64  `json:"inconsistency_percentage"`
	ActiveValues            []string `json:"active_values,omitempty"`
	CommonRadical           string   `json:"common_radical"`
}

// RelationshipMetrics aggregates cross-column signals for one table.
type RelationshipMetrics struct {
	StatusDate   []StatusDateRelationship `json:"status_date"`
	Correlations []Correlation            `json:"correlations"`
	Warnings     []string                 `json:"warnings,omitempty"`
}
