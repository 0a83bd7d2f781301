package services

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

const (
	// uniqueCardinalityRate is the cardinality (percent of filled rows) at
	// which a column is treated as an identifier.
	uniqueCardinalityRate = 95.0
	// categoricalCardinalityRate and categoricalMaxDistinct bound the
	// categorical classification.
	categoricalCardinalityRate = 10.0
	categoricalMaxDistinct     = 50

	// suspiciousFrequencyPercent is the share of filled rows one value may
	// take before it is reported.
	suspiciousFrequencyPercent = 50.0
	suspiciousFrequencyMinRows = 100

	patternViolationSeverity = 0.7
)

// Name fragments, matched against the lowercased column name.
var (
	valueNameHints = []string{"value", "valor", "amount", "price", "preco", "total", "qtd", "quantity"}
	idNameHints    = []string{"uuid", "guid"}
	geoNameTokens  = map[string]bool{"lat": true, "latitude": true, "lon": true, "lng": true, "longitude": true}
)

// ColumnFacts are the inputs to classification.
type ColumnFacts struct {
	Name            string
	Family          datasource.TypeFamily
	DistinctCount   int64
	CardinalityRate float64
}

// ClassifyColumn assigns a semantic class using the first rule that fires:
// date type or name, near-unique values, identifier names, boolean type,
// numeric type (geographic when named like a coordinate), low cardinality,
// text type.
func ClassifyColumn(f ColumnFacts) models.TypeClassification {
	name := strings.ToLower(f.Name)
	dateNamed := isDateNamed(name)
	valueNamed := isValueNamed(name)

	switch {
	case f.Family == datasource.FamilyDateTime || dateNamed:
		return models.ClassificationDateTime
	case f.CardinalityRate >= uniqueCardinalityRate && !valueNamed:
		return models.ClassificationUniqueID
	case isIDNamed(name) && !valueNamed:
		return models.ClassificationUniqueID
	case f.Family == datasource.FamilyBoolean:
		return models.ClassificationBoolean
	case f.Family == datasource.FamilyNumeric:
		if isGeoNamed(name) {
			return models.ClassificationGeographic
		}
		return models.ClassificationNumeric
	case f.CardinalityRate <= categoricalCardinalityRate && f.DistinctCount <= categoricalMaxDistinct:
		return models.ClassificationCategorical
	case f.Family == datasource.FamilyText:
		return models.ClassificationText
	default:
		return models.ClassificationOther
	}
}

func isDateNamed(name string) bool {
	return strings.Contains(name, "date") ||
		strings.Contains(name, "timestamp") ||
		strings.HasSuffix(name, "_at") ||
		strings.HasPrefix(name, "dt_")
}

func isValueNamed(name string) bool {
	if strings.HasPrefix(name, "vl_") {
		return true
	}
	for _, hint := range valueNameHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

func isIDNamed(name string) bool {
	if name == "id" || strings.HasPrefix(name, "id_") || strings.HasSuffix(name, "_id") {
		return true
	}
	for _, hint := range idNameHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

func isGeoNamed(name string) bool {
	for _, token := range strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		if geoNameTokens[token] {
			return true
		}
	}
	return false
}

// DetectAnomalies inspects the top values of a column. Only the most
// frequent value is considered.
func DetectAnomalies(columnName string, filled int64, top []models.ValueFrequency) []models.Anomaly {
	if len(top) == 0 {
		return nil
	}
	first := top[0]

	var anomalies []models.Anomaly
	if first.Percentage > suspiciousFrequencyPercent && filled > suspiciousFrequencyMinRows {
		anomalies = append(anomalies, models.Anomaly{
			Type:        models.AnomalySuspiciousFrequency,
			Severity:    first.Percentage / 100,
			Value:       first.Value,
			Description: fmt.Sprintf("value %q occupies %.1f%% of %d filled rows", first.Value, first.Percentage, filled),
		})
	}

	if strings.Contains(strings.ToLower(columnName), "email") && !looksLikeEmail(first.Value) {
		anomalies = append(anomalies, models.Anomaly{
			Type:        models.AnomalyPatternViolation,
			Severity:    patternViolationSeverity,
			Value:       first.Value,
			Description: fmt.Sprintf("most frequent value %q of an email column has no @ or domain dot", first.Value),
		})
	}

	return anomalies
}

// looksLikeEmail requires an @ and a dot that is neither the first nor the
// last character.
func looksLikeEmail(v string) bool {
	if !strings.Contains(v, "@") {
		return false
	}
	if len(v) < 3 {
		return false
	}
	return strings.Contains(v[1:len(v)-1], ".")
}

// Recommend returns a short remediation hint for a profiled column.
func Recommend(p *models.ColumnProfile) string {
	switch {
	case p.TotalCount == 0:
		return "empty table: nothing to assess"
	case p.CompletenessRate == 100 && p.Classification != models.ClassificationBoolean:
		return recommendFor(p) + "; always filled, treat as required field"
	default:
		return recommendFor(p)
	}
}

func recommendFor(p *models.ColumnProfile) string {
	switch p.Classification {
	case models.ClassificationUniqueID:
		if p.CardinalityRate < 100 {
			return fmt.Sprintf("identifier with %.1f%% unique values: check for duplicates", p.CardinalityRate)
		}
		return "identifier: candidate key"
	case models.ClassificationNumeric, models.ClassificationGeographic:
		if p.Numeric != nil && p.Numeric.IQROutlierCount > 0 {
			return fmt.Sprintf("numeric with %d IQR outliers: review extreme values", p.Numeric.IQROutlierCount)
		}
		return "numeric: distribution within expected range"
	case models.ClassificationDateTime:
		if p.CompletenessRate < 50 {
			return "date mostly empty: check whether it is set by a workflow step"
		}
		return "date: validate range against business calendar"
	case models.ClassificationBoolean:
		if p.Boolean != nil {
			diff := p.Boolean.TruePercentage - p.Boolean.FalsePercentage
			if diff > -20 && diff < 20 {
				return "balanced boolean"
			}
			return "skewed boolean: confirm the rare state is expected"
		}
		return "boolean"
	case models.ClassificationCategorical:
		for _, a := range p.Anomalies {
			if a.Type == models.AnomalySuspiciousFrequency {
				return "investigate concentrated values"
			}
		}
		return "categorical: consider a lookup table or check constraint"
	case models.ClassificationText:
		for _, a := range p.Anomalies {
			if a.Type == models.AnomalyPatternViolation {
				return "values do not match the expected format: add validation"
			}
		}
		return "free text: review format conformity"
	default:
		return "no specific recommendation"
	}
}
