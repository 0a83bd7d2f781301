package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

func findPattern(matches []models.PatternMatch, name string) *models.PatternMatch {
	for i := range matches {
		if matches[i].PatternName == name {
			return &matches[i]
		}
	}
	return nil
}

func TestPatternMatcher_EmailConformity(t *testing.T) {
	var values []string
	for i := 0; i < 80; i++ {
		values = append(values, fmt.Sprintf("user%d@example.com", i))
	}
	for i := 0; i < 20; i++ {
		values = append(values, fmt.Sprintf("broken-address-%d", i))
	}

	m := NewPatternMatcher(DefaultPatternRules(), 10_000, zap.NewNop())
	matches := m.Match(values)

	email := findPattern(matches, "email")
	require.NotNil(t, email)
	assert.InDelta(t, 80.0, email.ConformityPercentage, 1e-9)
	assert.Equal(t, 80, email.MatchingSamples)
	assert.Equal(t, 100, email.TotalSamples)
	assert.Len(t, email.SampleMatches, 5)
	assert.Len(t, email.SampleNonMatches, 5)
	assert.Equal(t, "broken-address-0", email.SampleNonMatches[0])
}

func TestPatternMatcher_OnlyPositiveSortedDescending(t *testing.T) {
	values := []string{
		"12345-678", "01310-100", "04538133", // CEP
		"2024-01-15", // ISO date
	}

	m := NewPatternMatcher(DefaultPatternRules(), 10_000, zap.NewNop())
	matches := m.Match(values)

	require.NotEmpty(t, matches)
	for i, match := range matches {
		assert.Greater(t, match.ConformityPercentage, 0.0)
		assert.LessOrEqual(t, match.ConformityPercentage, 100.0)
		if i > 0 {
			assert.GreaterOrEqual(t, matches[i-1].ConformityPercentage, match.ConformityPercentage)
		}
	}
	assert.Equal(t, "cep", matches[0].PatternName)
	assert.InDelta(t, 75.0, matches[0].ConformityPercentage, 1e-9)
	assert.Nil(t, findPattern(matches, "email"))
}

func TestPatternMatcher_DefaultRules(t *testing.T) {
	m := NewPatternMatcher(DefaultPatternRules(), 10_000, zap.NewNop())

	tests := []struct {
		rule  string
		value string
	}{
		{"email", "ana.silva@empresa.com.br"},
		{"cpf", "123.456.789-09"},
		{"cpf", "12345678909"},
		{"cnpj", "12.345.678/0001-95"},
		{"phone", "(11) 98765-4321"},
		{"phone", "+55 11 98765-4321"},
		{"cep", "01310-100"},
		{"alphanumeric_code", "SKU-1042"},
		{"url", "https://example.com/path?q=1"},
		{"uuid", "550e8400-e29b-41d4-a716-446655440000"},
		{"iso_date", "2024-02-29T13:45:00Z"},
		{"time", "23:59:59"},
	}

	for _, tt := range tests {
		t.Run(tt.rule+"/"+tt.value, func(t *testing.T) {
			match := findPattern(m.Match([]string{tt.value}), tt.rule)
			require.NotNil(t, match, "expected %q to match %s", tt.value, tt.rule)
			assert.InDelta(t, 100.0, match.ConformityPercentage, 1e-9)
		})
	}
}

func TestPatternMatcher_SkipsMalformedRules(t *testing.T) {
	rules := []models.PatternRule{
		{Name: "broken", Expression: "([a-z"},
		{Name: "", Expression: "^x$"},
		{Name: "digits", Expression: `^\d+$`},
	}

	m := NewPatternMatcher(rules, 10, zap.NewNop())

	assert.Equal(t, []string{"digits"}, m.RuleNames())
	matches := m.Match([]string{"123", "abc"})
	require.Len(t, matches, 1)
	assert.InDelta(t, 50.0, matches[0].ConformityPercentage, 1e-9)
}

func TestPatternMatcher_BoundsSample(t *testing.T) {
	values := make([]string, 50)
	for i := range values {
		values[i] = "42"
	}

	m := NewPatternMatcher([]models.PatternRule{{Name: "digits", Expression: `^\d+$`}}, 10, zap.NewNop())
	matches := m.Match(values)

	require.Len(t, matches, 1)
	assert.Equal(t, 10, matches[0].TotalSamples)
}

func TestPatternMatcher_AnalyzeColumnUsesSample(t *testing.T) {
	ds := newMockDatasource()
	var rows [][]any
	for i := 0; i < 30; i++ {
		rows = append(rows, []any{fmt.Sprintf("%05d-%03d", i, i)})
	}
	rows = append(rows, []any{nil})
	ds.addTable("public", "addresses", []datasource.ColumnMetadata{textCol("cep")}, rows)

	m := NewPatternMatcher(DefaultPatternRules(), 10_000, zap.NewNop())
	strategy := models.SamplingStrategy{Mode: models.SamplingFullScan, RowCount: 31, SampleSize: 31}

	matches, err := m.AnalyzeColumn(context.Background(), ds, models.TableRef{Schema: "public", Table: "addresses"}, "cep", strategy)
	require.NoError(t, err)

	cep := findPattern(matches, "cep")
	require.NotNil(t, cep)
	assert.Equal(t, 30, cep.TotalSamples, "nulls are not sampled")
	assert.InDelta(t, 100.0, cep.ConformityPercentage, 1e-9)
}

func TestLoadPatternRules_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - name: cep
    description: Five-digit postal code only
    locale: pt-BR
    expression: '^\d{5}$'
  - name: plate
    description: Brazilian vehicle plate
    locale: pt-BR
    expression: '^[A-Z]{3}-?\d[A-Z0-9]\d{2}$'
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rules, err := LoadPatternRules(path)
	require.NoError(t, err)

	assert.Len(t, rules, len(DefaultPatternRules())+1)
	byName := make(map[string]models.PatternRule)
	for _, r := range rules {
		byName[r.Name] = r
	}
	assert.Equal(t, `^\d{5}$`, byName["cep"].Expression)
	assert.Equal(t, "plate", rules[len(rules)-1].Name)
}

func TestLoadPatternRules_EmptyPathReturnsDefaults(t *testing.T) {
	rules, err := LoadPatternRules("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPatternRules(), rules)
}

func TestLoadPatternRules_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules: [unterminated"), 0o600))

	_, err := LoadPatternRules(path)
	assert.Error(t, err)
}
