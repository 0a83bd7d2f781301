package services

import (
	"fmt"
	"os"
	"regexp"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

// DefaultPatternRules returns the built-in format rules. The slice is a
// fresh copy on every call.
func DefaultPatternRules() []models.PatternRule {
	return []models.PatternRule{
		{
			Name:        "email",
			Description: "E-mail address",
			Locale:      "global",
			Expression:  `^[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}$`,
		},
		{
			Name:        "cpf",
			Description: "Brazilian individual taxpayer number (CPF)",
			Locale:      "pt-BR",
			Expression:  `^\d{3}\.?\d{3}\.?\d{3}-?\d{2}$`,
		},
		{
			Name:        "cnpj",
			Description: "Brazilian company registration number (CNPJ)",
			Locale:      "pt-BR",
			Expression:  `^\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}$`,
		},
		{
			Name:        "phone",
			Description: "Phone number with optional country and area code",
			Locale:      "global",
			Expression:  `^(\+\d{1,3}[\s\-]?)?(\(\d{2,3}\)\s?|\d{2,3}[\s\-])?\d{4,5}[\s\-]?\d{4}$`,
		},
		{
			Name:        "cep",
			Description: "Brazilian postal code (CEP)",
			Locale:      "pt-BR",
			Expression:  `^\d{5}-?\d{3}$`,
		},
		{
			Name:        "alphanumeric_code",
			Description: "Letter prefix followed by digits, e.g. SKU-1042",
			Locale:      "global",
			Expression:  `^[A-Za-z]{1,6}[\-_]?\d{1,12}$`,
		},
		{
			Name:        "url",
			Description: "HTTP or HTTPS URL",
			Locale:      "global",
			Expression:  `^https?://[^\s/$.?#][^\s]*$`,
		},
		{
			Name:        "uuid",
			Description: "UUID in canonical 8-4-4-4-12 form",
			Locale:      "global",
			Expression:  `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`,
		},
		{
			Name:        "iso_date",
			Description: "ISO 8601 date or date-time",
			Locale:      "global",
			Expression:  `^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])([T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+\-]\d{2}:?\d{2})?)?$`,
		},
		{
			Name:        "time",
			Description: "24-hour time of day",
			Locale:      "global",
			Expression:  `^([01]\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`,
		},
	}
}

// patternRuleFile is the layout of a user rule file:
//
//	rules:
//	  - name: plate
//	    description: Brazilian vehicle plate
//	    locale: pt-BR
//	    expression: '^[A-Z]{3}-?\d[A-Z0-9]\d{2}$'
type patternRuleFile struct {
	Rules []models.PatternRule `yaml:"rules"`
}

// LoadPatternRules reads a YAML rule file and merges it over the defaults.
// An empty path returns the defaults.
func LoadPatternRules(path string) ([]models.PatternRule, error) {
	if path == "" {
		return DefaultPatternRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern rules %s: %w", path, err)
	}

	var file patternRuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pattern rules %s: %w", path, err)
	}

	return MergePatternRules(DefaultPatternRules(), file.Rules), nil
}

// MergePatternRules replaces base rules that share a name with an override
// and appends the remaining overrides in order.
func MergePatternRules(base, overrides []models.PatternRule) []models.PatternRule {
	merged := make([]models.PatternRule, len(base))
	copy(merged, base)

	index := make(map[string]int, len(merged))
	for i, r := range merged {
		index[r.Name] = i
	}

	for _, r := range overrides {
		if i, ok := index[r.Name]; ok && r.Name != "" {
			merged[i] = r
			continue
		}
		index[r.Name] = len(merged)
		merged = append(merged, r)
	}
	return merged
}

type compiledRule struct {
	rule models.PatternRule
	re   *regexp.Regexp
}

// compilePatternRules compiles every usable rule. Rules without a name or
// with an invalid expression are logged and skipped.
func compilePatternRules(rules []models.PatternRule, logger *zap.Logger) []compiledRule {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Name == "" || r.Expression == "" {
			logger.Warn("Skipping pattern rule without name or expression",
				zap.String("name", r.Name))
			continue
		}
		re, err := regexp.Compile(r.Expression)
		if err != nil {
			logger.Warn("Skipping malformed pattern rule",
				zap.String("name", r.Name),
				zap.Error(err))
			continue
		}
		compiled = append(compiled, compiledRule{rule: r, re: re})
	}
	return compiled
}
