package services

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

const (
	defaultPatternSampleLimit = 10_000
	patternExamplesMax        = 5
)

// PatternMatcher scores a column sample against an immutable rule list.
type PatternMatcher struct {
	rules       []compiledRule
	sampleLimit int
	logger      *zap.Logger
}

// NewPatternMatcher compiles the rules once. Malformed rules are dropped
// with a warning.
func NewPatternMatcher(rules []models.PatternRule, sampleLimit int, logger *zap.Logger) *PatternMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sampleLimit <= 0 {
		sampleLimit = defaultPatternSampleLimit
	}
	logger = logger.Named("pattern-matcher")
	return &PatternMatcher{
		rules:       compilePatternRules(rules, logger),
		sampleLimit: sampleLimit,
		logger:      logger,
	}
}

// RuleNames returns the names of the usable rules in evaluation order.
func (m *PatternMatcher) RuleNames() []string {
	names := make([]string, len(m.rules))
	for i, r := range m.rules {
		names[i] = r.rule.Name
	}
	return names
}

// AnalyzeColumn draws a bounded sample of non-null values through the
// sampling strategy and scores it.
func (m *PatternMatcher) AnalyzeColumn(ctx context.Context, ds datasource.TableProfiler, ref models.TableRef, column string, strategy models.SamplingStrategy) ([]models.PatternMatch, error) {
	limit := int(strategy.Limit(int64(m.sampleLimit)))
	values, err := ds.SampleValues(ctx, ref, column, strategy, limit)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("Scoring pattern sample",
		zap.String("schema", ref.Schema),
		zap.String("table", ref.Table),
		zap.String("column", column),
		zap.Int("sample_size", len(values)))
	return m.Match(values), nil
}

// Match scores values against every rule. Only rules with at least one
// match are returned, highest conformity first.
func (m *PatternMatcher) Match(values []string) []models.PatternMatch {
	if len(values) > m.sampleLimit {
		values = values[:m.sampleLimit]
	}
	total := len(values)
	if total == 0 {
		return nil
	}

	var results []models.PatternMatch
	for _, r := range m.rules {
		match := models.PatternMatch{
			PatternName:  r.rule.Name,
			Description:  r.rule.Description,
			Locale:       r.rule.Locale,
			TotalSamples: total,
		}
		for _, v := range values {
			trimmed := strings.TrimSpace(v)
			if r.re.MatchString(trimmed) {
				match.MatchingSamples++
				if len(match.SampleMatches) < patternExamplesMax {
					match.SampleMatches = append(match.SampleMatches, v)
				}
			} else if len(match.SampleNonMatches) < patternExamplesMax {
				match.SampleNonMatches = append(match.SampleNonMatches, v)
			}
		}
		if match.MatchingSamples == 0 {
			continue
		}
		match.ConformityPercentage = float64(match.MatchingSamples) / float64(total) * 100
		results = append(results, match)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ConformityPercentage > results[j].ConformityPercentage
	})
	return results
}
