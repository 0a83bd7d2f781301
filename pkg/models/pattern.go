package models

// PatternRule is a named regular expression used to score format conformity.
// Rules are loaded once (defaults or a YAML rule file) and never mutated.
type PatternRule struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Locale      string `yaml:"locale" json:"locale"`
	Expression  string `yaml:"expression" json:"expression"`
}

// PatternMatch is the conformity of one column sample against one rule.
type PatternMatch struct {
	PatternName          string   `json:"pattern_name"`
	Description          string   `json:"description"`
	Locale               string   `json:"locale"`
	ConformityPercentage float64  `json:"conformity_percentage"` // 0-100
	MatchingSamples      int      `json:"matching_samples"`
	TotalSamples         int      `json:"total_samples"`
	SampleMatches        []string `json:"sample_matches,omitempty"`
	SampleNonMatches     []string `json:"sample_non_matches,omitempty"`
}
