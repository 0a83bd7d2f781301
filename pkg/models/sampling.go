package models

// SamplingMode is the method used to read a representative subset of rows.
type SamplingMode string

const (
	SamplingFullScan   SamplingMode = "full_scan"
	SamplingRandom     SamplingMode = "random"
	SamplingSystematic SamplingMode = "systematic"
	SamplingAdaptive   SamplingMode = "adaptive"
)

// SamplingStrategy is the sampling decision for one table.
// Rationale is an append-only trail of the decisions that produced it.
type SamplingStrategy struct {
	Mode             SamplingMode `json:"mode"`
	SampleSize       int64        `json:"sample_size"`
	Rationale        []string     `json:"rationale"`
	PrimaryKeyColumn string       `json:"primary_key_column,omitempty"`
	RowCount         int64        `json:"row_count"`
}

// AddReason appends a decision to the rationale trail.
func (s *SamplingStrategy) AddReason(reason string) {
	s.Rationale = append(s.Rationale, reason)
}

// Limit returns the effective number of rows a scan under this strategy reads,
// bounded by the caller's own limit when positive.
func (s SamplingStrategy) Limit(ceiling int64) int64 {
	n := s.SampleSize
	if s.Mode == SamplingFullScan && s.RowCount > 0 {
		n = s.RowCount
	}
	if ceiling > 0 && (n <= 0 || n > ceiling) {
		return ceiling
	}
	return n
}
