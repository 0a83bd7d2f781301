package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TableRef identifies a table inside the profiled database.
type TableRef struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

// String returns "schema.table", or just the table name when no schema is set.
func (r TableRef) String() string {
	if r.Schema == "" {
		return r.Table
	}
	return fmt.Sprintf("%s.%s", r.Schema, r.Table)
}

// ProfileStatus distinguishes a full profile from one where some columns were skipped.
type ProfileStatus string

const (
	ProfileStatusComplete ProfileStatus = "complete"
	ProfileStatusPartial  ProfileStatus = "partial"
)

// SkippedColumn records a column (or column-level analysis) that could not be computed.
type SkippedColumn struct {
	ColumnName string `json:"column_name"`
	Analysis   string `json:"analysis"`
	Reason     string `json:"reason"`
}

// TableProfile is the result of one table-level analysis pass.
// It is built fresh for every call and never mutated once returned.
type TableProfile struct {
	AnalysisID     uuid.UUID            `json:"analysis_id"`
	SchemaName     string               `json:"schema_name"`
	TableName      string               `json:"table_name"`
	CollectedAt    time.Time            `json:"collected_at"`
	RowCount       int64                `json:"row_count"`
	Sampling       SamplingStrategy     `json:"sampling"`
	Columns        []ColumnProfile      `json:"columns"`
	Relationships  *RelationshipMetrics `json:"relationships,omitempty"`
	SkippedColumns []SkippedColumn      `json:"skipped_columns,omitempty"`
	Status         ProfileStatus        `json:"status"`
	Duration       time.Duration        `json:"duration"`
}

// ColumnByName returns the profile for the named column, or nil.
func (p *TableProfile) ColumnByName(name string) *ColumnProfile {
	for i := range p.Columns {
		if p.Columns[i].ColumnName == name {
			return &p.Columns[i]
		}
	}
	return nil
}
