package models

import "strings"

// ============================================================================
// Relation kinds and detection methods
// ============================================================================

// RelationKind distinguishes relations read from constraint metadata from
// relations inferred by the discoverer.
type RelationKind string

const (
	RelationKindDeclared RelationKind = "declared"
	RelationKindImplicit RelationKind = "implicit"
)

// DetectionMethod describes how a relation was found.
type DetectionMethod string

const (
	DetectionMethodForeignKey    DetectionMethod = "foreign_key"
	DetectionMethodNamingPattern DetectionMethod = "naming pattern"
)

const (
	// DeclaredConfidence is the confidence of a constraint-backed relation.
	DeclaredConfidence = 1.0
	// NamingPatternConfidence is the confidence of a naming-pattern match.
	NamingPatternConfidence = 0.8
	// DeclaredImportance is the fixed importance score of declared foreign keys.
	DeclaredImportance = 10
)

// ============================================================================
// Relations
// ============================================================================

// SchemaRelation is a declared foreign key or an implicit, name-inferred relation.
type SchemaRelation struct {
	Kind            RelationKind    `json:"kind"`
	SourceSchema    string          `json:"source_schema"`
	SourceTable     string          `json:"source_table"`
	SourceColumn    string          `json:"source_column"`
	TargetSchema    string          `json:"target_schema"`
	TargetTable     string          `json:"target_table"`
	TargetColumn    string          `json:"target_column"`
	ConstraintName  string          `json:"constraint_name,omitempty"`
	Confidence      float64         `json:"confidence"`
	DetectionMethod DetectionMethod `json:"detection_method"`
	Evidence        string          `json:"evidence"`
	ImportanceScore int             `json:"importance_score"`
}

// Key identifies the column pair a relation links, ignoring how it was found.
func (r SchemaRelation) Key() string {
	return strings.ToLower(r.SourceSchema + "." + r.SourceTable + "." + r.SourceColumn +
		"->" + r.TargetSchema + "." + r.TargetTable + "." + r.TargetColumn)
}

// Touches reports whether the relation starts or ends at the given table.
func (r SchemaRelation) Touches(ref TableRef) bool {
	return (strings.EqualFold(r.SourceTable, ref.Table) && (ref.Schema == "" || strings.EqualFold(r.SourceSchema, ref.Schema))) ||
		(strings.EqualFold(r.TargetTable, ref.Table) && (ref.Schema == "" || strings.EqualFold(r.TargetSchema, ref.Schema)))
}

// ============================================================================
// Discovery result
// ============================================================================

// SchemaTableSummary is a table seen during schema discovery.
type SchemaTableSummary struct {
	SchemaName string   `json:"schema_name"`
	TableName  string   `json:"table_name"`
	RowCount   int64    `json:"row_count"`
	Columns    []string `json:"columns"`
}

// SchemaDiscovery is the database-level relation inventory.
type SchemaDiscovery struct {
	Tables              []SchemaTableSummary `json:"tables"`
	DeclaredForeignKeys []SchemaRelation     `json:"declared_foreign_keys"`
	ImplicitRelations   []SchemaRelation     `json:"implicit_relations"`
	RankedRelations     []SchemaRelation     `json:"ranked_relations"`
}

// RelationsForTable returns the ranked relations that touch the given table,
// preserving rank order.
func (d *SchemaDiscovery) RelationsForTable(ref TableRef) []SchemaRelation {
	var out []SchemaRelation
	for _, r := range d.RankedRelations {
		if r.Touches(ref) {
			out = append(out, r)
		}
	}
	return out
}
