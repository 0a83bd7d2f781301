package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
)

const (
	idPrefixPattern = "id_<table>"
	idSuffixPattern = "<table>_id"
)

// SchemaRelationshipDiscoverer inventories declared foreign keys and infers
// undeclared ones from column naming conventions.
type SchemaRelationshipDiscoverer struct {
	logger *zap.Logger
}

// NewSchemaRelationshipDiscoverer creates a SchemaRelationshipDiscoverer.
func NewSchemaRelationshipDiscoverer(logger *zap.Logger) *SchemaRelationshipDiscoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaRelationshipDiscoverer{logger: logger.Named("schema-discovery")}
}

// Discover reads the catalog and returns declared, implicit and ranked
// relations. A table whose columns cannot be read is left out of inference.
func (d *SchemaRelationshipDiscoverer) Discover(ctx context.Context, ds datasource.SchemaDiscoverer) (*models.SchemaDiscovery, error) {
	tables, err := ds.DiscoverTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover tables: %w", err)
	}

	result := &models.SchemaDiscovery{
		Tables:              make([]models.SchemaTableSummary, 0, len(tables)),
		DeclaredForeignKeys: []models.SchemaRelation{},
		ImplicitRelations:   []models.SchemaRelation{},
		RankedRelations:     []models.SchemaRelation{},
	}

	for _, t := range tables {
		summary := models.SchemaTableSummary{
			SchemaName: t.SchemaName,
			TableName:  t.TableName,
			RowCount:   t.RowCount,
		}
		cols, err := ds.DiscoverColumns(ctx, t.SchemaName, t.TableName)
		if err != nil {
			if apperrors.IsConnectivity(err) {
				return nil, &apperrors.AnalysisError{Op: "discover_columns", Schema: t.SchemaName, Table: t.TableName, Err: err}
			}
			d.logger.Warn("Skipping table in relation inference",
				zap.String("schema", t.SchemaName),
				zap.String("table", t.TableName),
				zap.Error(err))
		}
		for _, c := range cols {
			summary.Columns = append(summary.Columns, c.ColumnName)
		}
		result.Tables = append(result.Tables, summary)
	}

	if ds.SupportsForeignKeys() {
		fks, err := ds.DiscoverForeignKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("discover foreign keys: %w", err)
		}
		result.DeclaredForeignKeys = DeclaredRelations(fks)
	}

	result.ImplicitRelations = InferImplicitRelations(result.Tables, result.DeclaredForeignKeys)

	all := make([]models.SchemaRelation, 0, len(result.DeclaredForeignKeys)+len(result.ImplicitRelations))
	all = append(all, result.DeclaredForeignKeys...)
	all = append(all, result.ImplicitRelations...)
	result.RankedRelations = RankRelations(all)

	d.logger.Info("Schema relations discovered",
		zap.Int("tables", len(result.Tables)),
		zap.Int("declared", len(result.DeclaredForeignKeys)),
		zap.Int("implicit", len(result.ImplicitRelations)))

	return result, nil
}

// DeclaredRelations converts catalog foreign keys into relations.
func DeclaredRelations(fks []datasource.ForeignKeyMetadata) []models.SchemaRelation {
	rels := make([]models.SchemaRelation, 0, len(fks))
	for _, fk := range fks {
		rels = append(rels, models.SchemaRelation{
			Kind:            models.RelationKindDeclared,
			SourceSchema:    fk.SourceSchema,
			SourceTable:     fk.SourceTable,
			SourceColumn:    fk.SourceColumn,
			TargetSchema:    fk.TargetSchema,
			TargetTable:     fk.TargetTable,
			TargetColumn:    fk.TargetColumn,
			ConstraintName:  fk.ConstraintName,
			Confidence:      models.DeclaredConfidence,
			DetectionMethod: models.DetectionMethodForeignKey,
			Evidence:        fmt.Sprintf("foreign key constraint %s", fk.ConstraintName),
			ImportanceScore: models.DeclaredImportance,
		})
	}
	return rels
}

// InferImplicitRelations matches id_<table> and <table>_id columns against
// tables that have an id column. Table names are compared exactly and via
// singular/plural inflection. Pairs already covered by a declared foreign
// key and self-references are skipped.
func InferImplicitRelations(tables []models.SchemaTableSummary, declared []models.SchemaRelation) []models.SchemaRelation {
	seen := make(map[string]bool, len(declared))
	for _, r := range declared {
		seen[r.Key()] = true
	}

	// Tables that can be referenced, with the actual spelling of their id column.
	type target struct {
		table    models.SchemaTableSummary
		idColumn string
	}
	var targets []target
	for _, t := range tables {
		for _, c := range t.Columns {
			if strings.EqualFold(c, "id") {
				targets = append(targets, target{table: t, idColumn: c})
				break
			}
		}
	}

	var rels []models.SchemaRelation
	for _, src := range tables {
		for _, col := range src.Columns {
			for _, cand := range referencedNames(col) {
				for _, tgt := range targets {
					if !tableNameMatches(tgt.table.TableName, cand.name) {
						continue
					}
					if strings.EqualFold(src.SchemaName, tgt.table.SchemaName) && strings.EqualFold(src.TableName, tgt.table.TableName) {
						continue
					}
					rel := models.SchemaRelation{
						Kind:            models.RelationKindImplicit,
						SourceSchema:    src.SchemaName,
						SourceTable:     src.TableName,
						SourceColumn:    col,
						TargetSchema:    tgt.table.SchemaName,
						TargetTable:     tgt.table.TableName,
						TargetColumn:    tgt.idColumn,
						Confidence:      models.NamingPatternConfidence,
						DetectionMethod: models.DetectionMethodNamingPattern,
						Evidence: fmt.Sprintf("column %s follows the %s pattern for table %s.%s",
							col, cand.pattern, tgt.table.SchemaName, tgt.table.TableName),
					}
					rel.ImportanceScore = ImportanceScore(rel.Confidence)
					if seen[rel.Key()] {
						continue
					}
					seen[rel.Key()] = true
					rels = append(rels, rel)
				}
			}
		}
	}
	if rels == nil {
		rels = []models.SchemaRelation{}
	}
	return rels
}

type referencedName struct {
	name    string
	pattern string
}

// referencedNames extracts the table names a column may point at.
func referencedNames(column string) []referencedName {
	lower := strings.ToLower(column)
	var names []referencedName
	if rest, ok := strings.CutPrefix(lower, "id_"); ok && rest != "" {
		names = append(names, referencedName{name: rest, pattern: idPrefixPattern})
	}
	if rest, ok := strings.CutSuffix(lower, "_id"); ok && rest != "" {
		names = append(names, referencedName{name: rest, pattern: idSuffixPattern})
	}
	return names
}

func tableNameMatches(tableName, referenced string) bool {
	table := strings.ToLower(tableName)
	if table == referenced {
		return true
	}
	return inflection.Singular(table) == inflection.Singular(referenced)
}

// ImportanceScore maps a confidence in [0,1] to a 2–10 ranking score.
func ImportanceScore(confidence float64) int {
	score := int(math.Round(confidence*8)) + 2
	return max(1, min(10, score))
}

// RankRelations orders relations by importance, highest first. Ties are
// broken by source and then target so the order is stable across runs.
func RankRelations(rels []models.SchemaRelation) []models.SchemaRelation {
	ranked := make([]models.SchemaRelation, len(rels))
	copy(ranked, rels)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.ImportanceScore != b.ImportanceScore {
			return a.ImportanceScore > b.ImportanceScore
		}
		if ka, kb := sourceKey(a), sourceKey(b); ka != kb {
			return ka < kb
		}
		return a.Key() < b.Key()
	})
	return ranked
}

func sourceKey(r models.SchemaRelation) string {
	return strings.ToLower(r.SourceSchema + "." + r.SourceTable + "." + r.SourceColumn)
}
