package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-profiler/pkg/config"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
	"github.com/ekaya-inc/ekaya-profiler/pkg/services"
)

func TestParseTableRef(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		schema  string
		want    models.TableRef
		wantErr bool
	}{
		{"bare table", "orders", "", models.TableRef{Table: "orders"}, false},
		{"bare table with schema flag", "orders", "sales", models.TableRef{Schema: "sales", Table: "orders"}, false},
		{"qualified", "sales.orders", "", models.TableRef{Schema: "sales", Table: "orders"}, false},
		{"qualified wins over flag", "sales.orders", "public", models.TableRef{Schema: "sales", Table: "orders"}, false},
		{"missing table", "sales.", "", models.TableRef{}, true},
		{"missing schema", ".orders", "", models.TableRef{}, true},
		{"empty", "  ", "", models.TableRef{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTableRef(tt.arg, tt.schema)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProfilingConfig(t *testing.T) {
	p := config.ProfilerConfig{
		MetadataQueryTimeout:   time.Second,
		ScanQueryTimeout:       time.Minute,
		MaxParallelColumns:     4,
		DefaultPageSize:        25,
		MaxPageSize:            500,
		PatternSampleLimit:     2000,
		CorrelationSampleLimit: 300,
		TopValuesLimit:         5,
		HistogramBuckets:       12,
		IncludeDateTimeline:    true,
	}
	rules := services.DefaultPatternRules()

	got := profilingConfig(p, rules)

	assert.Equal(t, services.ProfilingConfig{
		MaxParallelColumns:     4,
		DefaultPageSize:        25,
		MaxPageSize:            500,
		PatternSampleLimit:     2000,
		CorrelationSampleLimit: 300,
		TopValuesLimit:         5,
		HistogramBuckets:       12,
		IncludeDateTimeline:    true,
		PatternRules:           rules,
	}, got)
}

func TestAdaptersCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"adapters"})

	require.NoError(t, cmd.Execute())

	var adapters []datasource.DatasourceAdapterInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &adapters))
	types := make([]string, len(adapters))
	for i, a := range adapters {
		types[i] = a.Type
	}
	assert.ElementsMatch(t, []string{"mssql", "postgres"}, types)
}

func TestCommandsValidateArgs(t *testing.T) {
	tests := [][]string{
		{"profile"},
		{"patterns", "a", "b"},
		{"relationships"},
		{"outliers", "orders"},
		{"schema", "extra"},
	}
	for _, args := range tests {
		t.Run(args[0], func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(args)
			assert.Error(t, cmd.Execute())
		})
	}
}

func TestProfileCmd_UnsupportedDatasource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: "test"
log_level: "error"
datasource:
  type: "oracle"
  host: "localhost"
`), 0o600))
	os.Unsetenv("DATASOURCE_TYPE")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"profile", "orders", "--config", path})

	err := cmd.Execute()
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedDatasource)
}

func TestProfileCmd_MissingConfigFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"check", "--config", filepath.Join(t.TempDir(), "missing.yaml")})

	assert.ErrorContains(t, cmd.Execute(), "missing.yaml")
}
