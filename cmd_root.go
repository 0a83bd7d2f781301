package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/config"
	"github.com/ekaya-inc/ekaya-profiler/pkg/logging"
	"github.com/ekaya-inc/ekaya-profiler/pkg/models"
	"github.com/ekaya-inc/ekaya-profiler/pkg/services"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "ekaya-profiler",
		Short:         "Data quality profiling for PostgreSQL and SQL Server",
		Long:          "Profiles tables of a live database: column statistics, format conformity, status/date consistency, correlations, outliers and schema relations.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default is ./config.yaml, falling back to environment)")

	rootCmd.AddCommand(
		newCheckCmd(a),
		newProfileCmd(a),
		newPatternsCmd(a),
		newRelationshipsCmd(a),
		newOutliersCmd(a),
		newSchemaCmd(a),
		newAdaptersCmd(),
	)
	return rootCmd
}

func (a *app) init() error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath, Version)
	} else {
		cfg, err = config.Load(Version)
	}
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// withService opens the configured datasource, runs fn against a profiling
// service built over it, and closes the datasource afterwards.
func (a *app) withService(ctx context.Context, fn func(context.Context, services.ProfilingService) error) error {
	rules, err := services.LoadPatternRules(a.cfg.Profiler.PatternRulesFile)
	if err != nil {
		return err
	}

	factory := datasource.NewDatasourceAdapterFactory(datasource.Options{
		MetadataTimeout: a.cfg.Profiler.MetadataQueryTimeout,
		ScanTimeout:     a.cfg.Profiler.ScanQueryTimeout,
		Logger:          a.logger,
	})
	ds, err := factory.NewDatasource(ctx, a.cfg.Datasource.Type, a.cfg.Datasource.ToMap())
	if err != nil {
		return fmt.Errorf("open %s datasource: %w", a.cfg.Datasource.Type, err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			a.logger.Warn("Failed to close datasource", zap.String("error", logging.SanitizeError(err)))
		}
	}()

	a.logger.Debug("Datasource opened",
		zap.String("type", a.cfg.Datasource.Type),
		zap.String("host", a.cfg.Datasource.Host),
		zap.String("database", a.cfg.Datasource.Database))

	svc := services.NewProfilingService(ds, profilingConfig(a.cfg.Profiler, rules), a.logger)
	return fn(ctx, svc)
}

func profilingConfig(p config.ProfilerConfig, rules []models.PatternRule) services.ProfilingConfig {
	return services.ProfilingConfig{
		MaxParallelColumns:     p.MaxParallelColumns,
		DefaultPageSize:        p.DefaultPageSize,
		MaxPageSize:            p.MaxPageSize,
		PatternSampleLimit:     p.PatternSampleLimit,
		CorrelationSampleLimit: p.CorrelationSampleLimit,
		TopValuesLimit:         p.TopValuesLimit,
		HistogramBuckets:       p.HistogramBuckets,
		IncludeDateTimeline:    p.IncludeDateTimeline,
		PatternRules:           rules,
	}
}

// parseTableRef accepts "table" or "schema.table". An explicit --schema
// flag applies only to bare table names.
func parseTableRef(arg, schema string) (models.TableRef, error) {
	arg = strings.TrimSpace(arg)
	if s, t, ok := strings.Cut(arg, "."); ok {
		if s == "" || t == "" {
			return models.TableRef{}, fmt.Errorf("invalid table %q: expected schema.table", arg)
		}
		return models.TableRef{Schema: s, Table: t}, nil
	}
	if arg == "" {
		return models.TableRef{}, fmt.Errorf("table name is required")
	}
	return models.TableRef{Schema: schema, Table: arg}, nil
}
