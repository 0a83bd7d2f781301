package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-profiler/pkg/services"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the configured datasource is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc services.ProfilingService) error {
				if err := svc.TestConnection(ctx); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"status":     "ok",
					"datasource": a.cfg.Datasource.Type,
					"database":   a.cfg.Datasource.Database,
				})
			})
		},
	}
}

func newSchemaCmd(a *app) *cobra.Command {
	var (
		schema string
		table  string
	)
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inventory declared foreign keys and infer implicit relations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc services.ProfilingService) error {
				discovery, err := svc.DiscoverSchema(ctx)
				if err != nil {
					return err
				}
				if table == "" {
					return printJSON(cmd.OutOrStdout(), discovery)
				}
				ref, err := parseTableRef(table, schema)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), discovery.RelationsForTable(ref))
			})
		},
	}
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "schema used with --table")
	cmd.Flags().StringVarP(&table, "table", "t", "", "only print ranked relations touching this table")
	return cmd
}

func newAdaptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List the compiled-in datasource types",
		Args:  cobra.NoArgs,
		// Listing adapters needs no config or connection.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			adapters := datasource.RegisteredAdapters()
			if len(adapters) == 0 {
				return fmt.Errorf("no datasource adapters registered")
			}
			return printJSON(cmd.OutOrStdout(), adapters)
		},
	}
}
