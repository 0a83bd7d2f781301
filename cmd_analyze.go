package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-profiler/pkg/services"
)

func newProfileCmd(a *app) *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "profile <table>",
		Short: "Collect the full table profile: columns, patterns and relationships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseTableRef(args[0], schema)
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc services.ProfilingService) error {
				profile, err := svc.CollectBasicMetrics(ctx, ref)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), profile)
			})
		},
	}
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "schema of the table (adapter default when empty)")
	return cmd
}

func newPatternsCmd(a *app) *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "patterns <table>",
		Short: "Profile every column and score text columns against the pattern rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseTableRef(args[0], schema)
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc services.ProfilingService) error {
				profiles, err := svc.AnalyzeTablePatterns(ctx, ref)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), profiles)
			})
		},
	}
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "schema of the table (adapter default when empty)")
	return cmd
}

func newRelationshipsCmd(a *app) *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "relationships <table>",
		Short: "Check status/date consistency and numeric correlations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseTableRef(args[0], schema)
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc services.ProfilingService) error {
				metrics, err := svc.AnalyzeTableRelationships(ctx, ref)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), metrics)
			})
		},
	}
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "schema of the table (adapter default when empty)")
	return cmd
}

func newOutliersCmd(a *app) *cobra.Command {
	var (
		schema   string
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "outliers <table> <column>",
		Short: "List one page of rows whose value lies beyond three standard deviations",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseTableRef(args[0], schema)
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc services.ProfilingService) error {
				set, err := svc.AnalyzeColumnOutliers(ctx, ref, args[1], page, pageSize)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), set)
			})
		},
	}
	cmd.Flags().StringVarP(&schema, "schema", "s", "", "schema of the table (adapter default when empty)")
	cmd.Flags().IntVar(&page, "page", 0, "0-based page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "rows per page (configured default when 0)")
	return cmd
}
