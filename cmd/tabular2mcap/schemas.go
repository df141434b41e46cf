package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jittakal/tabular2mcap/internal/schema"
)

func newSchemasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schemas",
		Short: "Manage ROS 2 message definitions and JSON schemas",
	}
	cmd.AddCommand(newSchemasFetchCmd(), newSchemasListCmd())
	return cmd
}

func newSchemasFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download message definition repositories into the schema cache",
		Example: `  # Populate the cache for ROS 2 Humble
  tabular2mcap schemas fetch --distro humble`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := newFetcher(cfg, logger).FetchAll(cmd.Context(), cfg.Schemas.Distro); err != nil {
				return fmt.Errorf("failed to fetch message definitions: %w", err)
			}
			logger.Info("Message definitions cached",
				zap.String("distro", cfg.Schemas.Distro),
				zap.String("cache_dir", cfg.Schemas.CacheDir))
			return nil
		},
	}
	cmd.Flags().String("distro", schema.DefaultDistro, "ROS 2 distribution")
	return cmd
}

func newSchemasListCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "list",
		Short:        "List cached repositories and built-in schemas",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cached, err := schema.List(cfg.Schemas.CacheDir)
			if err != nil {
				return fmt.Errorf("failed to read schema cache: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache: %s\n", cfg.Schemas.CacheDir)
			if len(cached) == 0 {
				fmt.Fprintln(out, "  (empty, run `tabular2mcap schemas fetch`)")
			} else {
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "  DISTRO\tREPOSITORY\tMSG FILES")
				for _, c := range cached {
					fmt.Fprintf(tw, "  %s\t%s\t%d\n", c.Distro, c.Repository, c.MsgFiles)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			fmt.Fprintln(out, "Built-in JSON schemas:")
			for _, name := range schema.EmbeddedJSONSchemas() {
				fmt.Fprintf(out, "  %s\n", name)
			}
			fmt.Fprintln(out, "Built-in message definitions:")
			for _, name := range schema.EmbeddedMsgs() {
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
}
