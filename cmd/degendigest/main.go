package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "degendigest",
		Short:         "Migrate crypto collector output into a database and publish daily digests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(migrateCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(digestCmd())

	return root
}

func migrateCmd() *cobra.Command {
	var (
		sources    []string
		mode       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Load collector blobs from object storage into the database",
		Long: `Extract, map and upsert collector output.

Modes:
  files         every <source>_data/*.json blob (default)
  latest        only <source>_data/<source>_latest.json
  consolidated  consolidated/<source>_consolidated.json into content_items

The command fails if any file failed; skipped or failed records never fail it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), sources, mode, jsonOutput)
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "sources to migrate (default: from config)")
	cmd.Flags().StringVar(&mode, "mode", "", "consolidated, files or latest (default: from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Inspect and update crawler heartbeats",
	}

	var (
		items  int64
		errMsg string
	)
	set := &cobra.Command{
		Use:   "set <name> <online|stale|offline>",
		Short: "Record a crawl attempt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatusSet(cmd.Context(), args[0], args[1], items, errMsg)
		},
	}
	set.Flags().Int64Var(&items, "items", 0, "items collected by this run")
	set.Flags().StringVar(&errMsg, "error", "", "error message for a failed run")

	var jsonOutput bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List crawler status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatusList(cmd.Context(), jsonOutput)
		},
	}
	list.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute rolling 24h/1h item counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatusRefresh(cmd.Context())
		},
	}

	cmd.AddCommand(set, list, refresh)
	return cmd
}

func digestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Generate and read daily digests",
	}

	var (
		date   string
		notify bool
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate the digest for a day from stored data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigestGenerate(cmd.Context(), date, notify)
		},
	}
	generate.Flags().StringVar(&date, "date", "", "YYYY-MM-DD (default: today, UTC)")
	generate.Flags().BoolVar(&notify, "notify", false, "broadcast to configured alert destinations")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored digests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigestList()
		},
	}

	var summary bool
	show := &cobra.Command{
		Use:   "show [date]",
		Short: "Print a digest (default: the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := ""
			if len(args) == 1 {
				d = args[0]
			}
			return runDigestShow(d, summary)
		},
	}
	show.Flags().BoolVar(&summary, "summary", false, "print only the title and section bullets")

	cmd.AddCommand(generate, list, show)
	return cmd
}
