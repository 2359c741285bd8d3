// Package main provides the graphcore CLI entry point.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-graphcore/pkg/config"
	"github.com/dd0wney/cluso-graphcore/pkg/engine"
	"github.com/dd0wney/cluso-graphcore/pkg/logging"
	"github.com/dd0wney/cluso-graphcore/pkg/server"
	"github.com/dd0wney/cluso-graphcore/pkg/storage"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // -X main.buildTime=...
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "graphcore",
		Short: "graphcore - transactional property graph core",
		Long: `graphcore opens a property graph over a memory, journal or badger
store and serves relationship type tokens to replicas.

Configuration comes from a YAML file and GRAPHCORE_* environment variables.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("GRAPHCORE_CONFIG"), "path to YAML config")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeTokensCmd(load))
	rootCmd.AddCommand(newInspectCmd(load))
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graphcore v%s (%s) built %s\n", version, commit, buildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newServeTokensCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		listenAddr string
		httpAddr   string
	)

	cmd := &cobra.Command{
		Use:   "serve-tokens",
		Short: "Run the primary and answer token requests from replicas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			cfg.Tokens.Mode = config.TokensPrimary
			if listenAddr != "" {
				cfg.Tokens.ListenAddr = listenAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := logging.New(cfg.LoggingOptions())
			defer logger.Sync()

			e, err := engine.Open(ctx, cfg, engine.WithLogger(logger))
			if err != nil {
				return err
			}
			defer e.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving tokens on %s (%s store). Press Ctrl+C to stop.\n",
				cfg.Tokens.ListenAddr, cfg.Store.Backend)

			if httpAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(e.Metrics().GetPrometheusRegistry(), promhttp.HandlerOpts{}))
				e.Health().Mount(mux)

				srv := server.NewGracefulServer(httpAddr, mux, logger)
				srv.SetConfigReloadFunc(func() error {
					next, err := load()
					if err != nil {
						return err
					}
					logger.SetLevel(logging.ParseLevel(next.Logging.Level))
					return nil
				})
				if err := srv.Run(ctx); err != nil {
					return err
				}
			} else {
				<-ctx.Done()
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
			return nil
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "token listen address (overrides tokens.listen_addr)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "serve /metrics and /health/{live,ready} on this address; SIGHUP reloads the log level")
	return cmd
}

func newInspectCmd(load func() (*config.Config, error)) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <node-id>",
		Short: "Print a node's properties and relationship counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid node id %q: %w", args[0], err)
			}
			cfg, err := load()
			if err != nil {
				return err
			}

			e, err := engine.Open(cmd.Context(), cfg, engine.WithLogger(logging.NewNopLogger()))
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := e.Inspect(cmd.Context(), storage.NodeID(id))
			if err != nil {
				return err
			}
			return printReport(cmd, report, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, report *engine.NodeReport, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "Node %d\n", report.ID)
	for key, v := range report.Properties {
		fmt.Fprintf(out, "  %s = %v\n", key, v)
	}
	fmt.Fprintf(out, "Relationships: %d\n", report.Total)
	for _, c := range report.Chains {
		fmt.Fprintf(out, "  %-20s %-8s %d\n", c.Type, c.Direction, c.Count)
	}
	return nil
}
