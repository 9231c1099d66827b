// Package main provides the pql command line tool.
//
// pql verifies queries, runs them against a configuration tree and runs or
// feeds Redis queue workers.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/pql"
	"github.com/zero-day-ai/pql/config"
)

const (
	Version = "0.1.0"
	appName = "pql"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	pqlConfig string
	logLevel  string
}

func rootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Query firewall configuration graphs",
		Long: `pql builds a typed graph from a firewall or Panorama configuration and
answers PQL queries against it:

  MATCH (g:address-group)
  MATCH (a:address)
  WHERE g.edges_out CONTAINS {target: a.id, relation: "contains"}
  RETURN g.name, a.name`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&g.pqlConfig, "pql-config", "", "Engine config file or directory (pql.yaml)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(
		verifyCmd(),
		queryCmd(g),
		workerCmd(g),
		submitCmd(g),
		healthCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)

	return cmd
}

// load returns the engine config (defaults when --pql-config is unset) and a
// logger writing to w.
func (g *globals) load(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg := config.Default()
	if g.pqlConfig != "" {
		loaded, err := config.Load(g.pqlConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if g.logLevel != "" {
		if cfg.Log == nil {
			cfg.Log = &config.LogConfig{}
		}
		cfg.Log.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, cfg.Log.NewLogger(w), nil
}

func (g *globals) engine(w io.Writer) (*pql.Engine, *config.Config, error) {
	cfg, logger, err := g.load(w)
	if err != nil {
		return nil, nil, err
	}
	eng, err := pql.New(pql.WithConfig(cfg), pql.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}
