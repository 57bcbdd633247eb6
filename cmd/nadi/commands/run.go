package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/nadi/internal/config"
	"github.com/dyluth/nadi/internal/printer"
)

// shutdownTimeout bounds the wait for in-flight callbacks on exit.
const shutdownTimeout = 10 * time.Second

var (
	runDuration time.Duration
	runNoHTTP   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the graph described by a configuration file",
	Long: `Run loads the graph file, creates every configured node, wires the
connections and serves /healthz and /metrics until interrupted.

The graph file lists nodes by alias and connections as "alias:channel":

  version: "1.0"
  nodes:
    clock:
      abstract: ticker
      config: {interval: 1s}
    out:
      abstract: logger
  connections:
    - source: clock:1
      destination: out:1

Examples:
  # Run until Ctrl-C
  nadi run -f nadi.yml

  # Run for 30 seconds without the HTTP listener
  nadi run -f nadi.yml --for 30s --no-http`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&runDuration, "for", 0, "Stop after this long (0 runs until interrupted)")
	runCmd.Flags().BoolVar(&runNoHTTP, "no-http", false, "Do not start the health and metrics listener")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rt, err := newRuntime(cfg, log.Default())
	if err != nil {
		return printer.Error("failed to initialize graph", err.Error(), nil)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.close(ctx); err != nil {
			printer.Warning("Shutdown incomplete: %v\n", err)
		}
	}()

	if err := rt.ping(cmd.Context()); err != nil {
		return printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", cfg.Redis.URL),
			map[string]string{"Error": err.Error()},
			[]string{"Check that Redis is running and redis.url is correct"},
		)
	}

	if err := rt.apply(); err != nil {
		return printer.Error("failed to build graph", err.Error(), []string{
			fmt.Sprintf("Check the configuration:\n  nadi validate -f %s", configFile),
		})
	}

	if !runNoHTTP {
		srv := rt.healthServer()
		if err := srv.Start(); err != nil {
			return printer.Error("failed to start health server", err.Error(), []string{
				"Choose another address with http.addr, or pass --no-http",
			})
		}
		defer srv.Shutdown(context.Background())
		printer.Info("Health and metrics on http://%s\n", srv.Addr())
	}

	printer.Success("Graph '%s' running with %d nodes and %d connections\n",
		cfg.Name, len(rt.graph.Nodes())-1, len(rt.graph.Connections()))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	<-ctx.Done()
	printer.Info("Shutting down gracefully...\n")
	return nil
}

// loadConfig reads the graph file named by --file.
func loadConfig() (*config.GraphConfig, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, printer.Error(
				fmt.Sprintf("graph file '%s' not found", configFile),
				"No graph configuration was found at the given path.",
				[]string{"Pass the file explicitly:\n  nadi run -f path/to/nadi.yml"},
			)
		}
		return nil, printer.Error("invalid graph file", err.Error(), nil)
	}
	return cfg, nil
}
