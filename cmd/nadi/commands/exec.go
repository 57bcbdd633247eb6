package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/nadi/internal/config"
	"github.com/dyluth/nadi/internal/control"
	"github.com/dyluth/nadi/internal/listing"
	"github.com/dyluth/nadi/internal/printer"
	"github.com/dyluth/nadi/pkg/nadi"
)

var (
	execOutputFormat string
	execKeepGoing    bool
	execTimeout      time.Duration
	execVerbose      bool
	execSettle       time.Duration
)

var execCmd = &cobra.Command{
	Use:   "exec SCRIPT",
	Short: "Apply a control script to a graph and show the result",
	Long: `Exec builds the graph from the configuration file (or an empty graph
when the default file does not exist), sends each request in SCRIPT to the
context node's control channel and prints every response.

SCRIPT is JSONC: a single request object or an array of them, comments allowed.
Requests without an "id" are given one so their responses can be matched.

  [
    // a ticker feeding a logger
    {"type": "context.node.create", "abstract_name": "ticker", "instance_name": "clock",
     "config": {"interval": "100ms"}},
    {"type": "context.node.create", "abstract_name": "logger", "instance_name": "out"},
    {"type": "context.connect", "source": ["clock", 1], "destination": ["out", 1]},
  ]

Output Formats:
  default - One status line per response, then node and connection tables
  jsonl   - Each response as one JSON object per line

Examples:
  nadi exec wire.jsonc
  nadi exec -f nadi.yml --settle 2s wire.jsonc
  nadi exec -o jsonl wire.jsonc | jq 'select(.status=="error")'`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVarP(&execOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	execCmd.Flags().BoolVar(&execKeepGoing, "keep-going", false, "Continue after a failed request")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", control.DefaultTimeout, "Per-request timeout")
	execCmd.Flags().BoolVarP(&execVerbose, "verbose", "v", false, "Show context log events")
	execCmd.Flags().DurationVar(&execSettle, "settle", 0, "Let the graph run this long after the script before exiting")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	if execOutputFormat != "default" && execOutputFormat != "jsonl" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", execOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	requests, err := loadScript(args[0])
	if err != nil {
		return printer.Error("invalid control script", err.Error(), nil)
	}

	cfg, err := execConfig(cmd)
	if err != nil {
		return err
	}

	logger := log.New(io.Discard, "", 0)
	if execVerbose {
		logger = log.Default()
	}
	rt, err := newRuntime(cfg, logger)
	if err != nil {
		return printer.Error("failed to initialize graph", err.Error(), nil)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rt.close(ctx)
	}()

	if err := rt.apply(); err != nil {
		return printer.Error("failed to build graph", err.Error(), nil)
	}

	client, err := control.Attach(rt.graph, control.Options{
		Alias:   "nadi-exec",
		Timeout: execTimeout,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to attach control client: %w", err)
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	var responses []*nadi.Response
	failed := 0
	for i, payload := range requests {
		resp, err := client.DoRaw(ctx, payload)
		if resp != nil {
			responses = append(responses, resp)
			if execOutputFormat == "default" {
				printer.Response(resp)
			}
		}
		if err == nil {
			continue
		}
		failed++
		if !errors.Is(err, control.ErrRequestFailed) {
			return printer.ErrorWithContext(
				fmt.Sprintf("request %d was not answered", i),
				err.Error(),
				map[string]string{"Request": string(payload)},
				[]string{"Increase the per-request timeout with --timeout"},
			)
		}
		if !execKeepGoing {
			break
		}
	}

	if execSettle > 0 {
		select {
		case <-time.After(execSettle):
		case <-ctx.Done():
		}
	}

	if execOutputFormat == "jsonl" {
		if err := listing.FormatJSONL(out, responses); err != nil {
			return err
		}
	} else if err := showGraph(ctx, out, client); err != nil {
		return err
	}

	if failed > 0 {
		return printer.Error(
			fmt.Sprintf("%d of %d requests failed", failed, len(requests)),
			"The failing responses are listed above.",
			nil,
		)
	}
	return nil
}

// execConfig loads --file, falling back to an empty graph when the default
// file is absent and --file was not given.
func execConfig(cmd *cobra.Command) (*config.GraphConfig, error) {
	if !cmd.Flags().Changed("file") {
		if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
			return emptyGraph(), nil
		}
	}
	return loadConfig()
}

func emptyGraph() *config.GraphConfig {
	return &config.GraphConfig{
		Version: "1.0",
		Name:    "default",
		HTTP:    &config.HTTPConfig{Addr: config.DefaultHTTPAddr},
	}
}

// showGraph prints the live nodes and connections as reported by the
// context node itself.
func showGraph(ctx context.Context, w io.Writer, client *control.Client) error {
	nodes, err := client.Nodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list nodes: %w", err)
	}
	conns, err := client.Connections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}

	fmt.Fprintln(w)
	if _, err := listing.FormatNodesTable(w, nodes); err != nil {
		return err
	}
	fmt.Fprintln(w)
	_, err = listing.FormatConnectionsTable(w, conns)
	return err
}
