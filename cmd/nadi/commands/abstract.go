package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/nadi/internal/bridge"
	"github.com/dyluth/nadi/internal/filter"
	"github.com/dyluth/nadi/internal/listing"
	"github.com/dyluth/nadi/internal/printer"
	"github.com/dyluth/nadi/pkg/nadi"
)

var (
	abstractOutputFormat string
	abstractPlugins      []string
	abstractName         string
	abstractKind         string
	abstractDataType     string
)

var abstractCmd = &cobra.Command{
	Use:   "abstract",
	Short: "List the abstract nodes a graph can instantiate",
	Long: `Abstract lists the built-in abstract nodes, the Redis bridge nodes when
the graph file configures redis, and any plugins from the graph file or
--plugin, with their versions and declared channels.

The graph file is optional for this command.

Filters:
  --name      - Glob pattern on the abstract name ("redis-*")
  --kind      - builtin or plugin
  --data-type - Some declared channel carries this format ("json")

Output Formats:
  default - Human-readable table
  jsonl   - One descriptor per line, as reported by context.abstract_nodes`,
	RunE: runAbstract,
}

func init() {
	abstractCmd.Flags().StringVarP(&abstractOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	abstractCmd.Flags().StringSliceVar(&abstractPlugins, "plugin", nil, "Additional plugin to load (repeatable)")
	abstractCmd.Flags().StringVar(&abstractName, "name", "", "Filter by abstract name (glob pattern)")
	abstractCmd.Flags().StringVar(&abstractKind, "kind", "", "Filter by kind: builtin or plugin")
	abstractCmd.Flags().StringVar(&abstractDataType, "data-type", "", "Filter by channel data type")
	rootCmd.AddCommand(abstractCmd)
}

func runAbstract(cmd *cobra.Command, args []string) error {
	if abstractOutputFormat != "default" && abstractOutputFormat != "jsonl" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", abstractOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	if abstractKind != "" && abstractKind != string(nadi.KindBuiltin) && abstractKind != string(nadi.KindPlugin) {
		return printer.Error(
			"invalid kind",
			fmt.Sprintf("Unknown kind: %s", abstractKind),
			[]string{"Valid kinds: builtin, plugin"},
		)
	}
	criteria := filter.Criteria{
		NameGlob: abstractName,
		Kind:     nadi.Kind(abstractKind),
		DataType: abstractDataType,
	}

	cfg := emptyGraph()
	if _, err := os.Stat(configFile); err == nil || cmd.Flags().Changed("file") {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check graph file: %w", err)
	}
	cfg.Plugins = append(cfg.Plugins, abstractPlugins...)

	// Listing never connects to Redis, so the bridge is built without a client.
	inspect := *cfg
	inspect.Redis = nil
	rt, err := newRuntime(&inspect, log.New(io.Discard, "", 0))
	if err != nil {
		return printer.Error("failed to load abstract nodes", err.Error(), nil)
	}
	defer rt.close(context.Background())

	if cfg.Redis != nil {
		b, err := bridge.New(nil, cfg.Name)
		if err != nil {
			return err
		}
		if err := b.Register(rt.graph); err != nil {
			return err
		}
	}

	abstracts := criteria.Apply(rt.graph.AbstractNodes())
	out := cmd.OutOrStdout()
	if abstractOutputFormat == "jsonl" {
		return listing.FormatJSONL(out, abstracts)
	}
	_, err = listing.FormatAbstractTable(out, abstracts)
	return err
}
