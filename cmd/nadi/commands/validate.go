package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyluth/nadi/internal/config"
	"github.com/dyluth/nadi/internal/printer"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a graph file without running it",
	Long: `Validate parses the graph file, checks its structure, and confirms that
every node names a known abstract node whose declared channels match the
configured connections. Plugins listed in the file are loaded; Redis is not
contacted.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	problems, err := checkGraph(cfg)
	if err != nil {
		return printer.Error("failed to load abstract nodes", err.Error(), nil)
	}
	if len(problems) > 0 {
		return printer.Error(
			fmt.Sprintf("graph file '%s' is invalid", configFile),
			strings.Join(problems, "\n"),
			[]string{"List the available abstract nodes:\n  nadi abstract"},
		)
	}

	printer.Success("%s is valid: %d nodes, %d connections\n", configFile, len(cfg.Nodes), len(cfg.Connections))
	return nil
}

// checkGraph resolves every node against the catalog and every connection
// against the declared channels. It returns one line per problem.
func checkGraph(cfg *config.GraphConfig) ([]string, error) {
	abstracts, _, err := catalog(cfg, nil)
	if err != nil {
		return nil, err
	}
	known := make(map[string]int, len(abstracts))
	for i, an := range abstracts {
		known[an.Descriptor().Name] = i
	}

	var problems []string
	for _, alias := range cfg.Aliases() {
		name := cfg.Nodes[alias].Abstract
		if _, ok := known[name]; !ok {
			problems = append(problems, fmt.Sprintf("node '%s': unknown abstract node '%s'", alias, name))
		}
	}

	for i, conn := range cfg.Connections {
		// Validate already verified that both endpoints parse.
		src, _ := config.ParseEndpoint(conn.Source)
		dst, _ := config.ParseEndpoint(conn.Destination)
		if !src.Node.IsAlias() || !dst.Node.IsAlias() {
			continue
		}
		if idx, ok := abstractOf(cfg, known, src.Node.Alias); ok && !abstracts[idx].Descriptor().HasOutput(src.Channel) {
			problems = append(problems, fmt.Sprintf("connection %d: '%s' has no output channel %s", i, src.Node.Alias, src.Channel))
		}
		if idx, ok := abstractOf(cfg, known, dst.Node.Alias); ok && !abstracts[idx].Descriptor().HasInput(dst.Channel) {
			problems = append(problems, fmt.Sprintf("connection %d: '%s' has no input channel %s", i, dst.Node.Alias, dst.Channel))
		}
	}

	sort.Strings(problems)
	return problems, nil
}

// abstractOf finds the catalog index of a configured node's abstract node.
// The context alias is skipped: its channels are fixed by the runtime.
func abstractOf(cfg *config.GraphConfig, known map[string]int, alias string) (int, bool) {
	node, ok := cfg.Nodes[alias]
	if !ok {
		return 0, false
	}
	idx, ok := known[node.Abstract]
	return idx, ok
}
