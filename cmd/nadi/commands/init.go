package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/nadi/internal/scaffold"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init [DIR]",
	Short: "Create a starter graph file and control script",
	Long: `Initialize a new NADI graph with an example configuration.

Creates:
  • nadi.yml   - A ticker feeding a logger through a relay
  • wire.jsonc - A control script that adds a second logger at runtime

DIR defaults to the current directory.

Use --force to overwrite existing files.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	// Note: Cannot use -f shorthand because it conflicts with the global --file flag
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing nadi.yml and wire.jsonc")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	if err := scaffold.Initialize(dir, forceInit); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess(dir)
	return nil
}
