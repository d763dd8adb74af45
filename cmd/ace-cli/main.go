package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/ace-go/cmd/ace-cli/internal/commands"
)

var rootCmd = &cobra.Command{
	Use:   "ace-cli",
	Short: "CLI for managing an evolving manual",
	Long: `A command-line interface for the ace-go framework: an evolving manual of
instructions, examples, patterns, constraints, insights, and refinements
that grows through incremental delta updates.

The CLI provides:
- Adding items and applying delta updates to a manual
- Rendering the manual as prompt context
- Running full generate-reflect-curate cycles
- Exporting, importing, and versioning manual state`,
	Version: "0.1.0",
}

func main() {
	rootCmd.AddCommand(
		commands.NewAddCommand(),
		commands.NewApplyCommand(),
		commands.NewContextCommand(),
		commands.NewStatsCommand(),
		commands.NewCycleCommand(),
		commands.NewExportCommand(),
		commands.NewImportCommand(),
		commands.NewVersionsCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
