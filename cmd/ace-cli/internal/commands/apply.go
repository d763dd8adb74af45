package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/ace-go/pkg/ace"
)

func NewApplyCommand() *cobra.Command {
	ws := &workspace{}
	var deltaFile string
	var strategy string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply delta updates from a JSON file",
		Long: `Apply a batch of delta updates to the manual. The file holds a JSON
array of delta objects; each is applied independently and failures do
not block the rest of the batch.`,
		Example: `  # Apply a batch of deltas
  ace-cli apply --state manual.json --file deltas.json

  # Replace instead of merging
  ace-cli apply --state manual.json --file deltas.json --strategy replace`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ws.setup(); err != nil {
				return err
			}
			defer ws.close()

			data, err := os.ReadFile(deltaFile)
			if err != nil {
				return err
			}
			var deltas []*ace.DeltaUpdate
			if err := json.Unmarshal(data, &deltas); err != nil {
				return fmt.Errorf("failed to parse %s: %w", deltaFile, err)
			}

			ctx := cmd.Context()
			f, err := ws.load(ctx)
			if err != nil {
				return err
			}

			batch := f.Updater().BatchApply(deltas, ace.MergeStrategy(strategy))
			if err := ws.save(ctx, f); err != nil {
				return err
			}

			fmt.Printf("applied %d/%d deltas (%d failed)\n", batch.Successful, batch.Total, batch.Failed)
			for _, r := range batch.Results {
				if !r.Success {
					fmt.Printf("  failed: %s\n", r.Error)
				}
			}
			return nil
		},
	}

	addWorkspaceFlags(cmd, ws)
	cmd.Flags().StringVar(&deltaFile, "file", "", "path to JSON delta file (required)")
	cmd.Flags().StringVar(&strategy, "strategy", string(ace.StrategyDeterministic), "merge strategy: deterministic or replace")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
