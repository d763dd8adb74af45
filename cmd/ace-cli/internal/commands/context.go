package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewContextCommand() *cobra.Command {
	ws := &workspace{}
	var maxItems int
	var prioritizeBy string

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Render the manual as prompt context",
		Example: `  # Print the full manual context
  ace-cli context --state manual.json

  # Top 5 items by confidence
  ace-cli context --state manual.json --max-items 5 --prioritize-by confidence`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ws.setup(); err != nil {
				return err
			}
			defer ws.close()

			f, err := ws.load(cmd.Context())
			if err != nil {
				return err
			}

			if prioritizeBy == "" {
				prioritizeBy = ws.cfg.Manual.PrioritizeBy
			}
			if maxItems == 0 {
				maxItems = ws.cfg.Manual.MaxContextItems
			}
			fmt.Println(f.ManualContext(maxItems, prioritizeBy))
			return nil
		},
	}

	addWorkspaceFlags(cmd, ws)
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "maximum items to include (0 = all)")
	cmd.Flags().StringVar(&prioritizeBy, "prioritize-by", "", "ordering: usage or confidence")
	return cmd
}
