package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/ace-go/pkg/ace"
)

func NewAddCommand() *cobra.Command {
	ws := &workspace{}
	var itemType string
	var tags []string
	var createdBy string
	var confidence float64

	cmd := &cobra.Command{
		Use:   "add CONTENT",
		Short: "Add an item to the manual",
		Example: `  # Add a constraint
  ace-cli add --type constraint --tags security "Use HTTPS for all API calls"

  # Add an instruction into a SQLite-backed manual
  ace-cli add --db ./ace.db --manual prod --type instruction "Pin dependency versions"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ws.setup(); err != nil {
				return err
			}
			defer ws.close()

			t := ace.ItemType(strings.ToLower(itemType))
			if !t.Valid() {
				return fmt.Errorf("invalid item type %q (valid: %v)", itemType, ace.ItemTypes)
			}

			ctx := cmd.Context()
			f, err := ws.load(ctx)
			if err != nil {
				return err
			}

			id := f.AddManualItem(args[0], t, tags, createdBy, confidence)
			if err := ws.save(ctx, f); err != nil {
				return err
			}

			fmt.Printf("added %s item %s\n", t, id)
			return nil
		},
	}

	addWorkspaceFlags(cmd, ws)
	cmd.Flags().StringVar(&itemType, "type", "instruction", "item type")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "comma-separated tags")
	cmd.Flags().StringVar(&createdBy, "created-by", "user", "creator name")
	cmd.Flags().Float64Var(&confidence, "confidence", 1.0, "confidence score")
	return cmd
}
