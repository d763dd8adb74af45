package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func NewStatsCommand() *cobra.Command {
	ws := &workspace{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show manual and framework statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ws.setup(); err != nil {
				return err
			}
			defer ws.close()

			f, err := ws.load(cmd.Context())
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(f.Statistics(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	addWorkspaceFlags(cmd, ws)
	return cmd
}
