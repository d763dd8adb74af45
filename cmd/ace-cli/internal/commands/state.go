package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/ace-go/pkg/ace"
)

func NewExportCommand() *cobra.Command {
	ws := &workspace{}
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the manual's full state to a JSON file",
		Example: `  # Export the latest SQLite snapshot to JSON
  ace-cli export --db ./ace.db --manual prod --out state.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ws.setup(); err != nil {
				return err
			}
			defer ws.close()

			f, err := ws.load(cmd.Context())
			if err != nil {
				return err
			}
			if err := f.SaveState(out); err != nil {
				return err
			}
			fmt.Printf("exported manual %s to %s\n", f.Manual().ManualID, out)
			return nil
		},
	}

	addWorkspaceFlags(cmd, ws)
	cmd.Flags().StringVar(&out, "out", "", "output file path (required)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func NewImportCommand() *cobra.Command {
	ws := &workspace{}
	var in string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON state file",
		Long: `Load an exported state file and persist it to the configured
destinations (SQLite snapshot database and/or state file).`,
		Example: `  # Import a JSON export into a SQLite database
  ace-cli import --db ./ace.db --in state.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ws.setup(); err != nil {
				return err
			}
			defer ws.close()

			ctx := cmd.Context()
			f, err := ace.LoadState(in, ws.generateFunc())
			if err != nil {
				return err
			}
			if err := ws.save(ctx, f); err != nil {
				return err
			}

			stats := f.Statistics()
			fmt.Printf("imported manual %s: %d items, %d recorded updates\n",
				f.Manual().ManualID, stats.ManualStats.TotalItems, stats.UpdateHistoryCount)
			return nil
		},
	}

	addWorkspaceFlags(cmd, ws)
	cmd.Flags().StringVar(&in, "in", "", "input file path (required)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func NewVersionsCommand() *cobra.Command {
	ws := &workspace{}

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List stored snapshot versions for a manual",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ws.setup(); err != nil {
				return err
			}
			defer ws.close()

			if ws.store == nil {
				return fmt.Errorf("no snapshot database configured (use --db or storage.path)")
			}
			if ws.manualID == "" {
				return fmt.Errorf("a manual id is required (use --manual or manual.id)")
			}

			infos, err := ws.store.ListVersions(cmd.Context(), ws.manualID)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("no snapshots found")
				return nil
			}
			for _, info := range infos {
				fmt.Printf("v%-4d %s  %d bytes\n", info.Version, info.SavedAt.Format("2006-01-02 15:04:05"), info.SizeBytes)
			}
			return nil
		},
	}

	addWorkspaceFlags(cmd, ws)
	return cmd
}
