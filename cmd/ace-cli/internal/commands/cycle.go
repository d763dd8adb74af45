package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/ace-go/pkg/ace"
)

func NewCycleCommand() *cobra.Command {
	ws := &workspace{}
	var taskContext string
	var failed bool
	var feedbackError string

	cmd := &cobra.Command{
		Use:   "cycle TASK",
		Short: "Run one generate-reflect-curate cycle",
		Long: `Run a full cycle: generate a response for the task using the manual's
context, reflect on the outcome, and curate the resulting insights back
into the manual. Requires an Anthropic API key (flag, config, or
ANTHROPIC_API_KEY); without one the agents run in offline mode.`,
		Example: `  # Successful run
  ace-cli cycle --state manual.json "deploy the billing service"

  # Record a failure so the manual learns the lesson
  ace-cli cycle --state manual.json --failed --error "migration timed out" "run db migration"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ws.setup(); err != nil {
				return err
			}
			defer ws.close()

			ctx := cmd.Context()
			f, err := ws.load(ctx)
			if err != nil {
				return err
			}

			feedback := &ace.ExecutionFeedback{}
			if feedbackError != "" {
				feedback.Error = feedbackError
			}

			result, err := f.ExecuteCycle(ctx, args[0], taskContext, feedback, !failed)
			if err != nil {
				return err
			}
			if err := ws.save(ctx, f); err != nil {
				return err
			}

			fmt.Printf("cycle %s: %d insights, %d applied, %d rejected\n",
				result.CycleID,
				result.Reflection.InsightsCount,
				result.Curation.Summary.Applied,
				result.Curation.Summary.Rejected)
			fmt.Println(result.Generation.Response)
			return nil
		},
	}

	addWorkspaceFlags(cmd, ws)
	cmd.Flags().StringVar(&taskContext, "context", "", "additional task context")
	cmd.Flags().BoolVar(&failed, "failed", false, "mark the execution as failed")
	cmd.Flags().StringVar(&feedbackError, "error", "", "error message from the failed execution")
	return cmd
}
