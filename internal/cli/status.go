package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/me/cpusched/pkg/model"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "status <run_id>",
		Short: "Show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			id := args[0]

			resp, err := client.Get("/api/v1/runs/" + id)
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}

			var run model.Run
			if err := json.Unmarshal(resp.Data, &run); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Fprintf(out, "Run: %s\n", run.ID)
			fmt.Fprintf(out, "  Name:    %s\n", run.Name)
			fmt.Fprintf(out, "  Policy:  %s\n", run.Policy)
			fmt.Fprintf(out, "  State:   %s\n", run.State)
			fmt.Fprintf(out, "  Created: %s\n", run.CreatedAt.Format(time.RFC3339))
			if run.EndedAt != nil {
				fmt.Fprintf(out, "  Ended:   %s\n", run.EndedAt.Format(time.RFC3339))
			}
			if run.Error != "" {
				fmt.Fprintf(out, "  Error:   %s\n", run.Error)
			}
			if run.Report == nil {
				return nil
			}

			fmt.Fprintln(out)
			if full {
				printReport(out, run.Report)
			} else {
				printSummary(out, run.Report)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Also print the timeline and the per-process table")

	return cmd
}
