package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/me/cpusched/pkg/model"
	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "submit <workload.yaml>",
		Short: "Simulate a workload on the server and store the run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read workload: %w", err)
			}
			logger.Debug("submitting workload", "path", args[0], "size", len(data))

			path := "/api/v1/runs"
			if dryRun {
				path += "?dry_run=true"
			}
			resp, err := client.PostWorkload(path, data)
			if err != nil {
				return fmt.Errorf("submit workload: %w", err)
			}

			if dryRun {
				var result struct {
					Name      string `json:"name"`
					Policy    string `json:"policy"`
					Processes int    `json:"processes"`
					Horizon   int    `json:"horizon"`
				}
				if err := json.Unmarshal(resp.Data, &result); err != nil {
					return fmt.Errorf("parse response: %w", err)
				}
				fmt.Fprintf(out, "Dry-run: workload %q is valid\n", result.Name)
				fmt.Fprintf(out, "  Policy:    %s\n", result.Policy)
				fmt.Fprintf(out, "  Processes: %d (last arrival at tick %d)\n", result.Processes, result.Horizon)
				fmt.Fprintln(out, "No run created.")
				return nil
			}

			var run model.Run
			if err := json.Unmarshal(resp.Data, &run); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Fprintf(out, "Run created: %s\n", run.ID)
			fmt.Fprintf(out, "  State:  %s\n", run.State)
			fmt.Fprintf(out, "  Policy: %s\n", run.Policy)
			if run.Error != "" {
				fmt.Fprintf(out, "  Error:  %s\n", run.Error)
			}
			if run.Report != nil {
				fmt.Fprintf(out, "  Ticks:  %d, %d of %d completed\n",
					run.Report.TotalTicks, run.Report.Completed(), len(run.Report.Processes))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the workload without running it")

	return cmd
}
