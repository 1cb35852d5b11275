package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/me/cpusched/internal/config"
	"github.com/me/cpusched/internal/simulator"
	"github.com/me/cpusched/internal/tracing"
	"github.com/me/cpusched/internal/workload"
	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	var asJSON bool
	var maxTicks int
	var cpu uint32
	var traceFile string

	cmd := &cobra.Command{
		Use:   "simulate <workload.yaml>",
		Short: "Run a workload locally and print the schedule",
		Long: `Load a workload file, simulate it tick by tick and print a Gantt
timeline, the per-process results and aggregate statistics.

The report is printed even when the run hits the tick limit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			_, w, err := workload.NewLoader(logger).LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("load workload: %w", err)
			}

			if traceFile != "" {
				shutdown, err := tracing.Init("cpusched", Version, traceFile)
				if err != nil {
					return fmt.Errorf("init tracing: %w", err)
				}
				defer shutdown(context.Background())
			}

			cfg := config.DefaultSimulationConfig()
			cfg.MaxTicks = maxTicks
			cfg.CPU = cpu

			report, runErr := simulator.New(w, cfg, logger).Run(cmd.Context())
			if runErr != nil && !errors.Is(runErr, simulator.ErrTickLimit) {
				return fmt.Errorf("simulate: %w", runErr)
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return fmt.Errorf("encode report: %w", err)
				}
			} else {
				fmt.Fprintf(out, "Workload: %s  Policy: %s\n\n", w.Name, w.Policy())
				printReport(out, report)
			}

			if runErr != nil {
				return fmt.Errorf("simulate: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().IntVar(&maxTicks, "max-ticks", config.DefaultSimulationConfig().MaxTicks, "Stop after this many ticks (0 for no limit)")
	cmd.Flags().Uint32Var(&cpu, "cpu", 0, "Processor the scheduler runs on, unless the workload names one")
	cmd.Flags().StringVar(&traceFile, "trace-file", "", "Write OpenTelemetry spans as JSON to this file")

	return cmd
}
