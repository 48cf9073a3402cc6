package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a pipeline in an isolated sandbox",
	Long:  "Copies the data directory and store into a fresh sandbox, executes every step in order, and records an execution log per step. The sandbox is removed on success and kept for inspection on failure.",
	RunE:  runRun,
}

var (
	runConfig     string
	runPipelineID int64
)

func init() {
	runCmd.Flags().StringVar(&runConfig, "config", "", "Path to config JSON file")
	runCmd.Flags().Int64VarP(&runPipelineID, "pipeline-id", "p", 0, "Pipeline ID (required)")

	if err := runCmd.MarkFlagRequired("pipeline-id"); err != nil {
		panic(fmt.Sprintf("failed to mark pipeline-id flag as required: %v", err))
	}

	rootCmd.AddCommand(runCmd)
}

func runRun(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	eng, err := newEngine(ctx, runConfig, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	report, err := eng.service.RunSandbox(ctx, runPipelineID)
	if err != nil {
		return err
	}
	eng.printer.PrintRunReport(report)
	if !report.OverallSuccess {
		return fmt.Errorf("pipeline %d failed in the sandbox; try 'queryforge repair -p %d'", runPipelineID, runPipelineID)
	}
	return nil
}
