package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show a pipeline and its execution history",
	RunE:  runLogs,
}

var (
	logsConfig     string
	logsPipelineID int64
)

func init() {
	logsCmd.Flags().StringVar(&logsConfig, "config", "", "Path to config JSON file")
	logsCmd.Flags().Int64VarP(&logsPipelineID, "pipeline-id", "p", 0, "Pipeline ID (required)")

	if err := logsCmd.MarkFlagRequired("pipeline-id"); err != nil {
		panic(fmt.Sprintf("failed to mark pipeline-id flag as required: %v", err))
	}

	rootCmd.AddCommand(logsCmd)
}

func runLogs(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	eng, err := newEngine(ctx, logsConfig, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	pipeline, steps, err := eng.service.Pipeline(ctx, logsPipelineID)
	if err != nil {
		return err
	}
	eng.printer.PrintPipeline(pipeline, steps)

	logs, err := eng.service.Logs(ctx, logsPipelineID)
	if err != nil {
		return err
	}
	eng.printer.PrintExecutionLogs(logs)
	return nil
}
