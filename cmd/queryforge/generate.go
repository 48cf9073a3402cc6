package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a pipeline from a natural-language task",
	Long:  "Sends the task and the current resource context to the oracle, persists the generated steps, and validates them against the live schema and data directory.",
	RunE:  runGenerate,
}

var (
	generateConfig  string
	generateOwnerID int64
	generateTask    string
)

func init() {
	generateCmd.Flags().StringVar(&generateConfig, "config", "", "Path to config JSON file")
	generateCmd.Flags().Int64Var(&generateOwnerID, "owner-id", 1, "Owner ID to record on the pipeline")
	generateCmd.Flags().StringVarP(&generateTask, "task", "t", "", "Natural-language task (required)")

	if err := generateCmd.MarkFlagRequired("task"); err != nil {
		panic(fmt.Sprintf("failed to mark task flag as required: %v", err))
	}

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	eng, err := newEngine(ctx, generateConfig, true)
	if err != nil {
		return err
	}
	defer eng.Close()

	result, err := eng.service.Generate(ctx, generateOwnerID, generateTask)
	if err != nil {
		return err
	}

	fmt.Printf("Created pipeline %d with %d steps\n", result.PipelineID, len(result.Steps))
	eng.printer.PrintValidationReport(result.Report)
	if !result.Report.IsValid {
		fmt.Println("Pipeline has validation errors; fix the task or repair before running.")
	}
	return nil
}
