package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Ask the oracle to patch the latest failure",
	Long:  "Classifies the most recent failed execution, asks the oracle for a corrected step, validates the fix, and applies it. Attempts are bounded; re-run the sandbox afterwards to verify the fix.",
	RunE:  runRepair,
}

var (
	repairConfig     string
	repairPipelineID int64
)

func init() {
	repairCmd.Flags().StringVar(&repairConfig, "config", "", "Path to config JSON file")
	repairCmd.Flags().Int64VarP(&repairPipelineID, "pipeline-id", "p", 0, "Pipeline ID (required)")

	if err := repairCmd.MarkFlagRequired("pipeline-id"); err != nil {
		panic(fmt.Sprintf("failed to mark pipeline-id flag as required: %v", err))
	}

	rootCmd.AddCommand(repairCmd)
}

func runRepair(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	eng, err := newEngine(ctx, repairConfig, true)
	if err != nil {
		return err
	}
	defer eng.Close()

	result, err := eng.service.Repair(ctx, repairPipelineID)
	if err != nil {
		return err
	}

	fmt.Printf("Repair attempt %d patched step %d (%s)\n", result.Attempt, result.StepNumber, result.Category)
	fmt.Printf("Reason: %s\n", result.FixReason)
	fmt.Printf("Re-run the sandbox to verify: queryforge run -p %d\n", repairPipelineID)
	return nil
}
