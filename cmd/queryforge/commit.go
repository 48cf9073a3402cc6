package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Promote a verified pipeline to production",
	Long:  "Runs pre-commit validation, snapshots the production resources, applies query steps in one transaction and shell steps against the live data directory, then marks the pipeline committed.",
	RunE:  runCommit,
}

var (
	commitConfig     string
	commitPipelineID int64
	commitForce      bool
	commitDryRun     bool
)

func init() {
	commitCmd.Flags().StringVar(&commitConfig, "config", "", "Path to config JSON file")
	commitCmd.Flags().Int64VarP(&commitPipelineID, "pipeline-id", "p", 0, "Pipeline ID (required)")
	commitCmd.Flags().BoolVar(&commitForce, "force", false, "Commit even when the risk level is high")
	commitCmd.Flags().BoolVar(&commitDryRun, "dry-run", false, "Run pre-commit validation only")

	if err := commitCmd.MarkFlagRequired("pipeline-id"); err != nil {
		panic(fmt.Sprintf("failed to mark pipeline-id flag as required: %v", err))
	}

	rootCmd.AddCommand(commitCmd)
}

func runCommit(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	eng, err := newEngine(ctx, commitConfig, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	if commitDryRun {
		report, err := eng.service.PrecommitValidate(ctx, commitPipelineID)
		if err != nil {
			return err
		}
		fmt.Printf("Risk: %s (score %d)\n", report.RiskLevel, report.RiskScore)
		for _, w := range report.Warnings {
			fmt.Printf("Warning: %s\n", w)
		}
		if !report.OK {
			for _, e := range report.Errors {
				fmt.Printf("Error: %s\n", e)
			}
			return fmt.Errorf("pipeline %d is not ready to commit", commitPipelineID)
		}
		fmt.Println("Pipeline is ready to commit.")
		return nil
	}

	result, err := eng.service.Commit(ctx, commitPipelineID, commitForce)
	if err != nil {
		if result != nil && !result.RollbackAvailable {
			fmt.Println("Warning: filesystem changes were applied before the failure and were not reverted.")
		}
		return err
	}

	fmt.Printf("Committed pipeline %d (%d SQL operations, %d file operations, snapshot %d)\n",
		result.PipelineID, result.SQLOperations, result.FileOperations, result.SnapshotID)
	return nil
}
