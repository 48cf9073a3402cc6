package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/queryforge/internal/commit"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Mark a committed pipeline as rolled back",
	Long:  "Records rollback intent for a committed pipeline. Store mutations are permanent once committed, so reversing them requires manual intervention; the pre-commit snapshot describes the prior state.",
	RunE:  runRollback,
}

var (
	rollbackConfig     string
	rollbackPipelineID int64
)

func init() {
	rollbackCmd.Flags().StringVar(&rollbackConfig, "config", "", "Path to config JSON file")
	rollbackCmd.Flags().Int64VarP(&rollbackPipelineID, "pipeline-id", "p", 0, "Pipeline ID (required)")

	if err := rollbackCmd.MarkFlagRequired("pipeline-id"); err != nil {
		panic(fmt.Sprintf("failed to mark pipeline-id flag as required: %v", err))
	}

	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	eng, err := newEngine(ctx, rollbackConfig, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	err = eng.service.Rollback(ctx, rollbackPipelineID)
	if errors.Is(err, commit.ErrManualRollback) {
		fmt.Printf("Pipeline %d marked as rolled back.\n", rollbackPipelineID)
		fmt.Println("Note: production changes cannot be automatically reversed; restore from the pre-commit snapshot manually.")
		return nil
	}
	return err
}
