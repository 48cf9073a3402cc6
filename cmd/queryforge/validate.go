package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Re-validate a pipeline against the live resource context",
	RunE:  runValidate,
}

var (
	validateConfig     string
	validatePipelineID int64
)

func init() {
	validateCmd.Flags().StringVar(&validateConfig, "config", "", "Path to config JSON file")
	validateCmd.Flags().Int64VarP(&validatePipelineID, "pipeline-id", "p", 0, "Pipeline ID (required)")

	if err := validateCmd.MarkFlagRequired("pipeline-id"); err != nil {
		panic(fmt.Sprintf("failed to mark pipeline-id flag as required: %v", err))
	}

	rootCmd.AddCommand(validateCmd)
}

func runValidate(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	eng, err := newEngine(ctx, validateConfig, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	report, err := eng.service.Validate(ctx, validatePipelineID)
	if err != nil {
		return err
	}
	eng.printer.PrintValidationReport(report)
	if !report.IsValid {
		return fmt.Errorf("pipeline %d failed validation", validatePipelineID)
	}
	return nil
}
