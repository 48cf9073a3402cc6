// Package main provides the entry point for the QueryForge pipeline engine CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "queryforge",
	Short: "QueryForge pipeline engine",
	Long:  "QueryForge turns natural-language data tasks into validated shell and SQL pipelines, runs them in an isolated sandbox, repairs failures with oracle assistance, and commits verified pipelines to production.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
