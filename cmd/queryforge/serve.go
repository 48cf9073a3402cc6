package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonathan/queryforge/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  "Exposes the pipeline lifecycle over a REST API: generation, validation, sandbox runs, repair, commit, and rollback. The server runs until interrupted and shuts down gracefully.",
	RunE:  runServe,
}

var (
	serveConfig string
	servePort   int
)

func init() {
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Path to config JSON file")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	// The server needs the oracle for generation and repair endpoints.
	eng, err := newEngine(ctx, serveConfig, true)
	if err != nil {
		return err
	}
	defer eng.Close()

	srv, err := server.New(server.Config{
		Port:    servePort,
		Service: eng.service,
	})
	if err != nil {
		return err
	}

	return srv.Start()
}
