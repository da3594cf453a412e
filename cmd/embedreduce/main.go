// Package main provides the embedreduce CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sanonone/embedreduce/internal/server"
	"github.com/spf13/cobra"
)

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration file missing or invalid
	ExitDataError   = 3 // Input rejected (malformed JSON, validation failure)
)

// exitError carries the process exit code for a command failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// SilenceErrors is set, so cobra errors (unknown flags, bad args) are printed here.
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		if e, ok := err.(*exitError); ok {
			os.Exit(e.code)
		}
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "embedreduce",
	Short: "PCA dimensionality reduction for embedding vectors",
	Long: `embedreduce reduces batches of embedding vectors to a lower dimensionality
with principal component analysis.

Run it as an HTTP service (POST /pca, with an MCP endpoint at /mcp) or
reduce a JSON file locally from the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configPath string

func init() {
	// Load .env file if present (HOST, PORT, EMBEDREDUCE_ADDR)
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")
	rootCmd.Version = server.Version
}
