package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "ytscribe",
		Short:         "Transcribe the audio of YouTube videos",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to config.yaml (default $YTSCRIBE_CONFIG or ./config.yaml)")

	serve := newServeCmd()
	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(newTranscribeCmd())
	// A bare "ytscribe" starts the server.
	rootCmd.RunE = serve.RunE

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
