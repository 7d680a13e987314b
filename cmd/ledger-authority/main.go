package main

import (
	"os"

	"ledger/internal/cli"
	"ledger/internal/commands"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	if err := commands.NewAuthorityCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
