// Package main is the entry point for the actionctl CLI.
// The CLI is the operator terminal tool for interacting with the actionplane API.
package main

import (
	"os"

	"actionplane/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
