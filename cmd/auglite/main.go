// Package main provides the entry point for the auglite CLI.
package main

import (
	"os"

	"github.com/zoonderkins/augment-lite-mcp/cmd/auglite/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
