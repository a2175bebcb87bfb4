// Package main provides the entry point for the ragsmith CLI.
package main

import (
	"os"

	"github.com/ragsmith/ragsmith/cmd/ragsmith/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
