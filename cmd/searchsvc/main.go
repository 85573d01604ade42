// Package main provides the entry point for the searchsvc CLI.
package main

import (
	"os"

	"github.com/aman-cerp/shopsearch/cmd/searchsvc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
