// Package main is the entry point for the mockapi CLI.
package main

import (
	"fmt"
	"os"

	"github.com/potterlabs/mockapi/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
