// Package main is the entry point for the crosscopy binary.
package main

import (
	"os"

	_ "github.com/duckdb/duckdb-go/v2"

	"crosscopy/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
