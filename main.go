// Package main is the entry point for the dirsize CLI.
package main

import (
	"os"

	"github.com/idelchi/dirsize/internal/cli"
)

// version is set at build time.
//
//nolint:gochecknoglobals // Set by the linker
var version = "unknown - unofficial & generated by unknown"

func main() {
	if err := cli.New(version).Execute(); err != nil {
		os.Exit(1)
	}
}
