// Package main implements the sleuth CLI.
// It builds control flow graphs for Lingo programs and drives dataflow
// analyses over them.
package main

import (
	"os"

	"github.com/l3aro/go-sleuth/cmd/sleuth/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Flags().BoolP("version", "v", false, "Print version information")
	commands.RootCmd.SetVersionTemplate(`sleuth version {{.Version}}
`)
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = version + " (built " + buildTime + ")"
	}

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
