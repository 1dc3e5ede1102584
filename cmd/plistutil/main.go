// Command plistutil dumps and converts property lists between the binary
// (bplist v0), XML, and JSON dialects exercised by internal/bplist and
// internal/xmlplist.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "plistutil",
	Short:   "Inspect and convert property lists (bplist, XML, JSON)",
	Version: version,
}

func main() {
	rootCmd.AddCommand(dumpCmd, convertCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
