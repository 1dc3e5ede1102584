package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gomux/remotexpc/internal/jsonplist"
	"github.com/gomux/remotexpc/internal/plistcodec"
)

var dumpFormat string

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Decode a property list and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().StringVar(&dumpFormat, "as", "json", "output dialect (json)")
}

func runDump(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	value, _, err := plistcodec.Decode(raw)
	if err != nil {
		return fmt.Errorf("decode %s: %w", args[0], err)
	}

	out, err := jsonplist.Encode(value)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
