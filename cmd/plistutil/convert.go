package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gomux/remotexpc/internal/plistcodec"
)

var convertTo string

var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert a property list between the binary and XML dialects",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

func init() {
	convertCmd.Flags().StringVar(&convertTo, "to", "xml", "target dialect (bplist|xml)")
}

func runConvert(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	value, _, err := plistcodec.Decode(raw)
	if err != nil {
		return fmt.Errorf("decode %s: %w", args[0], err)
	}

	var dialect plistcodec.Dialect
	switch convertTo {
	case "xml":
		dialect = plistcodec.DialectXML
	case "bplist":
		dialect = plistcodec.DialectBinary
	default:
		return fmt.Errorf("unknown target dialect %q (want bplist or xml)", convertTo)
	}

	out, err := plistcodec.Encode(value, dialect)
	if err != nil {
		return fmt.Errorf("encode %s: %w", convertTo, err)
	}

	_, err = os.Stdout.Write(out)
	return err
}
