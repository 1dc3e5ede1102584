package commands

import (
	"encoding/json"
	"io"
)

// newJSONEncoder returns an indented JSON encoder, the format every
// --output json subcommand renders through.
func newJSONEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}
