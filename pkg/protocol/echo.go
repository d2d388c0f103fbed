package protocol

import (
	"fmt"
	"io"
)

// Echo writes the human-readable parameter dump of cfg: one "key: value" line
// per field of the selected mode, led by the mode and run number.
func Echo(w io.Writer, cfg *RunConfig) {
	fmt.Fprintf(w, "mode: %s\n", cfg.Mode)
	fmt.Fprintf(w, "run: %d\n", cfg.Run)
	schema := SchemaFor(cfg.Mode)
	for i := range schema {
		fmt.Fprintf(w, "%s: %s\n", schema[i].Name, schema[i].Value(cfg))
	}
}

// Encode renders cfg as the sequence of protocol lines a host sends to start
// the run: the mode key, one line per field and the done terminator.
func Encode(cfg *RunConfig) []string {
	schema := SchemaFor(cfg.Mode)
	if schema == nil {
		return nil
	}
	lines := make([]string, 0, len(schema)+2)
	lines = append(lines, cfg.Mode.String())
	for i := range schema {
		lines = append(lines, schema[i].ID+","+schema[i].Value(cfg))
	}
	return append(lines, KeyDone)
}
