package main

import (
	"encoding/json"
	"io"
)

// writeJSON emits v as indented JSON followed by a newline.
func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
