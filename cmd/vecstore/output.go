package main

import (
	"fmt"
	"io"

	gojson "github.com/goccy/go-json"
)

// writeJSON pretty-prints v to out.
func writeJSON(out io.Writer, v any) error {
	data, err := gojson.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", data)
	return err
}
