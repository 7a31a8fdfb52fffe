package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// emit writes v to -o or stdout in the selected format.
func (o *options) emit(stdout io.Writer, v interface{}) error {
	if err := o.write(stdout, v); err != nil {
		return err
	}
	if o.prof != nil {
		_, err := io.WriteString(o.stderr, o.prof.Report())
		return err
	}
	return nil
}

func (o *options) write(stdout io.Writer, v interface{}) error {
	w := stdout
	if o.output != "" {
		f, err := os.Create(o.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return encode(w, o.format, v)
}

func encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case "msgpack":
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("msgpack")
		return enc.Encode(v)
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return fmt.Errorf("%w: unknown output format %q", errUsage, format)
}
