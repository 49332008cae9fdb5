package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

func marshalJSON(v interface{}) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json: %w", err)
	}
	return append(b, '\n'), nil
}

// print writes v in the selected format. text renders the human readable
// form; when it is nil v is written as JSON instead.
func (e *env) print(v interface{}, text func(w io.Writer) error) error {
	switch {
	case e.format == "yaml":
		enc := yaml.NewEncoder(e.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case e.format == "json", text == nil:
		b, err := marshalJSON(v)
		if err != nil {
			return err
		}
		_, err = e.out.Write(b)
		return err
	default:
		return text(e.out)
	}
}
