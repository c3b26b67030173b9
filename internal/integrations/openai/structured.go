package openai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DecodeStructured decodes a json_schema completion into out. Unknown fields
// and trailing data are rejected.
func DecodeStructured(raw string, out any) error {
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("openai: decode structured output: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("openai: decode structured output: multiple JSON values")
		}
		return fmt.Errorf("openai: decode structured output trailing data: %w", err)
	}
	return nil
}
