package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode serializes r as a JSON array holding exactly one object.
// HTML characters are not escaped so the output matches the firmware byte for byte.
func Encode(r Record) ([]byte, error) {
	if len(r.Stacks) == 0 {
		return nil, ErrEmptyStacks
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]Record{r}); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
