package commsutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target. Numbers that
// land in interface values are kept as json.Number so large identifiers and
// epoch milliseconds survive the round trip.
func DecodePayload(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("commsutil:codec - empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("commsutil:codec - decode: %w", err)
	}
	return nil
}
