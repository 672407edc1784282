package calendar

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/zapponejosh/panchaanga-api/internal/panchaanga"
)

// Stored years are msgpack-encoded using the json field names, so the
// payload and the API agree on field naming.
const structTag = "json"

func encodeYear(y *panchaanga.Year) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag(structTag)
	if err := enc.Encode(y); err != nil {
		return nil, fmt.Errorf("encode year: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeYear(b []byte) (*panchaanga.Year, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag(structTag)
	var y panchaanga.Year
	if err := dec.Decode(&y); err != nil {
		return nil, fmt.Errorf("decode year: %w", err)
	}
	return &y, nil
}
