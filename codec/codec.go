// Package codec converts raw attachment bytes to and from a text-safe
// representation that survives JSON embedding and any text-based transport.
package codec

import (
	"encoding/base64"
	"fmt"
)

// MalformedEncodingError indicates that encoded attachment data could not be
// decoded, either because its length or its alphabet is invalid. It points at
// corrupt client input or storage corruption, not at a bug in this process.
type MalformedEncodingError struct {
	msg string
	err error
}

func (e *MalformedEncodingError) Error() string {
	return fmt.Sprintf("malformed encoding: %s", e.msg)
}

func (e *MalformedEncodingError) Unwrap() error {
	return e.err
}

// NewMalformedEncodingError wraps a decode failure.
func NewMalformedEncodingError(msg string, err error) *MalformedEncodingError {
	return &MalformedEncodingError{msg: msg, err: err}
}

// Encode returns the text-safe representation of raw. The output is printable
// ASCII and round-trips through Decode for every byte sequence, including the
// empty one.
func Encode(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// Decode reverses Encode. It returns a *MalformedEncodingError when data is
// not valid output of Encode.
func Decode(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, NewMalformedEncodingError(err.Error(), err)
	}

	return raw, nil
}
