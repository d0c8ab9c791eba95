package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	allBytes := make([]byte, 256)
	for i := range allBytes {
		allBytes[i] = byte(i)
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "empty", raw: []byte{}},
		{name: "single byte", raw: []byte{0x00}},
		{name: "text", raw: []byte("hello workflow")},
		{name: "pdf header", raw: []byte("%PDF-1.7\x00\x01\x02")},
		{name: "all byte values", raw: allBytes},
		{name: "all 255", raw: bytes.Repeat([]byte{0xff}, 1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := Encode(tt.raw)

			for _, c := range encoded {
				require.True(t, c >= '+' && c <= 'z', "encoded output must be printable ASCII, got %q", c)
			}

			decoded, err := Decode(encoded)
			require.NoError(t, err)
			require.Equal(t, tt.raw, decoded)
		})
	}
}

func TestCodec_DecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "invalid alphabet", data: "!!!not base64!!!"},
		{name: "invalid length", data: "abcde"},
		{name: "embedded control characters", data: "ab\x00cd=="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)

			var malformed *MalformedEncodingError
			require.True(t, errors.As(err, &malformed))
		})
	}
}
