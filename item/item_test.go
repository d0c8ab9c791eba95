package item

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"flowforge/codec"
)

func TestFromUpload_RoundTrip(t *testing.T) {
	raw := []byte("%PDF-1.7 fake document body")

	it := FromUpload(raw, "x.pdf", "application/pdf")

	name, _ := it.Payload.Get("file_name")
	require.Equal(t, "x.pdf", name)
	contentType, _ := it.Payload.Get("content_type")
	require.Equal(t, "application/pdf", contentType)
	size, _ := it.Payload.Get("size")
	require.Equal(t, int64(len(raw)), size)

	attachment := it.Attachments[DefaultAttachmentKey]
	require.Equal(t, ".pdf", attachment.FileExtension)
	require.Equal(t, int64(len(raw)), attachment.FileSize)

	decoded, err := it.AttachmentBytes(DefaultAttachmentKey)
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
}

func TestFromUpload_Options(t *testing.T) {
	extra := NewPayload()
	extra.Set("category", "invoice")

	it := FromUpload([]byte("data"), "a.txt", "text/plain",
		WithExtraPayload(extra),
		WithAttachmentKey("document"),
		WithUploadMetadata(map[string]any{"source": "test"}),
	)

	category, ok := it.Payload.Get("category")
	require.True(t, ok)
	require.Equal(t, "invoice", category)

	_, err := it.AttachmentBytes("document")
	require.NoError(t, err)

	require.Equal(t, map[string]any{"source": "test"}, it.Metadata)
}

func TestItem_AttachmentNotFound(t *testing.T) {
	it := FromStructuredData(NewPayload(), nil)

	_, err := it.AttachmentBytes("missing")
	require.Error(t, err)

	var notFound *AttachmentNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, "missing", notFound.Key)
}

func TestItem_CorruptAttachment(t *testing.T) {
	it := New()
	it.Attachments = map[string]Attachment{
		"file": {Data: "!!corrupt!!", MimeType: "text/plain", FileSize: 4},
	}

	_, err := it.AttachmentBytes("file")

	var malformed *codec.MalformedEncodingError
	require.True(t, errors.As(err, &malformed))
}

func TestItem_AttachmentSizeMismatch(t *testing.T) {
	attachment := NewAttachment([]byte("abcd"), "text/plain", "a.txt")
	attachment.FileSize = 99

	_, err := attachment.Bytes()

	var malformed *codec.MalformedEncodingError
	require.True(t, errors.As(err, &malformed))
}

func TestItem_CloneIsolation(t *testing.T) {
	original := FromUpload([]byte("payload"), "f.bin", "application/octet-stream")
	original.Payload.Set("nested", map[string]any{"a": 1})
	original.Metadata["tag"] = "original"
	lineage := 3
	original.LineageIndex = &lineage

	clone := original.Clone()
	require.Equal(t, original, clone)

	clone.Payload.Set("file_name", "changed")
	nested, _ := clone.Payload.Get("nested")
	nested.(map[string]any)["a"] = 2
	clone.Metadata["tag"] = "clone"
	*clone.LineageIndex = 7
	clone.Attachments["extra"] = NewAttachment([]byte("x"), "text/plain", "x.txt")

	name, _ := original.Payload.Get("file_name")
	require.Equal(t, "f.bin", name)
	originalNested, _ := original.Payload.Get("nested")
	require.Equal(t, 1, originalNested.(map[string]any)["a"])
	require.Equal(t, "original", original.Metadata["tag"])
	require.Equal(t, 3, *original.LineageIndex)
	require.NotContains(t, original.Attachments, "extra")
}

func TestItem_WithAttachment(t *testing.T) {
	original := FromStructuredData(NewPayload(), nil)

	updated := original.WithAttachment("report", []byte("csv,data"), "text/csv", "report.csv")

	require.Empty(t, original.Attachments)
	raw, err := updated.AttachmentBytes("report")
	require.NoError(t, err)
	require.Equal(t, []byte("csv,data"), raw)
}

func TestItem_WireFormat(t *testing.T) {
	payload := NewPayload()
	payload.Set("b", 1)
	payload.Set("a", 2)

	lineage := 0
	it := &Item{
		Payload:      payload,
		LineageIndex: &lineage,
	}

	data, err := json.Marshal(it)
	require.NoError(t, err)
	require.JSONEq(t, `{"payload":{"b":1,"a":2},"lineage_index":0}`, string(data))

	// Key order survives the round trip.
	var decoded Item
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, []string{"b", "a"}, decoded.Payload.Keys())
	require.Equal(t, 0, *decoded.LineageIndex)
	require.Nil(t, decoded.Attachments)
	require.Nil(t, decoded.Metadata)
}

func TestPayload_OrderPreserved(t *testing.T) {
	p := NewPayload()
	p.Set("z", 1)
	p.Set("a", 2)
	p.Set("m", 3)
	p.Set("a", 4) // update keeps original position

	require.Equal(t, []string{"z", "a", "m"}, p.Keys())

	data, err := json.Marshal(p)
	require.NoError(t, err)
	require.Equal(t, `{"z":1,"a":4,"m":3}`, string(data))

	p.Delete("a")
	require.Equal(t, []string{"z", "m"}, p.Keys())
}
