package item

import (
	"path"

	"flowforge/codec"
)

// Attachment is a file-like payload carried alongside an item's structured
// data. Data holds the text-safe encoding of the raw bytes; FileSize always
// equals the decoded byte length.
type Attachment struct {
	Data          string `json:"data"`
	MimeType      string `json:"mime_type"`
	FileName      string `json:"file_name,omitempty"`
	FileExtension string `json:"file_extension,omitempty"`
	FileSize      int64  `json:"file_size"`
}

// NewAttachment encodes raw and derives the descriptive fields from fileName.
func NewAttachment(raw []byte, mimeType, fileName string) Attachment {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return Attachment{
		Data:          codec.Encode(raw),
		MimeType:      mimeType,
		FileName:      fileName,
		FileExtension: path.Ext(fileName),
		FileSize:      int64(len(raw)),
	}
}

// Bytes decodes the attachment data. It returns a
// *codec.MalformedEncodingError when the data is corrupt or no longer decodes
// to exactly FileSize bytes.
func (a Attachment) Bytes() ([]byte, error) {
	raw, err := codec.Decode(a.Data)
	if err != nil {
		return nil, err
	}

	if int64(len(raw)) != a.FileSize {
		return nil, codec.NewMalformedEncodingError("decoded size does not match file_size", nil)
	}

	return raw, nil
}
