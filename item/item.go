// Package item defines the canonical data envelope passed between pipeline
// stages: a structured payload, optional binary attachments, free-form
// metadata, and a lineage index identifying which batch element the item
// descends from.
//
// Items are value objects. Stages never mutate an item they received; they
// return a new one. Clone provides the isolation needed when the same item is
// sent down more than one graph edge.
package item

import (
	"fmt"
	"time"
)

// DefaultAttachmentKey is the attachment key used for uploaded files when the
// caller does not choose one.
const DefaultAttachmentKey = "file"

// MergedFromMetadataKey is the metadata field carrying how many branch
// results were combined into an item at a join.
const MergedFromMetadataKey = "merged_from"

// AttachmentNotFoundError is returned when a task requests an attachment key
// that is not present on the item. This is a programming error in the task
// logic, not corrupt input.
type AttachmentNotFoundError struct {
	Key string
}

func (e *AttachmentNotFoundError) Error() string {
	return fmt.Sprintf("attachment %q not found", e.Key)
}

// Item is the unit of data flowing between pipeline stages. Its wire format
// is a JSON object with exactly the fields payload, attachments, metadata and
// lineage_index; the last two are absent when unset. A task that returns an
// item without attachments or metadata has cleared them; there is no
// implicit merge with the task's input.
type Item struct {
	Payload      *Payload              `json:"payload"`
	Attachments  map[string]Attachment `json:"attachments,omitempty"`
	Metadata     map[string]any        `json:"metadata,omitempty"`
	LineageIndex *int                  `json:"lineage_index,omitempty"`
}

// New returns an item with an empty payload.
func New() *Item {
	return &Item{Payload: NewPayload()}
}

type uploadConfig struct {
	extraPayload  *Payload
	attachmentKey string
	metadata      map[string]any
}

// UploadOption configures FromUpload.
type UploadOption func(*uploadConfig)

// WithExtraPayload merges additional payload fields over the derived ones.
func WithExtraPayload(p *Payload) UploadOption {
	return func(cfg *uploadConfig) {
		cfg.extraPayload = p
	}
}

// WithAttachmentKey stores the uploaded bytes under key instead of
// DefaultAttachmentKey.
func WithAttachmentKey(key string) UploadOption {
	return func(cfg *uploadConfig) {
		cfg.attachmentKey = key
	}
}

// WithUploadMetadata replaces the default upload metadata.
func WithUploadMetadata(metadata map[string]any) UploadOption {
	return func(cfg *uploadConfig) {
		cfg.metadata = metadata
	}
}

// FromUpload builds an item from an uploaded file. The payload carries the
// derived descriptive fields (file_name, content_type, size) merged with any
// extra payload, and the encoded bytes are stored as an attachment.
func FromUpload(raw []byte, fileName, mimeType string, opts ...UploadOption) *Item {
	cfg := uploadConfig{attachmentKey: DefaultAttachmentKey}
	for _, opt := range opts {
		opt(&cfg)
	}

	attachment := NewAttachment(raw, mimeType, fileName)

	payload := NewPayload()
	payload.Set("file_name", fileName)
	payload.Set("content_type", attachment.MimeType)
	payload.Set("size", attachment.FileSize)
	if cfg.extraPayload != nil {
		for _, k := range cfg.extraPayload.Keys() {
			v, _ := cfg.extraPayload.Get(k)
			payload.Set(k, v)
		}
	}

	metadata := cfg.metadata
	if metadata == nil {
		metadata = map[string]any{
			"source":            "upload",
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
			"original_filename": fileName,
		}
	}

	return &Item{
		Payload:     payload,
		Attachments: map[string]Attachment{cfg.attachmentKey: attachment},
		Metadata:    metadata,
	}
}

// FromStructuredData builds an item carrying value as its payload, with no
// attachments.
func FromStructuredData(value *Payload, metadata map[string]any) *Item {
	if value == nil {
		value = NewPayload()
	}
	if metadata == nil {
		metadata = map[string]any{
			"source":    "json",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
	}

	return &Item{
		Payload:  value,
		Metadata: metadata,
	}
}

// AttachmentBytes decodes the attachment stored under key. It returns an
// *AttachmentNotFoundError when the key is absent and propagates
// *codec.MalformedEncodingError when the stored data is corrupt.
func (i *Item) AttachmentBytes(key string) ([]byte, error) {
	attachment, ok := i.Attachments[key]
	if !ok {
		return nil, &AttachmentNotFoundError{Key: key}
	}

	return attachment.Bytes()
}

// WithAttachment returns a copy of the item with the attachment set under
// key. The receiver is left untouched.
func (i *Item) WithAttachment(key string, raw []byte, mimeType, fileName string) *Item {
	c := i.Clone()
	if c.Attachments == nil {
		c.Attachments = map[string]Attachment{}
	}
	c.Attachments[key] = NewAttachment(raw, mimeType, fileName)
	return c
}

// WithMetadataValue returns a copy of the item with the metadata field set.
func (i *Item) WithMetadataValue(key string, value any) *Item {
	c := i.Clone()
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	c.Metadata[key] = value
	return c
}

// Clone deep-copies the item. Mutations on the clone never affect the
// original, which is what makes concurrent execution of sibling branches
// race-free.
func (i *Item) Clone() *Item {
	c := &Item{
		Payload: i.Payload.Clone(),
	}

	if i.Attachments != nil {
		c.Attachments = make(map[string]Attachment, len(i.Attachments))
		for k, a := range i.Attachments {
			c.Attachments[k] = a
		}
	}

	if i.Metadata != nil {
		c.Metadata = make(map[string]any, len(i.Metadata))
		for k, v := range i.Metadata {
			c.Metadata[k] = deepCopyValue(v)
		}
	}

	if i.LineageIndex != nil {
		idx := *i.LineageIndex
		c.LineageIndex = &idx
	}

	return c
}
