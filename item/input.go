package item

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnsupportedPayload is returned when a structured ingress payload is
// neither a JSON object nor a JSON array of objects.
var ErrUnsupportedPayload = errors.New("structured payload must be a JSON object or an array of objects")

// File is one uploaded file in an ingress batch.
type File struct {
	Data     []byte
	Name     string
	MimeType string
}

// Input is the collection of items produced from one ingress event. Item
// order always matches input order, and the item count equals the number of
// logical input units.
type Input struct {
	Items []*Item `json:"items"`
}

// InputFromFiles builds one item per file, in order. Each item gets the
// 0-based position of its file as lineage index, and batchMetadata is merged
// into every item's metadata.
func InputFromFiles(files []File, batchMetadata map[string]any) *Input {
	items := make([]*Item, 0, len(files))

	for idx, f := range files {
		metadata := map[string]any{}
		for k, v := range batchMetadata {
			metadata[k] = v
		}
		metadata["file_index"] = idx

		it := FromUpload(f.Data, f.Name, f.MimeType)
		for k, v := range metadata {
			it.Metadata[k] = v
		}

		lineage := idx
		it.LineageIndex = &lineage
		items = append(items, it)
	}

	return &Input{Items: items}
}

// InputFromStructured builds an input from a raw JSON ingress payload. An
// array yields one item per element with lineage indices 0..n-1; a single
// object yields exactly one item with no lineage index.
func InputFromStructured(raw []byte) (*Input, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, ErrUnsupportedPayload
	}

	switch trimmed[0] {
	case '{':
		payload := NewPayload()
		if err := json.Unmarshal(trimmed, payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
		}

		return &Input{Items: []*Item{FromStructuredData(payload, nil)}}, nil

	case '[':
		var elements []json.RawMessage
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
		}

		items := make([]*Item, 0, len(elements))
		for idx, element := range elements {
			payload := NewPayload()
			if err := json.Unmarshal(element, payload); err != nil {
				return nil, fmt.Errorf("%w: element %d: %v", ErrUnsupportedPayload, idx, err)
			}

			it := FromStructuredData(payload, nil)
			it.Metadata["item_index"] = idx

			lineage := idx
			it.LineageIndex = &lineage
			items = append(items, it)
		}

		return &Input{Items: items}, nil

	default:
		return nil, ErrUnsupportedPayload
	}
}
