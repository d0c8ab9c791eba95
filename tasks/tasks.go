// Package tasks holds the builtin task handlers. They are registered
// explicitly at process start; workflows reference them by name in their
// node definitions.
package tasks

import (
	"context"
	"fmt"
	"strings"

	"flowforge/item"
	"flowforge/registry"
)

// RegisterAll registers every builtin task.
func RegisterAll(reg *registry.Registry) error {
	builtins := map[string]registry.Handler{
		"input_file":    InputFile,
		"call_agent":    CallAgent,
		"merge_results": MergeResults,
		"set_fields":    SetFields,
		"passthrough":   Passthrough,
	}

	for name, handler := range builtins {
		if err := reg.RegisterTask(name, handler); err != nil {
			return err
		}
	}

	return nil
}

// InputFile normalizes an uploaded document: it verifies the attachment is
// readable and mirrors its descriptors into the payload.
func InputFile(ctx context.Context, in *item.Item, config map[string]any) (*item.Item, error) {
	key, _ := config["attachment_key"].(string)
	if key == "" {
		key = item.DefaultAttachmentKey
	}

	att, ok := in.Attachments[key]
	if !ok {
		return nil, &item.AttachmentNotFoundError{Key: key}
	}

	// A corrupt upload fails here, at the entry of the pipeline.
	if _, err := att.Bytes(); err != nil {
		return nil, err
	}

	out := in.Clone()
	out.Payload.Set("file_name", att.FileName)
	out.Payload.Set("file_extension", att.FileExtension)
	out.Payload.Set("content_type", att.MimeType)
	out.Payload.Set("size", att.FileSize)

	return out, nil
}

// CallAgent stands in for an agent invocation: it echoes the configured
// prompt together with the payload keys it was shown. Deployments replace it
// by registering their own handler under the same name.
func CallAgent(ctx context.Context, in *item.Item, config map[string]any) (*item.Item, error) {
	agent, _ := config["agent"].(string)
	if agent == "" {
		return nil, fmt.Errorf("call_agent requires an agent name")
	}

	prompt, _ := config["prompt"].(string)

	out := in.Clone()
	out.Payload.Set("agent_response", fmt.Sprintf(
		"agent %s processed %d fields: %s",
		agent, in.Payload.Len(), strings.Join(in.Payload.Keys(), ", ")))
	out = out.WithMetadataValue("agent", agent)
	if prompt != "" {
		out = out.WithMetadataValue("prompt", prompt)
	}

	return out, nil
}

// MergeResults is the join-node handler: it receives the item the preceding
// branches were combined into and records the combination in the payload
// (merged_from count plus a summary line).
func MergeResults(ctx context.Context, in *item.Item, config map[string]any) (*item.Item, error) {
	// A join stamps the branch count into the metadata; invoked outside a
	// join the handler saw exactly one result.
	count := 1
	if n, ok := asInt(in.Metadata[item.MergedFromMetadataKey]); ok {
		count = n
	}

	out := in.Clone()
	out.Payload.Set("merged_from", count)
	out.Payload.Set("summary", fmt.Sprintf("Merged %d results", count))

	return out, nil
}

// asInt coerces the numeric types metadata values arrive as after a JSON
// round trip.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// SetFields writes the configured fields into the payload, overwriting
// existing keys.
func SetFields(ctx context.Context, in *item.Item, config map[string]any) (*item.Item, error) {
	fields, ok := config["fields"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("set_fields requires a fields object")
	}

	out := in.Clone()
	for key, value := range fields {
		out.Payload.Set(key, value)
	}

	return out, nil
}

// Passthrough returns the item unchanged. Useful as a join node that only
// merges.
func Passthrough(ctx context.Context, in *item.Item, config map[string]any) (*item.Item, error) {
	return in, nil
}
