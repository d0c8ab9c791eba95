package executor

import (
	"flowforge/compile"
	"flowforge/item"
)

// mergeItems combines the branch outputs of a parallel group into a single
// item. Branch order is the compiled branch order, so later branches win
// conflicting keys under both policies.
func mergeItems(policy compile.MergePolicy, inputs []*item.Item) *item.Item {
	merged := &item.Item{
		Payload:     item.NewPayload(),
		Attachments: map[string]item.Attachment{},
		Metadata:    map[string]any{},
	}

	for _, in := range inputs {
		if in == nil {
			continue
		}

		if merged.LineageIndex == nil && in.LineageIndex != nil {
			idx := *in.LineageIndex
			merged.LineageIndex = &idx
		}

		if in.Payload != nil {
			for _, key := range in.Payload.Keys() {
				value, _ := in.Payload.Get(key)
				if policy == compile.MergeDeep {
					if existing, ok := merged.Payload.Get(key); ok {
						value = deepMergeValue(existing, value)
					}
				}
				merged.Payload.Set(key, value)
			}
		}

		for key, att := range in.Attachments {
			merged.Attachments[key] = att
		}
		for key, value := range in.Metadata {
			merged.Metadata[key] = value
		}
	}

	if len(merged.Attachments) == 0 {
		merged.Attachments = nil
	}
	if len(merged.Metadata) == 0 {
		merged.Metadata = nil
	}

	return merged
}

// deepMergeValue merges two payload values. Objects merge recursively,
// anything else is replaced by the newer value.
func deepMergeValue(old, new any) any {
	oldMap, ook := old.(map[string]any)
	newMap, nok := new.(map[string]any)
	if !ook || !nok {
		return new
	}

	out := make(map[string]any, len(oldMap)+len(newMap))
	for k, v := range oldMap {
		out[k] = v
	}
	for k, v := range newMap {
		if existing, ok := out[k]; ok {
			out[k] = deepMergeValue(existing, v)
			continue
		}
		out[k] = v
	}

	return out
}
