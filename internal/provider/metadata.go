package provider

import "encoding/json"

// SanitizeMetadata normalizes a caller-supplied metadata map for vendor
// transmission. Vendor metadata wire formats accept only flat scalar maps, so:
//
//   - string, bool, and numeric values pass through unchanged
//   - nil values are dropped
//   - anything else (maps, slices, structs) is replaced by its JSON string form
//
// The input map is never mutated. A nil or empty input returns nil so callers
// can omit the field entirely.
func SanitizeMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if v == nil {
			continue
		}
		switch v.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			out[k] = v
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				// Unmarshalable values (channels, funcs) are dropped rather
				// than failing the whole write.
				continue
			}
			out[k] = string(raw)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// MetadataStrings renders a sanitized metadata map as the flat string map
// some vendor APIs require. Scalars are formatted with their JSON
// representation, which keeps numbers and booleans round-trippable.
func MetadataStrings(metadata map[string]any) map[string]string {
	sanitized := SanitizeMetadata(metadata)
	if sanitized == nil {
		return nil
	}
	out := make(map[string]string, len(sanitized))
	for k, v := range sanitized {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		out[k] = string(raw)
	}
	return out
}
