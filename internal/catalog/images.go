package catalog

import (
	"encoding/json"
	"regexp"
	"strings"
)

// FallbackImageURL is shown when a product has no usable image.
const FallbackImageURL = "https://via.placeholder.com/300x400?text=Pas+d+image"

var absoluteURL = regexp.MustCompile(`(?i)^https?://`)

// ImageResolver turns backend image references into absolute URLs.
type ImageResolver struct {
	// AssetBase prefixes relative references, e.g. "https://cms.example.com/assets".
	AssetBase string
	// Fallback is returned for empty references; it may be empty.
	Fallback string
}

// Resolve keeps http(s) URLs and resolves anything else against AssetBase.
func (r ImageResolver) Resolve(value string) string {
	return r.resolve(value, r.Fallback)
}

func (r ImageResolver) resolve(value, fallback string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return fallback
	}
	if absoluteURL.MatchString(raw) {
		return raw
	}
	return strings.TrimRight(r.AssetBase, "/") + "/" + strings.TrimLeft(raw, "/")
}

// extractImageValues flattens the representations the backend uses for
// galleries: plain strings, JSON-array strings, comma lists, arrays, {data: [...]}
// wrappers and file objects carrying url, path or id.
func extractImageValues(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		if strings.HasPrefix(trimmed, "[") {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return extractImageValues(parsed)
			}
			return []string{trimmed}
		}
		if strings.Contains(trimmed, ",") {
			var out []string
			for _, part := range strings.Split(trimmed, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
			return out
		}
		return []string{trimmed}
	case []any:
		var out []string
		for _, entry := range v {
			out = append(out, extractImageValues(entry)...)
		}
		return out
	case map[string]any:
		if data, ok := v["data"].([]any); ok {
			return extractImageValues(data)
		}
		if u, ok := v["url"].(string); ok {
			return []string{u}
		}
		if p, ok := v["path"].(string); ok {
			return []string{p}
		}
		if id := toString(v["id"]); id != "" {
			return []string{id}
		}
	}
	return nil
}
