package model

import "sort"

// TemplateConfig describes one slide template as served by the backend.
type TemplateConfig struct {
	SlideNumber  int               `json:"slide_number"`
	Replacements map[string]string `json:"replacements"`
}

// Clone returns a deep copy so callers never alias the response mapping.
func (c TemplateConfig) Clone() TemplateConfig {
	return TemplateConfig{
		SlideNumber:  c.SlideNumber,
		Replacements: CloneReplacements(c.Replacements),
	}
}

// ConfigResponse is the body of GET /api/config.
type ConfigResponse struct {
	Config    TemplateConfig `json:"config"`
	SlideText string         `json:"slide_text"`
}

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Replacements map[string]string `json:"replacements"`
	SlideNumber  int               `json:"slide_number"`
}

// Artifact is a generated presentation file. Data is treated as opaque bytes.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Size reports the payload length in bytes.
func (a Artifact) Size() int {
	return len(a.Data)
}

// CloneReplacements copies a placeholder mapping. A nil input yields an empty,
// non-nil map.
func CloneReplacements(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// SortedKeys returns the keys of a placeholder mapping sorted lexically.
func SortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
