package embedding

import "strings"

// DefaultDimension is used for models missing from the lookup table
const DefaultDimension = 1536

var modelDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
}

// DimensionForModel returns the known vector length for an embedding model.
// Ollama style tags ("nomic-embed-text:latest") resolve to their base model.
func DimensionForModel(model string) int {
	name := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	if dim, ok := modelDimensions[name]; ok {
		return dim
	}

	if i := strings.Index(name, ":"); i >= 0 {
		if dim, ok := modelDimensions[name[:i]]; ok {
			return dim
		}
	}

	return DefaultDimension
}
