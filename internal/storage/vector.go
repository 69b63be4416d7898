package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CosineSimilarity returns the cosine of the angle between a and b. Vectors of
// different length, empty vectors and zero-norm vectors all score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))

	// Rounding can push parallel vectors a hair past the bounds.
	return math.Max(-1, math.Min(1, sim))
}

func encodeEmbedding(v []float32) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode embedding: %w", err)
	}

	return string(data), nil
}

func decodeEmbedding(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}

	return v, nil
}

// arrayLiteral renders v as a DuckDB list literal, castable to FLOAT[n]
func arrayLiteral(v []float32) string {
	var b strings.Builder

	b.WriteByte('[')

	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}

		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}

	b.WriteByte(']')

	return b.String()
}
