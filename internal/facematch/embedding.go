package facematch

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrEmptyEmbedding is returned when an embedding has no values.
var ErrEmptyEmbedding = errors.New("embedding is empty")

// ParseEmbedding decodes the serialized form of an embedding, a JSON array of numbers.
func ParseEmbedding(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyEmbedding
	}

	var values []float64
	if err := json.Unmarshal([]byte(s), &values); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}

	emb := make([]float32, len(values))
	for i, v := range values {
		emb[i] = float32(v)
	}
	if err := ValidateEmbedding(emb); err != nil {
		return nil, err
	}
	return emb, nil
}

// FormatEmbedding serializes an embedding as a JSON array of numbers.
func FormatEmbedding(emb []float32) string {
	data, err := json.Marshal(emb)
	if err != nil {
		// float32 slices only fail on NaN/Inf, which ValidateEmbedding rejects upstream
		return "[]"
	}
	return string(data)
}

// ValidateEmbedding checks that an embedding is non-empty and holds only finite values.
func ValidateEmbedding(emb []float32) error {
	if len(emb) == 0 {
		return ErrEmptyEmbedding
	}
	for i, v := range emb {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("embedding value %d is not finite", i)
		}
	}
	return nil
}
