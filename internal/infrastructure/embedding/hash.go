package embedding

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"
)

// HashProvider is a deterministic bag-of-words embedder for local
// development and tests. Each lowercased word is hashed into one signed
// bucket, so texts sharing words have positive cosine similarity.
type HashProvider struct {
	dims int
}

// NewHashProvider creates a provider producing dims-long vectors.
func NewHashProvider(dims int) *HashProvider {
	if dims <= 0 {
		dims = 256
	}
	return &HashProvider{dims: dims}
}

// Embed hashes the words of text. Text without words yields a zero vector.
func (p *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, p.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		sum := blake3.Sum256([]byte(w))
		bucket := binary.LittleEndian.Uint64(sum[:8]) % uint64(p.dims)
		sign := float32(1)
		if sum[8]&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

// Name returns the provider name.
func (p *HashProvider) Name() string {
	return "hash"
}
