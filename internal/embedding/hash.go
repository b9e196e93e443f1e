package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"unicode"
)

// HashDim is the default dimension of the offline encoder. Test fixtures
// and the bundled reindex command use the same value.
const HashDim = 256

// hashProvider is a deterministic feature-hashing encoder. It buckets
// character bigrams into a fixed-width vector and L2-normalizes, so the
// service runs fully offline with stable similarity ordering. Quality is
// far below a real embedding model; it exists for air-gapped deployments
// and tests.
type hashProvider struct {
	dim int
}

func NewHashProvider(dim int) Provider {
	if dim <= 0 {
		dim = HashDim
	}
	return &hashProvider{dim: dim}
}

func (p *hashProvider) Name() string { return "hash" }
func (p *hashProvider) Dim() int     { return p.dim }

func (p *hashProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.encode(text)
	}
	return out, nil
}

func (p *hashProvider) encode(text string) []float32 {
	vec := make([]float32, p.dim)
	runes := make([]rune, 0, len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			runes = append(runes, unicode.ToLower(r))
		}
	}
	if len(runes) == 0 {
		return vec
	}

	bucket := func(s string) {
		h := fnv.New32a()
		h.Write([]byte(s))
		sum := h.Sum32()
		idx := int(sum % uint32(p.dim))
		// Sign bit keeps hash collisions from always reinforcing.
		if sum&0x80000000 != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	bucket(string(runes[0]))
	for i := 0; i+1 < len(runes); i++ {
		bucket(string(runes[i : i+2]))
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}
