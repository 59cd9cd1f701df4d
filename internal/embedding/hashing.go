package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"gwi.com/rag-orchestrator/internal/utils"
)

const DefaultHashingDimensions = 512

// Hashing is an offline embedder: a bag of lowercase words hashed into a
// fixed number of buckets and normalised to unit length. It needs no network
// and gives stable vectors, which makes it the default for development and
// tests.
type Hashing struct {
	dims int
}

func NewHashing(dims int) *Hashing {
	if dims <= 0 {
		dims = DefaultHashingDimensions
	}
	return &Hashing{dims: dims}
}

func (h *Hashing) Name() string { return "hashing" }

func (h *Hashing) Dimensions() int { return h.dims }

func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, h.dims)
	for _, tok := range tokenize(text) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		vec[f.Sum32()%uint32(h.dims)]++
	}
	return utils.Normalize(vec), nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
