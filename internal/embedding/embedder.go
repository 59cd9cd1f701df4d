// Package embedding turns text into vectors for the embedding index.
package embedding

import (
	"context"
	"fmt"

	"gwi.com/rag-orchestrator/internal/utils"
)

// Embedder computes a vector for a piece of text. Implementations must be
// safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// checkVector rejects empty vectors and vectors with NaN or Inf components.
func checkVector(name string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%s returned an empty embedding", name)
	}
	if !utils.Valid(vec) {
		return fmt.Errorf("%s returned a malformed embedding", name)
	}
	return nil
}
