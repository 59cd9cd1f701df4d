// Package chunker splits document text into overlapping, ordered segments.
//
// Segments are contiguous slices of the input measured in runes. Two
// consecutive segments share exactly Overlap runes, so dropping the first
// Overlap runes of every segment but the first and concatenating the rest
// reproduces the input. Cut points prefer paragraph ends, then sentence ends,
// then word ends, before falling back to a hard cut.
package chunker

import (
	"strings"
	"unicode"

	"gwi.com/rag-orchestrator/internal/apperrors"
	"gwi.com/rag-orchestrator/internal/models"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Config controls segment size and overlap, both in runes.
type Config struct {
	Size    int
	Overlap int
}

// DefaultConfig returns the sizes used when nothing is configured.
func DefaultConfig() Config {
	return Config{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Validate rejects configurations that cannot make progress.
func (c Config) Validate() error {
	switch {
	case c.Size <= 0:
		return apperrors.New(apperrors.KindInvalidConfig, "chunker", "size must be positive, got %d", c.Size)
	case c.Overlap < 0:
		return apperrors.New(apperrors.KindInvalidConfig, "chunker", "overlap must not be negative, got %d", c.Overlap)
	case c.Overlap >= c.Size:
		return apperrors.New(apperrors.KindInvalidConfig, "chunker", "overlap (%d) must be smaller than size (%d)", c.Overlap, c.Size)
	}
	return nil
}

// Split returns the segments of text. Only empty text yields no segments;
// whitespace is split like any other text.
func Split(text string, cfg Config) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	var segments []string
	start := 0
	for {
		if len(runes)-start <= cfg.Size {
			return append(segments, string(runes[start:])), nil
		}
		// end > start+Overlap guarantees the next start moves forward.
		end := cutPoint(runes, start+cfg.Overlap+1, start+cfg.Size)
		segments = append(segments, string(runes[start:end]))
		start = end - cfg.Overlap
	}
}

// Chunk splits text and tags every segment with its position and collection.
func Chunk(collectionID, text string, cfg Config) ([]models.Chunk, error) {
	segments, err := Split(text, cfg)
	if err != nil {
		return nil, err
	}
	chunks := make([]models.Chunk, len(segments))
	for i, s := range segments {
		chunks[i] = models.Chunk{
			Text:         s,
			Index:        i,
			Total:        len(segments),
			CollectionID: collectionID,
		}
	}
	return chunks, nil
}

// boundaries are tried in priority order; each reports whether a segment may
// end right before position e.
var boundaries = []func(r []rune, e int) bool{
	paragraphEnd,
	sentenceEnd,
	wordEnd,
}

// cutPoint picks the largest end in [lo, hi] of the highest-priority kind.
func cutPoint(r []rune, lo, hi int) int {
	for _, isBoundary := range boundaries {
		for e := hi; e >= lo; e-- {
			if isBoundary(r, e) {
				return e
			}
		}
	}
	return hi
}

func paragraphEnd(r []rune, e int) bool {
	return e >= 2 && r[e-1] == '\n' && r[e-2] == '\n'
}

func sentenceEnd(r []rune, e int) bool {
	return e >= 2 && unicode.IsSpace(r[e-1]) && strings.ContainsRune(".!?", r[e-2])
}

func wordEnd(r []rune, e int) bool {
	return e >= 1 && unicode.IsSpace(r[e-1])
}
