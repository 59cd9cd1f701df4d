package llm

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

const noContextAnswer = "I don't have enough information in the provided documents to answer that."

// Offline answers without a language model by quoting the context lines
// that share the most words with the question. It keeps the service usable
// with no network access.
type Offline struct {
	// MaxLines caps how many context lines are quoted.
	MaxLines int
}

func NewOffline() *Offline {
	return &Offline{MaxLines: 2}
}

func (o *Offline) Name() string { return "offline" }

func (o *Offline) Complete(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	question := wordSet(p.Question)
	type line struct {
		text    string
		overlap int
	}
	var lines []line
	for _, l := range strings.Split(p.Context, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		n := 0
		for w := range wordSet(l) {
			if _, ok := question[w]; ok {
				n++
			}
		}
		if n > 0 {
			lines = append(lines, line{text: l, overlap: n})
		}
	}
	if len(lines) == 0 {
		return noContextAnswer, nil
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].overlap > lines[j].overlap })
	limit := o.MaxLines
	if limit <= 0 {
		limit = 1
	}
	if len(lines) > limit {
		lines = lines[:limit]
	}
	quoted := make([]string, len(lines))
	for i, l := range lines {
		quoted[i] = l.text
	}
	return "From the documents: " + strings.Join(quoted, " "), nil
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		set[w] = struct{}{}
	}
	return set
}
