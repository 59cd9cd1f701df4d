// Package llm wraps the language models that turn a question and its
// retrieved context into an answer.
package llm

import (
	"context"
	"fmt"
)

// Prompt is a question together with the retrieved documents it should be
// answered from.
type Prompt struct {
	Question string
	Context  string
}

const promptTemplate = `You are an AI assistant with access to a collection of relevant documents.
Use the following information to provide accurate and helpful responses to user questions:
<docs>
%s
</docs>
Based on the above information, please provide the most suitable and detailed response to the following user's question.
<question>
%s
</question>
`

// Text renders the prompt sent to remote models.
func (p Prompt) Text() string {
	return fmt.Sprintf(promptTemplate, p.Context, p.Question)
}

// Model produces an answer for a prompt. Implementations must be safe for
// concurrent use.
type Model interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Name() string
}

// Options are shared by the remote models.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
}
