package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-1.5-flash-latest"

const geminiSystemInstruction = "You are a helpful assistant. Answer questions based on the provided documents. " +
	"If the answer is not found in the provided context, clearly state that you don't have the information. " +
	"Do not make up information."

type Gemini struct {
	client *genai.Client
	opts   Options
}

func NewGemini(ctx context.Context, apiKey string, opts Options) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not set")
	}
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Gemini{client: client, opts: opts}, nil
}

func (g *Gemini) Name() string { return "gemini:" + g.opts.Model }

func (g *Gemini) Complete(ctx context.Context, p Prompt) (string, error) {
	model := g.client.GenerativeModel(g.opts.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(geminiSystemInstruction)},
	}
	if g.opts.Temperature > 0 {
		model.SetTemperature(g.opts.Temperature)
	}
	if g.opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.opts.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(p.Text()))
	if err != nil {
		return "", fmt.Errorf("gemini generation request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini response had no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("gemini response contained no text")
	}
	return text.String(), nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}
