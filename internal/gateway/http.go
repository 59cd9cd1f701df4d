package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gwi.com/rag-orchestrator/internal/apperrors"
	"gwi.com/rag-orchestrator/internal/models"
)

// client posts JSON to another instance's API.
type client struct {
	http    *http.Client
	baseURL string
	token   string
}

func newClient(baseURL, token string) client {
	return client{
		http:    &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

func (c client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// HTTPRetriever calls POST /api/retrieve on a remote instance.
type HTTPRetriever struct {
	client  client
	timeout time.Duration
}

func NewHTTPRetriever(baseURL, token string, timeout time.Duration) *HTTPRetriever {
	if timeout <= 0 {
		timeout = DefaultRetrievalTimeout
	}
	return &HTTPRetriever{client: newClient(baseURL, token), timeout: timeout}
}

func (r *HTTPRetriever) Retrieve(ctx context.Context, collectionID, query string, k int) ([]models.Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out struct {
		Chunks *[]ChunkPayload `json:"chunks"`
	}
	req := RetrieveRequest{CollectionID: collectionID, Query: query, K: k}
	if err := r.client.post(ctx, "/api/retrieve", req, &out); err != nil {
		return nil, failure(apperrors.KindRetrievalFailed, "gateway.retrieve", r.timeout, err)
	}
	if out.Chunks == nil {
		return nil, apperrors.New(apperrors.KindRetrievalFailed, "gateway.retrieve", "response has no chunks field")
	}

	chunks := make([]models.Chunk, 0, len(*out.Chunks))
	for _, p := range *out.Chunks {
		chunks = append(chunks, p.Chunk())
	}
	return chunks, nil
}

// HTTPGenerator calls POST /api/generate on a remote instance.
type HTTPGenerator struct {
	client  client
	timeout time.Duration
}

func NewHTTPGenerator(baseURL, token string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &HTTPGenerator{client: newClient(baseURL, token), timeout: timeout}
}

func (g *HTTPGenerator) Generate(ctx context.Context, question, docs string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var out GenerateResponse
	if err := g.client.post(ctx, "/api/generate", GenerateRequest{Question: question, Context: docs}, &out); err != nil {
		return "", failure(apperrors.KindGenerationFailed, "gateway.generate", g.timeout, err)
	}
	if out.Answer == "" {
		return "", apperrors.New(apperrors.KindGenerationFailed, "gateway.generate", "response has no answer")
	}
	return out.Answer, nil
}
