package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"gwi.com/rag-orchestrator/internal/apperrors"
	"gwi.com/rag-orchestrator/internal/chunker"
	"gwi.com/rag-orchestrator/internal/conversation"
	"gwi.com/rag-orchestrator/internal/embedding"
	"gwi.com/rag-orchestrator/internal/gateway"
	"gwi.com/rag-orchestrator/internal/index"
	"gwi.com/rag-orchestrator/internal/llm"
	"gwi.com/rag-orchestrator/internal/models"
)

type stubRetriever struct {
	chunks     []models.Chunk
	err        error
	collection string
	k          int
}

func (s *stubRetriever) Retrieve(_ context.Context, collectionID, _ string, k int) ([]models.Chunk, error) {
	s.collection = collectionID
	s.k = k
	return s.chunks, s.err
}

type stubGenerator struct {
	answer  string
	err     error
	context string
}

func (s *stubGenerator) Generate(_ context.Context, _, docs string) (string, error) {
	s.context = docs
	return s.answer, s.err
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (*models.Conversation, error) {
	return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, "conversation.get", errors.New("down"))
}

func (failingStore) GetOrCreate(context.Context, string) (*models.Conversation, error) {
	return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, "conversation.get_or_create", errors.New("down"))
}

func (failingStore) Append(context.Context, string, ...models.Message) (*models.Conversation, error) {
	return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, "conversation.append", errors.New("down"))
}

func newStore() *conversation.Store {
	return conversation.NewStore(conversation.NewMemoryBackend(), conversation.DefaultOptions(), arbor.NewLogger())
}

func TestFormatContext(t *testing.T) {
	chunks := []models.Chunk{{Text: "first"}, {Text: "second"}, {Text: "third"}}
	tests := []struct {
		name     string
		chunks   []models.Chunk
		maxChars int
		want     string
	}{
		{"no limit", chunks, 0, "first\nsecond\nthird"},
		{"exact fit", chunks, 18, "first\nsecond\nthird"},
		{"drops lowest ranked", chunks, 17, "first\nsecond"},
		{"only top", chunks, 11, "first"},
		{"cuts oversized top chunk", chunks, 3, "fir"},
		{"counts runes", []models.Chunk{{Text: "ééééé"}}, 2, "éé"},
		{"empty", nil, 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatContext(tt.chunks, tt.maxChars))
		})
	}
}

func TestAsk_EndToEnd(t *testing.T) {
	ctx := context.Background()
	logger := arbor.NewLogger()

	ix := index.New(embedding.NewHashing(512), index.NewMemoryBackend(), index.DefaultOptions(), logger)
	ingestor, err := NewIngestor(ix, chunker.Config{Size: 10, Overlap: 2}, logger)
	require.NoError(t, err)
	res, err := ingestor.IngestText(ctx, "c1", "Alpha Beta. Gamma Delta.")
	require.NoError(t, err)
	assert.Equal(t, 4, res.ChunkCount)

	orch := NewOrchestrator(
		gateway.NewLocalRetriever(ix, 0),
		gateway.NewLocalGenerator(llm.NewOffline(), 0),
		newStore(),
		OrchestratorOptions{TopK: 3},
		logger,
	)

	out, err := orch.Ask(ctx, AskRequest{ConversationID: "c1", Question: "What is Alpha?"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Context)
	assert.Contains(t, out.Context[0].Text, "Alpha")
	assert.NotEmpty(t, out.Answer)
	assert.False(t, out.RetrievalDegraded)
	assert.False(t, out.GenerationDegraded)

	roles := make([]models.Role, len(out.Conversation.Messages))
	for i, m := range out.Conversation.Messages {
		roles[i] = m.Role
	}
	assert.Equal(t, []models.Role{models.RoleSystem, models.RoleUser, models.RoleAssistant}, roles)
	assert.Equal(t, "What is Alpha?", out.Conversation.Messages[1].Content)
	assert.Equal(t, out.Answer, out.Conversation.Messages[2].Content)
}

func TestAsk_HistoryGrowsByTwoPerTurn(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	orch := NewOrchestrator(&stubRetriever{}, &stubGenerator{answer: "ok"}, store, OrchestratorOptions{}, arbor.NewLogger())

	const turns = 4
	for i := 0; i < turns; i++ {
		_, err := orch.Ask(ctx, AskRequest{ConversationID: "c1", Question: "q"})
		require.NoError(t, err)
	}

	conv, err := orch.Conversation(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 1+2*turns)
	assert.Equal(t, models.RoleSystem, conv.Messages[0].Role)
}

func TestAsk_GenerationFailureStoresFallback(t *testing.T) {
	gen := &stubGenerator{err: apperrors.New(apperrors.KindGenerationFailed, "gateway.generate", "timeout")}
	orch := NewOrchestrator(&stubRetriever{}, gen, newStore(), OrchestratorOptions{}, arbor.NewLogger())

	out, err := orch.Ask(context.Background(), AskRequest{ConversationID: "c1", Question: "hello"})
	require.NoError(t, err)
	assert.True(t, out.GenerationDegraded)
	assert.Equal(t, FallbackAnswer, out.Answer)
	msgs := out.Conversation.Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "hello"}, msgs[1])
	assert.Equal(t, models.Message{Role: models.RoleAssistant, Content: FallbackAnswer}, msgs[2])
}

func TestAsk_RetrievalFailureAnswersWithoutContext(t *testing.T) {
	ret := &stubRetriever{
		chunks: []models.Chunk{{Text: "ignored"}},
		err:    apperrors.New(apperrors.KindRetrievalFailed, "gateway.retrieve", "down"),
	}
	gen := &stubGenerator{answer: "generic", context: "unset"}
	orch := NewOrchestrator(ret, gen, newStore(), OrchestratorOptions{}, arbor.NewLogger())

	out, err := orch.Ask(context.Background(), AskRequest{ConversationID: "c1", Question: "q"})
	require.NoError(t, err)
	assert.True(t, out.RetrievalDegraded)
	assert.Empty(t, out.Context)
	assert.Equal(t, "", gen.context)
	assert.Equal(t, "generic", out.Answer)
}

func TestAsk_ScopesRetrieval(t *testing.T) {
	ret := &stubRetriever{chunks: []models.Chunk{{Text: "one"}, {Text: "two"}}}
	gen := &stubGenerator{answer: "a"}
	orch := NewOrchestrator(ret, gen, newStore(), OrchestratorOptions{TopK: 7, MaxContextChars: 5}, arbor.NewLogger())
	ctx := context.Background()

	_, err := orch.Ask(ctx, AskRequest{ConversationID: "conv", Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "conv", ret.collection)
	assert.Equal(t, 7, ret.k)
	assert.Equal(t, "one", gen.context)

	_, err = orch.Ask(ctx, AskRequest{ConversationID: "conv", Question: "q", CollectionID: "docs"})
	require.NoError(t, err)
	assert.Equal(t, "docs", ret.collection)
}

func TestAsk_Errors(t *testing.T) {
	ctx := context.Background()
	orch := NewOrchestrator(&stubRetriever{}, &stubGenerator{answer: "a"}, newStore(), OrchestratorOptions{}, arbor.NewLogger())

	_, err := orch.Ask(ctx, AskRequest{ConversationID: " ", Question: "q"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	_, err = orch.Ask(ctx, AskRequest{ConversationID: "c1", Question: "\t"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	broken := NewOrchestrator(&stubRetriever{}, &stubGenerator{answer: "a"}, failingStore{}, OrchestratorOptions{}, arbor.NewLogger())
	_, err = broken.Ask(ctx, AskRequest{ConversationID: "c1", Question: "q"})
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

type recordingIndex struct {
	collection string
	chunks     []models.Chunk
}

func (r *recordingIndex) Upsert(_ context.Context, collectionID string, chunks []models.Chunk) ([]string, error) {
	r.collection = collectionID
	r.chunks = chunks
	ids := make([]string, len(chunks))
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	return ids, nil
}

func TestIngestor(t *testing.T) {
	ctx := context.Background()
	rec := &recordingIndex{}
	in, err := NewIngestor(rec, chunker.Config{Size: 10, Overlap: 2}, arbor.NewLogger())
	require.NoError(t, err)

	res, err := in.IngestFile(ctx, "/tmp/notes.txt", strings.NewReader("Alpha Beta. Gamma Delta."), "")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", res.CollectionID)
	assert.Equal(t, "notes.txt", rec.collection)
	assert.Equal(t, 4, res.ChunkCount)
	assert.Len(t, res.RecordIDs, 4)

	res, err = in.IngestText(ctx, "", "some text")
	require.NoError(t, err)
	_, err = uuid.Parse(res.CollectionID)
	assert.NoError(t, err)

	for _, blank := range []string{"   ", "\n\t \n"} {
		res, err = in.IngestText(ctx, "c1", blank)
		require.NoError(t, err)
		assert.Zero(t, res.ChunkCount)
		assert.Empty(t, res.RecordIDs)
	}

	_, err = in.IngestFile(ctx, "report.pdf", strings.NewReader("x"), "c1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	_, err = in.IngestFile(ctx, "bad.txt", strings.NewReader("\xff\xfe"), "c1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	_, err = NewIngestor(rec, chunker.Config{Size: 5, Overlap: 5}, arbor.NewLogger())
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}
