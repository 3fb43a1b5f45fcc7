package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitwall-ai/pitwall/internal/log"
	"github.com/pitwall-ai/pitwall/internal/testutil"
	"github.com/pitwall-ai/pitwall/internal/vectorstore"
)

type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

type stubSearcher struct {
	neighbors  []vectorstore.Neighbor
	err        error
	collection string
	k          int
	calls      int
}

func (s *stubSearcher) NearestNeighbors(_ context.Context, collection string, _ []float32, k int) ([]vectorstore.Neighbor, error) {
	s.calls++
	s.collection = collection
	s.k = k
	if s.err != nil {
		return nil, s.err
	}
	return s.neighbors, nil
}

func neighborsFor(texts ...string) []vectorstore.Neighbor {
	out := make([]vectorstore.Neighbor, len(texts))
	for i, t := range texts {
		out[i] = vectorstore.Neighbor{
			Record:     vectorstore.Record{Text: t, Vector: []float32{1, 0}},
			Similarity: 1 - float64(i)/10,
		}
	}
	return out
}

func newTestPipeline(t *testing.T, llm *testutil.MockLLM, embedder Embedder, store Searcher) *Pipeline {
	t.Helper()
	g := genkit.Init(context.Background())
	require.NotNil(t, g)
	llm.RegisterModel(g)

	p, err := New(g, embedder, store, Options{
		ModelName:   testutil.MockModelName,
		Temperature: 0.7,
		Collection:  "f1gpt",
		TopK:        10,
	}, log.NewNop())
	require.NoError(t, err)
	return p
}

func TestAnswer_WithRetrievedContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	llm := testutil.NewMockLLM("Max Verstappen won in 2023.")
	embedder := &stubEmbedder{vec: []float32{1, 0}}
	store := &stubSearcher{neighbors: neighborsFor(
		"Verstappen won the 2023 championship.",
		"Red Bull dominated the 2023 season.",
	)}
	p := newTestPipeline(t, llm, embedder, store)

	var streamed strings.Builder
	answer, err := p.Answer(ctx, []Message{
		{Role: RoleUser, Content: "Who won the 2023 championship?"},
	}, func(_ context.Context, chunk string) error {
		streamed.WriteString(chunk)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "Max Verstappen won in 2023.", answer)
	assert.Equal(t, answer, streamed.String(), "streamed chunks must assemble to the full answer")

	assert.Equal(t, "f1gpt", store.collection)
	assert.Equal(t, 10, store.k)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].SystemPrompt, "START CONTEXT")
	assert.Contains(t, calls[0].SystemPrompt, "Verstappen won the 2023 championship.")
	assert.Contains(t, calls[0].SystemPrompt, "Red Bull dominated the 2023 season.")
	assert.Contains(t, calls[0].SystemPrompt, "QUESTION: Who won the 2023 championship?")
}

func TestAnswer_InvalidConversation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name     string
		messages []Message
	}{
		{"empty conversation", nil},
		{"unknown role", []Message{{Role: "robot", Content: "beep"}, {Role: RoleUser, Content: "hi"}}},
		{"ends with assistant", []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}}},
		{"empty trailing message", []Message{{Role: RoleUser, Content: "   "}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			llm := testutil.NewMockLLM("unused")
			embedder := &stubEmbedder{vec: []float32{1, 0}}
			store := &stubSearcher{}
			p := newTestPipeline(t, llm, embedder, store)

			_, err := p.Answer(ctx, tt.messages, nil)
			assert.ErrorIs(t, err, ErrInvalidConversation)

			assert.Zero(t, embedder.calls, "invalid input must not reach the embedder")
			assert.Zero(t, store.calls, "invalid input must not reach the store")
			assert.Empty(t, llm.Calls(), "invalid input must not reach the model")
		})
	}
}

func TestAnswer_DegradesWithoutRetrieval(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("embedding failure", func(t *testing.T) {
		t.Parallel()

		llm := testutil.NewMockLLM("Answered from model knowledge.")
		embedder := &stubEmbedder{err: errors.New("embedding service down")}
		store := &stubSearcher{}
		p := newTestPipeline(t, llm, embedder, store)

		answer, err := p.Answer(ctx, []Message{{Role: RoleUser, Content: "Fastest lap at Monza?"}}, nil)
		require.NoError(t, err)
		assert.Equal(t, "Answered from model knowledge.", answer)
		assert.Zero(t, store.calls, "search must be skipped when embedding fails")
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()

		llm := testutil.NewMockLLM("Answered from model knowledge.")
		embedder := &stubEmbedder{vec: []float32{1, 0}}
		store := &stubSearcher{err: vectorstore.ErrUnavailable}
		p := newTestPipeline(t, llm, embedder, store)

		answer, err := p.Answer(ctx, []Message{{Role: RoleUser, Content: "Fastest lap at Monza?"}}, nil)
		require.NoError(t, err)
		assert.Equal(t, "Answered from model knowledge.", answer)

		calls := llm.Calls()
		require.Len(t, calls, 1)
		prompt := calls[0].SystemPrompt
		start := strings.Index(prompt, "START CONTEXT") + len("START CONTEXT")
		end := strings.Index(prompt, "END CONTEXT")
		require.Greater(t, end, start)
		assert.Empty(t, strings.TrimSpace(prompt[start:end]), "context section must be empty")
	})
}

func TestAnswer_MultiTurnConversation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	llm := testutil.NewMockLLM("He drives for Ferrari.")
	embedder := &stubEmbedder{vec: []float32{1, 0}}
	store := &stubSearcher{}
	p := newTestPipeline(t, llm, embedder, store)

	answer, err := p.Answer(ctx, []Message{
		{Role: RoleUser, Content: "Tell me about Leclerc."},
		{Role: RoleAssistant, Content: "Charles Leclerc is a Monegasque driver."},
		{Role: RoleUser, Content: "Which team does he drive for?"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "He drives for Ferrari.", answer)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	// Retrieval keys off the latest user message only.
	assert.Contains(t, calls[0].SystemPrompt, "QUESTION: Which team does he drive for?")
	assert.Equal(t, "Which team does he drive for?", calls[0].UserMessage)
}

func TestAnswer_CallbackErrorAborts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	llm := testutil.NewMockLLM("a response with several words")
	p := newTestPipeline(t, llm, &stubEmbedder{vec: []float32{1, 0}}, &stubSearcher{})

	sentinel := errors.New("client went away")
	_, err := p.Answer(ctx, []Message{{Role: RoleUser, Content: "hi"}}, func(context.Context, string) error {
		return sentinel
	})
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	g := genkit.Init(context.Background())
	embedder := &stubEmbedder{}
	store := &stubSearcher{}

	_, err := New(nil, embedder, store, Options{ModelName: "m", TopK: 1}, nil)
	assert.Error(t, err)

	_, err = New(g, nil, store, Options{ModelName: "m", TopK: 1}, nil)
	assert.Error(t, err)

	_, err = New(g, embedder, store, Options{TopK: 1}, nil)
	assert.Error(t, err)

	_, err = New(g, embedder, store, Options{ModelName: "m"}, nil)
	assert.Error(t, err)
}
