// Package chat implements the online question-answering pipeline:
// validate the conversation, retrieve supporting context for the latest
// user message, assemble the augmented prompt, and stream the generated
// answer.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/pitwall-ai/pitwall/internal/log"
	"github.com/pitwall-ai/pitwall/internal/vectorstore"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

var (
	// ErrInvalidConversation indicates the message list cannot be answered:
	// empty, unknown roles, or not ending with a user message.
	ErrInvalidConversation = errors.New("invalid conversation")

	// ErrGeneration indicates the model failed to produce an answer.
	ErrGeneration = errors.New("generation failed")
)

// systemPromptTemplate frames the model as a Formula One expert and
// splices in the retrieved context. The model is told to fall back on its
// own knowledge silently when the context is missing or irrelevant.
const systemPromptTemplate = `You are an AI assistant who knows everything about Formula One. Use the below context to augment what you know about Formula One racing. The context will provide you with the most recent page data from wikipedia, the official F1 website and others. If the context doesn't include the information you need answer based on your existing knowledge and don't mention the source of your information or what the context does or doesn't include. Format responses using markdown where applicable and don't return images.
---------
START CONTEXT
%s
END CONTEXT
---------
QUESTION: %s
---------
`

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher answers nearest-neighbor queries against a collection.
type Searcher interface {
	NearestNeighbors(ctx context.Context, collection string, vector []float32, k int) ([]vectorstore.Neighbor, error)
}

// Options configures a Pipeline.
type Options struct {
	ModelName   string
	Temperature float64
	Collection  string
	TopK        int
}

// Pipeline answers conversations with retrieval-augmented generation.
type Pipeline struct {
	g        *genkit.Genkit
	embedder Embedder
	store    Searcher
	opts     Options
	logger   log.Logger
}

// New creates a Pipeline.
func New(g *genkit.Genkit, embedder Embedder, store Searcher, opts Options, logger log.Logger) (*Pipeline, error) {
	if g == nil {
		return nil, errors.New("genkit instance is required")
	}
	if embedder == nil || store == nil {
		return nil, errors.New("embedder and store are required")
	}
	if opts.ModelName == "" {
		return nil, errors.New("model name is required")
	}
	if opts.TopK < 1 {
		return nil, fmt.Errorf("invalid top-k %d", opts.TopK)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pipeline{g: g, embedder: embedder, store: store, opts: opts, logger: logger}, nil
}

// Answer generates a streamed answer to the conversation. onChunk is
// invoked for each text fragment as the model produces it; returning an
// error from onChunk aborts generation. The full answer text is returned
// once the stream completes.
//
// Retrieval is best-effort: if embedding or the vector store fails, the
// answer is generated without retrieved context rather than failing the
// request.
func (p *Pipeline) Answer(ctx context.Context, messages []Message, onChunk func(context.Context, string) error) (string, error) {
	question, err := validateConversation(messages)
	if err != nil {
		return "", err
	}

	docContext := p.retrieveContext(ctx, question)
	system := fmt.Sprintf(systemPromptTemplate, docContext, question)

	history, err := toModelMessages(messages)
	if err != nil {
		return "", err
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(p.opts.ModelName),
		ai.WithSystem(system),
		ai.WithMessages(history...),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature: genai.Ptr(float32(p.opts.Temperature)),
		}),
	}
	if onChunk != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			return onChunk(ctx, chunk.Text())
		}))
	}

	response, err := genkit.Generate(ctx, p.g, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return response.Text(), nil
}

// retrieveContext embeds the question and returns the nearest chunk texts
// as a JSON array. Any failure degrades to an empty context.
func (p *Pipeline) retrieveContext(ctx context.Context, question string) string {
	vector, err := p.embedder.Embed(ctx, question)
	if err != nil {
		p.logger.Warn("context retrieval skipped", "stage", "embed", "error", err)
		return ""
	}

	neighbors, err := p.store.NearestNeighbors(ctx, p.opts.Collection, vector, p.opts.TopK)
	if err != nil {
		p.logger.Warn("context retrieval skipped", "stage", "search", "error", err)
		return ""
	}
	if len(neighbors) == 0 {
		return ""
	}

	texts := make([]string, len(neighbors))
	for i, n := range neighbors {
		texts[i] = n.Text
	}
	encoded, err := json.Marshal(texts)
	if err != nil {
		p.logger.Warn("context retrieval skipped", "stage", "encode", "error", err)
		return ""
	}

	p.logger.Debug("context retrieved", "chunks", len(neighbors))
	return string(encoded)
}

// validateConversation checks the message list and returns the question,
// the content of the trailing user message.
func validateConversation(messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: no messages", ErrInvalidConversation)
	}
	for i, m := range messages {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return "", fmt.Errorf("%w: message %d has unknown role %q", ErrInvalidConversation, i, m.Role)
		}
	}

	last := messages[len(messages)-1]
	if last.Role != RoleUser {
		return "", fmt.Errorf("%w: conversation must end with a user message", ErrInvalidConversation)
	}
	question := strings.TrimSpace(last.Content)
	if question == "" {
		return "", fmt.Errorf("%w: trailing user message is empty", ErrInvalidConversation)
	}
	return question, nil
}

// toModelMessages converts conversation messages to Genkit messages.
// System turns inside the history are carried through as system messages;
// the retrieval prompt is supplied separately via WithSystem.
func toModelMessages(messages []Message) ([]*ai.Message, error) {
	out := make([]*ai.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			out = append(out, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		case RoleAssistant:
			out = append(out, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		case RoleSystem:
			out = append(out, ai.NewSystemMessage(ai.NewTextPart(m.Content)))
		default:
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidConversation, m.Role)
		}
	}
	return out, nil
}
