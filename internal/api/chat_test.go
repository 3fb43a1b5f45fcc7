package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitwall-ai/pitwall/internal/chat"
	"github.com/pitwall-ai/pitwall/internal/log"
)

// stubAnswerer scripts the chat pipeline behavior.
type stubAnswerer struct {
	chunks []string
	err    error
	got    []chat.Message
}

func (s *stubAnswerer) Answer(ctx context.Context, messages []chat.Message, onChunk func(context.Context, string) error) (string, error) {
	s.got = messages
	if s.err != nil {
		return "", s.err
	}
	var full string
	for _, c := range s.chunks {
		full += c
		if onChunk != nil {
			if err := onChunk(ctx, c); err != nil {
				return "", err
			}
		}
	}
	return full, nil
}

func postChat(t *testing.T, answerer Answerer, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	NewChatHandler(answerer, log.NewNop()).handleChat(w, req)
	return w
}

func TestHandleChat_StreamsAnswer(t *testing.T) {
	t.Parallel()

	answerer := &stubAnswerer{chunks: []string{"Max ", "Verstappen ", "won."}}
	w := postChat(t, answerer, chatRequest{Messages: []chat.Message{
		{Role: "user", Content: "Who won in 2023?"},
	}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "Max Verstappen won.", w.Body.String())

	require.Len(t, answerer.got, 1)
	assert.Equal(t, "Who won in 2023?", answerer.got[0].Content)
}

func TestHandleChat_NonStreamingAnswer(t *testing.T) {
	t.Parallel()

	// An answerer that never invokes the callback still produces a body.
	answerer := &stubAnswerer{}
	w := postChat(t, answerer, chatRequest{Messages: []chat.Message{
		{Role: "user", Content: "hi"},
	}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
}

func TestHandleChat_InvalidBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	NewChatHandler(&stubAnswerer{}, log.NewNop()).handleChat(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Failed to process request", resp.Error)
}

func TestHandleChat_InvalidConversation(t *testing.T) {
	t.Parallel()

	// An invalid conversation is a request failure like any other: the
	// caller sees the generic 500 JSON body, never a partial stream.
	answerer := &stubAnswerer{err: chat.ErrInvalidConversation}
	w := postChat(t, answerer, chatRequest{Messages: []chat.Message{
		{Role: "assistant", Content: "hello"},
	}})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Failed to process request", resp.Error)
	assert.Contains(t, resp.Details, chat.ErrInvalidConversation.Error())
}

func TestHandleChat_GenerationFailure(t *testing.T) {
	t.Parallel()

	answerer := &stubAnswerer{err: errors.New("model unavailable")}
	w := postChat(t, answerer, chatRequest{Messages: []chat.Message{
		{Role: "user", Content: "hi"},
	}})

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Failed to process request", resp.Error)
	assert.Contains(t, resp.Details, "model unavailable")
}

func TestServer_Routes(t *testing.T) {
	t.Parallel()

	srv := NewServer(&stubAnswerer{chunks: []string{"ok"}}, nil, log.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := ts.Client()
	defer client.CloseIdleConnections()

	t.Run("health is alive without dependencies", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("ready fails without a database pool", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("chat rejects GET", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/chat")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}
