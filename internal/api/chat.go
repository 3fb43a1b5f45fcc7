package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pitwall-ai/pitwall/internal/chat"
	"github.com/pitwall-ai/pitwall/internal/log"
)

// Answerer generates a streamed answer for a conversation.
type Answerer interface {
	Answer(ctx context.Context, messages []chat.Message, onChunk func(context.Context, string) error) (string, error)
}

// ChatHandler handles the chat endpoint.
type ChatHandler struct {
	answerer Answerer
	logger   log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(answerer Answerer, logger log.Logger) *ChatHandler {
	return &ChatHandler{answerer: answerer, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.handleChat)
}

// chatRequest is the request body of POST /chat.
type chatRequest struct {
	Messages []chat.Message `json:"messages"`
}

// handleChat streams the generated answer as plain text, flushing each
// model chunk as it arrives. Any failure before the first byte, including
// a malformed body or an invalid conversation, produces a generic 500
// JSON error body; once streaming has begun the connection is simply
// closed, since the status line is already on the wire.
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to process request", err.Error())
		return
	}

	flusher, _ := w.(http.Flusher)
	wrote := false
	onChunk := func(_ context.Context, text string) error {
		if text == "" {
			return nil
		}
		if !wrote {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			wrote = true
		}
		if _, err := w.Write([]byte(text)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	answer, err := h.answerer.Answer(r.Context(), req.Messages, onChunk)
	if err != nil {
		if wrote {
			h.logger.Error("chat stream aborted", "error", err)
			return
		}
		h.logger.Error("chat request failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to process request", err.Error())
		return
	}

	// Models that ignore the streaming callback still produce a full
	// answer; send it in one piece.
	if !wrote {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(answer))
	}
}
