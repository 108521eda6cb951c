package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/connect-extensions/internal/domain/chat"
)

// ChatCookie identifies a visitor's chat session.
const ChatCookie = "chat_session"

// ChatHandler serves the chat extension.
type ChatHandler struct {
	deps ChatDependencies
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(deps ChatDependencies) *ChatHandler {
	return &ChatHandler{deps: deps}
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatConfig struct {
	Enabled bool   `json:"enabled"`
	Model   string `json:"model"`
}

type chatHistory struct {
	Messages []chat.Rendered `json:"messages"`
}

// chatSession returns the session id from the cookie, issuing one when
// absent.
func chatSession(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(ChatCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     ChatCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// writeEvent writes one Server-Sent Event. Multi-line data is split over
// several data fields.
func writeEvent(w io.Writer, event, data string) error {
	var b strings.Builder
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// HandleConfig handles GET /api/chat/config.
func (h *ChatHandler) HandleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, chatConfig{Enabled: h.deps.ChatEnabled(), Model: h.deps.ChatModel()})
}

// HandleSend handles POST /api/chat, streaming the reply as text/event-stream.
func (h *ChatHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	const op = "api.chat"
	if !h.deps.ChatEnabled() {
		fail(w, r, op, chat.ErrNoCredentials)
		return
	}
	var req chatRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		fail(w, r, op, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		fail(w, r, op, chat.ErrEmptyMessage)
		return
	}
	id := chatSession(w, r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	emit := func(text string) error {
		if err := writeEvent(w, "", text); err != nil {
			return err
		}
		return rc.Flush()
	}
	if _, err := h.deps.Chat(r.Context(), id, req.Message, emit); err != nil {
		_ = writeEvent(w, "error", err.Error())
	}
	_ = writeEvent(w, "done", "")
	_ = rc.Flush()
}

// HandleHistory handles GET /api/chat/history.
func (h *ChatHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if !h.deps.ChatEnabled() {
		fail(w, r, "api.chat_history", chat.ErrNoCredentials)
		return
	}
	var msgs []chat.Rendered
	if c, err := r.Cookie(ChatCookie); err == nil && c.Value != "" {
		msgs = h.deps.ChatHistory(c.Value)
	}
	if msgs == nil {
		msgs = []chat.Rendered{}
	}
	writeJSON(w, http.StatusOK, chatHistory{Messages: msgs})
}

// HandleReset handles DELETE /api/chat.
func (h *ChatHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if !h.deps.ChatEnabled() {
		fail(w, r, "api.chat_reset", chat.ErrNoCredentials)
		return
	}
	if c, err := r.Cookie(ChatCookie); err == nil && c.Value != "" {
		h.deps.ResetChat(c.Value)
	}
	w.WriteHeader(http.StatusNoContent)
}
