// Package chat keeps per-visitor conversations and streams model replies.
package chat

import (
	"context"
	"html/template"
	"strings"
	"sync"

	"github.com/okian/connect-extensions/internal/domain/ttlcache"
	"github.com/okian/connect-extensions/pkg/logger"
	"github.com/okian/connect-extensions/pkg/metrics"
)

const defaultMaxTokens = 4096

// Session is one visitor's transcript.
type Session struct {
	mu       sync.Mutex
	messages []Message
}

func (s *Session) snapshot() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *Session) append(m ...Message) {
	s.mu.Lock()
	s.messages = append(s.messages, m...)
	s.mu.Unlock()
}

// Rendered is a transcript entry prepared for display.
type Rendered struct {
	Role    string        `json:"role"`
	Content string        `json:"content"`
	HTML    template.HTML `json:"html"`
}

// Service answers chat messages. Sessions live in a TTL cache, so idle
// transcripts disappear after the cache TTL.
type Service struct {
	streamer  Streamer
	sessions  *ttlcache.Cache[*Session]
	model     string
	maxTokens int
	log       logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithModel sets the model name sent with every request.
func WithModel(model string) Option {
	return func(s *Service) {
		if model != "" {
			s.model = model
		}
	}
}

// WithMaxTokens caps each reply.
func WithMaxTokens(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// NewService returns a Service. A nil streamer means chat is not
// configured and every Send fails with ErrNoCredentials.
func NewService(streamer Streamer, sessions *ttlcache.Cache[*Session], opts ...Option) *Service {
	s := &Service{
		streamer:  streamer,
		sessions:  sessions,
		model:     DefaultAnthropicModel,
		maxTokens: defaultMaxTokens,
		log:       logger.Named("chat"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether replies can be produced.
func (s *Service) Enabled() bool { return s.streamer != nil }

// Model returns the configured model name.
func (s *Service) Model() string { return s.model }

func (s *Service) session(id string) *Session {
	sess, _ := s.sessions.GetOrCreate(id, func() (*Session, error) { return &Session{}, nil })
	return sess
}

// Send answers input within the session, passing text to emit as it
// arrives. When the model fails, the error reply is emitted and recorded
// as the assistant turn, and the error is returned.
func (s *Service) Send(ctx context.Context, sessionID, input string, emit func(string) error) (string, error) {
	if !s.Enabled() {
		return "", ErrNoCredentials
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyMessage
	}
	sess := s.session(sessionID)
	history := sess.snapshot()

	s.log.Debug(ctx, "sending prompt",
		logger.Int("history", len(history)),
		logger.String("model", s.model),
	)

	var reply strings.Builder
	err := s.streamer.Stream(ctx, Request{
		Model:     s.model,
		System:    SystemPrompt,
		Prompt:    BuildPrompt(history, input),
		MaxTokens: s.maxTokens,
	}, func(delta string) error {
		reply.WriteString(delta)
		return emit(delta)
	})

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
		s.log.Error(ctx, "chat reply failed", logger.Error(err))
		text := ErrorReply(err)
		_ = emit(text)
		reply.Reset()
		reply.WriteString(text)
	case reply.Len() == 0:
		outcome = "empty"
		reply.WriteString(NoResponse)
		if emitErr := emit(NoResponse); emitErr != nil {
			err = emitErr
		}
	}
	metrics.RecordChatStream(outcome)

	sess.append(
		Message{Role: RoleUser, Content: input},
		Message{Role: RoleAssistant, Content: reply.String()},
	)
	return reply.String(), err
}

// History returns the session transcript with assistant turns rendered
// to HTML.
func (s *Service) History(sessionID string) []Rendered {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return []Rendered{}
	}
	msgs := sess.snapshot()
	out := make([]Rendered, 0, len(msgs))
	for _, m := range msgs {
		r := Rendered{Role: m.Role, Content: m.Content}
		if m.Role == RoleAssistant {
			r.HTML = RenderMarkdown(m.Content)
		} else {
			r.HTML = template.HTML(template.HTMLEscapeString(m.Content))
		}
		out = append(out, r)
	}
	return out
}

// Reset forgets the session.
func (s *Service) Reset(sessionID string) {
	s.sessions.Delete(sessionID)
}
