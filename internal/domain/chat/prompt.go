package chat

import (
	"strings"
	"unicode/utf8"
)

// Default models per credential source.
const (
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
	DefaultBedrockModel   = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
)

// SystemPrompt frames every conversation.
const SystemPrompt = "You are a helpful assistant. Answer questions clearly and concisely. " +
	"You are running as part of a Posit Connect extension. " +
	"When given conversation history, continue the conversation naturally."

// NoResponse is sent when the model produced no text.
const NoResponse = "No response received from Claude."

const maxErrorLen = 200

// Roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SelectModel picks the explicit model, else the default for the
// credential source.
func SelectModel(explicit string, bedrock bool) string {
	switch {
	case explicit != "":
		return explicit
	case bedrock:
		return DefaultBedrockModel
	default:
		return DefaultAnthropicModel
	}
}

// BuildPrompt folds history into a single prompt ending with input.
// Turns with other roles are skipped.
func BuildPrompt(history []Message, input string) string {
	if len(history) == 0 {
		return input
	}
	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			b.WriteString("User: " + m.Content + "\n")
		case RoleAssistant:
			b.WriteString("Assistant: " + m.Content + "\n")
		}
	}
	b.WriteString("\nNow respond to the user's latest message.")
	b.WriteString("\n\nUser: " + input)
	return b.String()
}

// ErrorReply is the assistant text shown when a reply fails. Long error
// texts are cut to 200 characters.
func ErrorReply(err error) string {
	msg := err.Error()
	if utf8.RuneCountInString(msg) > maxErrorLen {
		msg = string([]rune(msg)[:maxErrorLen]) + "..."
	}
	return "Sorry, an error occurred: " + msg
}
