// Package llm provides backend-agnostic chat completion with ordered
// fallback across OpenAI-compatible providers.
package llm

import (
	"context"
	"time"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// Request is a backend-agnostic completion request.
type Request struct {
	Messages []Message
	// MaxTokens and Temperature override backend defaults when non-zero.
	MaxTokens   int
	Temperature float32
	// JSON asks the backend for a JSON object response.
	JSON bool
}

// CallStats represents token usage and timing of a single completion.
type CallStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	TotalDurationMs  int64
}

// Response is the completion plus the identity of the backend that produced it.
type Response struct {
	Content string
	Backend string
	Model   string
	Stats   CallStats
	Latency time.Duration
}

// Backend is one inference provider.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Completer is what callers of inference depend on. The Gateway implements it.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}
