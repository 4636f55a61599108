package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Config represents one OpenAI-compatible backend.
type Config struct {
	Provider    string // deepseek, openai, siliconflow, openrouter, ollama
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 512
	Temperature float32 // default: 0.3
	// RPS bounds requests per second sent to this backend. Zero disables the limiter.
	RPS float64
}

// OpenAIBackend is a Backend for any OpenAI-compatible chat completions API.
type OpenAIBackend struct {
	client      *openai.Client
	limiter     *rate.Limiter
	name        string
	model       string
	maxTokens   int
	temperature float32
}

var _ Backend = (*OpenAIBackend)(nil)

// NewOpenAIBackend creates a backend from cfg.
func NewOpenAIBackend(cfg *Config) (*OpenAIBackend, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("backend %s: model is required", cfg.Provider)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient()
	switch cfg.Provider {
	case "deepseek":
		clientConfig.BaseURL = "https://api.deepseek.com"
	case "siliconflow":
		clientConfig.BaseURL = "https://api.siliconflow.cn/v1"
	case "openrouter":
		clientConfig.BaseURL = "https://openrouter.ai/api/v1"
	case "ollama":
		clientConfig.BaseURL = "http://localhost:11434/v1"
	case "openai":
	default:
		slog.Info("Using generic OpenAI-compatible provider", "provider", cfg.Provider)
	}
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	b := &OpenAIBackend{
		client:      openai.NewClientWithConfig(clientConfig),
		name:        cfg.Provider,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
	if b.maxTokens <= 0 {
		b.maxTokens = 512
	}
	if b.temperature <= 0 {
		b.temperature = 0.3
	}
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return b, nil
}

// Name returns the provider name.
func (b *OpenAIBackend) Name() string {
	return b.name
}

// Model returns the configured model.
func (b *OpenAIBackend) Model() string {
	return b.model
}

// Complete performs one synchronous chat completion.
func (b *OpenAIBackend) Complete(ctx context.Context, req *Request) (*Response, error) {
	if b.limiter != nil && !b.limiter.Allow() {
		return nil, ErrRateLimited
	}

	maxTokens := b.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := b.temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	creq := openai.ChatCompletionRequest{
		Model:       b.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages:    convertMessages(req.Messages),
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	slog.Debug("LLM: Chat request",
		"backend", b.name,
		"model", b.model,
		"messages_count", len(req.Messages),
		"max_tokens", maxTokens,
	)

	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyCompletion
	}

	latency := time.Since(start)
	return &Response{
		Content: resp.Choices[0].Message.Content,
		Backend: b.name,
		Model:   b.model,
		Latency: latency,
		Stats: CallStats{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			TotalDurationMs:  latency.Milliseconds(),
		},
	}, nil
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	return out
}

// newHTTPClient creates an HTTP client with connection pooling shared by every
// request to a backend. Per-attempt deadlines come from the caller's context.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
		},
	}
}
