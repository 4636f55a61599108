package llm

import "strings"

// EstimateTokens approximates the cost of ingesting text when a backend
// reports no usage: two tokens per word plus a fixed overhead.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))*2 + 100
}

// EnsureStats fills missing usage on resp from the prompt and completion text.
func EnsureStats(resp *Response, req *Request) {
	if resp == nil || resp.Stats.TotalTokens > 0 {
		return
	}
	prompt := 0
	for _, m := range req.Messages {
		prompt += len(strings.Fields(m.Content)) * 2
	}
	resp.Stats.PromptTokens = prompt + 100
	resp.Stats.CompletionTokens = len(strings.Fields(resp.Content)) * 2
	resp.Stats.TotalTokens = resp.Stats.PromptTokens + resp.Stats.CompletionTokens
}
