package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hrygo/supportdesk/ai/conversation"
	"github.com/hrygo/supportdesk/ai/core/llm"
	"github.com/hrygo/supportdesk/ai/internal/strutil"
)

const classifierPrompt = `You route customer support messages to one specialist.
Specialists:
- order: order status, shipping, delivery, tracking
- tech: login, passwords, errors, app problems
- billing: payments, invoices, refunds, charges
- generalist: anything else
Reply with only a JSON object: {"specialist": "order|tech|billing|generalist", "confidence": 0.0-1.0, "rationale": "short reason"}`

type classification struct {
	Specialist string  `json:"specialist"`
	Rationale  string  `json:"rationale"`
	Confidence float64 `json:"confidence"`
}

// classify asks the gateway for a specialist over the trimmed history.
func classify(ctx context.Context, completer llm.Completer, turns []conversation.Turn) (Decision, error) {
	messages := []llm.Message{llm.SystemPrompt(classifierPrompt)}
	for _, t := range turns {
		switch t.Role {
		case conversation.RoleUser:
			messages = append(messages, llm.UserMessage(t.Content))
		case conversation.RoleAssistant:
			messages = append(messages, llm.AssistantMessage(t.Content))
		}
	}

	req := &llm.Request{Messages: messages, MaxTokens: 100, Temperature: 0.1, JSON: true}
	resp, err := completer.Complete(ctx, req)
	if err != nil {
		return Decision{}, err
	}
	llm.EnsureStats(resp, req)

	d := parseClassification(resp.Content)
	d.Method = MethodLLM
	d.Usage = conversation.Usage{
		PromptTokens:     resp.Stats.PromptTokens,
		CompletionTokens: resp.Stats.CompletionTokens,
		TotalTokens:      resp.Stats.TotalTokens,
	}
	return d, nil
}

// parseClassification reads the model output leniently. Anything that does not
// name a known specialist maps to the generalist.
func parseClassification(content string) Decision {
	var c classification
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &c); err != nil {
			c = classification{}
		}
	}

	if c.Specialist == "" {
		lower := strings.ToLower(content)
		for _, s := range conversation.Specialists {
			if strings.Contains(lower, string(s)) {
				c.Specialist = string(s)
				c.Rationale = "specialist named in free-form output"
				c.Confidence = 0.5
				break
			}
		}
	}

	target := conversation.ParseSpecialist(strings.ToLower(strings.TrimSpace(c.Specialist)))
	if string(target) != strings.ToLower(strings.TrimSpace(c.Specialist)) {
		return Decision{
			Target:     conversation.SpecialistGeneralist,
			Confidence: 0.3,
			Rationale:  fmt.Sprintf("unrecognized classifier output %q", strutil.Truncate(content, 40)),
		}
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		c.Confidence = 0.5
	}
	return Decision{Target: target, Confidence: c.Confidence, Rationale: c.Rationale}
}

