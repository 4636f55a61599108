package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Backend is one OpenAI-compatible inference endpoint in the fallback chain.
type Backend struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	// RPS caps the request rate sent to this backend. Zero means unlimited.
	RPS float64
}

// Profile is configuration to start the support server.
type Profile struct {
	// Inference fallback chain, tried in order.
	Backends       []Backend
	AttemptTimeout time.Duration
	MaxTokens      int
	Temperature    float32
	CostPerToken   float64

	// Conversation policy
	WindowSize          int
	EscalationThreshold int
	DisputeKeywords     []string
	SessionPolicy       string // queue or reject
	SessionIdleTTL      time.Duration
	StoreTimeout        time.Duration

	// Policy files, relative to PolicyDir
	PolicyDir           string
	SanitizerFile       string
	KnowledgeFile       string
	EscalationRulesFile string
	RoutingFile         string

	// Ticketing: "store" records tickets locally and notifies the webhook
	// when set; "webhook" delegates ticket creation to the help desk.
	Ticketing        string
	TicketWebhookURL string

	// Server
	APIKey      string
	Mode        string
	Addr        string
	Driver      string
	DSN         string
	Data        string
	Version     string
	Port        int
	LogLevel    string
	Tracing     bool
	MetricsPath string
}

// Provider default configurations for OpenAI-compatible backends.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "deepseek/deepseek-chat",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
	},
}

var defaultDisputeKeywords = []string{"refund", "charge", "dispute"}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsDemo reports whether demo customers and orders should be seeded.
func (p *Profile) IsDemo() bool {
	return p.Mode == "demo"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// FromEnv loads the inference and conversation policy from environment variables.
//
// SUPPORTDESK_LLM_BACKENDS lists providers in fallback order, e.g. "deepseek,openai".
// Each provider reads SUPPORTDESK_LLM_<PROVIDER>_{API_KEY,BASE_URL,MODEL,RPS}.
func (p *Profile) FromEnv() {
	p.Backends = nil
	for _, provider := range splitList(getEnvOrDefault("SUPPORTDESK_LLM_BACKENDS", "deepseek")) {
		if _, ok := llmProviderDefaults[provider]; !ok {
			slog.Warn("Unknown LLM provider, expecting explicit base URL and model", "provider", provider)
		}
		prefix := "SUPPORTDESK_LLM_" + strings.ToUpper(provider) + "_"
		b := Backend{
			Provider: provider,
			APIKey:   getEnvOrDefault(prefix+"API_KEY", ""),
			BaseURL:  getEnvOrDefault(prefix+"BASE_URL", ""),
			Model:    getEnvOrDefault(prefix+"MODEL", ""),
			RPS:      getEnvOrDefaultFloat(prefix+"RPS", 0),
		}
		if defaults, ok := llmProviderDefaults[provider]; ok {
			if b.BaseURL == "" {
				b.BaseURL = defaults.BaseURL
			}
			if b.Model == "" {
				b.Model = defaults.Model
			}
		}
		p.Backends = append(p.Backends, b)
	}

	p.AttemptTimeout = time.Duration(getEnvOrDefaultInt("SUPPORTDESK_LLM_ATTEMPT_TIMEOUT_SECONDS", 20)) * time.Second
	p.MaxTokens = getEnvOrDefaultInt("SUPPORTDESK_LLM_MAX_TOKENS", 1024)
	p.Temperature = float32(getEnvOrDefaultFloat("SUPPORTDESK_LLM_TEMPERATURE", 0.3))
	p.CostPerToken = getEnvOrDefaultFloat("SUPPORTDESK_COST_PER_TOKEN", 0.00000014)

	p.WindowSize = getEnvOrDefaultInt("SUPPORTDESK_WINDOW_SIZE", 10)
	p.EscalationThreshold = getEnvOrDefaultInt("SUPPORTDESK_ESCALATION_THRESHOLD", 2)
	p.DisputeKeywords = splitList(getEnvOrDefault("SUPPORTDESK_DISPUTE_KEYWORDS", strings.Join(defaultDisputeKeywords, ",")))
	p.SessionPolicy = getEnvOrDefault("SUPPORTDESK_SESSION_POLICY", "queue")
	p.SessionIdleTTL = time.Duration(getEnvOrDefaultInt("SUPPORTDESK_SESSION_IDLE_MINUTES", 30)) * time.Minute
	p.StoreTimeout = time.Duration(getEnvOrDefaultInt("SUPPORTDESK_STORE_TIMEOUT_SECONDS", 5)) * time.Second

	p.PolicyDir = getEnvOrDefault("SUPPORTDESK_POLICY_DIR", "config")
	p.SanitizerFile = getEnvOrDefault("SUPPORTDESK_SANITIZER_FILE", "sanitizer.yaml")
	p.KnowledgeFile = getEnvOrDefault("SUPPORTDESK_KNOWLEDGE_FILE", "knowledge.yaml")
	p.EscalationRulesFile = getEnvOrDefault("SUPPORTDESK_ESCALATION_RULES_FILE", "escalation.yaml")
	p.RoutingFile = getEnvOrDefault("SUPPORTDESK_ROUTING_FILE", "routing.yaml")

	p.Ticketing = getEnvOrDefault("SUPPORTDESK_TICKETING", "store")
	p.TicketWebhookURL = getEnvOrDefault("SUPPORTDESK_TICKET_WEBHOOK_URL", "")
	p.LogLevel = getEnvOrDefault("SUPPORTDESK_LOG_LEVEL", "info")
	p.Tracing = getEnvOrDefault("SUPPORTDESK_TRACING", "false") == "true"
	p.MetricsPath = getEnvOrDefault("SUPPORTDESK_METRICS_PATH", "/metrics")
}

// IsInferenceEnabled reports whether at least one backend has credentials.
// Local providers such as ollama need none.
func (p *Profile) IsInferenceEnabled() bool {
	for _, b := range p.Backends {
		if b.APIKey != "" || b.Provider == "ollama" {
			return true
		}
	}
	return false
}

// TurnTimeout bounds one whole turn: every backend attempt in the worst case
// for routing and the handler, plus the store budget.
func (p *Profile) TurnTimeout() time.Duration {
	n := len(p.Backends)
	if n == 0 {
		n = 1
	}
	return 2*time.Duration(n)*p.AttemptTimeout + 2*p.StoreTimeout
}

func checkDataDir(dataDir string) (string, error) {
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes the profile and fills derived defaults.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/supportdesk"
	}
	if p.Data == "" {
		p.Data = "."
	}

	if p.SessionPolicy != "queue" && p.SessionPolicy != "reject" {
		return errors.Errorf("invalid session policy %q, expecting queue or reject", p.SessionPolicy)
	}
	switch p.Ticketing {
	case "store":
	case "webhook":
		if p.TicketWebhookURL == "" {
			return errors.New("webhook ticketing requires a ticket webhook url")
		}
	default:
		return errors.Errorf("invalid ticketing %q, expecting store or webhook", p.Ticketing)
	}
	if p.WindowSize <= 0 {
		return errors.Errorf("window size must be positive, got %d", p.WindowSize)
	}
	if p.EscalationThreshold <= 0 {
		return errors.Errorf("escalation threshold must be positive, got %d", p.EscalationThreshold)
	}
	for _, b := range p.Backends {
		if b.BaseURL == "" || b.Model == "" {
			return errors.Errorf("backend %q needs a base URL and a model", b.Provider)
		}
	}

	switch p.Driver {
	case "sqlite", "badger":
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
			return err
		}
		p.Data = dataDir
		if p.DSN == "" {
			if p.Driver == "sqlite" {
				p.DSN = filepath.Join(dataDir, fmt.Sprintf("supportdesk_%s.db", p.Mode))
			} else {
				p.DSN = filepath.Join(dataDir, fmt.Sprintf("supportdesk_%s.badger", p.Mode))
			}
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("postgres driver requires a dsn")
		}
	default:
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	return nil
}
