package routing

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/hrygo/supportdesk/ai/conversation"
)

// orderRefRegex matches references like "#552" or "ORD-123".
var orderRefRegex = regexp.MustCompile(`(?i)(#\d+|\bORD-\d+\b)`)

// RuleConfig holds keyword signals per specialist.
type RuleConfig struct {
	Keywords      map[conversation.Specialist][]string `yaml:"keywords"`
	Confirmations []string                             `yaml:"confirmations"`
}

// DefaultRuleConfig returns the built-in keyword signals.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		Keywords: map[conversation.Specialist][]string{
			conversation.SpecialistOrder: {
				"order", "orders", "shipping", "shipped", "delivery", "deliver", "track", "tracking", "package", "parcel",
			},
			conversation.SpecialistTech: {
				"password", "login", "log in", "error", "crash", "crashes", "bug", "app", "not working", "broken", "cookies", "reset",
			},
			conversation.SpecialistBilling: {
				"bill", "billing", "invoice", "payment", "pay", "refund", "charge", "charged", "dispute", "subscription",
			},
		},
		Confirmations: []string{
			"ok", "okay", "k", "yes", "yep", "yeah", "sure", "no", "nope", "thanks", "thank you", "thx", "great", "cool", "got it",
		},
	}
}

// MatchResult carries per-specialist keyword scores for one text.
type MatchResult struct {
	Scores map[conversation.Specialist]int
	// Candidates lists every specialist with a positive score, highest first.
	Candidates []conversation.Specialist
}

// Clear reports whether exactly one specialist has a signal.
func (r MatchResult) Clear() bool {
	return len(r.Candidates) == 1
}

// Mixed reports whether more than one specialist has a signal.
func (r MatchResult) Mixed() bool {
	return len(r.Candidates) > 1
}

// Top returns the highest scoring candidate.
func (r MatchResult) Top() (conversation.Specialist, bool) {
	if len(r.Candidates) == 0 {
		return "", false
	}
	return r.Candidates[0], true
}

// Contains reports whether s is among the candidates.
func (r MatchResult) Contains(s conversation.Specialist) bool {
	for _, c := range r.Candidates {
		if c == s {
			return true
		}
	}
	return false
}

// RuleMatcher scores keyword signals without calling inference.
type RuleMatcher struct {
	keywords      map[conversation.Specialist][]string
	confirmations map[string]struct{}
}

// NewRuleMatcher builds a matcher. Empty sections of cfg use the defaults.
func NewRuleMatcher(cfg RuleConfig) *RuleMatcher {
	def := DefaultRuleConfig()
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = def.Keywords
	}
	if len(cfg.Confirmations) == 0 {
		cfg.Confirmations = def.Confirmations
	}

	m := &RuleMatcher{
		keywords:      make(map[conversation.Specialist][]string, len(cfg.Keywords)),
		confirmations: make(map[string]struct{}, len(cfg.Confirmations)),
	}
	for s, words := range cfg.Keywords {
		if !routable(s) {
			continue
		}
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				m.keywords[s] = append(m.keywords[s], w)
			}
		}
	}
	for _, c := range cfg.Confirmations {
		for _, w := range strings.Fields(normalize(c)) {
			m.confirmations[w] = struct{}{}
		}
	}
	return m
}

// maxConfirmationWords bounds how long an acknowledgement can be.
const maxConfirmationWords = 4

// IsConfirmation reports whether text is a short acknowledgement such as
// "ok" or "yes, thank you".
func (m *RuleMatcher) IsConfirmation(text string) bool {
	words := strings.Fields(normalize(text))
	if len(words) == 0 || len(words) > maxConfirmationWords {
		return false
	}
	for _, w := range words {
		if _, ok := m.confirmations[w]; !ok {
			return false
		}
	}
	return true
}

// Match scores text against every specialist's keywords.
func (m *RuleMatcher) Match(text string) MatchResult {
	lower := " " + normalize(text) + " "
	res := MatchResult{Scores: make(map[conversation.Specialist]int)}

	for s, words := range m.keywords {
		for _, w := range words {
			if strings.Contains(lower, " "+w+" ") {
				res.Scores[s]++
			}
		}
	}
	if orderRefRegex.MatchString(text) {
		res.Scores[conversation.SpecialistOrder] += 2
	}

	// Stable order: score descending, then the canonical specialist order.
	for _, s := range conversation.Specialists {
		if res.Scores[s] <= 0 {
			continue
		}
		i := len(res.Candidates)
		res.Candidates = append(res.Candidates, s)
		for i > 0 && res.Scores[res.Candidates[i-1]] < res.Scores[s] {
			res.Candidates[i] = res.Candidates[i-1]
			i--
		}
		res.Candidates[i] = s
	}
	return res
}

// normalize lowercases text and collapses punctuation into single spaces.
func normalize(text string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space && b.Len() > 0 {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}
