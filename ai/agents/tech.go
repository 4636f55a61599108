package agent

import (
	"context"
	"strings"

	"github.com/hrygo/supportdesk/ai/conversation"
)

// Article is one knowledge base entry.
type Article struct {
	Topic    string   `yaml:"topic"`
	Answer   string   `yaml:"answer"`
	Keywords []string `yaml:"keywords"`
}

// KnowledgeConfig is the YAML layout of the knowledge base file.
type KnowledgeConfig struct {
	Articles []Article `yaml:"articles"`
}

// DefaultKnowledge returns the built-in articles.
func DefaultKnowledge() KnowledgeConfig {
	return KnowledgeConfig{Articles: []Article{
		{Topic: "password", Keywords: []string{"password", "forgot", "reset"}, Answer: "Go to login -> Forgot Password."},
		{Topic: "login", Keywords: []string{"login", "log in", "sign in", "cookies"}, Answer: "Ensure cookies are enabled and try Incognito mode."},
	}}
}

// KnowledgeBase is a static keyword index over articles.
type KnowledgeBase struct {
	articles []Article
}

// NewKnowledgeBase indexes cfg. Keywords are matched case-insensitively.
func NewKnowledgeBase(cfg KnowledgeConfig) *KnowledgeBase {
	kb := &KnowledgeBase{}
	for _, a := range cfg.Articles {
		if a.Answer == "" {
			continue
		}
		words := make([]string, 0, len(a.Keywords))
		for _, k := range a.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				words = append(words, k)
			}
		}
		a.Keywords = words
		kb.articles = append(kb.articles, a)
	}
	return kb
}

// Search returns the article with the most keyword hits in text.
// Ties go to the earlier article.
func (kb *KnowledgeBase) Search(text string) (Article, bool) {
	lower := strings.ToLower(text)
	best, bestHits := -1, 0
	for i, a := range kb.articles {
		hits := 0
		for _, k := range a.Keywords {
			if strings.Contains(lower, k) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = i, hits
		}
	}
	if best < 0 {
		return Article{}, false
	}
	return kb.articles[best], true
}

// Len returns the number of indexed articles.
func (kb *KnowledgeBase) Len() int {
	return len(kb.articles)
}

// TechHandler answers from the knowledge base and flags low confidence
// when nothing matches.
type TechHandler struct {
	kb *KnowledgeBase
}

var _ Handler = (*TechHandler)(nil)

func NewTechHandler(kb *KnowledgeBase) *TechHandler {
	if kb == nil {
		kb = NewKnowledgeBase(DefaultKnowledge())
	}
	return &TechHandler{kb: kb}
}

func (*TechHandler) Specialist() conversation.Specialist {
	return conversation.SpecialistTech
}

func (h *TechHandler) Handle(_ context.Context, req *Request) (*Result, error) {
	article, ok := h.kb.Search(req.Text)
	if !ok {
		return &Result{
			Reply:         "Please describe your technical issue in more detail.",
			LowConfidence: true,
		}, nil
	}
	return &Result{Reply: "Tech Specialist: " + article.Answer + "\nDid that help?"}, nil
}
