package agent

import (
	"context"
	"regexp"
	"strings"

	"github.com/hrygo/supportdesk/ai/conversation"
	"github.com/hrygo/supportdesk/ai/core/llm"
)

const billingPrompt = `You are the billing specialist of a customer support team.
Answer questions about invoices, payment methods and subscriptions briefly.
Never promise refunds or credits.`

// DisputeMatcher detects refund and dispute requests.
type DisputeMatcher struct {
	re       *regexp.Regexp
	keywords []string
}

// NewDisputeMatcher matches whole words only. Each keyword also matches its
// regular inflections, so "refund" covers "refunds" and "refunded" while
// "charge" does not match "charger".
func NewDisputeMatcher(keywords []string) *DisputeMatcher {
	m := &DisputeMatcher{}
	groups := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		m.keywords = append(m.keywords, k)
		groups = append(groups, "("+inflections(k)+")")
	}
	if len(groups) == 0 {
		return m
	}
	m.re = regexp.MustCompile(`(?i)\b(?:` + strings.Join(groups, "|") + `)\b`)
	return m
}

// inflections returns a pattern for k and its plural, past and gerund forms.
func inflections(k string) string {
	q := regexp.QuoteMeta(k)
	forms := []string{q + "(?:s|es|ed|d|ing)?"}
	if stem, ok := strings.CutSuffix(k, "e"); ok && stem != "" {
		forms = append(forms, regexp.QuoteMeta(stem)+"ing")
	}
	return strings.Join(forms, "|")
}

// Match returns the configured keyword behind the first dispute word in text.
func (m *DisputeMatcher) Match(text string) (string, bool) {
	if m == nil || m.re == nil {
		return "", false
	}
	loc := m.re.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", false
	}
	for i, k := range m.keywords {
		if loc[2*(i+1)] >= 0 {
			return k, true
		}
	}
	return strings.ToLower(text[loc[0]:loc[1]]), true
}

// BillingHandler answers billing questions and escalates disputes.
type BillingHandler struct {
	completer llm.Completer
	disputes  *DisputeMatcher
}

var _ Handler = (*BillingHandler)(nil)

// NewBillingHandler creates a billing handler. A nil completer answers with
// the static account summary.
func NewBillingHandler(completer llm.Completer, disputes *DisputeMatcher) *BillingHandler {
	return &BillingHandler{completer: completer, disputes: disputes}
}

func (*BillingHandler) Specialist() conversation.Specialist {
	return conversation.SpecialistBilling
}

func (h *BillingHandler) Handle(ctx context.Context, req *Request) (*Result, error) {
	if kw, ok := h.disputes.Match(req.Text); ok {
		return &Result{Escalate: true, Reason: "billing dispute: " + kw}, nil
	}
	if h.completer == nil {
		return &Result{Reply: "Billing Specialist here. All your payments are up to date!"}, nil
	}

	reply, usage, err := answer(ctx, h.completer, billingPrompt, req.Window)
	if err != nil {
		return degraded(ctx, err)
	}
	return &Result{Reply: reply, Usage: usage}, nil
}
