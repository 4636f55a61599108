package routing

import (
	"context"
	"log/slog"
	"strings"
	"time"

	ctxpkg "github.com/hrygo/supportdesk/ai/context"
	"github.com/hrygo/supportdesk/ai/cache"
	"github.com/hrygo/supportdesk/ai/conversation"
	"github.com/hrygo/supportdesk/ai/core/llm"
	"github.com/hrygo/supportdesk/ai/observability"
)

// Config contains the dependencies of a Dispatcher.
type Config struct {
	// Completer classifies ambiguous turns. Nil disables inference routing.
	Completer llm.Completer
	Observer  observability.Observer
	Logger    *slog.Logger
	Window    *ctxpkg.Window
	Rules     RuleConfig
	// CacheSize bounds memoized classifications. Negative disables the cache.
	CacheSize int
	CacheTTL  time.Duration
}

type cacheKey struct {
	active conversation.Specialist
	text   string
}

// Dispatcher picks the specialist for each turn. It never fails: every
// error path resolves to a sticky or generalist decision.
type Dispatcher struct {
	completer llm.Completer
	observer  observability.Observer
	logger    *slog.Logger
	window    *ctxpkg.Window
	rules     *RuleMatcher
	cache     *cache.LRU[cacheKey, Decision]
}

// NewDispatcher creates a dispatcher from cfg.
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		completer: cfg.Completer,
		observer:  observability.OrNop(cfg.Observer),
		logger:    cfg.Logger,
		window:    cfg.Window,
		rules:     NewRuleMatcher(cfg.Rules),
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("component", "dispatcher")
	if d.window == nil {
		d.window = ctxpkg.NewWindow(ctxpkg.DefaultWindowSize)
	}
	if cfg.CacheSize >= 0 {
		d.cache = cache.New[cacheKey, Decision](cfg.CacheSize, cfg.CacheTTL)
	}
	return d
}

// Route selects the specialist for the latest user turn of state.
func (d *Dispatcher) Route(ctx context.Context, state *conversation.State) Decision {
	dec := d.route(ctx, state)
	d.observer.RoutingDecided(ctx, observability.RoutingEvent{
		SessionID:  state.SessionID,
		Target:     string(dec.Target),
		Method:     string(dec.Method),
		Confidence: dec.Confidence,
	})
	d.logger.DebugContext(ctx, "turn routed",
		"session_id", state.SessionID,
		"target", dec.Target,
		"method", dec.Method,
		"confidence", dec.Confidence,
	)
	return dec
}

func (d *Dispatcher) route(ctx context.Context, state *conversation.State) Decision {
	if state.IsHumanTakeover {
		return Decision{Target: conversation.SpecialistNone, Method: MethodLocked, Rationale: "session is under human takeover"}
	}

	text := state.LastUserText()
	active := state.ActiveSpecialist

	if routable(active) && d.rules.IsConfirmation(text) {
		return Decision{Target: active, Method: MethodSticky, Confidence: 0.9, Rationale: "short confirmation"}
	}

	match := d.rules.Match(text)
	if match.Clear() {
		top, _ := match.Top()
		return Decision{
			Target:     top,
			Method:     MethodRule,
			Confidence: ruleConfidence(match.Scores[top]),
			Rationale:  "single keyword signal",
		}
	}
	if match.Mixed() && routable(active) && match.Contains(active) {
		return Decision{
			Target:     active,
			Method:     MethodSticky,
			Confidence: 0.6,
			Rationale:  "mixed signals include the current topic",
		}
	}

	key := cacheKey{active: active, text: strings.ToLower(strings.TrimSpace(text))}
	if d.cache != nil {
		if cached, ok := d.cache.Get(key); ok {
			cached.Method = MethodCache
			cached.Usage = conversation.Usage{}
			return cached
		}
	}

	if d.completer != nil {
		dec, err := classify(ctx, d.completer, d.window.Trim(state.Turns))
		if err == nil {
			if d.cache != nil {
				d.cache.Put(key, dec)
			}
			return dec
		}
		d.logger.WarnContext(ctx, "classification failed, using rules",
			"session_id", state.SessionID,
			"error", err,
		)
	}
	return fallback(match, active)
}

// fallback decides without inference.
func fallback(match MatchResult, active conversation.Specialist) Decision {
	if top, ok := match.Top(); ok {
		return Decision{Target: top, Method: MethodRule, Confidence: 0.4, Rationale: "strongest keyword signal"}
	}
	if routable(active) {
		return Decision{Target: active, Method: MethodSticky, Confidence: 0.4, Rationale: "no new signal, keep current topic"}
	}
	return Decision{Target: conversation.SpecialistGeneralist, Method: MethodDefault, Confidence: 0.2, Rationale: "no signal"}
}

func ruleConfidence(score int) float64 {
	c := 0.6 + 0.1*float64(score)
	if c > 0.95 {
		c = 0.95
	}
	return c
}
