package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/supportdesk/ai/observability"
)

type fakeBackend struct {
	err     error
	resp    *Response
	name    string
	delay   time.Duration
	calls   int
	callsMu sync.Mutex
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Complete(ctx context.Context, _ *Request) (*Response, error) {
	f.callsMu.Lock()
	f.calls++
	f.callsMu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type attemptRecorder struct {
	observability.Nop
	mu     sync.Mutex
	events []observability.AttemptEvent
}

func (r *attemptRecorder) InferenceAttempt(_ context.Context, e observability.AttemptEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *attemptRecorder) outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Backend + ":" + e.Outcome
	}
	return out
}

func okResponse(content string) *Response {
	return &Response{Content: content, Model: "m", Stats: CallStats{TotalTokens: 12}}
}

func TestGatewayFallback(t *testing.T) {
	req := &Request{Messages: []Message{UserMessage("hello")}}

	t.Run("first backend succeeds", func(t *testing.T) {
		a := &fakeBackend{name: "a", resp: okResponse("hi")}
		b := &fakeBackend{name: "b", resp: okResponse("unused")}
		rec := &attemptRecorder{}
		g := NewGateway([]Backend{a, b}, WithObserver(rec))

		resp, err := g.Complete(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "hi", resp.Content)
		assert.Equal(t, "a", resp.Backend)
		assert.Equal(t, 0, b.calls)
		assert.Equal(t, []string{"a:success"}, rec.outcomes())
	})

	t.Run("rate limited falls back", func(t *testing.T) {
		a := &fakeBackend{name: "a", err: &openai.APIError{HTTPStatusCode: 429, Message: "quota"}}
		b := &fakeBackend{name: "b", resp: okResponse("from b")}
		rec := &attemptRecorder{}
		g := NewGateway([]Backend{a, b}, WithObserver(rec))

		resp, err := g.Complete(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "b", resp.Backend)
		assert.Equal(t, []string{"a:rate_limited", "b:success"}, rec.outcomes())
	})

	t.Run("empty completion is a failure", func(t *testing.T) {
		a := &fakeBackend{name: "a", resp: &Response{Content: ""}}
		b := &fakeBackend{name: "b", resp: okResponse("from b")}
		rec := &attemptRecorder{}
		g := NewGateway([]Backend{a, b}, WithObserver(rec))

		resp, err := g.Complete(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "from b", resp.Content)
		assert.Equal(t, []string{"a:empty", "b:success"}, rec.outcomes())
	})

	t.Run("attempt timeout falls back", func(t *testing.T) {
		a := &fakeBackend{name: "a", delay: time.Second, resp: okResponse("late")}
		b := &fakeBackend{name: "b", resp: okResponse("fast")}
		rec := &attemptRecorder{}
		g := NewGateway([]Backend{a, b}, WithObserver(rec), WithAttemptTimeout(20*time.Millisecond))

		resp, err := g.Complete(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "fast", resp.Content)
		assert.Equal(t, []string{"a:timeout", "b:success"}, rec.outcomes())
	})

	t.Run("permanent rejection stops immediately", func(t *testing.T) {
		a := &fakeBackend{name: "a", err: &openai.APIError{HTTPStatusCode: 400, Message: "bad request"}}
		b := &fakeBackend{name: "b", resp: okResponse("unused")}
		g := NewGateway([]Backend{a, b})

		_, err := g.Complete(context.Background(), req)
		require.Error(t, err)
		var ierr *InferenceError
		require.ErrorAs(t, err, &ierr)
		assert.False(t, ierr.Retriable)
		assert.False(t, ierr.Exhausted)
		assert.Len(t, ierr.Attempts, 1)
		assert.Equal(t, 0, b.calls)
	})

	t.Run("all backends failing is exhausted", func(t *testing.T) {
		a := &fakeBackend{name: "a", err: ErrRateLimited}
		b := &fakeBackend{name: "b", err: errors.New("dial tcp: connection refused")}
		c := &fakeBackend{name: "c", err: &openai.APIError{HTTPStatusCode: 503}}
		g := NewGateway([]Backend{a, b, c})

		_, err := g.Complete(context.Background(), req)
		require.Error(t, err)
		assert.True(t, IsExhausted(err))
		var ierr *InferenceError
		require.ErrorAs(t, err, &ierr)
		require.Len(t, ierr.Attempts, 3)
		assert.Equal(t, ClassRateLimited, ierr.Attempts[0].Class)
		assert.Equal(t, ClassTransport, ierr.Attempts[1].Class)
		assert.Equal(t, ClassServer, ierr.Attempts[2].Class)
		for _, fb := range []*fakeBackend{a, b, c} {
			assert.Equal(t, 1, fb.calls, "each backend is tried at most once")
		}
	})

	t.Run("no backends is exhausted", func(t *testing.T) {
		_, err := NewGateway(nil).Complete(context.Background(), req)
		assert.True(t, IsExhausted(err))
		assert.ErrorIs(t, err, ErrNoBackends)
	})

	t.Run("caller cancellation stops the chain", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		a := &fakeBackend{name: "a", delay: time.Second, resp: okResponse("late")}
		b := &fakeBackend{name: "b", resp: okResponse("unused")}

		_, err := NewGateway([]Backend{a, b}).Complete(ctx, req)
		require.Error(t, err)
		assert.False(t, IsExhausted(err))
		assert.Equal(t, 0, b.calls)
	})
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"local quota", ErrRateLimited, ClassRateLimited},
		{"http 429", &openai.APIError{HTTPStatusCode: 429}, ClassRateLimited},
		{"http 408", &openai.RequestError{HTTPStatusCode: 408, Err: errors.New("timeout")}, ClassTimeout},
		{"http 502", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, ClassServer},
		{"http 401", &openai.APIError{HTTPStatusCode: 401}, ClassAuth},
		{"http 422", &openai.APIError{HTTPStatusCode: 422}, ClassInvalidRequest},
		{"deadline", context.DeadlineExceeded, ClassTimeout},
		{"canceled", context.Canceled, ClassCanceled},
		{"wrapped deadline", errors.Join(errors.New("call"), context.DeadlineExceeded), ClassTimeout},
		{"empty", ErrEmptyCompletion, ClassEmpty},
		{"reset", errors.New("read: connection reset by peer"), ClassTransport},
		{"dns", errors.New("dial tcp: lookup api: no such host"), ClassTransport},
		{"unknown", errors.New("something odd"), ClassServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestErrorClassRetriable(t *testing.T) {
	for _, c := range []ErrorClass{ClassTimeout, ClassRateLimited, ClassTransport, ClassServer, ClassEmpty} {
		assert.True(t, c.Retriable(), c.String())
	}
	for _, c := range []ErrorClass{ClassInvalidRequest, ClassAuth, ClassCanceled} {
		assert.False(t, c.Retriable(), c.String())
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 100, EstimateTokens(""))
	assert.Equal(t, 108, EstimateTokens("where is my order"))

	req := &Request{Messages: []Message{SystemPrompt("be brief"), UserMessage("hi there")}}
	resp := &Response{Content: "hello friend"}
	EnsureStats(resp, req)
	assert.Equal(t, 108, resp.Stats.PromptTokens)
	assert.Equal(t, 4, resp.Stats.CompletionTokens)
	assert.Equal(t, 112, resp.Stats.TotalTokens)

	reported := &Response{Content: "x", Stats: CallStats{TotalTokens: 7}}
	EnsureStats(reported, req)
	assert.Equal(t, 7, reported.Stats.TotalTokens)
}
