// Package session serializes turns of the same conversation while letting
// different conversations run in parallel.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Policy decides what happens to a turn that arrives while another turn of
// the same session is running.
type Policy string

const (
	// PolicyQueue waits, bounded by the caller's context.
	PolicyQueue Policy = "queue"
	// PolicyReject fails fast with ErrBusy.
	PolicyReject Policy = "reject"
)

// ErrBusy is returned under PolicyReject when the session is in use.
var ErrBusy = errors.New("session is busy")

const (
	DefaultIdleTTL       = 30 * time.Minute
	janitorCheckInterval = time.Minute
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyQueue, PolicyReject:
		return Policy(s), nil
	case "":
		return PolicyQueue, nil
	default:
		return "", fmt.Errorf("unknown session policy %q", s)
	}
}

type entry struct {
	lastUsed time.Time
	sem      *semaphore.Weighted
	// refs counts holders and waiters; the janitor skips referenced entries.
	refs int
}

// Registry holds one single-slot semaphore per active session.
type Registry struct {
	entries  map[string]*entry
	now      func() time.Time
	logger   *slog.Logger
	policy   Policy
	idleTTL  time.Duration
	interval time.Duration
	mu       sync.Mutex
}

// NewRegistry creates a registry. A non-positive idleTTL selects DefaultIdleTTL.
func NewRegistry(policy Policy, idleTTL time.Duration, logger *slog.Logger) *Registry {
	if policy == "" {
		policy = PolicyQueue
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries:  make(map[string]*entry),
		now:      time.Now,
		logger:   logger.With("component", "session_registry"),
		policy:   policy,
		idleTTL:  idleTTL,
		interval: janitorCheckInterval,
	}
}

// Policy returns the configured busy policy.
func (r *Registry) Policy() Policy {
	return r.policy
}

// Acquire takes the session slot and returns its release function.
func (r *Registry) Acquire(ctx context.Context, sessionID string) (func(), error) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		r.entries[sessionID] = e
	}
	e.refs++
	e.lastUsed = r.now()
	r.mu.Unlock()

	var err error
	if r.policy == PolicyReject {
		if !e.sem.TryAcquire(1) {
			err = ErrBusy
		}
	} else {
		err = e.sem.Acquire(ctx, 1)
	}
	if err != nil {
		r.unref(e)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			r.unref(e)
		})
	}, nil
}

func (r *Registry) unref(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	e.lastUsed = r.now()
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep evicts unreferenced entries idle for longer than the TTL and returns
// how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTTL)
	removed := 0
	for id, e := range r.entries {
		if e.refs == 0 && e.lastUsed.Before(cutoff) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("evicted idle sessions", "count", n)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
