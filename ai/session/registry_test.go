package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRegistrySerializesSameSession(t *testing.T) {
	r := NewRegistry(PolicyQueue, time.Minute, nil)

	var running, maxRunning int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := r.Acquire(context.Background(), "s1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := atomic.AddInt32(&running, 1)
			for {
				m := atomic.LoadInt32(&maxRunning)
				if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&running, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxRunning)
}

func TestRegistryIndependentSessions(t *testing.T) {
	r := NewRegistry(PolicyReject, time.Minute, nil)

	releaseA, err := r.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := r.Acquire(context.Background(), "b")
	require.NoError(t, err)
	releaseB()
}

func TestRegistryRejectPolicy(t *testing.T) {
	r := NewRegistry(PolicyReject, time.Minute, nil)

	release, err := r.Acquire(context.Background(), "s1")
	require.NoError(t, err)

	_, err = r.Acquire(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrBusy)

	release()
	release() // second call is a no-op

	release, err = r.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	release()
}

func TestRegistryQueueHonorsContext(t *testing.T) {
	r := NewRegistry(PolicyQueue, time.Minute, nil)

	release, err := r.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Acquire(ctx, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistrySweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(PolicyQueue, time.Minute, nil)
	r.now = func() time.Time { return now }

	idle, err := r.Acquire(context.Background(), "idle")
	require.NoError(t, err)
	idle()
	busy, err := r.Acquire(context.Background(), "busy")
	require.NoError(t, err)
	defer busy()

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRunStops(t *testing.T) {
	r := NewRegistry(PolicyQueue, time.Millisecond, nil)
	r.interval = time.Millisecond

	release, err := r.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyQueue, p)

	p, err = ParsePolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, PolicyReject, p)

	_, err = ParsePolicy("drop")
	assert.Error(t, err)
}
