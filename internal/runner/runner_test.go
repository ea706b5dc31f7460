package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptrunner/internal/logger"
)

type fakeProber struct {
	mu        sync.Mutex
	answers   []bool
	activeErr error
	healthErr error
	calls     atomic.Int32
	health    atomic.Int32
}

func (p *fakeProber) IsActiveRunner(context.Context) (bool, error) {
	n := int(p.calls.Add(1))
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.activeErr != nil {
		return false, p.activeErr
	}
	if n <= len(p.answers) {
		return p.answers[n-1], nil
	}
	return true, nil
}

func (p *fakeProber) Health(context.Context) error {
	p.health.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthErr
}

func quietOptions() Options {
	return Options{
		LivenessInterval: time.Hour,
		LivenessAttempts: 3,
		LivenessBackoff:  time.Millisecond,
		HealthInterval:   time.Hour,
		StartTimeout:     time.Hour,
		Logger:           logger.Discard(),
	}
}

func waitDone(t *testing.T, r *Runner) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("runner did not stop, state %s", r.State())
	}
}

func TestStartOnlyFromCreated(t *testing.T) {
	r := New(&fakeProber{}, &fakeProber{}, quietOptions())
	assert.Equal(t, StateCreated, r.State())
	assert.ErrorIs(t, r.MarkStarted(), ErrInvalidState)

	require.NoError(t, r.Start())
	assert.Equal(t, StateStarting, r.State())
	assert.ErrorIs(t, r.Start(), ErrInvalidState)

	require.NoError(t, r.MarkStarted())
	assert.Equal(t, StateStarted, r.State())
	assert.ErrorIs(t, r.MarkStarted(), ErrInvalidState)

	r.Shutdown("test", 0)
	waitDone(t, r)
	assert.Equal(t, StateStopped, r.State())
	assert.Equal(t, 0, r.ExitCode())
}

func TestNegativeLivenessStopsBeforeStarted(t *testing.T) {
	p := &fakeProber{answers: []bool{false, false, false}}
	r := New(p, p, quietOptions())
	require.NoError(t, r.Start())

	waitDone(t, r)
	assert.Equal(t, StateStopped, r.State())
	assert.EqualValues(t, 3, p.calls.Load())
	assert.Equal(t, 1, r.ExitCode())
	assert.ErrorIs(t, r.MarkStarted(), ErrInvalidState)
}

func TestLivenessTransportErrorsUseAttempts(t *testing.T) {
	p := &fakeProber{activeErr: errors.New("connection refused")}
	r := New(p, p, quietOptions())
	require.NoError(t, r.Start())

	waitDone(t, r)
	assert.EqualValues(t, 3, p.calls.Load())
	assert.Equal(t, 1, r.ExitCode())
}

func TestLivenessRecoversWithinAttempts(t *testing.T) {
	p := &fakeProber{answers: []bool{false, false, true}}
	r := New(p, p, quietOptions())
	require.NoError(t, r.Start())
	t.Cleanup(func() { r.Shutdown("test", 0) })

	assert.Eventually(t, func() bool { return p.calls.Load() == 3 }, 5*time.Second, time.Millisecond)
	select {
	case <-r.Done():
		t.Fatal("runner stopped after a positive answer")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, StateStarting, r.State())
}

func TestFailedHealthPingShutsDown(t *testing.T) {
	p := &fakeProber{healthErr: errors.New("unavailable")}
	opts := quietOptions()
	opts.HealthInterval = 5 * time.Millisecond
	r := New(p, p, opts)
	require.NoError(t, r.Start())

	waitDone(t, r)
	assert.Equal(t, 1, r.ExitCode())
	assert.Equal(t, "health ping failed", r.Reason())
	assert.GreaterOrEqual(t, p.health.Load(), int32(1))
}

func TestStartTimeout(t *testing.T) {
	opts := quietOptions()
	opts.StartTimeout = 20 * time.Millisecond
	r := New(&fakeProber{}, &fakeProber{}, opts)
	require.NoError(t, r.Start())

	waitDone(t, r)
	assert.Equal(t, StateStopped, r.State())
	assert.Equal(t, "start timeout", r.Reason())
}

func TestMarkStartedDisarmsStartTimeout(t *testing.T) {
	opts := quietOptions()
	opts.StartTimeout = 20 * time.Millisecond
	r := New(&fakeProber{}, &fakeProber{}, opts)
	require.NoError(t, r.Start())
	require.NoError(t, r.MarkStarted())
	t.Cleanup(func() { r.Shutdown("test", 0) })

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateStarted, r.State())
}

func TestShutdownRunsHooksOnce(t *testing.T) {
	opts := quietOptions()
	opts.GracePeriod = 10 * time.Millisecond
	r := New(&fakeProber{}, &fakeProber{}, opts)
	var hooks atomic.Int32
	r.OnShutdown(func() { hooks.Add(1) })
	require.NoError(t, r.Start())

	r.Stop()
	r.Stop()
	assert.Equal(t, StateStarting, r.State())

	r.Shutdown("first", 2)
	r.Shutdown("second", 3)
	assert.Equal(t, StateStopping, r.State())
	waitDone(t, r)

	assert.EqualValues(t, 1, hooks.Load())
	assert.Equal(t, 2, r.ExitCode())
	assert.Equal(t, "first", r.Reason())
}

func TestRecoverShutsDown(t *testing.T) {
	r := New(&fakeProber{}, &fakeProber{}, quietOptions())
	func() {
		defer r.Recover("test")
		panic("boom")
	}()
	waitDone(t, r)
	assert.Equal(t, 1, r.ExitCode())
	assert.Contains(t, r.Reason(), "boom")
}
