package waiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	mu   sync.Mutex
	acts []Activity
	err  error
	seen chan Activity
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{seen: make(chan Activity, 16)}
}

func (r *recordingReporter) Activity(_ context.Context, a Activity) error {
	r.mu.Lock()
	r.acts = append(r.acts, a)
	r.mu.Unlock()
	r.seen <- a
	return r.err
}

func countingTarget(name string, calls *int32, value any) Func {
	return Func{FuncName: name, Fn: func(context.Context, []any) (any, error) {
		atomic.AddInt32(calls, 1)
		return value, nil
	}}
}

func TestExecuteThenReplyResolvesWait(t *testing.T) {
	rep := newRecordingReporter()
	w := New(rep)
	var calls int32

	done := make(chan struct{})
	var got any
	var gotErr error
	go func() {
		defer close(done)
		got, gotErr = w.Wait(context.Background(), "T1", countingTarget("fetch", &calls, "from-call"), []any{"x"})
	}()

	act := <-rep.seen
	assert.Equal(t, "T1", act.Token)
	assert.Equal(t, "fetch", act.Name)
	assert.Equal(t, []any{"x"}, act.Args)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	v, err := w.Execute(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, "from-call", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	assert.True(t, w.Reply("T1", Result{Value: "R"}))
	<-done
	require.NoError(t, gotErr)
	assert.Equal(t, "R", got)
	assert.Empty(t, w.Pending())
}

func TestExecuteRunsAtMostOnce(t *testing.T) {
	w := New(nil)
	var calls int32
	_, err := w.Begin(context.Background(), "T1", countingTarget("f", &calls, 1), nil)
	require.NoError(t, err)

	_, err = w.Execute(context.Background(), "T1")
	require.NoError(t, err)
	_, err = w.Execute(context.Background(), "T1")
	assert.ErrorIs(t, err, ErrAlreadyExecuted)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExecuteUnknownTokenLeavesOthersAlone(t *testing.T) {
	w := New(nil)
	var calls int32
	p, err := w.Begin(context.Background(), "T1", countingTarget("f", &calls, 1), nil)
	require.NoError(t, err)

	_, err = w.Execute(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrTokenMismatch)
	assert.Equal(t, []string{"T1"}, w.Pending())
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	_, err = w.Execute(context.Background(), "T1")
	require.NoError(t, err)
	w.Reply("T1", Result{Value: 2})
	assert.Equal(t, Result{Value: 2}, <-p.Done())
}

func TestExecuteWrapsCallError(t *testing.T) {
	w := New(nil)
	boom := errors.New("boom")
	_, err := w.Begin(context.Background(), "T1", Func{FuncName: "f", Fn: func(context.Context, []any) (any, error) {
		return nil, boom
	}}, nil)
	require.NoError(t, err)

	_, err = w.Execute(context.Background(), "T1")
	var aerr *ActivityExecutionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "T1", aerr.Token)
	assert.ErrorIs(t, err, boom)
}

func TestReplyTwiceIsNoop(t *testing.T) {
	w := New(nil)
	p, err := w.Begin(context.Background(), "T1", Func{FuncName: "f"}, nil)
	require.NoError(t, err)

	assert.True(t, w.Reply("T1", Result{Value: "first"}))
	assert.False(t, w.Reply("T1", Result{Value: "second"}))
	assert.Equal(t, "first", (<-p.Done()).Value)
}

func TestTokensDoNotInterfere(t *testing.T) {
	w := New(nil)
	p1, err := w.Begin(context.Background(), "A", Func{FuncName: "a"}, nil)
	require.NoError(t, err)
	p2, err := w.Begin(context.Background(), "B", Func{FuncName: "b"}, nil)
	require.NoError(t, err)

	w.Reply("B", Result{Value: "b"})
	w.Reply("A", Result{Value: "a"})
	assert.Equal(t, "a", (<-p1.Done()).Value)
	assert.Equal(t, "b", (<-p2.Done()).Value)
}

func TestBeginRejectsLiveToken(t *testing.T) {
	w := New(nil)
	_, err := w.Begin(context.Background(), "T1", Func{FuncName: "f"}, nil)
	require.NoError(t, err)
	_, err = w.Begin(context.Background(), "T1", Func{FuncName: "f"}, nil)
	assert.ErrorIs(t, err, ErrTokenInUse)
}

func TestReportFailureFailsCall(t *testing.T) {
	rep := newRecordingReporter()
	rep.err = errors.New("unreachable")
	hooked := make(chan error, 1)
	w := New(rep, WithReportFailure(func(_ Activity, err error) { hooked <- err }))

	_, err := w.Wait(context.Background(), "T1", Func{FuncName: "f"}, nil)
	assert.ErrorIs(t, err, rep.err)
	select {
	case herr := <-hooked:
		assert.ErrorIs(t, herr, rep.err)
	case <-time.After(time.Second):
		t.Fatal("report failure hook not called")
	}
}

func TestWaitContextCancel(t *testing.T) {
	w := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Wait(ctx, "T1", Func{FuncName: "f"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, w.Pending())
}

func TestCloseFailsPending(t *testing.T) {
	w := New(nil)
	p, err := w.Begin(context.Background(), "T1", Func{FuncName: "f"}, nil)
	require.NoError(t, err)

	w.Close(nil)
	assert.ErrorIs(t, (<-p.Done()).Err, ErrClosed)
	_, err = w.Begin(context.Background(), "T2", Func{FuncName: "f"}, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewTokenUnique(t *testing.T) {
	assert.NotEqual(t, NewToken(), NewToken())
}
