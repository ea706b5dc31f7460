package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runnerv1 "scriptrunner/internal/api/runnerv1"
	"scriptrunner/internal/api/runnerv1/runnerv1connect"
)

type flakyRPC struct {
	runnerv1connect.HandlerServiceClient
	fails int
	code  connect.Code
	calls int
	reply *runnerv1.PrintResponse
}

func (f *flakyRPC) Print(_ context.Context, req *connect.Request[runnerv1.PrintRequest]) (*connect.Response[runnerv1.PrintResponse], error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, connect.NewError(f.code, errors.New("flaky"))
	}
	if f.reply != nil {
		return connect.NewResponse(f.reply), nil
	}
	return connect.NewResponse(&runnerv1.PrintResponse{}), nil
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	rpc := &flakyRPC{fails: 2, code: connect.CodeUnavailable}
	c := NewWithRPC(rpc, "r1", Options{Attempts: 3, Backoff: time.Millisecond})

	require.NoError(t, c.Print(context.Background(), "hi"))
	assert.Equal(t, 3, rpc.calls)
}

func TestRetryGivesUpWithTransportError(t *testing.T) {
	rpc := &flakyRPC{fails: 10, code: connect.CodeUnavailable}
	c := NewWithRPC(rpc, "r1", Options{Attempts: 3, Backoff: time.Millisecond})

	err := c.Print(context.Background(), "hi")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "print", terr.Op)
	assert.Equal(t, 3, terr.Attempts)
	assert.Equal(t, 3, rpc.calls)
}

func TestRetryStopsOnPermanentCode(t *testing.T) {
	rpc := &flakyRPC{fails: 10, code: connect.CodeInvalidArgument}
	c := NewWithRPC(rpc, "r1", Options{Attempts: 5, Backoff: time.Millisecond})

	err := c.Print(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	assert.Equal(t, 1, rpc.calls)
}

func TestHostErrorIsNotRetried(t *testing.T) {
	rpc := &flakyRPC{reply: &runnerv1.PrintResponse{Error: "bad message"}}
	c := NewWithRPC(rpc, "r1", Options{Attempts: 5, Backoff: time.Millisecond})

	err := c.Print(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrHost)
	assert.Contains(t, err.Error(), "bad message")
	assert.Equal(t, 1, rpc.calls)
}

func TestOnceDoesNotRetry(t *testing.T) {
	rpc := &flakyRPC{fails: 10, code: connect.CodeUnavailable}
	c := NewWithRPC(rpc, "r1", Options{Attempts: 5, Backoff: time.Millisecond}).Once()

	var terr *TransportError
	require.ErrorAs(t, c.Print(context.Background(), "hi"), &terr)
	assert.Equal(t, 1, rpc.calls)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9980", baseURL("localhost:9980"))
	assert.Equal(t, "https://host", baseURL("https://host"))
}
