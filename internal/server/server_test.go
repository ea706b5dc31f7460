package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/emptypb"

	"scriptrunner/internal/api/runnerv1"
	"scriptrunner/internal/api/runnerv1/runnerv1connect"
	"scriptrunner/internal/handler"
	"scriptrunner/internal/logger"
)

type healthy struct {
	runnerv1connect.UnimplementedRunnerServiceHandler
}

func (healthy) Health(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func TestServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(ln.Addr().String(), NewRouter(healthy{}, logger.Discard()), logger.Discard())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	base := "http://" + ln.Addr().String()
	client := runnerv1connect.NewRunnerServiceClient(handler.NewH2CClient(), base)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = client.Health(ctx, connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err)

	_, err = client.Execute(ctx, connect.NewRequest(&runnerv1.ExecuteRequest{}))
	assert.Equal(t, connect.CodeUnimplemented, connect.CodeOf(err))

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-errc)
}
