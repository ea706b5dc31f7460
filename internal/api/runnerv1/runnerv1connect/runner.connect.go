package runnerv1connect

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"

	runnerv1 "scriptrunner/internal/api/runnerv1"
)

// RunnerServiceName is the fully-qualified name of the RunnerService service.
const RunnerServiceName = "runner.v1.RunnerService"

const (
	RunnerServiceStartProcedure         = "/runner.v1.RunnerService/Start"
	RunnerServiceExecuteProcedure       = "/runner.v1.RunnerService/Execute"
	RunnerServiceActivityReplyProcedure = "/runner.v1.RunnerService/ActivityReply"
	RunnerServiceExportsProcedure       = "/runner.v1.RunnerService/Exports"
	RunnerServiceHealthProcedure        = "/runner.v1.RunnerService/Health"
)

// RunnerServiceClient is a client for the runner.v1.RunnerService service.
type RunnerServiceClient interface {
	Start(context.Context, *connect.Request[runnerv1.StartRequest]) (*connect.Response[runnerv1.StartResponse], error)
	Execute(context.Context, *connect.Request[runnerv1.ExecuteRequest]) (*connect.Response[runnerv1.ExecuteResponse], error)
	ActivityReply(context.Context, *connect.Request[runnerv1.ActivityReplyRequest]) (*connect.Response[runnerv1.ActivityReplyResponse], error)
	Exports(context.Context, *connect.Request[runnerv1.ExportsRequest]) (*connect.Response[runnerv1.ExportsResponse], error)
	Health(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error)
}

// NewRunnerServiceClient constructs a client for the runner.v1.RunnerService
// service. The JSON codec of this package is always installed.
func NewRunnerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) RunnerServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithCodec()}, opts...)
	return &runnerServiceClient{
		start:         connect.NewClient[runnerv1.StartRequest, runnerv1.StartResponse](httpClient, baseURL+RunnerServiceStartProcedure, opts...),
		execute:       connect.NewClient[runnerv1.ExecuteRequest, runnerv1.ExecuteResponse](httpClient, baseURL+RunnerServiceExecuteProcedure, opts...),
		activityReply: connect.NewClient[runnerv1.ActivityReplyRequest, runnerv1.ActivityReplyResponse](httpClient, baseURL+RunnerServiceActivityReplyProcedure, opts...),
		exports:       connect.NewClient[runnerv1.ExportsRequest, runnerv1.ExportsResponse](httpClient, baseURL+RunnerServiceExportsProcedure, opts...),
		health:        connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+RunnerServiceHealthProcedure, opts...),
	}
}

type runnerServiceClient struct {
	start         *connect.Client[runnerv1.StartRequest, runnerv1.StartResponse]
	execute       *connect.Client[runnerv1.ExecuteRequest, runnerv1.ExecuteResponse]
	activityReply *connect.Client[runnerv1.ActivityReplyRequest, runnerv1.ActivityReplyResponse]
	exports       *connect.Client[runnerv1.ExportsRequest, runnerv1.ExportsResponse]
	health        *connect.Client[emptypb.Empty, emptypb.Empty]
}

func (c *runnerServiceClient) Start(ctx context.Context, req *connect.Request[runnerv1.StartRequest]) (*connect.Response[runnerv1.StartResponse], error) {
	return c.start.CallUnary(ctx, req)
}

func (c *runnerServiceClient) Execute(ctx context.Context, req *connect.Request[runnerv1.ExecuteRequest]) (*connect.Response[runnerv1.ExecuteResponse], error) {
	return c.execute.CallUnary(ctx, req)
}

func (c *runnerServiceClient) ActivityReply(ctx context.Context, req *connect.Request[runnerv1.ActivityReplyRequest]) (*connect.Response[runnerv1.ActivityReplyResponse], error) {
	return c.activityReply.CallUnary(ctx, req)
}

func (c *runnerServiceClient) Exports(ctx context.Context, req *connect.Request[runnerv1.ExportsRequest]) (*connect.Response[runnerv1.ExportsResponse], error) {
	return c.exports.CallUnary(ctx, req)
}

func (c *runnerServiceClient) Health(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return c.health.CallUnary(ctx, req)
}

// RunnerServiceHandler is implemented by the runner.
type RunnerServiceHandler interface {
	Start(context.Context, *connect.Request[runnerv1.StartRequest]) (*connect.Response[runnerv1.StartResponse], error)
	Execute(context.Context, *connect.Request[runnerv1.ExecuteRequest]) (*connect.Response[runnerv1.ExecuteResponse], error)
	ActivityReply(context.Context, *connect.Request[runnerv1.ActivityReplyRequest]) (*connect.Response[runnerv1.ActivityReplyResponse], error)
	Exports(context.Context, *connect.Request[runnerv1.ExportsRequest]) (*connect.Response[runnerv1.ExportsResponse], error)
	Health(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error)
}

// NewRunnerServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler.
func NewRunnerServiceHandler(svc RunnerServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithCodec()}, opts...)
	start := connect.NewUnaryHandler(RunnerServiceStartProcedure, svc.Start, opts...)
	execute := connect.NewUnaryHandler(RunnerServiceExecuteProcedure, svc.Execute, opts...)
	activityReply := connect.NewUnaryHandler(RunnerServiceActivityReplyProcedure, svc.ActivityReply, opts...)
	exports := connect.NewUnaryHandler(RunnerServiceExportsProcedure, svc.Exports, opts...)
	health := connect.NewUnaryHandler(RunnerServiceHealthProcedure, svc.Health, opts...)
	return "/" + RunnerServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case RunnerServiceStartProcedure:
			start.ServeHTTP(w, r)
		case RunnerServiceExecuteProcedure:
			execute.ServeHTTP(w, r)
		case RunnerServiceActivityReplyProcedure:
			activityReply.ServeHTTP(w, r)
		case RunnerServiceExportsProcedure:
			exports.ServeHTTP(w, r)
		case RunnerServiceHealthProcedure:
			health.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// UnimplementedRunnerServiceHandler returns CodeUnimplemented from all methods.
type UnimplementedRunnerServiceHandler struct{}

func (UnimplementedRunnerServiceHandler) Start(context.Context, *connect.Request[runnerv1.StartRequest]) (*connect.Response[runnerv1.StartResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.RunnerService.Start is not implemented"))
}

func (UnimplementedRunnerServiceHandler) Execute(context.Context, *connect.Request[runnerv1.ExecuteRequest]) (*connect.Response[runnerv1.ExecuteResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.RunnerService.Execute is not implemented"))
}

func (UnimplementedRunnerServiceHandler) ActivityReply(context.Context, *connect.Request[runnerv1.ActivityReplyRequest]) (*connect.Response[runnerv1.ActivityReplyResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.RunnerService.ActivityReply is not implemented"))
}

func (UnimplementedRunnerServiceHandler) Exports(context.Context, *connect.Request[runnerv1.ExportsRequest]) (*connect.Response[runnerv1.ExportsResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.RunnerService.Exports is not implemented"))
}

func (UnimplementedRunnerServiceHandler) Health(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.RunnerService.Health is not implemented"))
}
