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

// HandlerServiceName is the fully-qualified name of the host side service a
// runner reports to.
const HandlerServiceName = "runner.v1.HandlerService"

const (
	HandlerServiceActivityProcedure          = "/runner.v1.HandlerService/Activity"
	HandlerServicePrintProcedure             = "/runner.v1.HandlerService/Print"
	HandlerServiceLogProcedure               = "/runner.v1.HandlerService/Log"
	HandlerServiceSleepProcedure             = "/runner.v1.HandlerService/Sleep"
	HandlerServiceSubscribeProcedure         = "/runner.v1.HandlerService/Subscribe"
	HandlerServiceNextEventProcedure         = "/runner.v1.HandlerService/NextEvent"
	HandlerServiceUnsubscribeProcedure       = "/runner.v1.HandlerService/Unsubscribe"
	HandlerServiceHealthProcedure            = "/runner.v1.HandlerService/Health"
	HandlerServiceIsActiveRunnerProcedure    = "/runner.v1.HandlerService/IsActiveRunner"
	HandlerServiceStartSessionProcedure      = "/runner.v1.HandlerService/StartSession"
	HandlerServiceEncodeJWTProcedure         = "/runner.v1.HandlerService/EncodeJWT"
	HandlerServiceRefreshOAuthTokenProcedure = "/runner.v1.HandlerService/RefreshOAuthToken"
	HandlerServiceDoneProcedure              = "/runner.v1.HandlerService/Done"
)

// HandlerServiceClient is a client for the runner.v1.HandlerService service.
type HandlerServiceClient interface {
	Activity(context.Context, *connect.Request[runnerv1.ActivityRequest]) (*connect.Response[runnerv1.ActivityResponse], error)
	Print(context.Context, *connect.Request[runnerv1.PrintRequest]) (*connect.Response[runnerv1.PrintResponse], error)
	Log(context.Context, *connect.Request[runnerv1.LogRequest]) (*connect.Response[runnerv1.LogResponse], error)
	Sleep(context.Context, *connect.Request[runnerv1.SleepRequest]) (*connect.Response[runnerv1.SleepResponse], error)
	Subscribe(context.Context, *connect.Request[runnerv1.SubscribeRequest]) (*connect.Response[runnerv1.SubscribeResponse], error)
	NextEvent(context.Context, *connect.Request[runnerv1.NextEventRequest]) (*connect.Response[runnerv1.NextEventResponse], error)
	Unsubscribe(context.Context, *connect.Request[runnerv1.UnsubscribeRequest]) (*connect.Response[runnerv1.UnsubscribeResponse], error)
	Health(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error)
	IsActiveRunner(context.Context, *connect.Request[runnerv1.IsActiveRunnerRequest]) (*connect.Response[runnerv1.IsActiveRunnerResponse], error)
	StartSession(context.Context, *connect.Request[runnerv1.StartSessionRequest]) (*connect.Response[runnerv1.StartSessionResponse], error)
	EncodeJWT(context.Context, *connect.Request[runnerv1.EncodeJWTRequest]) (*connect.Response[runnerv1.EncodeJWTResponse], error)
	RefreshOAuthToken(context.Context, *connect.Request[runnerv1.RefreshOAuthTokenRequest]) (*connect.Response[runnerv1.RefreshOAuthTokenResponse], error)
	Done(context.Context, *connect.Request[runnerv1.DoneRequest]) (*connect.Response[runnerv1.DoneResponse], error)
}

// NewHandlerServiceClient constructs a client for the
// runner.v1.HandlerService service. The JSON codec of this package is always
// installed.
func NewHandlerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) HandlerServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithCodec()}, opts...)
	return &handlerServiceClient{
		activity:          connect.NewClient[runnerv1.ActivityRequest, runnerv1.ActivityResponse](httpClient, baseURL+HandlerServiceActivityProcedure, opts...),
		print:             connect.NewClient[runnerv1.PrintRequest, runnerv1.PrintResponse](httpClient, baseURL+HandlerServicePrintProcedure, opts...),
		log:               connect.NewClient[runnerv1.LogRequest, runnerv1.LogResponse](httpClient, baseURL+HandlerServiceLogProcedure, opts...),
		sleep:             connect.NewClient[runnerv1.SleepRequest, runnerv1.SleepResponse](httpClient, baseURL+HandlerServiceSleepProcedure, opts...),
		subscribe:         connect.NewClient[runnerv1.SubscribeRequest, runnerv1.SubscribeResponse](httpClient, baseURL+HandlerServiceSubscribeProcedure, opts...),
		nextEvent:         connect.NewClient[runnerv1.NextEventRequest, runnerv1.NextEventResponse](httpClient, baseURL+HandlerServiceNextEventProcedure, opts...),
		unsubscribe:       connect.NewClient[runnerv1.UnsubscribeRequest, runnerv1.UnsubscribeResponse](httpClient, baseURL+HandlerServiceUnsubscribeProcedure, opts...),
		health:            connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+HandlerServiceHealthProcedure, opts...),
		isActiveRunner:    connect.NewClient[runnerv1.IsActiveRunnerRequest, runnerv1.IsActiveRunnerResponse](httpClient, baseURL+HandlerServiceIsActiveRunnerProcedure, opts...),
		startSession:      connect.NewClient[runnerv1.StartSessionRequest, runnerv1.StartSessionResponse](httpClient, baseURL+HandlerServiceStartSessionProcedure, opts...),
		encodeJWT:         connect.NewClient[runnerv1.EncodeJWTRequest, runnerv1.EncodeJWTResponse](httpClient, baseURL+HandlerServiceEncodeJWTProcedure, opts...),
		refreshOAuthToken: connect.NewClient[runnerv1.RefreshOAuthTokenRequest, runnerv1.RefreshOAuthTokenResponse](httpClient, baseURL+HandlerServiceRefreshOAuthTokenProcedure, opts...),
		done:              connect.NewClient[runnerv1.DoneRequest, runnerv1.DoneResponse](httpClient, baseURL+HandlerServiceDoneProcedure, opts...),
	}
}

type handlerServiceClient struct {
	activity          *connect.Client[runnerv1.ActivityRequest, runnerv1.ActivityResponse]
	print             *connect.Client[runnerv1.PrintRequest, runnerv1.PrintResponse]
	log               *connect.Client[runnerv1.LogRequest, runnerv1.LogResponse]
	sleep             *connect.Client[runnerv1.SleepRequest, runnerv1.SleepResponse]
	subscribe         *connect.Client[runnerv1.SubscribeRequest, runnerv1.SubscribeResponse]
	nextEvent         *connect.Client[runnerv1.NextEventRequest, runnerv1.NextEventResponse]
	unsubscribe       *connect.Client[runnerv1.UnsubscribeRequest, runnerv1.UnsubscribeResponse]
	health            *connect.Client[emptypb.Empty, emptypb.Empty]
	isActiveRunner    *connect.Client[runnerv1.IsActiveRunnerRequest, runnerv1.IsActiveRunnerResponse]
	startSession      *connect.Client[runnerv1.StartSessionRequest, runnerv1.StartSessionResponse]
	encodeJWT         *connect.Client[runnerv1.EncodeJWTRequest, runnerv1.EncodeJWTResponse]
	refreshOAuthToken *connect.Client[runnerv1.RefreshOAuthTokenRequest, runnerv1.RefreshOAuthTokenResponse]
	done              *connect.Client[runnerv1.DoneRequest, runnerv1.DoneResponse]
}

func (c *handlerServiceClient) Activity(ctx context.Context, req *connect.Request[runnerv1.ActivityRequest]) (*connect.Response[runnerv1.ActivityResponse], error) {
	return c.activity.CallUnary(ctx, req)
}

func (c *handlerServiceClient) Print(ctx context.Context, req *connect.Request[runnerv1.PrintRequest]) (*connect.Response[runnerv1.PrintResponse], error) {
	return c.print.CallUnary(ctx, req)
}

func (c *handlerServiceClient) Log(ctx context.Context, req *connect.Request[runnerv1.LogRequest]) (*connect.Response[runnerv1.LogResponse], error) {
	return c.log.CallUnary(ctx, req)
}

func (c *handlerServiceClient) Sleep(ctx context.Context, req *connect.Request[runnerv1.SleepRequest]) (*connect.Response[runnerv1.SleepResponse], error) {
	return c.sleep.CallUnary(ctx, req)
}

func (c *handlerServiceClient) Subscribe(ctx context.Context, req *connect.Request[runnerv1.SubscribeRequest]) (*connect.Response[runnerv1.SubscribeResponse], error) {
	return c.subscribe.CallUnary(ctx, req)
}

func (c *handlerServiceClient) NextEvent(ctx context.Context, req *connect.Request[runnerv1.NextEventRequest]) (*connect.Response[runnerv1.NextEventResponse], error) {
	return c.nextEvent.CallUnary(ctx, req)
}

func (c *handlerServiceClient) Unsubscribe(ctx context.Context, req *connect.Request[runnerv1.UnsubscribeRequest]) (*connect.Response[runnerv1.UnsubscribeResponse], error) {
	return c.unsubscribe.CallUnary(ctx, req)
}

func (c *handlerServiceClient) Health(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return c.health.CallUnary(ctx, req)
}

func (c *handlerServiceClient) IsActiveRunner(ctx context.Context, req *connect.Request[runnerv1.IsActiveRunnerRequest]) (*connect.Response[runnerv1.IsActiveRunnerResponse], error) {
	return c.isActiveRunner.CallUnary(ctx, req)
}

func (c *handlerServiceClient) StartSession(ctx context.Context, req *connect.Request[runnerv1.StartSessionRequest]) (*connect.Response[runnerv1.StartSessionResponse], error) {
	return c.startSession.CallUnary(ctx, req)
}

func (c *handlerServiceClient) EncodeJWT(ctx context.Context, req *connect.Request[runnerv1.EncodeJWTRequest]) (*connect.Response[runnerv1.EncodeJWTResponse], error) {
	return c.encodeJWT.CallUnary(ctx, req)
}

func (c *handlerServiceClient) RefreshOAuthToken(ctx context.Context, req *connect.Request[runnerv1.RefreshOAuthTokenRequest]) (*connect.Response[runnerv1.RefreshOAuthTokenResponse], error) {
	return c.refreshOAuthToken.CallUnary(ctx, req)
}

func (c *handlerServiceClient) Done(ctx context.Context, req *connect.Request[runnerv1.DoneRequest]) (*connect.Response[runnerv1.DoneResponse], error) {
	return c.done.CallUnary(ctx, req)
}

// HandlerServiceHandler is implemented by the host.
type HandlerServiceHandler interface {
	Activity(context.Context, *connect.Request[runnerv1.ActivityRequest]) (*connect.Response[runnerv1.ActivityResponse], error)
	Print(context.Context, *connect.Request[runnerv1.PrintRequest]) (*connect.Response[runnerv1.PrintResponse], error)
	Log(context.Context, *connect.Request[runnerv1.LogRequest]) (*connect.Response[runnerv1.LogResponse], error)
	Sleep(context.Context, *connect.Request[runnerv1.SleepRequest]) (*connect.Response[runnerv1.SleepResponse], error)
	Subscribe(context.Context, *connect.Request[runnerv1.SubscribeRequest]) (*connect.Response[runnerv1.SubscribeResponse], error)
	NextEvent(context.Context, *connect.Request[runnerv1.NextEventRequest]) (*connect.Response[runnerv1.NextEventResponse], error)
	Unsubscribe(context.Context, *connect.Request[runnerv1.UnsubscribeRequest]) (*connect.Response[runnerv1.UnsubscribeResponse], error)
	Health(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error)
	IsActiveRunner(context.Context, *connect.Request[runnerv1.IsActiveRunnerRequest]) (*connect.Response[runnerv1.IsActiveRunnerResponse], error)
	StartSession(context.Context, *connect.Request[runnerv1.StartSessionRequest]) (*connect.Response[runnerv1.StartSessionResponse], error)
	EncodeJWT(context.Context, *connect.Request[runnerv1.EncodeJWTRequest]) (*connect.Response[runnerv1.EncodeJWTResponse], error)
	RefreshOAuthToken(context.Context, *connect.Request[runnerv1.RefreshOAuthTokenRequest]) (*connect.Response[runnerv1.RefreshOAuthTokenResponse], error)
	Done(context.Context, *connect.Request[runnerv1.DoneRequest]) (*connect.Response[runnerv1.DoneResponse], error)
}

// NewHandlerServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler.
func NewHandlerServiceHandler(svc HandlerServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithCodec()}, opts...)
	handlers := map[string]http.Handler{
		HandlerServiceActivityProcedure:          connect.NewUnaryHandler(HandlerServiceActivityProcedure, svc.Activity, opts...),
		HandlerServicePrintProcedure:             connect.NewUnaryHandler(HandlerServicePrintProcedure, svc.Print, opts...),
		HandlerServiceLogProcedure:               connect.NewUnaryHandler(HandlerServiceLogProcedure, svc.Log, opts...),
		HandlerServiceSleepProcedure:             connect.NewUnaryHandler(HandlerServiceSleepProcedure, svc.Sleep, opts...),
		HandlerServiceSubscribeProcedure:         connect.NewUnaryHandler(HandlerServiceSubscribeProcedure, svc.Subscribe, opts...),
		HandlerServiceNextEventProcedure:         connect.NewUnaryHandler(HandlerServiceNextEventProcedure, svc.NextEvent, opts...),
		HandlerServiceUnsubscribeProcedure:       connect.NewUnaryHandler(HandlerServiceUnsubscribeProcedure, svc.Unsubscribe, opts...),
		HandlerServiceHealthProcedure:            connect.NewUnaryHandler(HandlerServiceHealthProcedure, svc.Health, opts...),
		HandlerServiceIsActiveRunnerProcedure:    connect.NewUnaryHandler(HandlerServiceIsActiveRunnerProcedure, svc.IsActiveRunner, opts...),
		HandlerServiceStartSessionProcedure:      connect.NewUnaryHandler(HandlerServiceStartSessionProcedure, svc.StartSession, opts...),
		HandlerServiceEncodeJWTProcedure:         connect.NewUnaryHandler(HandlerServiceEncodeJWTProcedure, svc.EncodeJWT, opts...),
		HandlerServiceRefreshOAuthTokenProcedure: connect.NewUnaryHandler(HandlerServiceRefreshOAuthTokenProcedure, svc.RefreshOAuthToken, opts...),
		HandlerServiceDoneProcedure:              connect.NewUnaryHandler(HandlerServiceDoneProcedure, svc.Done, opts...),
	}
	return "/" + HandlerServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// UnimplementedHandlerServiceHandler returns CodeUnimplemented from all methods.
type UnimplementedHandlerServiceHandler struct{}

func (UnimplementedHandlerServiceHandler) Activity(context.Context, *connect.Request[runnerv1.ActivityRequest]) (*connect.Response[runnerv1.ActivityResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.HandlerService.Activity is not implemented"))
}

func (UnimplementedHandlerServiceHandler) Print(context.Context, *connect.Request[runnerv1.PrintRequest]) (*connect.Response[runnerv1.PrintResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.HandlerService.Print is not implemented"))
}

func (UnimplementedHandlerServiceHandler) Log(context.Context, *connect.Request[runnerv1.LogRequest]) (*connect.Response[runnerv1.LogResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.HandlerService.Log is not implemented"))
}

func (UnimplementedHandlerServiceHandler) Sleep(context.Context, *connect.Request[runnerv1.SleepRequest]) (*connect.Response[runnerv1.SleepResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.HandlerService.Sleep is not implemented"))
}

func (UnimplementedHandlerServiceHandler) Subscribe(context.Context, *connect.Request[runnerv1.SubscribeRequest]) (*connect.Response[runnerv1.SubscribeResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.HandlerService.Subscribe is not implemented"))
}

func (UnimplementedHandlerServiceHandler) NextEvent(context.Context, *connect.Request[runnerv1.NextEventRequest]) (*connect.Response[runnerv1.NextEventResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.HandlerService.NextEvent is not implemented"))
}

func (UnimplementedHandlerServiceHandler) Unsubscribe(context.Context, *connect.Request[runnerv1.UnsubscribeRequest]) (*connect.Response[runnerv1.UnsubscribeResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.HandlerService.Unsubscribe is not implemented"))
}

func (UnimplementedHandlerServiceHandler) Health(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.HandlerService.Health is not implemented"))
}

func (UnimplementedHandlerServiceHandler) IsActiveRunner(context.Context, *connect.Request[runnerv1.IsActiveRunnerRequest]) (*connect.Response[runnerv1.IsActiveRunnerResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.HandlerService.IsActiveRunner is not implemented"))
}

func (UnimplementedHandlerServiceHandler) StartSession(context.Context, *connect.Request[runnerv1.StartSessionRequest]) (*connect.Response[runnerv1.StartSessionResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.HandlerService.StartSession is not implemented"))
}

func (UnimplementedHandlerServiceHandler) EncodeJWT(context.Context, *connect.Request[runnerv1.EncodeJWTRequest]) (*connect.Response[runnerv1.EncodeJWTResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.HandlerService.EncodeJWT is not implemented"))
}

func (UnimplementedHandlerServiceHandler) RefreshOAuthToken(context.Context, *connect.Request[runnerv1.RefreshOAuthTokenRequest]) (*connect.Response[runnerv1.RefreshOAuthTokenResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.HandlerService.RefreshOAuthToken is not implemented"))
}

func (UnimplementedHandlerServiceHandler) Done(context.Context, *connect.Request[runnerv1.DoneRequest]) (*connect.Response[runnerv1.DoneResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("runner.v1.HandlerService.Done is not implemented"))
}
