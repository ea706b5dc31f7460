// Package handlertest provides an in-process fake of the host side Handler
// service.
package handlertest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/protobuf/types/known/emptypb"

	runnerv1 "scriptrunner/internal/api/runnerv1"
	"scriptrunner/internal/api/runnerv1/runnerv1connect"
	"scriptrunner/internal/handler"
)

// Server records every call it receives. Behaviour is tuned with the Set*
// methods before or during a test.
type Server struct {
	URL string

	srv        *httptest.Server
	activities chan *runnerv1.ActivityRequest

	mu         sync.Mutex
	prints     []string
	logs       []*runnerv1.LogRequest
	done       []*runnerv1.DoneRequest
	subs       []*runnerv1.SubscribeRequest
	unsubs     []string
	sleeps     []int64
	events     []json.RawMessage
	isActive   func() (bool, error)
	healthErr  error
	activeHits int
	healthHits int
	printErr   error
}

var _ runnerv1connect.HandlerServiceHandler = (*Server)(nil)

// New starts a fake host over cleartext HTTP/2 and stops it when t ends.
func New(t testing.TB) *Server {
	s := &Server{
		activities: make(chan *runnerv1.ActivityRequest, 64),
		isActive:   func() (bool, error) { return true, nil },
	}
	mux := http.NewServeMux()
	mux.Handle(runnerv1connect.NewHandlerServiceHandler(s))
	s.srv = httptest.NewServer(h2c.NewHandler(mux, &http2.Server{}))
	s.URL = s.srv.URL
	t.Cleanup(s.srv.Close)
	return s
}

// Client returns a handler client bound to this server.
func (s *Server) Client(runnerID string, opts handler.Options) *handler.Client {
	return handler.New(s.URL, runnerID, opts)
}

// Activities yields activity reports in arrival order.
func (s *Server) Activities() <-chan *runnerv1.ActivityRequest { return s.activities }

func (s *Server) SetIsActive(fn func() (bool, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isActive = fn
}

func (s *Server) SetHealthError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthErr = err
}

func (s *Server) SetPrintError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printErr = err
}

// PushEvent queues an event for the next NextEvent call.
func (s *Server) PushEvent(ev json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *Server) Prints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prints...)
}

func (s *Server) Logs() []*runnerv1.LogRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*runnerv1.LogRequest(nil), s.logs...)
}

func (s *Server) DoneRequests() []*runnerv1.DoneRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*runnerv1.DoneRequest(nil), s.done...)
}

func (s *Server) Subscriptions() []*runnerv1.SubscribeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*runnerv1.SubscribeRequest(nil), s.subs...)
}

func (s *Server) Unsubscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.unsubs...)
}

func (s *Server) Sleeps() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.sleeps...)
}

// IsActiveCalls counts IsActiveRunner requests.
func (s *Server) IsActiveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeHits
}

func (s *Server) HealthCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthHits
}

func (s *Server) Activity(_ context.Context, req *connect.Request[runnerv1.ActivityRequest]) (*connect.Response[runnerv1.ActivityResponse], error) {
	select {
	case s.activities <- req.Msg:
	default:
		return nil, connect.NewError(connect.CodeResourceExhausted, errors.New("activity queue full"))
	}
	return connect.NewResponse(&runnerv1.ActivityResponse{}), nil
}

func (s *Server) Print(_ context.Context, req *connect.Request[runnerv1.PrintRequest]) (*connect.Response[runnerv1.PrintResponse], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.printErr != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, s.printErr)
	}
	s.prints = append(s.prints, req.Msg.Message)
	return connect.NewResponse(&runnerv1.PrintResponse{}), nil
}

func (s *Server) Log(_ context.Context, req *connect.Request[runnerv1.LogRequest]) (*connect.Response[runnerv1.LogResponse], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, req.Msg)
	return connect.NewResponse(&runnerv1.LogResponse{}), nil
}

func (s *Server) Sleep(_ context.Context, req *connect.Request[runnerv1.SleepRequest]) (*connect.Response[runnerv1.SleepResponse], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, req.Msg.DurationMs)
	return connect.NewResponse(&runnerv1.SleepResponse{}), nil
}

func (s *Server) Subscribe(_ context.Context, req *connect.Request[runnerv1.SubscribeRequest]) (*connect.Response[runnerv1.SubscribeResponse], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Msg.Connection == "" {
		return connect.NewResponse(&runnerv1.SubscribeResponse{Error: "connection is required"}), nil
	}
	s.subs = append(s.subs, req.Msg)
	return connect.NewResponse(&runnerv1.SubscribeResponse{SignalId: "sig-" + req.Msg.Connection}), nil
}

func (s *Server) NextEvent(_ context.Context, _ *connect.Request[runnerv1.NextEventRequest]) (*connect.Response[runnerv1.NextEventResponse], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return connect.NewResponse(&runnerv1.NextEventResponse{}), nil
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return connect.NewResponse(&runnerv1.NextEventResponse{Event: ev}), nil
}

func (s *Server) Unsubscribe(_ context.Context, req *connect.Request[runnerv1.UnsubscribeRequest]) (*connect.Response[runnerv1.UnsubscribeResponse], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubs = append(s.unsubs, req.Msg.SignalId)
	return connect.NewResponse(&runnerv1.UnsubscribeResponse{}), nil
}

func (s *Server) Health(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthHits++
	if s.healthErr != nil {
		return nil, connect.NewError(connect.CodeUnavailable, s.healthErr)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func (s *Server) IsActiveRunner(context.Context, *connect.Request[runnerv1.IsActiveRunnerRequest]) (*connect.Response[runnerv1.IsActiveRunnerResponse], error) {
	s.mu.Lock()
	s.activeHits++
	fn := s.isActive
	s.mu.Unlock()

	active, err := fn()
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewResponse(&runnerv1.IsActiveRunnerResponse{IsActive: active}), nil
}

func (s *Server) StartSession(_ context.Context, req *connect.Request[runnerv1.StartSessionRequest]) (*connect.Response[runnerv1.StartSessionResponse], error) {
	return connect.NewResponse(&runnerv1.StartSessionResponse{SessionId: "ses-" + req.Msg.Loc}), nil
}

func (s *Server) EncodeJWT(_ context.Context, req *connect.Request[runnerv1.EncodeJWTRequest]) (*connect.Response[runnerv1.EncodeJWTResponse], error) {
	return connect.NewResponse(&runnerv1.EncodeJWTResponse{Jwt: "jwt." + req.Msg.Connection}), nil
}

func (s *Server) RefreshOAuthToken(_ context.Context, req *connect.Request[runnerv1.RefreshOAuthTokenRequest]) (*connect.Response[runnerv1.RefreshOAuthTokenResponse], error) {
	return connect.NewResponse(&runnerv1.RefreshOAuthTokenResponse{
		Token:   "tok-" + req.Msg.Integration,
		Expires: 1700000000,
	}), nil
}

func (s *Server) Done(_ context.Context, req *connect.Request[runnerv1.DoneRequest]) (*connect.Response[runnerv1.DoneResponse], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = append(s.done, req.Msg)
	return connect.NewResponse(&runnerv1.DoneResponse{}), nil
}
