package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"github.com/charmbracelet/log"
	"google.golang.org/protobuf/types/known/emptypb"

	"scriptrunner/internal/api/runnerv1"
	"scriptrunner/internal/api/runnerv1/runnerv1connect"
	"scriptrunner/internal/handler"
	"scriptrunner/internal/instrument"
	"scriptrunner/internal/logger"
	"scriptrunner/internal/serialize"
	"scriptrunner/internal/syscalls"
	"scriptrunner/internal/waiter"
)

// Engine runs scripts. *engine.Engine implements it.
type Engine interface {
	Run(ctx context.Context, file, name string, event any) (any, error)
	Exports(file string) ([]instrument.Export, error)
	Traceback(err error) *serialize.Traceback
}

// DoneHost receives the final outcome of the script.
type DoneHost interface {
	Done(ctx context.Context, value any, tb *serialize.Traceback) error
}

// Service implements the RunnerService the host calls.
type Service struct {
	runnerv1connect.UnimplementedRunnerServiceHandler

	runner *Runner
	engine Engine
	waiter *waiter.Waiter
	host   DoneHost
	logger *log.Logger
}

var _ runnerv1connect.RunnerServiceHandler = (*Service)(nil)

func NewService(r *Runner, eng Engine, w *waiter.Waiter, host DoneHost, l *log.Logger) *Service {
	return &Service{
		runner: r,
		engine: eng,
		waiter: w,
		host:   host,
		logger: logger.Component(l, "service"),
	}
}

// ReplyError is a failed activity outcome delivered by the host.
type ReplyError struct {
	Traceback *serialize.Traceback
}

func (e *ReplyError) Error() string { return e.Traceback.Message }

// SplitEntrypoint splits "path/to/file.js:function".
func SplitEntrypoint(ep string) (file, name string, err error) {
	ep = strings.TrimSpace(ep)
	i := strings.LastIndex(ep, ":")
	if i <= 0 || i == len(ep)-1 {
		return "", "", fmt.Errorf("entrypoint %q: want file:function", ep)
	}
	return ep[:i], ep[i+1:], nil
}

// Start runs the entry point and blocks until it finishes. Script errors are
// returned in the response, not as an RPC error. The outcome is also
// reported to the host through Done.
func (s *Service) Start(ctx context.Context, req *connect.Request[runnerv1.StartRequest]) (*connect.Response[runnerv1.StartResponse], error) {
	file, name, err := SplitEntrypoint(req.Msg.Entrypoint)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	event, err := syscalls.DecodeEvent(req.Msg.Event)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.runner.MarkStarted(); err != nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, err)
	}

	s.logger.Info("starting script", "file", file, "function", name)
	// the script outlives the request if the host hangs up
	runCtx := s.runner.Context()
	v, err := s.engine.Run(runCtx, file, name, event)

	resp := &runnerv1.StartResponse{}
	var tb *serialize.Traceback
	if err != nil {
		tb = s.engine.Traceback(err)
		resp.Error = tb.Message
		resp.Traceback = handler.WireFrames(tb)
		s.logger.Error("script failed", "file", file, "function", name, "error", tb.Message)
	} else {
		s.logger.Info("script finished", "file", file, "function", name)
	}

	if err := s.host.Done(context.WithoutCancel(ctx), v, tb); err != nil {
		s.logger.Error("report done failed", "error", err)
		s.runner.Shutdown("report done failed", 1)
	}
	return connect.NewResponse(resp), nil
}

// Execute runs the pending call named by the envelope's token.
func (s *Service) Execute(ctx context.Context, req *connect.Request[runnerv1.ExecuteRequest]) (*connect.Response[runnerv1.ExecuteResponse], error) {
	env, err := serialize.DecodeEnvelope(req.Msg.Data)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if env.Token == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("token is required"))
	}

	v, err := s.waiter.Execute(ctx, env.Token)
	var aerr *waiter.ActivityExecutionError
	switch {
	case err == nil:
	case errors.As(err, &aerr):
	case errors.Is(err, waiter.ErrTokenMismatch):
		return nil, connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, waiter.ErrAlreadyExecuted):
		return nil, connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	res := serialize.ActivityResult{Value: v}
	resp := &runnerv1.ExecuteResponse{}
	if aerr != nil {
		res = serialize.ActivityResult{Err: s.engine.Traceback(aerr.Err)}
		resp.Error = res.Err.Message
		resp.Traceback = handler.WireFrames(res.Err)
	}
	resp.Result = res.Envelope(env.Token)
	return connect.NewResponse(resp), nil
}

// ActivityReply delivers the outcome of an activity to the waiting call. A
// reply for a token nobody waits on is logged and acknowledged.
func (s *Service) ActivityReply(ctx context.Context, req *connect.Request[runnerv1.ActivityReplyRequest]) (*connect.Response[runnerv1.ActivityReplyResponse], error) {
	env, err := serialize.DecodeEnvelope(req.Msg.Data)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if env.Token == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("token is required"))
	}

	var res waiter.Result
	if req.Msg.Error != "" {
		res.Err = &ReplyError{Traceback: &serialize.Traceback{Message: req.Msg.Error, Frames: env.Traceback}}
	} else {
		ar, err := env.Result()
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		if ar.Err != nil {
			res.Err = &ReplyError{Traceback: ar.Err}
		} else {
			res.Value = ar.Value
		}
	}
	s.waiter.Reply(env.Token, res)
	return connect.NewResponse(&runnerv1.ActivityReplyResponse{}), nil
}

// Exports lists the entry points a file offers.
func (s *Service) Exports(ctx context.Context, req *connect.Request[runnerv1.ExportsRequest]) (*connect.Response[runnerv1.ExportsResponse], error) {
	if strings.TrimSpace(req.Msg.FileName) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("file_name is required"))
	}
	exps, err := s.engine.Exports(req.Msg.FileName)
	if err != nil {
		return connect.NewResponse(&runnerv1.ExportsResponse{Error: err.Error()}), nil
	}
	out := make([]*runnerv1.Export, 0, len(exps))
	for _, e := range exps {
		out = append(out, &runnerv1.Export{File: e.File, Name: e.Name, Args: e.Args, Line: e.Line})
	}
	return connect.NewResponse(&runnerv1.ExportsResponse{Exports: out}), nil
}

func (s *Service) Health(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return connect.NewResponse(&emptypb.Empty{}), nil
}
