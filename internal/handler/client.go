// Package handler is the runner's client for the host side Handler service.
package handler

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/charmbracelet/log"
	"golang.org/x/net/http2"
	"google.golang.org/protobuf/types/known/emptypb"

	runnerv1 "scriptrunner/internal/api/runnerv1"
	"scriptrunner/internal/api/runnerv1/runnerv1connect"
	"scriptrunner/internal/logger"
	"scriptrunner/internal/serialize"
	"scriptrunner/internal/waiter"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
)

// Options tunes a Client.
type Options struct {
	Attempts   int
	Backoff    time.Duration
	Logger     *log.Logger
	HTTPClient connect.HTTPClient
}

// Client calls the host on behalf of one runner. Every call carries the
// runner id and is retried with a fixed backoff.
type Client struct {
	rpc      runnerv1connect.HandlerServiceClient
	runnerID string
	attempts int
	backoff  time.Duration
	logger   *log.Logger
}

var _ waiter.Reporter = (*Client)(nil)

// New dials the host at addr ("host:port" or a URL) over cleartext HTTP/2.
func New(addr, runnerID string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewH2CClient()
	}
	return NewWithRPC(runnerv1connect.NewHandlerServiceClient(httpClient, baseURL(addr)), runnerID, opts)
}

// NewWithRPC wraps an existing service client.
func NewWithRPC(rpc runnerv1connect.HandlerServiceClient, runnerID string, opts Options) *Client {
	if opts.Attempts < 1 {
		opts.Attempts = defaultAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	return &Client{
		rpc:      rpc,
		runnerID: runnerID,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
		logger:   logger.Component(opts.Logger, "handler"),
	}
}

// NewH2CClient returns an HTTP client speaking HTTP/2 without TLS.
func NewH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

// RunnerID is the id sent with every call.
func (c *Client) RunnerID() string { return c.runnerID }

// Once returns a copy of c that does not retry.
func (c *Client) Once() *Client {
	cp := *c
	cp.attempts = 1
	return &cp
}

func call[Req, Res any](
	ctx context.Context,
	c *Client,
	op string,
	fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error),
	msg *Req,
	hostErr func(*Res) string,
) (*Res, error) {
	var last error
	for i := 0; i < c.attempts; i++ {
		resp, err := fn(ctx, connect.NewRequest(msg))
		if err == nil {
			if hostErr != nil {
				if m := hostErr(resp.Msg); m != "" {
					return nil, &HostError{Op: op, Msg: m}
				}
			}
			return resp.Msg, nil
		}
		if permanent(err) {
			return nil, err
		}
		last = err
		c.logger.Warn("host call failed", "op", op, "attempt", i+1, "error", err)
		if i == c.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff):
		}
	}
	return nil, &TransportError{Op: op, Attempts: c.attempts, Err: last}
}

// Activity reports an intercepted call. It implements waiter.Reporter.
func (c *Client) Activity(ctx context.Context, a waiter.Activity) error {
	args := make([]json.RawMessage, 0, len(a.Args))
	for _, arg := range a.Args {
		args = append(args, serialize.Marshal(arg))
	}
	data, err := json.Marshal(map[string]any{
		"token": a.Token,
		"name":  a.Name,
		"args":  args,
	})
	if err != nil {
		return fmt.Errorf("encode activity %s: %w", a.Token, err)
	}
	_, err = call(ctx, c, "activity", c.rpc.Activity, &runnerv1.ActivityRequest{
		RunnerId: c.runnerID,
		Data:     data,
		CallInfo: &runnerv1.CallInfo{Function: a.Name, Args: args},
	}, func(r *runnerv1.ActivityResponse) string { return r.Error })
	return err
}

// Print forwards one line of script output.
func (c *Client) Print(ctx context.Context, msg string) error {
	_, err := call(ctx, c, "print", c.rpc.Print, &runnerv1.PrintRequest{
		RunnerId: c.runnerID,
		Message:  msg,
	}, func(r *runnerv1.PrintResponse) string { return r.Error })
	return err
}

func (c *Client) Log(ctx context.Context, level, msg string) error {
	_, err := call(ctx, c, "log", c.rpc.Log, &runnerv1.LogRequest{
		RunnerId: c.runnerID,
		Level:    level,
		Message:  msg,
	}, func(r *runnerv1.LogResponse) string { return r.Error })
	return err
}

// Sleep asks the host to suspend the session for d.
func (c *Client) Sleep(ctx context.Context, d time.Duration) error {
	_, err := call(ctx, c, "sleep", c.rpc.Sleep, &runnerv1.SleepRequest{
		RunnerId:   c.runnerID,
		DurationMs: d.Milliseconds(),
	}, func(r *runnerv1.SleepResponse) string { return r.Error })
	return err
}

func (c *Client) Subscribe(ctx context.Context, connection, filter string) (string, error) {
	resp, err := call(ctx, c, "subscribe", c.rpc.Subscribe, &runnerv1.SubscribeRequest{
		RunnerId:   c.runnerID,
		Connection: connection,
		Filter:     filter,
	}, func(r *runnerv1.SubscribeResponse) string { return r.Error })
	if err != nil {
		return "", err
	}
	return resp.SignalId, nil
}

// NextEvent waits for an event on any of ids. It returns nil when timeout
// passes first; a zero timeout waits as long as the host allows.
func (c *Client) NextEvent(ctx context.Context, ids []string, timeout time.Duration) (json.RawMessage, error) {
	resp, err := call(ctx, c, "next_event", c.rpc.NextEvent, &runnerv1.NextEventRequest{
		RunnerId:  c.runnerID,
		SignalIds: ids,
		TimeoutMs: timeout.Milliseconds(),
	}, func(r *runnerv1.NextEventResponse) string { return r.Error })
	if err != nil {
		return nil, err
	}
	if len(resp.Event) == 0 || string(resp.Event) == "null" {
		return nil, nil
	}
	return resp.Event, nil
}

func (c *Client) Unsubscribe(ctx context.Context, id string) error {
	_, err := call(ctx, c, "unsubscribe", c.rpc.Unsubscribe, &runnerv1.UnsubscribeRequest{
		RunnerId: c.runnerID,
		SignalId: id,
	}, func(r *runnerv1.UnsubscribeResponse) string { return r.Error })
	return err
}

func (c *Client) Health(ctx context.Context) error {
	_, err := call(ctx, c, "health", c.rpc.Health, &emptypb.Empty{}, nil)
	return err
}

// IsActiveRunner asks the host whether this runner is still the one it
// expects to hear from.
func (c *Client) IsActiveRunner(ctx context.Context) (bool, error) {
	resp, err := call(ctx, c, "is_active_runner", c.rpc.IsActiveRunner, &runnerv1.IsActiveRunnerRequest{
		RunnerId: c.runnerID,
	}, func(r *runnerv1.IsActiveRunnerResponse) string { return r.Error })
	if err != nil {
		return false, err
	}
	return resp.IsActive, nil
}

func (c *Client) StartSession(ctx context.Context, loc string, data any, memo map[string]string) (string, error) {
	resp, err := call(ctx, c, "start_session", c.rpc.StartSession, &runnerv1.StartSessionRequest{
		RunnerId: c.runnerID,
		Loc:      loc,
		Data:     serialize.Marshal(data),
		Memo:     memo,
	}, func(r *runnerv1.StartSessionResponse) string { return r.Error })
	if err != nil {
		return "", err
	}
	return resp.SessionId, nil
}

func (c *Client) EncodeJWT(ctx context.Context, payload any, connection, algorithm string) (string, error) {
	resp, err := call(ctx, c, "encode_jwt", c.rpc.EncodeJWT, &runnerv1.EncodeJWTRequest{
		RunnerId:   c.runnerID,
		Payload:    serialize.Marshal(payload),
		Connection: connection,
		Algorithm:  algorithm,
	}, func(r *runnerv1.EncodeJWTResponse) string { return r.Error })
	if err != nil {
		return "", err
	}
	return resp.Jwt, nil
}

// OAuthToken is a refreshed access token.
type OAuthToken struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

func (c *Client) RefreshOAuthToken(ctx context.Context, integration, connection string) (OAuthToken, error) {
	resp, err := call(ctx, c, "refresh_oauth_token", c.rpc.RefreshOAuthToken, &runnerv1.RefreshOAuthTokenRequest{
		RunnerId:    c.runnerID,
		Integration: integration,
		Connection:  connection,
	}, func(r *runnerv1.RefreshOAuthTokenResponse) string { return r.Error })
	if err != nil {
		return OAuthToken{}, err
	}
	tok := OAuthToken{Token: resp.Token}
	if resp.Expires > 0 {
		tok.Expires = time.Unix(resp.Expires, 0).UTC()
	}
	return tok, nil
}

// Done reports how the entry point finished.
func (c *Client) Done(ctx context.Context, value any, tb *serialize.Traceback) error {
	req := &runnerv1.DoneRequest{RunnerId: c.runnerID}
	if tb != nil {
		req.Error = tb.Message
		req.Traceback = WireFrames(tb)
	} else {
		req.Result = serialize.Marshal(value)
	}
	_, err := call(ctx, c, "done", c.rpc.Done, req, nil)
	return err
}

// WireFrames converts a traceback to its wire form.
func WireFrames(tb *serialize.Traceback) []*runnerv1.Frame {
	if tb == nil {
		return nil
	}
	out := make([]*runnerv1.Frame, 0, len(tb.Frames))
	for _, f := range tb.Frames {
		out = append(out, &runnerv1.Frame{
			Name:       f.Name,
			File:       f.File,
			Line:       f.Line,
			SourceText: f.SourceText,
		})
	}
	return out
}
