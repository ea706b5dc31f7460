// Package syscalls exposes the platform primitives a script reaches through
// its "ak" namespace. They call the host directly instead of going through
// the activity indirection.
package syscalls

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"scriptrunner/internal/handler"
	"scriptrunner/internal/logger"
)

// Host is the subset of the handler client the facade needs.
type Host interface {
	Subscribe(ctx context.Context, connection, filter string) (string, error)
	NextEvent(ctx context.Context, ids []string, timeout time.Duration) (json.RawMessage, error)
	Unsubscribe(ctx context.Context, id string) error
	Sleep(ctx context.Context, d time.Duration) error
	Log(ctx context.Context, level, msg string) error
	StartSession(ctx context.Context, loc string, data any, memo map[string]string) (string, error)
	EncodeJWT(ctx context.Context, payload any, connection, algorithm string) (string, error)
	RefreshOAuthToken(ctx context.Context, integration, connection string) (handler.OAuthToken, error)
}

var _ Host = (*handler.Client)(nil)

// ErrInvalidArgument is wrapped by argument validation failures.
var ErrInvalidArgument = errors.New("invalid argument")

type Syscalls struct {
	host   Host
	logger *log.Logger
}

func New(host Host, l *log.Logger) *Syscalls {
	return &Syscalls{host: host, logger: logger.Component(l, "syscalls")}
}

// Subscribe starts listening to events of connection matching filter and
// returns the subscription id.
func (s *Syscalls) Subscribe(ctx context.Context, connection, filter string) (string, error) {
	connection = strings.TrimSpace(connection)
	if connection == "" {
		return "", fmt.Errorf("%w: connection is required", ErrInvalidArgument)
	}
	id, err := s.host.Subscribe(ctx, connection, filter)
	if err != nil {
		return "", fmt.Errorf("subscribe %s: %w", connection, err)
	}
	s.logger.Debug("subscribed", "connection", connection, "id", id)
	return id, nil
}

// NextEvent waits for the next event on any of ids. It returns nil when
// timeout passes without one.
func (s *Syscalls) NextEvent(ctx context.Context, ids []string, timeout time.Duration) (map[string]any, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one subscription id is required", ErrInvalidArgument)
	}
	if timeout < 0 {
		return nil, fmt.Errorf("%w: negative timeout", ErrInvalidArgument)
	}
	raw, err := s.host.NextEvent(ctx, ids, timeout)
	if err != nil {
		return nil, fmt.Errorf("next event: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return DecodeEvent(raw)
}

func (s *Syscalls) Unsubscribe(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: subscription id is required", ErrInvalidArgument)
	}
	if err := s.host.Unsubscribe(ctx, id); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", id, err)
	}
	return nil
}

func (s *Syscalls) Sleep(ctx context.Context, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidArgument)
	}
	return s.host.Sleep(ctx, d)
}

func (s *Syscalls) Log(ctx context.Context, level, msg string) error {
	switch level = strings.ToLower(strings.TrimSpace(level)); level {
	case "debug", "info", "warn", "error":
	case "":
		level = "info"
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidArgument, level)
	}
	return s.host.Log(ctx, level, msg)
}

func (s *Syscalls) StartSession(ctx context.Context, loc string, data any, memo map[string]string) (string, error) {
	if strings.TrimSpace(loc) == "" {
		return "", fmt.Errorf("%w: location is required", ErrInvalidArgument)
	}
	return s.host.StartSession(ctx, loc, data, memo)
}

func (s *Syscalls) EncodeJWT(ctx context.Context, payload any, connection, algorithm string) (string, error) {
	if strings.TrimSpace(connection) == "" {
		return "", fmt.Errorf("%w: connection is required", ErrInvalidArgument)
	}
	return s.host.EncodeJWT(ctx, payload, connection, algorithm)
}

func (s *Syscalls) RefreshOAuthToken(ctx context.Context, integration, connection string) (handler.OAuthToken, error) {
	if strings.TrimSpace(integration) == "" || strings.TrimSpace(connection) == "" {
		return handler.OAuthToken{}, fmt.Errorf("%w: integration and connection are required", ErrInvalidArgument)
	}
	return s.host.RefreshOAuthToken(ctx, integration, connection)
}

// DecodeEvent parses an event payload. A binary HTTP body carried as
// data.body.bytes (base64) is replaced by its decoded text.
func DecodeEvent(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var ev map[string]any
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	data, ok := ev["data"].(map[string]any)
	if !ok {
		return ev, nil
	}
	body, ok := data["body"].(map[string]any)
	if !ok {
		return ev, nil
	}
	enc, ok := body["bytes"].(string)
	if !ok {
		return ev, nil
	}
	dec, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("decode event body: %w", err)
	}
	body["bytes"] = string(dec)
	return ev, nil
}
