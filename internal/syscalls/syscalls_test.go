package syscalls

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptrunner/internal/handler"
	"scriptrunner/internal/logger"
)

type fakeHost struct {
	Host
	event   json.RawMessage
	timeout time.Duration
	level   string
}

func (f *fakeHost) Subscribe(_ context.Context, connection, _ string) (string, error) {
	return "sig-" + connection, nil
}

func (f *fakeHost) NextEvent(_ context.Context, _ []string, timeout time.Duration) (json.RawMessage, error) {
	f.timeout = timeout
	return f.event, nil
}

func (f *fakeHost) Log(_ context.Context, level, _ string) error {
	f.level = level
	return nil
}

func (f *fakeHost) RefreshOAuthToken(context.Context, string, string) (handler.OAuthToken, error) {
	return handler.OAuthToken{Token: "t"}, nil
}

func TestSubscribeValidates(t *testing.T) {
	s := New(&fakeHost{}, logger.Discard())
	_, err := s.Subscribe(context.Background(), " ", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	id, err := s.Subscribe(context.Background(), "slack", "")
	require.NoError(t, err)
	assert.Equal(t, "sig-slack", id)
}

func TestNextEvent(t *testing.T) {
	host := &fakeHost{}
	s := New(host, logger.Discard())

	_, err := s.NextEvent(context.Background(), nil, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	ev, err := s.NextEvent(context.Background(), []string{"a"}, time.Second)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, time.Second, host.timeout)

	host.event = json.RawMessage(`{"data":{"body":{"bytes":"aGVsbG8="}}}`)
	ev, err = s.NextEvent(context.Background(), []string{"a"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", ev["data"].(map[string]any)["body"].(map[string]any)["bytes"])
}

func TestLogLevels(t *testing.T) {
	host := &fakeHost{}
	s := New(host, logger.Discard())

	require.NoError(t, s.Log(context.Background(), "", "m"))
	assert.Equal(t, "info", host.level)
	require.NoError(t, s.Log(context.Background(), "WARN", "m"))
	assert.Equal(t, "warn", host.level)
	assert.ErrorIs(t, s.Log(context.Background(), "loud", "m"), ErrInvalidArgument)
}

func TestRefreshOAuthTokenValidates(t *testing.T) {
	s := New(&fakeHost{}, logger.Discard())
	_, err := s.RefreshOAuthToken(context.Background(), "google", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	tok, err := s.RefreshOAuthToken(context.Background(), "google", "c")
	require.NoError(t, err)
	assert.Equal(t, "t", tok.Token)
}

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"x","data":{"n":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "x", ev["type"])

	_, err = DecodeEvent([]byte(`{"data":{"body":{"bytes":"!!"}}}`))
	assert.Error(t, err)

	ev, err = DecodeEvent(nil)
	require.NoError(t, err)
	assert.Empty(t, ev)
}
