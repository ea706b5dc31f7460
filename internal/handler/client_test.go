package handler_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptrunner/internal/handler"
	"scriptrunner/internal/handler/handlertest"
	"scriptrunner/internal/serialize"
	"scriptrunner/internal/waiter"
)

func newClient(t *testing.T) (*handlertest.Server, *handler.Client) {
	t.Helper()
	host := handlertest.New(t)
	return host, host.Client("runner-1", handler.Options{Attempts: 2, Backoff: time.Millisecond})
}

func TestActivityReport(t *testing.T) {
	host, c := newClient(t)

	err := c.Activity(context.Background(), waiter.Activity{Token: "T1", Name: "axios.get", Args: []any{"u", 2}})
	require.NoError(t, err)

	req := <-host.Activities()
	assert.Equal(t, "runner-1", req.RunnerId)
	require.NotNil(t, req.CallInfo)
	assert.Equal(t, "axios.get", req.CallInfo.Function)
	require.Len(t, req.CallInfo.Args, 2)
	assert.JSONEq(t, `"u"`, string(req.CallInfo.Args[0]))

	var data map[string]any
	require.NoError(t, json.Unmarshal(req.Data, &data))
	assert.Equal(t, "T1", data["token"])
	assert.Equal(t, "axios.get", data["name"])
}

func TestSyscallsRoundTrip(t *testing.T) {
	host, c := newClient(t)
	ctx := context.Background()

	id, err := c.Subscribe(ctx, "slack", "data.type == 'x'")
	require.NoError(t, err)
	assert.Equal(t, "sig-slack", id)

	ev, err := c.NextEvent(ctx, []string{id}, time.Second)
	require.NoError(t, err)
	assert.Nil(t, ev)

	host.PushEvent(json.RawMessage(`{"type":"x"}`))
	ev, err = c.NextEvent(ctx, []string{id}, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"x"}`, string(ev))

	require.NoError(t, c.Unsubscribe(ctx, id))
	assert.Equal(t, []string{"sig-slack"}, host.Unsubscribed())

	_, err = c.Subscribe(ctx, "", "")
	assert.ErrorIs(t, err, handler.ErrHost)
}

func TestHealthAndLiveness(t *testing.T) {
	host, c := newClient(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))
	active, err := c.IsActiveRunner(ctx)
	require.NoError(t, err)
	assert.True(t, active)

	host.SetIsActive(func() (bool, error) { return false, nil })
	active, err = c.IsActiveRunner(ctx)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestHelpers(t *testing.T) {
	host, c := newClient(t)
	ctx := context.Background()

	require.NoError(t, c.Print(ctx, "hello"))
	require.NoError(t, c.Log(ctx, "info", "msg"))
	require.NoError(t, c.Sleep(ctx, 1500*time.Millisecond))
	assert.Equal(t, []string{"hello"}, host.Prints())
	assert.Equal(t, []int64{1500}, host.Sleeps())
	require.Len(t, host.Logs(), 1)

	sid, err := c.StartSession(ctx, "main.js:main", map[string]any{"a": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ses-main.js:main", sid)

	jwt, err := c.EncodeJWT(ctx, map[string]any{"sub": "x"}, "conn", "RS256")
	require.NoError(t, err)
	assert.Equal(t, "jwt.conn", jwt)

	tok, err := c.RefreshOAuthToken(ctx, "google", "conn")
	require.NoError(t, err)
	assert.Equal(t, "tok-google", tok.Token)
	assert.Equal(t, int64(1700000000), tok.Expires.Unix())
}

func TestDone(t *testing.T) {
	host, c := newClient(t)
	ctx := context.Background()

	require.NoError(t, c.Done(ctx, map[string]any{"ok": true}, nil))
	require.NoError(t, c.Done(ctx, nil, &serialize.Traceback{
		Message: "boom",
		Frames:  []serialize.Frame{{Name: "main", File: "main.js", Line: 3}},
	}))

	done := host.DoneRequests()
	require.Len(t, done, 2)
	assert.JSONEq(t, `{"ok":true}`, string(done[0].Result))
	assert.Equal(t, "boom", done[1].Error)
	require.Len(t, done[1].Traceback, 1)
	assert.Equal(t, 3, done[1].Traceback[0].Line)
}
