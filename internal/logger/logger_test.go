package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLevelAndPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Format: "logfmt", Output: &buf})

	l.Info("hidden")
	Component(l, "waiter").Warn("shown", "token", "t1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "waiter")
	assert.Contains(t, out, "token=t1")
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "loud", Output: &buf})
	l.Debug("debug line")
	l.Info("info line")
	assert.NotContains(t, buf.String(), "debug line")
	assert.Contains(t, buf.String(), "info line")
}
