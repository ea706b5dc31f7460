package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptrunner/internal/instrument"
)

func TestInstrumentedCachesByContent(t *testing.T) {
	calls := 0
	c, err := New(2, func(filename, src string) (*instrument.Result, error) {
		calls++
		return &instrument.Result{File: filename, Code: src}, nil
	})
	require.NoError(t, err)

	r1, err := c.Get("a.js", "one")
	require.NoError(t, err)
	r2, err := c.Get("a.js", "one")
	require.NoError(t, err)
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, calls)

	_, err = c.Get("a.js", "two")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(2), st.Misses)
	assert.Equal(t, 2, st.Len)
}

func TestInstrumentedDoesNotCacheErrors(t *testing.T) {
	calls := 0
	c, err := New(4, func(string, string) (*instrument.Result, error) {
		calls++
		return nil, errors.New("bad")
	})
	require.NoError(t, err)

	_, err = c.Get("a.js", "x")
	assert.Error(t, err)
	_, err = c.Get("a.js", "x")
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, c.Stats().Len)
}

func TestInstrumentedEvicts(t *testing.T) {
	c, err := New(1, func(f, s string) (*instrument.Result, error) {
		return &instrument.Result{File: f}, nil
	})
	require.NoError(t, err)
	_, _ = c.Get("a.js", "x")
	_, _ = c.Get("b.js", "x")
	assert.Equal(t, 1, c.Stats().Len)
	c.Purge()
	assert.Equal(t, 0, c.Stats().Len)
}
