package safeio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFileUnderRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "a.js"), []byte("hello"), 0o644))

	fsys, err := NewSafeFS(dir)
	require.NoError(t, err)

	b, err := fsys.ReadFile("lib/a.js")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
	assert.True(t, fsys.IsFile("./lib/../lib/a.js"))
	assert.False(t, fsys.IsFile("lib"))

	_, err = fsys.ReadFile("lib")
	assert.ErrorIs(t, err, ErrIsDir)
}

func TestSymlinkEscapeRejected(t *testing.T) {
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o644))
	dir := t.TempDir()
	if err := os.Symlink(filepath.Join(outside, "secret"), filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	fsys, err := NewSafeFS(dir)
	require.NoError(t, err)
	_, err = fsys.ReadFile("link")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestClean(t *testing.T) {
	for in, want := range map[string]string{
		"main.js":        "main.js",
		"./lib/x.js":     "lib/x.js",
		"/abs/x.js":      "abs/x.js",
		"lib/../main.ts": "main.ts",
		"lib\\win.js":    "lib\\win.js",
	} {
		got, err := Clean(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := Clean("../x.js")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestJoin(t *testing.T) {
	got, err := Join("lib/a.js", "./b")
	require.NoError(t, err)
	assert.Equal(t, "lib/b", got)

	got, err = Join("lib/a.js", "../c.js")
	require.NoError(t, err)
	assert.Equal(t, "c.js", got)

	_, err = Join("a.js", "../c.js")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}
