// Package safeio confines file access to a fixed code root.
package safeio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrOutsideRoot is returned for paths that resolve outside the root.
	ErrOutsideRoot = errors.New("safeio: path outside root")
	// ErrIsDir is returned when a file operation names a directory.
	ErrIsDir = errors.New("safeio: path is a directory")
)

// SafeFS resolves slash separated module paths relative to a root directory.
type SafeFS struct {
	absRoot string // absolute root with symlinks resolved
}

// NewSafeFS locks all future operations to the given root directory.
func NewSafeFS(root string) (*SafeFS, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("safeio: root %s is not a directory", abs)
	}
	return &SafeFS{absRoot: abs}, nil
}

// Root returns the absolute root directory.
func (s *SafeFS) Root() string {
	if s == nil {
		return ""
	}
	return s.absRoot
}

// Clean normalizes a module path: slash separated, relative to the root,
// without "." or ".." elements. It fails for paths escaping the root.
func Clean(name string) (string, error) {
	name = strings.TrimSpace(filepath.ToSlash(name))
	if name == "" {
		return "", errors.New("safeio: empty path")
	}
	clean := path.Clean("/" + name)[1:]
	if clean == "" {
		return ".", nil
	}
	if raw := path.Clean(name); raw == ".." || strings.HasPrefix(raw, "../") {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	return clean, nil
}

// Join resolves spec relative to the directory of the module at from.
func Join(from, spec string) (string, error) {
	dir := path.Dir(filepath.ToSlash(from))
	joined := path.Clean(path.Join(dir, filepath.ToSlash(spec)))
	if joined == ".." || strings.HasPrefix(joined, "../") || strings.HasPrefix(joined, "/") {
		return "", fmt.Errorf("%w: %s from %s", ErrOutsideRoot, spec, from)
	}
	return joined, nil
}

// ReadFile reads the module at name.
func (s *SafeFS) ReadFile(name string) ([]byte, error) {
	p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDir, name)
	}
	return os.ReadFile(p)
}

// Stat returns metadata for a file or directory under the root.
func (s *SafeFS) Stat(name string) (fs.FileInfo, error) {
	p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Stat(p)
}

// IsFile reports whether name is a regular file under the root.
func (s *SafeFS) IsFile(name string) bool {
	info, err := s.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

// Abs returns the absolute path of name.
func (s *SafeFS) Abs(name string) (string, error) { return s.resolve(name) }

// Open implements fs.FS.
func (s *SafeFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (s *SafeFS) resolve(name string) (string, error) {
	if s == nil {
		return "", errors.New("safeio: filesystem not configured")
	}
	clean, err := Clean(name)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(s.absRoot, filepath.FromSlash(clean))
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", err
	}
	if !hasPathPrefix(resolved, s.absRoot) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	return resolved, nil
}

func hasPathPrefix(p, root string) bool {
	p = filepath.Clean(p)
	root = filepath.Clean(root)
	if p == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(p, root)
}
