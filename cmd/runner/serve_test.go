package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"scriptrunner/internal/config"
	"scriptrunner/internal/logger"
)

func TestServeFailsWithoutCodeDir(t *testing.T) {
	cfg := &config.Config{
		WorkerAddress: "127.0.0.1:1",
		Port:          1,
		RunnerID:      "r",
		CodeDir:       filepath.Join(t.TempDir(), "missing"),
	}
	code, err := serve(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)
	assert.Equal(t, 1, code)
}
