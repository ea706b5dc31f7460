package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBound(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	v := viper.New()
	cmd := &cobra.Command{Use: "runner"}
	require.NoError(t, BindFlags(cmd, v))
	require.NoError(t, cmd.Flags().Parse(args))
	return v
}

func TestLoadFromFlags(t *testing.T) {
	v := newBound(t,
		"--worker-address", "localhost:9980",
		"--port", "9291",
		"--runner-id", "r-1",
		"--code-dir", "/code",
		"--safe-callees", "crypto.randomUUID, axios.isCancel",
	)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "localhost:9980", cfg.WorkerAddress)
	assert.Equal(t, ":9291", cfg.Addr())
	assert.Equal(t, "r-1", cfg.RunnerID)
	assert.Equal(t, "/code", cfg.CodeDir)
	assert.Equal(t, 3, cfg.LivenessAttempts)
	assert.Equal(t, 2*time.Minute, cfg.StartTimeout)
	assert.Equal(t, []string{"crypto.randomUUID", "axios.isCancel"}, cfg.SafeCallees)
	assert.False(t, cfg.S3.Enabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RUNNER_WORKER_ADDRESS", "host:1")
	t.Setenv("RUNNER_PORT", "8000")
	t.Setenv("RUNNER_RUNNER_ID", "env-runner")
	t.Setenv("RUNNER_CODE_DIR", "/workflow")
	t.Setenv("RUNNER_START_TIMEOUT", "5s")

	cfg, err := Load(newBound(t))
	require.NoError(t, err)
	assert.Equal(t, "host:1", cfg.WorkerAddress)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "env-runner", cfg.RunnerID)
	assert.Equal(t, 5*time.Second, cfg.StartTimeout)
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(newBound(t, "--port", "80"))
	require.ErrorIs(t, err, ErrMissingParam)
	assert.Contains(t, err.Error(), "worker-address")
	assert.Contains(t, err.Error(), "runner-id")
	assert.Contains(t, err.Error(), "code-dir")
	assert.NotContains(t, err.Error(), "port")
}

func TestS3RequiresEndpoint(t *testing.T) {
	v := newBound(t,
		"--worker-address", "h:1", "--port", "1", "--runner-id", "r", "--code-dir", "/c",
		"--s3-bucket", "code",
	)
	_, err := Load(v)
	require.ErrorIs(t, err, ErrMissingParam)
	assert.Contains(t, err.Error(), "s3-endpoint")
}
