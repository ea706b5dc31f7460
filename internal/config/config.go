// Package config loads the runner's launch parameters from flags, RUNNER_*
// environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "RUNNER"

// ErrMissingParam is wrapped when a required launch parameter is absent.
var ErrMissingParam = errors.New("missing required parameter")

type Config struct {
	WorkerAddress string
	Port          int
	RunnerID      string
	CodeDir       string

	LogLevel  string
	LogFormat string

	LivenessInterval time.Duration
	LivenessAttempts int
	LivenessBackoff  time.Duration
	HealthInterval   time.Duration
	StartTimeout     time.Duration
	GracePeriod      time.Duration

	HandlerAttempts int
	HandlerBackoff  time.Duration

	CacheSize   int
	SafeCallees []string

	S3 S3Config
}

// S3Config points at a bucket the code directory is fetched from. It is
// disabled when Bucket is empty.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

func (c S3Config) Enabled() bool { return strings.TrimSpace(c.Bucket) != "" }

// Addr is the listen address of the inbound server.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

const (
	keyWorkerAddress    = "worker-address"
	keyPort             = "port"
	keyRunnerID         = "runner-id"
	keyCodeDir          = "code-dir"
	keyLogLevel         = "log-level"
	keyLogFormat        = "log-format"
	keyLivenessInterval = "liveness-interval"
	keyLivenessAttempts = "liveness-attempts"
	keyLivenessBackoff  = "liveness-backoff"
	keyHealthInterval   = "health-interval"
	keyStartTimeout     = "start-timeout"
	keyGracePeriod      = "grace-period"
	keyHandlerAttempts  = "handler-attempts"
	keyHandlerBackoff   = "handler-backoff"
	keyCacheSize        = "cache-size"
	keySafeCallees      = "safe-callees"
	keyS3Endpoint       = "s3-endpoint"
	keyS3Region         = "s3-region"
	keyS3AccessKey      = "s3-access-key"
	keyS3SecretKey      = "s3-secret-key"
	keyS3Bucket         = "s3-bucket"
	keyS3Prefix         = "s3-prefix"
	keyS3UseSSL         = "s3-use-ssl"
)

// BindFlags declares the runner flags on cmd and binds them to v so that
// RUNNER_<FLAG> environment variables override the defaults.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	f := cmd.Flags()
	f.String(keyWorkerAddress, "", "host Handler service address (host:port)")
	f.Int(keyPort, 0, "port the RunnerService listens on")
	f.String(keyRunnerID, "", "identifier of this runner")
	f.String(keyCodeDir, "", "root directory of the user code")
	f.String(keyLogLevel, "info", "log level (debug, info, warn, error)")
	f.String(keyLogFormat, "text", "log format (text, json, logfmt)")
	f.Duration(keyLivenessInterval, 10*time.Second, "interval between liveness probes")
	f.Int(keyLivenessAttempts, 3, "liveness probe attempts before shutting down")
	f.Duration(keyLivenessBackoff, time.Second, "delay between liveness attempts")
	f.Duration(keyHealthInterval, 10*time.Second, "interval between health pings")
	f.Duration(keyStartTimeout, 2*time.Minute, "time allowed to receive the start request")
	f.Duration(keyGracePeriod, 3*time.Second, "time given to in-flight work on shutdown")
	f.Int(keyHandlerAttempts, 3, "attempts for each call to the host")
	f.Duration(keyHandlerBackoff, 500*time.Millisecond, "delay between host call attempts")
	f.Int(keyCacheSize, 256, "instrumented files kept in memory")
	f.StringSlice(keySafeCallees, nil, "callees executed directly without interception")
	f.String(keyS3Endpoint, "", "S3 endpoint to fetch the code from")
	f.String(keyS3Region, "us-east-1", "S3 region")
	f.String(keyS3AccessKey, "", "S3 access key")
	f.String(keyS3SecretKey, "", "S3 secret key")
	f.String(keyS3Bucket, "", "S3 bucket holding the code")
	f.String(keyS3Prefix, "", "key prefix of the code inside the bucket")
	f.Bool(keyS3UseSSL, true, "use TLS for S3")

	if err := v.BindPFlags(f); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return nil
}

// LoadDotEnv reads .env files into the process environment. Missing files
// are ignored.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// Load builds the Config from v and validates the required parameters.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		WorkerAddress:    strings.TrimSpace(v.GetString(keyWorkerAddress)),
		Port:             v.GetInt(keyPort),
		RunnerID:         strings.TrimSpace(v.GetString(keyRunnerID)),
		CodeDir:          strings.TrimSpace(v.GetString(keyCodeDir)),
		LogLevel:         v.GetString(keyLogLevel),
		LogFormat:        v.GetString(keyLogFormat),
		LivenessInterval: v.GetDuration(keyLivenessInterval),
		LivenessAttempts: v.GetInt(keyLivenessAttempts),
		LivenessBackoff:  v.GetDuration(keyLivenessBackoff),
		HealthInterval:   v.GetDuration(keyHealthInterval),
		StartTimeout:     v.GetDuration(keyStartTimeout),
		GracePeriod:      v.GetDuration(keyGracePeriod),
		HandlerAttempts:  v.GetInt(keyHandlerAttempts),
		HandlerBackoff:   v.GetDuration(keyHandlerBackoff),
		CacheSize:        v.GetInt(keyCacheSize),
		SafeCallees:      splitList(v.GetStringSlice(keySafeCallees)),
		S3: S3Config{
			Endpoint:  strings.TrimSpace(v.GetString(keyS3Endpoint)),
			Region:    v.GetString(keyS3Region),
			AccessKey: v.GetString(keyS3AccessKey),
			SecretKey: v.GetString(keyS3SecretKey),
			Bucket:    strings.TrimSpace(v.GetString(keyS3Bucket)),
			Prefix:    strings.Trim(v.GetString(keyS3Prefix), "/"),
			UseSSL:    v.GetBool(keyS3UseSSL),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing launch parameter at once.
func (c *Config) Validate() error {
	var missing []string
	if c.WorkerAddress == "" {
		missing = append(missing, keyWorkerAddress)
	}
	if c.Port <= 0 || c.Port > 65535 {
		missing = append(missing, keyPort)
	}
	if c.RunnerID == "" {
		missing = append(missing, keyRunnerID)
	}
	if c.CodeDir == "" {
		missing = append(missing, keyCodeDir)
	}
	if c.S3.Enabled() && c.S3.Endpoint == "" {
		missing = append(missing, keyS3Endpoint)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingParam, strings.Join(missing, ", "))
	}
	if c.LivenessAttempts < 1 {
		c.LivenessAttempts = 1
	}
	if c.HandlerAttempts < 1 {
		c.HandlerAttempts = 1
	}
	return nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
