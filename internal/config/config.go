// Package config defines the coordinator configuration and its
// resolution order: built-in defaults, then an optional .cocowatch.yaml
// file, then COCOWATCH_* environment variables, then command-line flags
// applied by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	cocoerrors "github.com/cocodex/cocowatch/internal/errors"
)

// Mode selects which halves of the coordinator run.
type Mode string

const (
	// ModeWatchOnly runs the watch/index pipeline without a serving endpoint.
	ModeWatchOnly Mode = "watch-only"
	// ModeServeOnly runs the serving endpoint against an existing index.
	ModeServeOnly Mode = "serve-only"
	// ModeHybrid runs both the pipeline and the serving endpoint.
	ModeHybrid Mode = "hybrid"
)

// ParseMode converts a string to a Mode, accepting a few aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "watch-only", "watch", "watchonly":
		return ModeWatchOnly, nil
	case "serve-only", "serve", "serveonly", "mcp-server-only":
		return ModeServeOnly, nil
	case "hybrid", "watch-and-serve":
		return ModeHybrid, nil
	default:
		return "", cocoerrors.ConfigError(fmt.Sprintf("unknown mode %q", s), nil)
	}
}

// Serves reports whether the mode includes the serving endpoint.
func (m Mode) Serves() bool { return m == ModeServeOnly || m == ModeHybrid }

// Watches reports whether the mode includes the watch/index pipeline.
func (m Mode) Watches() bool { return m == ModeWatchOnly || m == ModeHybrid }

// Config holds every knob the coordinator reads. Callers obtain one via
// New, optionally merge a config file and the environment with Load,
// then overlay flag values before calling Validate.
type Config struct {
	// WatchPath is the root directory to watch and index.
	WatchPath string `yaml:"watch_path"`

	// Flow names the indexing flow handed to the indexer.
	Flow string `yaml:"flow"`

	// Mode selects watch-only, serve-only, or hybrid operation.
	Mode Mode `yaml:"mode"`

	// Recursive controls whether subdirectories are watched.
	Recursive bool `yaml:"recursive"`

	// DebounceWindow is the quiet period required before a batch of
	// file events is considered settled.
	DebounceWindow time.Duration `yaml:"debounce_window"`

	// InitialIndex forces a full index pass before watching starts.
	InitialIndex bool `yaml:"initial_index"`

	// Address is the host:port for the HTTP serving endpoint. Empty
	// selects stdio transport.
	Address string `yaml:"address"`

	// DatabaseURL is the store connection string. Empty selects a
	// SQLite file under <watch_path>/.cocowatch/index.db.
	DatabaseURL string `yaml:"database_url"`

	// IgnorePatterns are glob patterns excluded from watching and
	// scanning, in addition to the built-in exclusions.
	IgnorePatterns []string `yaml:"ignore_patterns"`

	// ShutdownGrace bounds how long draining waits for an in-flight
	// index run before cancelling it.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	// MaxRetries bounds retry attempts for a transient index failure.
	MaxRetries int `yaml:"max_retries"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// LogFile overrides the default log file location.
	LogFile string `yaml:"log_file"`
}

// ConfigFileName is looked up in the watch path and the working directory.
const ConfigFileName = ".cocowatch.yaml"

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Mode:           ModeWatchOnly,
		Recursive:      true,
		DebounceWindow: 2 * time.Second,
		ShutdownGrace:  10 * time.Second,
		MaxRetries:     3,
		LogLevel:       "info",
	}
}

// Load merges an optional config file and COCOWATCH_* environment
// variables into c. File values override defaults; environment values
// override the file. Flag handling stays with the caller so that only
// flags the user actually set are applied.
func (c *Config) Load(searchDirs ...string) error {
	if len(searchDirs) == 0 {
		if cwd, err := os.Getwd(); err == nil {
			searchDirs = []string{cwd}
		}
	}
	for _, dir := range searchDirs {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, ConfigFileName)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return cocoerrors.New(cocoerrors.ErrCodeConfigInvalid, fmt.Sprintf("reading %s", path), err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return cocoerrors.New(cocoerrors.ErrCodeConfigInvalid, fmt.Sprintf("parsing %s", path), err)
		}
		break
	}
	return c.applyEnv()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("COCOWATCH_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("COCOWATCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("COCOWATCH_DEBOUNCE_SECONDS"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cocoerrors.ConfigError(fmt.Sprintf("COCOWATCH_DEBOUNCE_SECONDS: %v", err), err)
		}
		c.DebounceWindow = time.Duration(secs * float64(time.Second))
	}
	if v := os.Getenv("COCOWATCH_SHUTDOWN_GRACE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cocoerrors.ConfigError(fmt.Sprintf("COCOWATCH_SHUTDOWN_GRACE: %v", err), err)
		}
		c.ShutdownGrace = d
	}
	if v := os.Getenv("COCOWATCH_MODE"); v != "" {
		m, err := ParseMode(v)
		if err != nil {
			return err
		}
		c.Mode = m
	}
	return nil
}

// DefaultDatabaseURL returns the store location used when no connection
// string was configured.
func (c *Config) DefaultDatabaseURL() string {
	return filepath.Join(c.WatchPath, ".cocowatch", "index.db")
}

// DataDir returns the coordinator's private directory under the watch
// path. It holds the default store and the cross-process lock.
func (c *Config) DataDir() string {
	return filepath.Join(c.WatchPath, ".cocowatch")
}

// Validate checks the configuration for the selected mode. It returns
// a CocoError with code ERR_101 or ERR_102 on failure.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeWatchOnly, ModeServeOnly, ModeHybrid:
	default:
		return cocoerrors.ConfigError(fmt.Sprintf("unknown mode %q", c.Mode), nil)
	}

	if c.Mode.Watches() {
		if c.WatchPath == "" {
			return cocoerrors.New(cocoerrors.ErrCodeWatchPathInvalid, "watch path is required", nil)
		}
		info, err := os.Stat(c.WatchPath)
		if err != nil {
			return cocoerrors.New(cocoerrors.ErrCodeWatchPathInvalid, fmt.Sprintf("watch path %s: %v", c.WatchPath, err), err)
		}
		if !info.IsDir() {
			return cocoerrors.New(cocoerrors.ErrCodeWatchPathInvalid, fmt.Sprintf("watch path %s is not a directory", c.WatchPath), nil)
		}
		if c.Flow == "" {
			return cocoerrors.New(cocoerrors.ErrCodeFlowMissing, "an indexing flow is required in watch modes", nil)
		}
		if c.DebounceWindow <= 0 {
			return cocoerrors.ConfigError("debounce window must be positive", nil)
		}
	}

	if c.Mode == ModeServeOnly && c.DatabaseURL == "" && c.WatchPath == "" {
		return cocoerrors.ConfigError("serve-only mode needs a database URL or a watch path with an existing index", nil)
	}

	if c.Address != "" {
		if _, _, err := splitHostPort(c.Address); err != nil {
			return cocoerrors.ConfigError(fmt.Sprintf("address %q: %v", c.Address, err), err)
		}
	}

	if c.ShutdownGrace <= 0 {
		return cocoerrors.ConfigError("shutdown grace must be positive", nil)
	}
	if c.MaxRetries < 0 {
		return cocoerrors.ConfigError("max retries cannot be negative", nil)
	}
	return nil
}

func splitHostPort(addr string) (string, int, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", 0, fmt.Errorf("missing port")
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", addr[i+1:])
	}
	return addr[:i], port, nil
}
