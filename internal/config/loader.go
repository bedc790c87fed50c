package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "capsuleforge.yaml"
	// UserConfigDir is the directory for user-level config.
	UserConfigDir = ".config/capsuleforge"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence: defaults,
// then user config, then project config, then environment variables.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a configuration loader. A nil logger falls back to
// slog.Default().
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/capsuleforge/config.yaml)
// 3. Project config (capsuleforge.yaml in current or parent directories)
// 4. Environment variable overrides
//
// The returned Config is never re-read or mutated by the caller; it is
// handed to components once at process start.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if userPath := l.userConfigPath(); userPath != "" {
		if userCfg, err := LoadFromFile(userPath); err == nil {
			l.logger.Debug("loaded user config", slog.String("path", userPath))
			cfg.Merge(userCfg)
		} else if !os.IsNotExist(err) {
			l.logger.Warn("failed to load user config", slog.String("path", userPath), slog.String("error", err.Error()))
		}
	}

	if projectPath := l.findProjectConfig(); projectPath != "" {
		if projectCfg, err := LoadFromFile(projectPath); err == nil {
			l.logger.Debug("loaded project config", slog.String("path", projectPath))
			cfg.Merge(projectCfg)
		} else {
			l.logger.Warn("failed to load project config", slog.String("path", projectPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("no project config found")
	}

	l.applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureUserConfig creates the user config file with defaults if it
// doesn't already exist.
func (l *Loader) EnsureUserConfig() error {
	userPath := l.userConfigPath()
	if userPath == "" {
		return nil
	}
	if _, err := os.Stat(userPath); err == nil {
		return nil
	}

	cfg := DefaultConfig()
	if err := cfg.SaveToFile(userPath); err != nil {
		return err
	}
	l.logger.Info("created default user config", slog.String("path", userPath))
	return nil
}

func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for capsuleforge.yaml in the current directory
// and its ancestors.
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// envOverrides names the environment variables the loader consults and
// where each one lands. Credentials, endpoints, and pricing overrides all
// arrive this way; the core never re-reads the environment after Load
// returns.
var envOverrides = []struct {
	name  string
	apply func(cfg *Config, value string)
}{
	{"CAPSULEFORGE_STORE_URL", func(cfg *Config, v string) { cfg.Store.URL = v; cfg.Store.Embedded = false }},
	{"CAPSULEFORGE_VECTOR_DSN", func(cfg *Config, v string) { cfg.VectorIndex.DSN = v }},
	{"CAPSULEFORGE_CACHE_ADDR", func(cfg *Config, v string) { cfg.Cache.Addr = v }},
	{"CAPSULEFORGE_SANDBOX_MAX_CONCURRENT", func(cfg *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sandbox.MaxConcurrent = n
		}
	}},
	{"CAPSULEFORGE_SCHEDULER_BATCH_CONCURRENCY", func(cfg *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.BatchConcurrency = n
		}
	}},
	{"CAPSULEFORGE_RUNTIME_HEARTBEAT_INTERVAL", func(cfg *Config, v string) {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Runtime.HeartbeatInterval = d
		}
	}},
	{"CAPSULEFORGE_COST_DEFAULT_INPUT_PRICE_PER_M", func(cfg *Config, v string) {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Cost.DefaultInputPricePerM = f
		}
	}},
	{"CAPSULEFORGE_COST_DEFAULT_OUTPUT_PRICE_PER_M", func(cfg *Config, v string) {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Cost.DefaultOutputPricePerM = f
		}
	}},
}

func (l *Loader) applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.name); ok && v != "" {
			o.apply(cfg, v)
			l.logger.Debug("applied env override", slog.String("var", o.name))
		}
	}
}
