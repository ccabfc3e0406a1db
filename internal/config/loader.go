package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "codetutor.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML path comes from CODETUTOR_CONFIG, falling back to DefaultConfigFile.
func Load() (*Config, error) {
	path := os.Getenv("CODETUTOR_CONFIG")
	if path == "" {
		path = DefaultConfigFile
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. A missing YAML file is not an error.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays environment variables onto cfg. The unprefixed names are
// the ones operators of the service have always used; everything else is
// namespaced under CODETUTOR_.
func loadEnv(cfg *Config) {
	// Server
	setString(&cfg.Server.Port, "CODETUTOR_PORT")
	setString(&cfg.Server.CORSOrigin, "CODETUTOR_CORS_ORIGIN")
	setDuration(&cfg.Server.HandlerTimeout, "CODETUTOR_HANDLER_TIMEOUT")

	// LLM
	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.Model, "DEFAULT_MODEL")
	setBaseURL(cfg, "openai", "OPENAI_BASE_URL")
	setBaseURL(cfg, "anthropic", "ANTHROPIC_BASE_URL")
	setFloat64(&cfg.LLM.Temperature, "TEMPERATURE")
	setInt(&cfg.LLM.MaxTokens, "MAX_TOKENS")
	setDuration(&cfg.LLM.RequestTimeout, "REQUEST_TIMEOUT")

	// Repository
	setString(&cfg.Repository.WorkDir, "CODETUTOR_WORK_DIR")
	setInt(&cfg.Repository.MaxSizeMB, "MAX_REPO_SIZE_MB")
	setList(&cfg.Repository.AllowedHosts, "CODETUTOR_ALLOWED_HOSTS")
	setString(&cfg.GitHub.BaseURL, "CODETUTOR_GITHUB_BASE_URL")

	// Walker
	setByteSize(&cfg.Walker.MaxFileSize, "MAX_FILE_SIZE")
	setByteSize(&cfg.Walker.MaxTotalSize, "CODETUTOR_MAX_TOTAL_SIZE")
	setList(&cfg.Walker.DeniedExtensions, "CODETUTOR_DENIED_EXTENSIONS")

	// Analysis
	setInt(&cfg.Analysis.MaxLLMCalls, "MAX_LLM_CALLS")
	setInt(&cfg.Analysis.Concurrency, "CODETUTOR_ANALYSIS_CONCURRENCY")

	// Tasks
	setDuration(&cfg.Tasks.Timeout, "CODETUTOR_TASK_TIMEOUT")
	setDuration(&cfg.Tasks.Retention, "CODETUTOR_TASK_RETENTION")
	setInt(&cfg.Tasks.MaxConcurrent, "CODETUTOR_MAX_CONCURRENT_TASKS")
	setDuration(&cfg.Tasks.StaleWorkspaceAge, "CODETUTOR_STALE_WORKSPACE_AGE")

	// Resilience
	setInt(&cfg.Retry.MaxAttempts, "CODETUTOR_RETRY_ATTEMPTS")
	setInt(&cfg.Breaker.MaxFailures, "CODETUTOR_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CODETUTOR_BREAKER_TIMEOUT")

	// Rate
	setInt(&cfg.Rate.AnalyzePerHour, "CODETUTOR_ANALYZE_PER_HOUR")
	setInt(&cfg.Rate.Burst, "CODETUTOR_ANALYZE_BURST")

	// Cache, git
	setInt64(&cfg.Cache.MaxSizeMB, "CODETUTOR_CACHE_MAX_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "CODETUTOR_CACHE_TTL")
	setString(&cfg.Cache.Bucket, "CODETUTOR_CACHE_BUCKET")
	setInt(&cfg.Git.MaxConcurrent, "CODETUTOR_GIT_MAX_CONCURRENT")

	// Events and telemetry
	setString(&cfg.NATS.URL, "CODETUTOR_NATS_URL")
	setString(&cfg.Telemetry.OTLPEndpoint, "CODETUTOR_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Prometheus, "CODETUTOR_PROMETHEUS")

	// Secrets
	setString(&cfg.Secrets.EnvFile, "CODETUTOR_ENV_FILE")

	// Logging
	setString(&cfg.Logging.Level, "CODETUTOR_LOG_LEVEL")
	setString(&cfg.Logging.File, "CODETUTOR_LOG_FILE")
}

func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.LLM.Provider {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider %q is not supported (openai, anthropic)", cfg.LLM.Provider)
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be within [0, 2]")
	}
	if cfg.Repository.MaxSizeMB < 1 {
		return errors.New("repository.max_size_mb must be >= 1")
	}
	if len(cfg.Repository.AllowedHosts) == 0 {
		return errors.New("repository.allowed_hosts must not be empty")
	}
	if cfg.Walker.MaxFileSize < 1 {
		return errors.New("walker.max_file_size must be > 0")
	}
	if cfg.Walker.MaxTotalSize < cfg.Walker.MaxFileSize {
		return errors.New("walker.max_total_size must be >= walker.max_file_size")
	}
	if cfg.Analysis.MaxLLMCalls < 1 {
		return errors.New("analysis.max_llm_calls must be >= 1 (the overview needs one call)")
	}
	if cfg.Analysis.Concurrency < 1 {
		return errors.New("analysis.concurrency must be >= 1")
	}
	if cfg.Tasks.Timeout <= 0 {
		return errors.New("tasks.timeout must be > 0")
	}
	if cfg.Tasks.StaleWorkspaceAge < 0 ||
		(cfg.Tasks.StaleWorkspaceAge > 0 && cfg.Tasks.StaleWorkspaceAge <= cfg.Tasks.Timeout) {
		return errors.New("tasks.stale_workspace_age must be 0 (disabled) or longer than tasks.timeout")
	}
	if cfg.Tasks.MaxConcurrent < 1 {
		return errors.New("tasks.max_concurrent must be >= 1")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.AnalyzePerHour < 1 || cfg.Rate.Burst < 1 {
		return errors.New("rate.analyze_per_hour and rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBaseURL(cfg *Config, provider, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if cfg.LLM.BaseURLs == nil {
		cfg.LLM.BaseURLs = make(map[string]string)
	}
	cfg.LLM.BaseURLs[provider] = v
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			ignored(key, v, err)
			return
		}
		*dst = n
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			ignored(key, v, err)
			return
		}
		*dst = n
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			ignored(key, v, err)
			return
		}
		*dst = f
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			ignored(key, v, err)
			return
		}
		*dst = b
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			ignored(key, v, err)
			return
		}
		*dst = d
	}
}

func setByteSize(dst *ByteSize, key string) {
	if v := os.Getenv(key); v != "" {
		n, err := ParseByteSize(v)
		if err != nil {
			ignored(key, v, err)
			return
		}
		*dst = n
	}
}

func ignored(key, value string, err error) {
	slog.Warn("ignoring malformed environment value", "key", key, "value", value, "error", err)
}
