// Package config provides hierarchical configuration loading for CodeTutor.
// Precedence: defaults < YAML file < environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the CodeTutor service.
type Config struct {
	Server     Server     `yaml:"server"`
	LLM        LLM        `yaml:"llm"`
	Repository Repository `yaml:"repository"`
	GitHub     GitHub     `yaml:"github"`
	Walker     Walker     `yaml:"walker"`
	Analysis   Analysis   `yaml:"analysis"`
	Tasks      Tasks      `yaml:"tasks"`
	Retry      Retry      `yaml:"retry"`
	Breaker    Breaker    `yaml:"breaker"`
	Rate       Rate       `yaml:"rate"`
	Cache      Cache      `yaml:"cache"`
	Git        Git        `yaml:"git"`
	NATS       NATS       `yaml:"nats"`
	Telemetry  Telemetry  `yaml:"telemetry"`
	Secrets    Secrets    `yaml:"secrets"`
	Logging    Logging    `yaml:"logging"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port            string        `yaml:"port"`
	CORSOrigin      string        `yaml:"cors_origin"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LLM holds text-completion provider settings. API keys live in the secrets vault.
type LLM struct {
	Provider       string        `yaml:"provider"` // "openai" | "anthropic" | "" (first provider with a key)
	Model          string        `yaml:"model"`    // empty = provider default
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// BaseURLs overrides provider endpoints by provider name, e.g. an
	// OpenRouter URL for "openai".
	BaseURLs map[string]string `yaml:"base_urls"`
}

// Repository holds fetch limits for remote repositories.
type Repository struct {
	WorkDir      string   `yaml:"work_dir"`
	MaxSizeMB    int      `yaml:"max_size_mb"`
	AllowedHosts []string `yaml:"allowed_hosts"`
}

// GitHub holds settings for the repository metadata preflight.
type GitHub struct {
	BaseURL        string  `yaml:"base_url"` // empty = public api.github.com
	RequestsPerSec float64 `yaml:"requests_per_sec"`
}

// Walker holds the file filter configuration.
type Walker struct {
	MaxFileSize       ByteSize `yaml:"max_file_size"`
	MaxTotalSize      ByteSize `yaml:"max_total_size"`
	AllowedExtensions []string `yaml:"allowed_extensions"` // empty = built-in language map
	DeniedExtensions  []string `yaml:"denied_extensions"`
	DeniedPatterns    []string `yaml:"denied_patterns"`
	SkipVendored      bool     `yaml:"skip_vendored"`
}

// Analysis holds code analysis and LLM budget settings.
type Analysis struct {
	MaxExcerptBytes int `yaml:"max_excerpt_bytes"`
	MaxSymbols      int `yaml:"max_symbols"`
	MaxLLMCalls     int `yaml:"max_llm_calls"`
	Concurrency     int `yaml:"concurrency"`
}

// Tasks holds background task lifecycle settings.
type Tasks struct {
	Timeout           time.Duration `yaml:"timeout"`
	Retention         time.Duration `yaml:"retention"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	JanitorInterval   time.Duration `yaml:"janitor_interval"`
	StaleWorkspaceAge time.Duration `yaml:"stale_workspace_age"`
}

// Retry holds the backoff policy for transient LLM failures.
type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// Breaker holds circuit breaker configuration for the LLM provider.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Rate holds per-client limits for task submission.
type Rate struct {
	AnalyzePerHour int `yaml:"analyze_per_hour"`
	Burst          int `yaml:"burst"`
}

// Cache holds completion cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
	Bucket    string        `yaml:"bucket"` // NATS KV bucket shared between instances; empty keeps the cache local
}

// Git holds git CLI settings.
type Git struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

// NATS holds optional JetStream event publishing configuration.
type NATS struct {
	URL    string `yaml:"url"` // empty disables publishing
	Stream string `yaml:"stream"`
}

// Telemetry holds OpenTelemetry export settings.
type Telemetry struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"` // empty disables OTLP export
	Insecure     bool    `yaml:"insecure"`
	SampleRate   float64 `yaml:"sample_rate"`
	Prometheus   bool    `yaml:"prometheus"`
}

// Secrets holds where API keys are read from besides the environment.
type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	File    string `yaml:"file"` // optional JSON file in addition to stdout
}

// ByteSize is a size in bytes that reads human-friendly values such as "1MB" or "512 KiB".
type ByteSize int64

// UnmarshalYAML accepts either a plain integer or a humanized size string.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	n, err := ParseByteSize(value.Value)
	if err != nil {
		return err
	}
	*b = n
	return nil
}

// ParseByteSize parses "1MB", "512KiB" or a bare byte count.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// String renders the size the way humans write it, e.g. "1.0 MB".
func (b ByteSize) String() string {
	return humanize.Bytes(uint64(b))
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:            "8080",
			CORSOrigin:      "*",
			HandlerTimeout:  60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		LLM: LLM{
			Temperature:    0.1,
			MaxTokens:      4000,
			RequestTimeout: 60 * time.Second,
		},
		Repository: Repository{
			WorkDir:      os.TempDir(),
			MaxSizeMB:    100,
			AllowedHosts: []string{"github.com"},
		},
		GitHub: GitHub{
			RequestsPerSec: 1,
		},
		Walker: Walker{
			MaxFileSize:  1 << 20,
			MaxTotalSize: 5 << 20,
			DeniedPatterns: []string{
				"__pycache__", ".git", ".gitignore", "node_modules", ".env", ".venv",
				"venv", "env", ".DS_Store", "Thumbs.db", "*.pyc", "*.pyo", "*.pyd",
				"*.so", "*.egg", "*.egg-info", "dist", "build", ".pytest_cache",
				".coverage", "coverage.xml", "*.log", ".idea", ".vscode",
				"*.min.js", "*.min.css", "package-lock.json", "yarn.lock",
				"Pipfile.lock", "vendor", "target",
			},
			SkipVendored: true,
		},
		Analysis: Analysis{
			MaxExcerptBytes: 6000,
			MaxSymbols:      40,
			MaxLLMCalls:     40,
			Concurrency:     4,
		},
		Tasks: Tasks{
			Timeout:           15 * time.Minute,
			Retention:         2 * time.Hour,
			MaxConcurrent:     4,
			JanitorInterval:   time.Hour,
			StaleWorkspaceAge: 24 * time.Hour,
		},
		Retry: Retry{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Rate: Rate{
			AnalyzePerHour: 10,
			Burst:          3,
		},
		Cache: Cache{
			MaxSizeMB: 64,
			TTL:       6 * time.Hour,
			Bucket:    "codetutor-completions",
		},
		Git: Git{
			MaxConcurrent: 4,
		},
		NATS: NATS{
			Stream: "CODETUTOR",
		},
		Telemetry: Telemetry{
			Insecure:   true,
			SampleRate: 1.0,
			Prometheus: true,
		},
		Logging: Logging{
			Level:   "info",
			Service: "codetutor",
		},
	}
}
