// Package common provides shared utilities for the RCE pipeline.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the RCE pipeline.
type Config struct {
	Environment  string             `toml:"environment"`
	Server       ServerConfig       `toml:"server"`
	ArtifactStore ArtifactStoreConfig `toml:"artifact_store"`
	Registry     RegistryConfig     `toml:"registry"`
	Queue        QueueConfig        `toml:"queue"`
	EventBus     EventBusConfig     `toml:"eventbus"`
	Sandbox      SandboxConfig      `toml:"sandbox"`
	Scanner      ScannerConfig      `toml:"scanner"`
	Ingress      IngressConfig      `toml:"ingress"`
	Worker       WorkerConfig       `toml:"worker"`
	Logging      LoggingConfig      `toml:"logging"`
}

// ScannerConfig configures the static pre-filter (C5). The forbidden sets
// are configuration, not code, so they can be tightened per-deployment
// without a rebuild.
type ScannerConfig struct {
	ForbiddenModules []string `toml:"forbidden_modules"`
	ForbiddenCalls   []string `toml:"forbidden_calls"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ArtifactStoreConfig configures the S3-compatible content-addressed blob store (C1).
type ArtifactStoreConfig struct {
	Endpoint     string `toml:"endpoint"`
	Bucket       string `toml:"bucket"`
	Region       string `toml:"region"`
	AccessKeyEnv string `toml:"access_key_env"`
	SecretKeyEnv string `toml:"secret_key_env"`
	UseTLS       bool   `toml:"use_tls"`
}

// AccessKey resolves the object-store access key from its configured env var name.
func (c *ArtifactStoreConfig) AccessKey() string { return os.Getenv(c.AccessKeyEnv) }

// SecretKey resolves the object-store secret key from its configured env var name.
func (c *ArtifactStoreConfig) SecretKey() string { return os.Getenv(c.SecretKeyEnv) }

// RegistryConfig configures the durable job registry (C2).
type RegistryConfig struct {
	Endpoint    string `toml:"endpoint"`
	Namespace   string `toml:"namespace"`
	Database    string `toml:"database"`
	UsernameEnv string `toml:"username_env"`
	PasswordEnv string `toml:"password_env"`
}

// Username resolves the registry username from its configured env var name.
func (c *RegistryConfig) Username() string { return os.Getenv(c.UsernameEnv) }

// Password resolves the registry password from its configured env var name.
func (c *RegistryConfig) Password() string { return os.Getenv(c.PasswordEnv) }

// QueueConfig configures the durable work queue (C3).
type QueueConfig struct {
	URL             string `toml:"url"`
	Stream          string `toml:"stream"`
	Subject         string `toml:"subject"`
	DurableConsumer string `toml:"durable_consumer"`
}

// EventBusConfig configures the ephemeral broadcast event bus (C4).
type EventBusConfig struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

// SandboxConfig configures the hardened sandbox executor (C6).
type SandboxConfig struct {
	ContainerdSocket   string `toml:"containerd_socket"`
	Namespace          string `toml:"namespace"`
	ImageRef           string `toml:"image_ref"`
	SeccompProfilePath string `toml:"seccomp_profile_path"`
	MemoryLimitBytes   int64  `toml:"memory_limit_bytes"`
	CPUShares          uint64 `toml:"cpu_shares"`
	CPUQuotaUS         int64  `toml:"cpu_quota_us"`
	CPUPeriodUS        uint64 `toml:"cpu_period_us"`
	PidsLimit          int64  `toml:"pids_limit"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
}

// Timeout returns the hard wall-clock timeout for one sandbox run.
func (c *SandboxConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IngressConfig configures the ingress gate (C8).
type IngressConfig struct {
	UploadConcurrency int   `toml:"upload_concurrency"`
	MaxArtifactBytes  int64 `toml:"max_artifact_bytes"`
}

// WorkerConfig configures the worker loop (C7), its orphan sweeper, and its
// local crash-visibility ledger. There is no single donor type for this —
// it is authored fresh for this domain, following the Get*() accessor
// pattern (string-duration fields with graceful defaulting) this codebase
// uses elsewhere for its own duration-typed config fields.
type WorkerConfig struct {
	InstancesHint    int    `toml:"instances_hint"`
	LedgerPath       string `toml:"ledger_path"`
	SweepInterval    string `toml:"sweep_interval"`
	OrphanThreshold  string `toml:"orphan_threshold"`
}

// GetSweepInterval parses SweepInterval, defaulting to 30s on a missing or malformed value.
func (c *WorkerConfig) GetSweepInterval() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetOrphanThreshold parses OrphanThreshold, defaulting to 2m on a missing or malformed value.
func (c *WorkerConfig) GetOrphanThreshold() time.Duration {
	d, err := time.ParseDuration(c.OrphanThreshold)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string   `toml:"level"`
	Format  string   `toml:"format"`
	Outputs []string `toml:"outputs"`
}

// NewDefaultConfig returns a Config with sensible defaults, mirroring the
// TOML schema documented in SPEC_FULL.md §6.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		ArtifactStore: ArtifactStoreConfig{
			Endpoint:     "http://127.0.0.1:9000",
			Bucket:       "rce-artifacts",
			Region:       "us-east-1",
			AccessKeyEnv: "RCE_S3_ACCESS_KEY",
			SecretKeyEnv: "RCE_S3_SECRET_KEY",
		},
		Registry: RegistryConfig{
			Endpoint:    "ws://127.0.0.1:8000/rpc",
			Namespace:   "rce",
			Database:    "rce",
			UsernameEnv: "RCE_REGISTRY_USER",
			PasswordEnv: "RCE_REGISTRY_PASS",
		},
		Queue: QueueConfig{
			URL:             "nats://127.0.0.1:4222",
			Stream:          "RCE_JOBS",
			Subject:         "rce.jobs.submitted",
			DurableConsumer: "rce-worker",
		},
		EventBus: EventBusConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "rce.jobs.events",
		},
		Sandbox: SandboxConfig{
			ContainerdSocket:   "/run/containerd/containerd.sock",
			Namespace:          "rce-sandbox",
			ImageRef:           "docker.io/library/python:3.12-slim",
			SeccompProfilePath: "/etc/rce/seccomp-default.json",
			MemoryLimitBytes:   128 * 1024 * 1024,
			CPUShares:          512,
			CPUQuotaUS:         50000,
			CPUPeriodUS:        100000,
			PidsLimit:          64,
			TimeoutSeconds:     10,
		},
		Scanner: ScannerConfig{
			ForbiddenModules: []string{
				"os", "subprocess", "shutil", "socket", "requests",
				"urllib", "pickle", "sys", "importlib", "pathlib", "ftplib",
			},
			ForbiddenCalls: []string{
				"exec", "eval", "compile", "open", "input", "__import__", "breakpoint",
			},
		},
		Ingress: IngressConfig{
			UploadConcurrency: 100,
			MaxArtifactBytes:  1 << 20,
		},
		Worker: WorkerConfig{
			InstancesHint:   4,
			LedgerPath:      "data/worker-ledger",
			SweepInterval:   "30s",
			OrphanThreshold: "2m",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stdout"},
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RCE_ENV"); env != "" {
		config.Environment = env
	}
	if host := os.Getenv("RCE_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("RCE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if level := os.Getenv("RCE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if url := os.Getenv("RCE_QUEUE_URL"); url != "" {
		config.Queue.URL = url
		config.EventBus.URL = url
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
