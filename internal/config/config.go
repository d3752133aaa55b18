// Package config defines picup configuration structures and loading hooks.
//
// Conventions:
// - New returns a Config populated with defaults.
// - Load layers defaults, an optional YAML file and PICUP_ environment variables.
// - Backend sections are validated when the backend is actually used.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
)

// Backend names.
const (
	BackendGitHub = "github"
	BackendAlist  = "alist"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogJSON switches log output to JSON.
	LogJSON bool `koanf:"log_json"`

	// Locale selects the language of user-facing notices (en, zh-CN).
	Locale string `koanf:"locale"`

	// Backend is the default upload target: github or alist.
	Backend string `koanf:"backend" validate:"oneof=github alist"`

	// Batch commits all GitHub uploads of one submission as a single commit.
	Batch bool `koanf:"batch"`

	// Addr configures the HTTP listen address for `picup serve`.
	Addr string `koanf:"addr" validate:"required"`

	// QueueSize bounds the in-memory upload job queue.
	QueueSize int `koanf:"queue_size" validate:"min=1"`

	// WorkerCount sets the number of upload workers.
	WorkerCount int `koanf:"worker_count" validate:"min=1"`

	// DedupeSize bounds how many in-flight target paths are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	GitHub GitHub `koanf:"github"`
	Alist  Alist  `koanf:"alist"`
	Store  Store  `koanf:"store"`
}

// GitHub holds repository settings for the GitHub backend.
type GitHub struct {
	BaseURL     string        `koanf:"base_url" validate:"required,url"`
	Token       string        `koanf:"token"`
	Owner       string        `koanf:"owner"`
	Repo        string        `koanf:"repo"`
	Branch      string        `koanf:"branch"`
	Email       string        `koanf:"email" validate:"omitempty,email"`
	SelectedDir string        `koanf:"selected_dir"`
	Timeout     time.Duration `koanf:"timeout"`
}

// Alist holds server settings for the Alist backend.
type Alist struct {
	Server   string        `koanf:"server" validate:"omitempty,url"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	Path     string        `koanf:"path"`
	Timeout  time.Duration `koanf:"timeout"`
}

// Store selects where the image directory listing lives.
type Store struct {
	Kind          string `koanf:"kind" validate:"oneof=memory redis"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"min=0"`
	RedisPrefix   string `koanf:"redis_prefix"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:    "info",
		Locale:      "en",
		Backend:     BackendGitHub,
		Addr:        ":9080",
		QueueSize:   1024,
		WorkerCount: runtime.NumCPU(),
		DedupeSize:  10_000,
		GitHub: GitHub{
			BaseURL:     "https://api.github.com",
			Branch:      "main",
			SelectedDir: "/",
			Timeout:     30 * time.Second,
		},
		Alist: Alist{
			Timeout: 60 * time.Second,
		},
		Store: Store{
			Kind:        StoreMemory,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "picup",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the generic settings. Backend credentials are checked by
// GitHub.Validate and Alist.Validate.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Store.Kind == StoreRedis && c.Store.RedisAddr == "" {
		return fmt.Errorf("%w: store.redis_addr must not be empty", ErrInvalidConfig)
	}
	return nil
}

// Validate checks that the GitHub section can address a repository.
func (g GitHub) Validate() error {
	switch {
	case g.Token == "":
		return fmt.Errorf("%w: github.token must not be empty", ErrInvalidConfig)
	case g.Owner == "":
		return fmt.Errorf("%w: github.owner must not be empty", ErrInvalidConfig)
	case g.Repo == "":
		return fmt.Errorf("%w: github.repo must not be empty", ErrInvalidConfig)
	case g.Branch == "":
		return fmt.Errorf("%w: github.branch must not be empty", ErrInvalidConfig)
	}
	return nil
}

// Validate checks that the Alist section can reach a server.
func (a Alist) Validate() error {
	switch {
	case a.Server == "":
		return fmt.Errorf("%w: alist.server must not be empty", ErrInvalidConfig)
	case a.Username == "":
		return fmt.Errorf("%w: alist.username must not be empty", ErrInvalidConfig)
	}
	return nil
}
