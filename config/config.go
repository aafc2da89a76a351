// Package config handles CLI context configuration for connecting to
// container engines.
//
// Config is stored at $XDG_CONFIG_HOME/devcheck/config.yaml (defaults to
// ~/.config/devcheck/config.yaml) and follows the kubeconfig pattern:
// named contexts with a current-context selector. A context names the
// engine endpoint plus optional per-context validation overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits overrides the default alert thresholds, in percent. Zero values
// mean "use the default".
type Limits struct {
	MemoryPercent float64 `yaml:"memory-percent,omitempty"`
	CPUPercent    float64 `yaml:"cpu-percent,omitempty"`
	DiskPercent   float64 `yaml:"disk-percent,omitempty"`
}

// Context describes how to reach one container engine.
type Context struct {
	Socket string `yaml:"socket,omitempty"` // unix socket path
	Host   string `yaml:"host,omitempty"`   // tcp://host:port endpoint

	RunTimeout   string `yaml:"run-timeout,omitempty"`   // Go duration, e.g. "5m"
	ReadyTimeout string `yaml:"ready-timeout,omitempty"` // Go duration, e.g. "2m"
	Limits       Limits `yaml:"limits,omitempty"`
}

// Target returns the engine dial target for this context. Socket takes
// precedence; an empty target means the engine client's default.
func (c Context) Target() string {
	if c.Socket != "" {
		return "unix://" + c.Socket
	}
	return c.Host
}

// Durations parses the timeout overrides. A missing value yields zero so
// callers can fall back to their defaults.
func (c Context) Durations() (run, ready time.Duration, err error) {
	if c.RunTimeout != "" {
		run, err = time.ParseDuration(c.RunTimeout)
		if err != nil {
			return 0, 0, fmt.Errorf("parse run-timeout: %w", err)
		}
	}
	if c.ReadyTimeout != "" {
		ready, err = time.ParseDuration(c.ReadyTimeout)
		if err != nil {
			return 0, 0, fmt.Errorf("parse ready-timeout: %w", err)
		}
	}
	return run, ready, nil
}

// Config holds named engine contexts and the current selection.
type Config struct {
	CurrentContext string             `yaml:"current-context"`
	Contexts       map[string]Context `yaml:"contexts"`
}

// Path returns the config file location. It respects XDG_CONFIG_HOME,
// falling back to ~/.config/devcheck/config.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "devcheck", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "devcheck", "config.yaml")
}

// Load reads the config file. If the file does not exist, an empty Config
// is returned (not an error).
func Load() (*Config, error) {
	data, err := os.ReadFile(Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{Contexts: make(map[string]Context)}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]Context)
	}
	return &cfg, nil
}

// Save writes the config to disk, creating directories as needed.
func (c *Config) Save() error {
	p := Path()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Current returns the current context name and value.
// The bool is false when no current context is set.
func (c *Config) Current() (string, Context, bool) {
	if c.CurrentContext == "" {
		return "", Context{}, false
	}
	ctx, ok := c.Contexts[c.CurrentContext]
	if !ok {
		return "", Context{}, false
	}
	return c.CurrentContext, ctx, true
}

// Use sets the current context. It returns an error if the name doesn't exist.
func (c *Config) Use(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return nil
}

// Set adds or updates a named context.
func (c *Config) Set(name string, ctx Context) {
	c.Contexts[name] = ctx
}

// Remove deletes a context. If it was the current context, current-context
// is cleared. Returns an error if the name doesn't exist.
func (c *Config) Remove(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return nil
}
