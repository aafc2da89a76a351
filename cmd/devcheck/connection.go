package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/docker/client"

	"devcheck/config"
	"devcheck/internal/engine"
)

// connection resolves the engine endpoint from flags and config contexts.
// Flag beats context beats environment.
type connection struct {
	host    *string
	context *string
}

// resolve returns the selected context, which may be empty.
func (c *connection) resolve() (config.Context, error) {
	if *c.host != "" {
		return config.Context{Host: *c.host}, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return config.Context{}, err
	}

	if *c.context != "" {
		ctx, ok := cfg.Contexts[*c.context]
		if !ok {
			return config.Context{}, fmt.Errorf("context %q not found", *c.context)
		}
		return ctx, nil
	}

	if _, ctx, ok := cfg.Current(); ok {
		return ctx, nil
	}
	return config.Context{}, nil
}

// engine dials the container engine for the selected context. The caller
// closes the returned client.
func (c *connection) engine() (*engine.Docker, *client.Client, config.Context, error) {
	ctx, err := c.resolve()
	if err != nil {
		return nil, nil, config.Context{}, err
	}

	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if target := ctx.Target(); target != "" {
		opts = append(opts, client.WithHost(target))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, nil, config.Context{}, fmt.Errorf("create docker client: %w", err)
	}

	var engineOpts []engine.Option
	if ctx.Limits.MemoryPercent > 0 {
		engineOpts = append(engineOpts, engine.WithMemoryWarningThreshold(ctx.Limits.MemoryPercent))
	}
	return engine.NewDocker(api, engineOpts...), api, ctx, nil
}

// historyPath returns where validation runs are archived.
func historyPath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".local", "share", "devcheck", "history.db")
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "devcheck", "history.db")
}
