// Package engine is the only boundary to the container engine daemon. It
// translates abstract lifecycle operations into Docker API calls, decodes
// raw stats once into typed counters, and classifies daemon failures.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"devcheck"
	"devcheck/internal/logging"
)

const (
	defaultPingTimeout      = 5 * time.Second
	defaultMemWarnThreshold = 80.0
)

// RemoveOptions controls container removal.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// ExecOptions controls one in-container command execution.
type ExecOptions struct {
	WorkingDir string
	Env        map[string]string
	Timeout    time.Duration // 0 means no deadline beyond ctx
}

// ExecResult is the outcome of one in-container command.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// LogOptions controls log retrieval.
type LogOptions struct {
	Tail   int // 0 means all
	Since  time.Time
	Until  time.Time
	Follow bool // stream new lines until the caller's context ends
}

// ContainerInfo is the decoded state portion of a container inspect.
type ContainerInfo struct {
	ID        string
	Image     string
	Running   bool
	Status    string // created, running, exited, dead, ...
	ExitCode  int
	OOMKilled bool
	Dead      bool
	StartedAt time.Time
}

// Exited reports whether the container has terminated.
func (i ContainerInfo) Exited() bool {
	return i.Status == "exited" || i.Status == "dead" || i.Dead
}

// ContainerSummary is one row of a container listing.
type ContainerSummary struct {
	ID    string
	Image string
	Names []string
	State string
}

// Client is the lifecycle surface the rest of the validator uses. No other
// component talks to the daemon directly.
type Client interface {
	Ping(ctx context.Context) error
	Create(ctx context.Context, spec devcheck.ContainerSpec) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string, timeout time.Duration) error
	Remove(ctx context.Context, id string, opts RemoveOptions) error
	Inspect(ctx context.Context, id string) (ContainerInfo, error)
	Exec(ctx context.Context, id string, cmd []string, opts ExecOptions) (ExecResult, error)
	Sample(ctx context.Context, id string) (devcheck.ResourceUsage, error)
	Logs(ctx context.Context, id string, opts LogOptions) ([]string, error)
	List(ctx context.Context, all bool) ([]ContainerSummary, error)
	PullImage(ctx context.Context, ref string, onProgress func(status string)) error
}

// Docker implements Client against a local Docker daemon.
type Docker struct {
	api              client.APIClient
	log              *slog.Logger
	pingTimeout      time.Duration
	memWarnThreshold float64
}

// Option configures a Docker client wrapper.
type Option func(*Docker)

// WithPingTimeout overrides the liveness-gate timeout applied before each
// lifecycle call.
func WithPingTimeout(d time.Duration) Option {
	return func(c *Docker) { c.pingTimeout = d }
}

// WithMemoryWarningThreshold sets the percent recorded on every memory
// sample so downstream consumers see the configured warning band.
func WithMemoryWarningThreshold(pct float64) Option {
	return func(c *Docker) { c.memWarnThreshold = pct }
}

// NewDocker wraps an API client. The caller owns the client's lifetime.
func NewDocker(api client.APIClient, opts ...Option) *Docker {
	d := &Docker{
		api:              api,
		log:              logging.Component("engine"),
		pingTimeout:      defaultPingTimeout,
		memWarnThreshold: defaultMemWarnThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Ping checks daemon liveness.
func (d *Docker) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.pingTimeout)
	defer cancel()
	if _, err := d.api.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return nil
}

// daemon gates a lifecycle call on daemon liveness so a dead daemon fails
// fast with ErrEngineUnavailable instead of a confusing transport error.
func (d *Docker) daemon(ctx context.Context, op string) error {
	if err := d.Ping(ctx); err != nil {
		d.log.Error("daemon unreachable", "op", op, "err", err)
		return err
	}
	return nil
}

// Create creates a container from the spec. If the image is not found
// locally it pulls the image and retries the create.
func (d *Docker) Create(ctx context.Context, spec devcheck.ContainerSpec) (string, error) {
	if err := d.daemon(ctx, "create"); err != nil {
		return "", err
	}
	d.log.Debug("creating container", "image", spec.Image, "name", spec.Name)

	exposed, bindings, err := portMappings(spec.Ports)
	if err != nil {
		return "", &LifecycleError{Op: "create", Err: err}
	}

	containerCfg := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Command,
		Env:          envList(spec.Env),
		WorkingDir:   spec.WorkingDir,
		ExposedPorts: exposed,
	}
	hostCfg := &container.HostConfig{
		Binds:        spec.Binds,
		PortBindings: bindings,
		Resources: container.Resources{
			Memory:    spec.MemoryMB * mib,
			CPUShares: spec.CPUShares,
		},
	}

	resp, err := d.api.ContainerCreate(ctx, containerCfg, hostCfg, nil, (*ocispec.Platform)(nil), spec.Name)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			d.log.Error("create failed", "image", spec.Image, "err", err)
			return "", &LifecycleError{Op: "create", Err: err}
		}
		if err := d.PullImage(ctx, spec.Image, nil); err != nil {
			return "", err
		}
		if resp, err = d.api.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, spec.Name); err != nil {
			d.log.Error("create after pull failed", "image", spec.Image, "err", err)
			return "", &LifecycleError{Op: "create", Err: err}
		}
	}

	d.log.Debug("container created", "id", resp.ID, "image", spec.Image)
	return resp.ID, nil
}

// Start starts a created container.
func (d *Docker) Start(ctx context.Context, id string) error {
	if err := d.daemon(ctx, "start"); err != nil {
		return err
	}
	if err := d.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		d.log.Error("start failed", "id", id, "err", err)
		return &LifecycleError{Op: "start", ID: id, Err: err}
	}
	d.log.Debug("container started", "id", id)
	return nil
}

// Stop stops a running container, giving it timeout to exit gracefully.
func (d *Docker) Stop(ctx context.Context, id string, timeout time.Duration) error {
	if err := d.daemon(ctx, "stop"); err != nil {
		return err
	}
	var stopOpts container.StopOptions
	if timeout > 0 {
		secs := int(timeout.Seconds())
		stopOpts.Timeout = &secs
	}
	if err := d.api.ContainerStop(ctx, id, stopOpts); err != nil {
		d.log.Error("stop failed", "id", id, "err", err)
		return &LifecycleError{Op: "stop", ID: id, Err: err}
	}
	d.log.Debug("container stopped", "id", id)
	return nil
}

// Remove removes a container.
func (d *Docker) Remove(ctx context.Context, id string, opts RemoveOptions) error {
	if err := d.daemon(ctx, "remove"); err != nil {
		return err
	}
	err := d.api.ContainerRemove(ctx, id, container.RemoveOptions{
		Force:         opts.Force,
		RemoveVolumes: opts.RemoveVolumes,
	})
	if err != nil {
		d.log.Error("remove failed", "id", id, "err", err)
		return &LifecycleError{Op: "remove", ID: id, Err: err}
	}
	d.log.Debug("container removed", "id", id)
	return nil
}

// Inspect returns the decoded container state.
func (d *Docker) Inspect(ctx context.Context, id string) (ContainerInfo, error) {
	info, err := d.api.ContainerInspect(ctx, id)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("inspect container %s: %w", id, err)
	}

	out := ContainerInfo{ID: info.ID}
	if info.Config != nil {
		out.Image = info.Config.Image
	}
	if info.State != nil {
		out.Running = info.State.Running
		out.Status = info.State.Status
		out.ExitCode = info.State.ExitCode
		out.OOMKilled = info.State.OOMKilled
		out.Dead = info.State.Dead
		if t, err := time.Parse(time.RFC3339Nano, info.State.StartedAt); err == nil {
			out.StartedAt = t
		}
	}
	return out, nil
}

// Exec runs a command inside the container and returns its outcome. A
// non-zero exit is reported in the result, not as an error; only transport
// failures and deadline expiry produce errors.
func (d *Docker) Exec(ctx context.Context, id string, cmd []string, opts ExecOptions) (ExecResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	started := time.Now()
	d.log.Debug("exec", "id", id, "cmd", strings.Join(cmd, " "))

	execCfg := container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   opts.WorkingDir,
		Env:          envList(opts.Env),
		AttachStdout: true,
		AttachStderr: true,
	}
	resp, err := d.api.ContainerExecCreate(ctx, id, execCfg)
	if err != nil {
		return ExecResult{}, d.execErr("create exec", cmd, err)
	}

	attach, err := d.api.ContainerExecAttach(ctx, resp.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, d.execErr("attach exec", cmd, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return ExecResult{}, d.execErr("read exec output", cmd, err)
	}

	info, err := d.api.ContainerExecInspect(ctx, resp.ID)
	if err != nil {
		return ExecResult{}, d.execErr("inspect exec", cmd, err)
	}

	result := ExecResult{
		ExitCode: info.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}
	d.log.Debug("exec done", "id", id, "exit", result.ExitCode, "took", result.Duration)
	return result, nil
}

func (d *Docker) execErr(stage string, cmd []string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s %v", ErrExecutionTimeout, stage, cmd)
	}
	d.log.Error("exec failed", "stage", stage, "cmd", strings.Join(cmd, " "), "err", err)
	return fmt.Errorf("%s %v: %w", stage, cmd, err)
}

// Sample takes one stats reading and derives a ResourceUsage from the raw
// counters. Disk figures come from a df run inside the container; if that
// fails the disk portion is left zero rather than failing the sample.
func (d *Docker) Sample(ctx context.Context, id string) (devcheck.ResourceUsage, error) {
	reader, err := d.api.ContainerStatsOneShot(ctx, id)
	if err != nil {
		return devcheck.ResourceUsage{}, fmt.Errorf("%w: %v", ErrSampleFailed, err)
	}
	defer reader.Body.Close()

	var raw container.StatsResponse
	if err := json.NewDecoder(reader.Body).Decode(&raw); err != nil {
		return devcheck.ResourceUsage{}, fmt.Errorf("%w: decode stats: %v", ErrSampleFailed, err)
	}
	rc := decodeCounters(raw)

	usage := devcheck.ResourceUsage{
		Memory: devcheck.MemoryUsage{
			UsedMB:           rc.MemoryUsedMB(),
			LimitMB:          rc.MemoryLimitMB(),
			WarningThreshold: d.memWarnThreshold,
		},
		CPU: devcheck.CPUUsage{
			UsagePercent: rc.CPUPercent(),
			Cores:        int(rc.OnlineCPUs),
		},
		SampledAt: time.Now(),
	}

	if disk, err := d.sampleDisk(ctx, id); err == nil {
		usage.Disk = disk
	} else {
		d.log.Debug("disk sample skipped", "id", id, "err", err)
	}
	return usage, nil
}

// sampleDisk reads root filesystem usage via df inside the container.
func (d *Docker) sampleDisk(ctx context.Context, id string) (devcheck.DiskUsage, error) {
	res, err := d.Exec(ctx, id, []string{"df", "-Pm", "/"}, ExecOptions{Timeout: 5 * time.Second})
	if err != nil {
		return devcheck.DiskUsage{}, err
	}
	if res.ExitCode != 0 {
		return devcheck.DiskUsage{}, fmt.Errorf("df exit code %d: %s", res.ExitCode, res.Stderr)
	}
	return parseDF(res.Stdout)
}

// parseDF extracts used/available MB from POSIX df output.
func parseDF(out string) (devcheck.DiskUsage, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return devcheck.DiskUsage{}, fmt.Errorf("unexpected df output %q", out)
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 4 {
		return devcheck.DiskUsage{}, fmt.Errorf("unexpected df row %q", lines[len(lines)-1])
	}
	var used, avail float64
	if _, err := fmt.Sscanf(fields[2], "%f", &used); err != nil {
		return devcheck.DiskUsage{}, fmt.Errorf("parse df used %q: %w", fields[2], err)
	}
	if _, err := fmt.Sscanf(fields[3], "%f", &avail); err != nil {
		return devcheck.DiskUsage{}, fmt.Errorf("parse df available %q: %w", fields[3], err)
	}
	return devcheck.DiskUsage{UsedMB: used, AvailableMB: avail}, nil
}

// logsOptions maps LogOptions onto the daemon's wire options.
func logsOptions(opts LogOptions) container.LogsOptions {
	out := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
	}
	if opts.Tail > 0 {
		out.Tail = fmt.Sprintf("%d", opts.Tail)
	}
	if !opts.Since.IsZero() {
		out.Since = opts.Since.Format(time.RFC3339Nano)
	}
	if !opts.Until.IsZero() {
		out.Until = opts.Until.Format(time.RFC3339Nano)
	}
	return out
}

// Logs returns accumulated log lines, stdout and stderr interleaved. With
// Follow set it keeps reading until ctx ends, then returns what arrived.
func (d *Docker) Logs(ctx context.Context, id string, opts LogOptions) ([]string, error) {
	stream, err := d.api.ContainerLogs(ctx, id, logsOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("container logs %s: %w", id, err)
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, stream); err != nil {
		// A followed stream has no EOF of its own; context expiry is the
		// normal way it ends.
		if !opts.Follow || ctx.Err() == nil {
			return nil, fmt.Errorf("read logs %s: %w", id, err)
		}
	}

	raw := strings.TrimRight(buf.String(), "\n")
	if raw == "" {
		return nil, nil
	}
	return strings.Split(raw, "\n"), nil
}

// List returns container summaries, optionally including stopped ones.
func (d *Docker) List(ctx context.Context, all bool) ([]ContainerSummary, error) {
	rows, err := d.api.ContainerList(ctx, container.ListOptions{All: all})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	out := make([]ContainerSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, ContainerSummary{
			ID:    row.ID,
			Image: row.Image,
			Names: row.Names,
			State: row.State,
		})
	}
	return out, nil
}

// PullImage pulls an image, reporting pull progress through onProgress and
// draining the response to completion.
func (d *Docker) PullImage(ctx context.Context, ref string, onProgress func(status string)) error {
	d.log.Info("pulling image", "image", ref)
	resp, err := d.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer resp.Close()

	dec := json.NewDecoder(resp)
	for {
		var msg struct {
			Status string `json:"status"`
			ID     string `json:"id"`
		}
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("pull image %s: read response: %w", ref, err)
		}
		if onProgress != nil && msg.Status != "" {
			onProgress(msg.Status)
		}
	}
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// portMappings turns the spec's port table into the engine's exposed-port
// set and host bindings.
func portMappings(ports map[string]string) (nat.PortSet, nat.PortMap, error) {
	if len(ports) == 0 {
		return nil, nil, nil
	}
	exposed := make(nat.PortSet, len(ports))
	bindings := make(nat.PortMap, len(ports))
	for containerPort, hostPort := range ports {
		proto, port := nat.SplitProtoPort(containerPort)
		p, err := nat.NewPort(proto, port)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid port %q: %w", containerPort, err)
		}
		exposed[p] = struct{}{}
		bindings[p] = []nat.PortBinding{{HostPort: hostPort}}
	}
	return exposed, bindings, nil
}
