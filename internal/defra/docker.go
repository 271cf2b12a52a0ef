package defra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

const (
	DefaultImage         = "sourcenetwork/defradb:latest"
	DefaultContainerName = "folio-defra"
	DefaultPort          = "9181"
	ContainerPort        = "9181/tcp"
	DataDir              = "/data"

	// Label marks containers folio created. A same-named container without
	// it is never started, stopped or removed.
	Label = "folio-defra"

	DefaultReadyTimeout = 30 * time.Second

	stopTimeoutSeconds = 10
)

// ContainerStatus is the lifecycle state folio reports for the database
// container.
type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusStopped  ContainerStatus = "stopped"
	StatusStarting ContainerStatus = "starting"
	StatusNotFound ContainerStatus = "not_found"
)

// statusOf folds Docker's container states into the four folio cares about.
// Paused and removing containers report as starting: neither can serve
// queries and neither should be recreated.
func statusOf(state string) ContainerStatus {
	switch state {
	case "running":
		return StatusRunning
	case "exited", "dead":
		return StatusStopped
	default:
		return StatusStarting
	}
}

// DockerManager runs DefraDB in a local container bound to 127.0.0.1 with
// its badger store on a host directory.
type DockerManager struct {
	cli           *client.Client
	containerName string
	imageName     string
	dataPath      string
	hostPort      string
	labels        map[string]string
	readyTimeout  time.Duration
}

// DockerConfig configures a DockerManager. Zero values take the Default*
// constants. Labels are added to Label, which is always set.
type DockerConfig struct {
	ContainerName string
	Image         string
	DataPath      string
	HostPort      string
	Labels        map[string]string
	ReadyTimeout  time.Duration
}

func NewDockerManager(cfg DockerConfig) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	m := &DockerManager{
		cli:           cli,
		containerName: orDefault(cfg.ContainerName, DefaultContainerName),
		imageName:     orDefault(cfg.Image, DefaultImage),
		dataPath:      cfg.DataPath,
		hostPort:      orDefault(cfg.HostPort, DefaultPort),
		labels:        map[string]string{Label: "true"},
		readyTimeout:  cfg.ReadyTimeout,
	}
	for k, v := range cfg.Labels {
		m.labels[k] = v
	}
	if m.readyTimeout <= 0 {
		m.readyTimeout = DefaultReadyTimeout
	}
	return m, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// URL is where the container's GraphQL API is reachable from the host.
func (m *DockerManager) URL() string {
	return "http://localhost:" + m.hostPort
}

// find looks the container up by exact name. It returns nil when no such
// container exists.
func (m *DockerManager) find(ctx context.Context) (*container.Summary, error) {
	args := filters.NewArgs(filters.Arg("name", "^/"+m.containerName+"$"))
	found, err := m.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	for i := range found {
		for _, name := range found[i].Names {
			if strings.TrimPrefix(name, "/") == m.containerName {
				return &found[i], nil
			}
		}
	}
	return nil, nil
}

// Status reports the container state, or StatusNotFound.
func (m *DockerManager) Status(ctx context.Context) (ContainerStatus, error) {
	c, err := m.find(ctx)
	if err != nil || c == nil {
		return StatusNotFound, err
	}
	return statusOf(string(c.State)), nil
}

// Start brings the database up and blocks until it answers health checks.
// A missing container is created, a stopped one is restarted after the
// compatibility check, and a running one is only waited on.
func (m *DockerManager) Start(ctx context.Context) error {
	if _, err := m.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker is not running: %w", err)
	}

	c, err := m.find(ctx)
	if err != nil {
		return err
	}
	if c == nil {
		return m.create(ctx)
	}

	if err := m.ValidateExisting(ctx); err != nil {
		return fmt.Errorf("existing container %s is incompatible (run 'folio defra remove'): %w", m.containerName, err)
	}
	switch statusOf(string(c.State)) {
	case StatusRunning:
		return nil
	case StatusStopped:
		if err := m.cli.ContainerStart(ctx, c.ID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start existing container: %w", err)
		}
	}
	return m.WaitReady(ctx, m.readyTimeout)
}

// Stop stops the container and keeps its data. Stopping a missing or
// already stopped container is a no-op.
func (m *DockerManager) Stop(ctx context.Context) error {
	c, err := m.find(ctx)
	if err != nil || c == nil {
		return err
	}
	if statusOf(string(c.State)) == StatusStopped {
		return nil
	}
	timeout := stopTimeoutSeconds
	if err := m.cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// Remove deletes the container. The host data directory is a bind mount
// and survives.
func (m *DockerManager) Remove(ctx context.Context) error {
	c, err := m.find(ctx)
	if err != nil || c == nil {
		return err
	}
	if c.Labels[Label] == "" {
		return fmt.Errorf("container %s was not created by folio", m.containerName)
	}
	if err := m.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Logs returns the last tail lines of combined stdout and stderr.
func (m *DockerManager) Logs(ctx context.Context, tail string) (string, error) {
	c, err := m.find(ctx)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", errors.New("container not found")
	}

	rc, err := m.cli.ContainerLogs(ctx, c.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get logs: %w", err)
	}
	defer rc.Close()

	// Non-TTY log streams are multiplexed with 8-byte frame headers.
	var out strings.Builder
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil {
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	return out.String(), nil
}

// ValidateExisting returns nil when no container exists or when the existing
// one was created by folio with the configured port and data directory.
func (m *DockerManager) ValidateExisting(ctx context.Context) error {
	c, err := m.find(ctx)
	if err != nil || c == nil {
		return err
	}
	info, err := m.cli.ContainerInspect(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to inspect container: %w", err)
	}
	return m.compatible(info)
}

func (m *DockerManager) compatible(info container.InspectResponse) error {
	if info.Config == nil || info.Config.Labels[Label] == "" {
		return fmt.Errorf("container %s was not created by folio", m.containerName)
	}

	var bindings []nat.PortBinding
	if info.ContainerJSONBase != nil && info.HostConfig != nil {
		bindings = info.HostConfig.PortBindings[ContainerPort]
	}
	if len(bindings) == 0 {
		return fmt.Errorf("existing container has no port binding for %s", ContainerPort)
	}
	if bound := bindings[0].HostPort; bound != m.hostPort {
		return fmt.Errorf("existing container bound to port %s, expected %s", bound, m.hostPort)
	}

	if m.dataPath == "" {
		return nil
	}
	for _, mnt := range info.Mounts {
		if mnt.Destination != DataDir {
			continue
		}
		if mnt.Source != m.dataPath {
			return fmt.Errorf("existing container mounts %s, expected %s", mnt.Source, m.dataPath)
		}
		return nil
	}
	return fmt.Errorf("existing container has no mount for %s", DataDir)
}

// spec builds the create request for a fresh container.
func (m *DockerManager) spec() (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image: m.imageName,
		Cmd: []string{
			"start",
			"--no-keyring",
			"--url", "0.0.0.0:9181",
			"--store", "badger",
			"--rootdir", DataDir,
		},
		Labels:       m.labels,
		ExposedPorts: nat.PortSet{ContainerPort: struct{}{}},
	}
	host := &container.HostConfig{
		PortBindings: nat.PortMap{
			ContainerPort: {{HostIP: "127.0.0.1", HostPort: m.hostPort}},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}
	if m.dataPath != "" {
		host.Mounts = []mount.Mount{{Type: mount.TypeBind, Source: m.dataPath, Target: DataDir}}
	}
	return cfg, host
}

func (m *DockerManager) create(ctx context.Context) error {
	if err := m.pullIfMissing(ctx); err != nil {
		return err
	}

	cfg, host := m.spec()
	resp, err := m.cli.ContainerCreate(ctx, cfg, host, nil, nil, m.containerName)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start container: %w", err)
	}
	return m.WaitReady(ctx, m.readyTimeout)
}

func (m *DockerManager) pullIfMissing(ctx context.Context) error {
	if _, err := m.cli.ImageInspect(ctx, m.imageName); err == nil {
		return nil
	}
	rc, err := m.cli.ImagePull(ctx, m.imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", m.imageName, err)
	}
	defer rc.Close()
	// The pull only completes once its progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", m.imageName, err)
	}
	return nil
}

// WaitReady polls the health endpoint once a second until it answers or
// timeout elapses.
func (m *DockerManager) WaitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := NewClient(m.URL(), WithRetry(1, 0))
	err := retry.Do(
		func() error { return c.HealthCheck(ctx) },
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("defra not ready after %s: %w", timeout, err)
	}
	return nil
}
