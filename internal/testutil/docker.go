// Package testutil holds helpers for tests that need a real Docker daemon.
package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

const (
	// CleanupLabel is used to identify resources created by tests.
	CleanupLabel = "folio-test"

	// IntegrationEnv must be set for Docker-backed tests to run.
	IntegrationEnv = "FOLIO_INTEGRATION"
)

// RequireDocker skips the test unless integration tests are enabled and a
// Docker daemon answers. Containers labelled for this test are removed on cleanup.
func RequireDocker(t *testing.T) *client.Client {
	t.Helper()

	if testing.Short() || os.Getenv(IntegrationEnv) == "" {
		t.Skipf("set %s=1 to run Docker integration tests", IntegrationEnv)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("docker client unavailable: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		t.Skipf("docker is not running: %v", err)
	}

	t.Cleanup(func() {
		cleanupTestContainers(t, cli)
		_ = cli.Close()
	})

	return cli
}

// UniqueContainerName generates a unique container name for a test.
// Format: folio-test-<prefix>-<testname>-<random>
func UniqueContainerName(t *testing.T, prefix string) string {
	t.Helper()
	return fmt.Sprintf("folio-test-%s-%s-%s", prefix, sanitizeName(t.Name()), randString(4))
}

// ContainerLabels returns labels to apply to test containers so cleanup can find them.
func ContainerLabels(t *testing.T) map[string]string {
	return map[string]string{
		CleanupLabel: sanitizeName(t.Name()),
	}
}

// FindFreePort finds an available TCP port and returns it as a string.
func FindFreePort() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer listener.Close()
	return fmt.Sprintf("%d", listener.Addr().(*net.TCPAddr).Port), nil
}

// cleanupTestContainers removes all containers created by this test.
func cleanupTestContainers(t *testing.T, cli *client.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	filterArgs := filters.NewArgs()
	filterArgs.Add("label", fmt.Sprintf("%s=%s", CleanupLabel, sanitizeName(t.Name())))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		t.Logf("Failed to list containers for cleanup: %v", err)
		return
	}

	for _, c := range containers {
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{
			Force:         true,
			RemoveVolumes: true,
		}); err != nil {
			t.Logf("Failed to remove container %s: %v", c.ID, err)
		}
	}
}

// randString generates a random hex string of n bytes
func randString(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// sanitizeName converts a test name to a valid container name component
func sanitizeName(name string) string {
	result := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
			result = append(result, c)
		case c == '/' || c == '_' || c == '-':
			result = append(result, '-')
		}
	}
	if len(result) > 30 {
		result = result[:30]
	}
	return string(result)
}
