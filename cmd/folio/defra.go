package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/home"
)

var defraCmd = &cobra.Command{
	Use:   "defra",
	Short: "Manage the DefraDB container",
	Long: `Manage the DefraDB container that stores books and chapters.

'folio serve' starts the container on its own. These commands are for
running it without the server, or for inspecting it. Data lives in
~/.folio/defradb/ and survives stop and remove.`,
}

// DefraStatus is printed by `folio defra status`.
type DefraStatus struct {
	Container string `json:"container"`
	URL       string `json:"url"`
	Health    string `json:"health,omitempty"`
	Hint      string `json:"hint,omitempty"`
}

// withDefra runs fn against a manager built from the loaded config and
// closes it afterwards.
func withDefra(fn func(ctx context.Context, mgr *defra.DockerManager) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := newDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()
		return fn(cmd.Context(), mgr)
	}
}

func init() {
	var (
		tail        string
		waitTimeout time.Duration
	)

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Create or start the container and wait until it is healthy",
		Args:  cobra.NoArgs,
		RunE: withDefra(func(ctx context.Context, mgr *defra.DockerManager) error {
			if err := mgr.Start(ctx); err != nil {
				return fmt.Errorf("failed to start DefraDB: %w", err)
			}
			fmt.Printf("DefraDB is running at %s\n", mgr.URL())
			return nil
		}),
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the container (data preserved)",
		Args:  cobra.NoArgs,
		RunE: withDefra(func(ctx context.Context, mgr *defra.DockerManager) error {
			if err := mgr.Stop(ctx); err != nil {
				return fmt.Errorf("failed to stop DefraDB: %w", err)
			}
			fmt.Println("DefraDB stopped")
			return nil
		}),
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show container state and health",
		Args:  cobra.NoArgs,
		RunE: withDefra(func(ctx context.Context, mgr *defra.DockerManager) error {
			status, err := mgr.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			return api.Output(describeDefra(ctx, status, mgr.URL()))
		}),
	}

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the container's recent logs",
		Args:  cobra.NoArgs,
		RunE: withDefra(func(ctx context.Context, mgr *defra.DockerManager) error {
			logs, err := mgr.Logs(ctx, tail)
			if err != nil {
				return fmt.Errorf("failed to get logs: %w", err)
			}
			fmt.Print(logs)
			return nil
		}),
	}
	logsCmd.Flags().StringVar(&tail, "tail", "100", "Number of lines from the end, or \"all\"")

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove the container (data in ~/.folio/defradb is kept)",
		Args:  cobra.NoArgs,
		RunE: withDefra(func(ctx context.Context, mgr *defra.DockerManager) error {
			if err := mgr.Remove(ctx); err != nil {
				return fmt.Errorf("failed to remove container: %w", err)
			}
			fmt.Println("DefraDB container removed (data preserved)")
			return nil
		}),
	}

	waitCmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until DefraDB answers health checks",
		Args:  cobra.NoArgs,
		RunE: withDefra(func(ctx context.Context, mgr *defra.DockerManager) error {
			if err := mgr.WaitReady(ctx, waitTimeout); err != nil {
				return fmt.Errorf("DefraDB not ready: %w", err)
			}
			fmt.Println("DefraDB is ready")
			return nil
		}),
	}
	waitCmd.Flags().DurationVar(&waitTimeout, "timeout", defra.DefaultReadyTimeout, "How long to wait")

	defraCmd.AddCommand(startCmd, stopCmd, statusCmd, logsCmd, removeCmd, waitCmd)
	rootCmd.AddCommand(defraCmd)
}

// describeDefra checks health only when the container claims to be running.
func describeDefra(ctx context.Context, status defra.ContainerStatus, url string) DefraStatus {
	out := DefraStatus{Container: string(status), URL: url}
	switch status {
	case defra.StatusRunning:
		out.Health = "healthy"
		if err := defra.NewClient(url, defra.WithRetry(1, 0)).HealthCheck(ctx); err != nil {
			out.Health = "unhealthy: " + err.Error()
		}
	case defra.StatusStopped:
		out.Hint = "run 'folio defra start' to start it"
	case defra.StatusNotFound:
		out.Hint = "run 'folio defra start' to create it"
	}
	return out
}

func newDockerManager(h *home.Dir) (*defra.DockerManager, error) {
	cfgMgr, err := loadConfig(h)
	if err != nil {
		return nil, err
	}
	cfg := cfgMgr.Get()

	dataPath := h.DefraPath()
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return defra.NewDockerManager(defra.DockerConfig{
		ContainerName: cfg.Defra.ContainerName,
		Image:         cfg.Defra.Image,
		HostPort:      cfg.Defra.Port,
		DataPath:      dataPath,
	})
}
