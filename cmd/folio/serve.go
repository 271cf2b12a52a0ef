package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Folio server",
	Long: `Start the Folio HTTP server.

This starts both the HTTP API server and the DefraDB container.
When the server shuts down (via Ctrl+C or SIGTERM), DefraDB is also stopped.

The server provides:
  - /health        - Basic server health check
  - /ready         - Readiness check (includes DefraDB status)
  - /status        - Container, worker pool and write sink status
  - /swagger.json  - OpenAPI document for the /api routes

Examples:
  folio serve                    # Start on the configured port (default 8080)
  folio serve --port 3000        # Start on custom port
  folio serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}
		if pid := h.RunningPid(); pid != 0 {
			return fmt.Errorf("folio server already running (pid %d)", pid)
		}

		cfgMgr, err := loadConfig(h)
		if err != nil {
			return err
		}
		cfg := cfgMgr.Get()

		logger, levelVar := config.NewLogger(cfg.Logging)
		if file := cfgMgr.ConfigFile(); file != "" {
			logger.Info("loaded config", "file", file)
			cfgMgr.WatchConfig()
		}

		host, port := cfg.Server.Host, cfg.Server.Port
		if cmd.Flags().Changed("host") {
			host = serveHost
		}
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		defraDataPath := h.DefraPath()
		if err := os.MkdirAll(defraDataPath, 0o755); err != nil {
			return err
		}

		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			DefraDataPath: defraDataPath,
			DefraConfig: defra.DockerConfig{
				ContainerName: cfg.Defra.ContainerName,
				Image:         cfg.Defra.Image,
				HostPort:      cfg.Defra.Port,
			},
			Annotate:      cfg.Annotate,
			Home:          h,
			ConfigManager: cfgMgr,
			Logger:        logger,
			LevelVar:      levelVar,
		})
		if err != nil {
			return err
		}

		if err := h.WritePid(); err != nil {
			return fmt.Errorf("failed to write pid file: %w", err)
		}
		defer h.RemovePid()

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to (overrides server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on (overrides server.port)")

	rootCmd.AddCommand(serveCmd)
}
