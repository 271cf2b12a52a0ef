package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status string `json:"status"`
	Defra  string `json:"defra,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Liveness check
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Router		/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp HealthResponse
			if err := newClient(cmd, getServerURL).Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Readiness check including DefraDB
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Failure	503	{object}	HealthResponse
//	@Router		/ready [get]
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Defra: "ok"}

	client := svcctx.DefraClientFrom(r.Context())
	if client == nil {
		resp.Status = "degraded"
		resp.Defra = "not_initialized"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if err := client.HealthCheck(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Defra = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness (includes DefraDB)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp HealthResponse
			if err := newClient(cmd, getServerURL).Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			if resp.Defra != "" {
				fmt.Printf("Defra:  %s\n", resp.Defra)
			}
			return nil
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server   string           `json:"server"`
	Defra    DefraStatus      `json:"defra"`
	Pool     *jobs.PoolStatus `json:"pool,omitempty"`
	Sink     *defra.SinkStats `json:"sink,omitempty"`
	Annotate AnnotateStatus   `json:"annotate"`
}

// DefraStatus shows DefraDB container and health status.
type DefraStatus struct {
	Container string `json:"container"`
	Health    string `json:"health"`
	URL       string `json:"url"`
}

// AnnotateStatus reports the entity index cache.
type AnnotateStatus struct {
	CachedIndexes int `json:"cached_indexes"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct {
	// DefraManager is set by server since it's not in Services
	DefraManager *defra.DockerManager
}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Detailed server status
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	StatusResponse
//	@Router		/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{Server: "running"}

	if e.DefraManager != nil {
		status, err := e.DefraManager.Status(ctx)
		if err != nil {
			resp.Defra.Container = "error"
		} else {
			resp.Defra.Container = string(status)
		}
		resp.Defra.URL = e.DefraManager.URL()
	} else {
		resp.Defra.Container = "not_initialized"
	}

	client := svcctx.DefraClientFrom(ctx)
	switch {
	case client == nil:
		resp.Defra.Health = "not_initialized"
	case client.HealthCheck(ctx) != nil:
		resp.Defra.Health = "unhealthy"
	default:
		resp.Defra.Health = "healthy"
	}

	if pool := svcctx.PoolFrom(ctx); pool != nil {
		status := pool.Status()
		resp.Pool = &status
	}
	if sink := svcctx.DefraSinkFrom(ctx); sink != nil {
		stats := sink.Stats()
		resp.Sink = &stats
	}
	resp.Annotate.CachedIndexes = svcctx.ProcessorFrom(ctx).CacheLen()

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp StatusResponse
			if err := newClient(cmd, getServerURL).Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			fmt.Printf("Server: %s\n", resp.Server)
			fmt.Printf("Defra:\n")
			fmt.Printf("  Container: %s\n", resp.Defra.Container)
			fmt.Printf("  Health:    %s\n", resp.Defra.Health)
			fmt.Printf("  URL:       %s\n", resp.Defra.URL)
			if resp.Pool != nil {
				fmt.Printf("Pool:\n")
				fmt.Printf("  Workers:   %d\n", resp.Pool.Workers)
				fmt.Printf("  In flight: %d\n", resp.Pool.InFlight)
				fmt.Printf("  Queue:     %d/%d\n", resp.Pool.QueueDepth, resp.Pool.QueueSize)
				fmt.Printf("  Processed: %d (failed %d)\n", resp.Pool.Processed, resp.Pool.Failed)
			}
			if resp.Sink != nil {
				fmt.Printf("Sink:\n")
				fmt.Printf("  Queued:  %d\n", resp.Sink.Queued)
				fmt.Printf("  Written: %d (failed %d, dropped %d)\n", resp.Sink.Written, resp.Sink.Failed, resp.Sink.Dropped)
			}
			fmt.Printf("Cached indexes: %d\n", resp.Annotate.CachedIndexes)
			return nil
		},
	}
}
