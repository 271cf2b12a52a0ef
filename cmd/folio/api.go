package main

import (
	"os"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/server/endpoints"
)

var (
	serverURL string
	authorID  string
)

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	registry := api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{}) {
		registry.Register(ep)
	}
	apiCmd := registry.BuildCommands(getServerURL)

	// Persistent so every endpoint command inherits them
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)
	apiCmd.PersistentFlags().StringVar(
		&authorID, "author", os.Getenv("FOLIO_AUTHOR"), "Author ID sent as "+api.AuthorHeader+" (default $FOLIO_AUTHOR)",
	)

	rootCmd.AddCommand(apiCmd)
}
