package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/chapters"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/store"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	DefraManager *defra.DockerManager
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{DefraManager: cfg.DefraManager},

		// Book endpoints
		&CreateBookEndpoint{},
		&ListBooksEndpoint{},
		&AuthorBooksEndpoint{},
		&GetBookEndpoint{},
		&EditBookEndpoint{},
		&PublishBookEndpoint{},
		&DeleteBookEndpoint{},
		&SetDictionaryEndpoint{},
		&ReprocessBookEndpoint{},
		&ListBookChaptersEndpoint{},
		&ExportEpubEndpoint{},

		// Chapter endpoints
		&CreateChapterEndpoint{},
		&PreviewChapterEndpoint{},
		&GetChapterEndpoint{},
		&UpdateChapterEndpoint{},
		&DeleteChapterEndpoint{},
		&ChapterXHTMLEndpoint{},

		// Stateless annotation
		&AnnotateEndpoint{},

		// Swagger/OpenAPI endpoint
		&SwaggerEndpoint{},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, chapters.ErrInvalidInput),
		errors.Is(err, chapters.ErrNotPublishable),
		errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, chapters.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, chapters.ErrBookNotFound),
		errors.Is(err, chapters.ErrChapterNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with the status errorStatus assigns it.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, errorStatus(err), err.Error())
}

// decodeJSON decodes a request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// authorFrom returns the acting author from the request header.
func authorFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(api.AuthorHeader))
}

// requireAuthor writes a 403 and returns false when the request carries no author.
func requireAuthor(w http.ResponseWriter, r *http.Request) (string, bool) {
	author := authorFrom(r)
	if author == "" {
		writeError(w, http.StatusForbidden, api.AuthorHeader+" header is required")
		return "", false
	}
	return author, true
}

// newClient returns an API client for a command, carrying --author when set.
func newClient(cmd *cobra.Command, getServerURL func() string) *api.Client {
	client := api.NewClient(getServerURL())
	if f := cmd.Flag("author"); f != nil && f.Value.String() != "" {
		return client.WithAuthor(f.Value.String())
	}
	return client
}
