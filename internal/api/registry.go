package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

// Endpoint is one HTTP route plus the `folio api` command that calls it.
type Endpoint interface {
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the route needs DefraDB and the chapter
	// service. Such routes answer 503 until the server finishes starting.
	RequiresInit() bool

	// Command builds the CLI command. getServerURL is read when the command
	// runs, after flags are parsed.
	Command(getServerURL func() string) *cobra.Command
}

// Command groups shown in `folio api --help`.
const (
	GroupBooks    = "books"
	GroupChapters = "chapters"
	GroupServer   = "server"
)

var groups = []*cobra.Group{
	{ID: GroupBooks, Title: "Books:"},
	{ID: GroupChapters, Title: "Chapters:"},
	{ID: GroupServer, Title: "Server:"},
}

// GroupFor places a route in a help group by its path. Chapter routes nested
// under a book still count as chapter commands.
func GroupFor(path string) string {
	switch {
	case strings.Contains(path, "/chapters"):
		return GroupChapters
	case strings.HasPrefix(path, "/api/books"), strings.HasPrefix(path, "/api/authors"):
		return GroupBooks
	default:
		return GroupServer
	}
}

// Registry collects endpoints so the server and the CLI are built from the
// same list.
type Registry struct {
	endpoints []Endpoint
	routes    map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]bool)}
}

// Register adds ep. Registering the same method and path twice panics, as
// http.ServeMux would when the routes are mounted.
func (r *Registry) Register(ep Endpoint) {
	method, path, _ := ep.Route()
	key := method + " " + path
	if r.routes[key] {
		panic(fmt.Sprintf("api: duplicate route %s", key))
	}
	r.routes[key] = true
	r.endpoints = append(r.endpoints, ep)
}

// RegisterRoutes mounts every route on mux, wrapping those that require
// initialization with initMiddleware.
func (r *Registry) RegisterRoutes(mux *http.ServeMux, initMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	for _, ep := range r.endpoints {
		method, path, handler := ep.Route()
		if ep.RequiresInit() {
			handler = initMiddleware(handler)
		}
		mux.HandleFunc(method+" "+path, handler)
	}
}

// BuildCommands returns the `api` command with one grouped subcommand per
// endpoint.
func (r *Registry) BuildCommands(getServerURL func() string) *cobra.Command {
	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Commands that call the running server",
		Long: `API commands call a running folio server (folio serve) over HTTP.

Use --server to point at another server and --author (or $FOLIO_AUTHOR)
to act as an author. Books and chapters can only be changed by one of
their authors.

Examples:
  folio api create-book "Alice in Wonderland" --author alice
  folio api set-dictionary <book_id> dictionary.yaml
  folio api create-chapter <book_id> --file ch1.txt
  folio api list-books --status published --limit 10
  folio api export-epub <book_id> -f alice.epub`,
	}
	apiCmd.AddGroup(groups...)

	for _, ep := range r.endpoints {
		_, path, _ := ep.Route()
		cmd := ep.Command(getServerURL)
		cmd.GroupID = GroupFor(path)
		apiCmd.AddCommand(cmd)
	}
	return apiCmd
}

func (r *Registry) Endpoints() []Endpoint {
	return r.endpoints
}
