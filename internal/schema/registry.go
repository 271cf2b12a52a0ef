package schema

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed schemas/*.graphql
var schemaFS embed.FS

// Schema represents a DefraDB collection schema.
type Schema struct {
	Name  string // Collection name (e.g., "Book")
	SDL   string // GraphQL SDL definition
	Order int    // Initialization order (lower = first)
}

// registry holds all schemas in dependency order.
// Parent collections are created before children.
var registry = []Schema{
	{Name: "Book", Order: 1},
	{Name: "Chapter", Order: 2}, // references Book by book_id
}

// Names returns the registered collection names in dependency order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, s := range registry {
		names = append(names, s.Name)
	}
	return names
}

// All returns all schemas in dependency order.
// Schemas are loaded from embedded .graphql files.
func All() ([]Schema, error) {
	schemas := make([]Schema, len(registry))
	copy(schemas, registry)

	for i := range schemas {
		sdl, err := readSDL(schemas[i].Name)
		if err != nil {
			return nil, err
		}
		schemas[i].SDL = sdl
	}

	sort.Slice(schemas, func(i, j int) bool {
		return schemas[i].Order < schemas[j].Order
	})

	return schemas, nil
}

// Get returns a single schema by name.
func Get(name string) (*Schema, error) {
	for _, s := range registry {
		if s.Name != name {
			continue
		}
		sdl, err := readSDL(s.Name)
		if err != nil {
			return nil, err
		}
		s.SDL = sdl
		return &s, nil
	}
	return nil, fmt.Errorf("schema not found: %s", name)
}

// readSDL loads schemas/<lowercased name>.graphql from the embedded FS.
func readSDL(name string) (string, error) {
	content, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.graphql", strings.ToLower(name)))
	if err != nil {
		return "", fmt.Errorf("failed to read schema %s: %w", name, err)
	}
	return string(content), nil
}
