package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// SchemaAdder is the part of the DefraDB client Initialize needs.
type SchemaAdder interface {
	AddSchema(ctx context.Context, sdl string) error
}

// Initialize applies all schemas to DefraDB.
// Collections that already exist are skipped, so it is safe to call on every start.
func Initialize(ctx context.Context, client SchemaAdder, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	schemas, err := All()
	if err != nil {
		return fmt.Errorf("failed to load schemas: %w", err)
	}

	for _, s := range schemas {
		if err := applySchema(ctx, client, s, logger); err != nil {
			return err
		}
	}

	return nil
}

// applySchema adds a single schema to DefraDB.
// Returns nil if schema already exists.
func applySchema(ctx context.Context, client SchemaAdder, s Schema, logger *slog.Logger) error {
	err := client.AddSchema(ctx, s.SDL)
	if err != nil {
		// Check if it's an "already exists" error - that's fine
		if isAlreadyExistsError(err) {
			logger.Debug("schema already exists", "name", s.Name)
			return nil
		}
		return fmt.Errorf("failed to add schema %s: %w", s.Name, err)
	}

	logger.Info("schema added", "name", s.Name)
	return nil
}

// isAlreadyExistsError checks if the error indicates the collection already exists.
// DefraDB is reached over HTTP, so the only signal is the response body text.
func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "already exists")
}
