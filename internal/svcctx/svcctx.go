// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/folio/internal/annotate"
	"github.com/jackzampolin/folio/internal/chapters"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	DefraClient *defra.Client
	DefraSink   *defra.Sink
	Store       *store.DefraStore
	Chapters    *chapters.Service
	Processor   *annotate.Processor
	Pool        *jobs.CPUWorkerPool
	Logger      *slog.Logger
	Home        *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// DefraClientFrom extracts the DefraDB client from context.
func DefraClientFrom(ctx context.Context) *defra.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.DefraClient
	}
	return nil
}

// DefraSinkFrom extracts the DefraDB write sink from context.
func DefraSinkFrom(ctx context.Context) *defra.Sink {
	if s := ServicesFrom(ctx); s != nil {
		return s.DefraSink
	}
	return nil
}

// StoreFrom extracts the book/chapter store from context.
func StoreFrom(ctx context.Context) *store.DefraStore {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// ChaptersFrom extracts the chapter service from context.
func ChaptersFrom(ctx context.Context) *chapters.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Chapters
	}
	return nil
}

// ProcessorFrom extracts the annotation processor from context.
// A nil processor is still usable; it annotates without caching.
func ProcessorFrom(ctx context.Context) *annotate.Processor {
	if s := ServicesFrom(ctx); s != nil {
		return s.Processor
	}
	return nil
}

// PoolFrom extracts the CPU worker pool from context.
func PoolFrom(ctx context.Context) *jobs.CPUWorkerPool {
	if s := ServicesFrom(ctx); s != nil {
		return s.Pool
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
