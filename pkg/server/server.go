// Package server is the public composition root for the Atrium API
// server. It lives in pkg/ so deployment wrappers can import it and
// layer their own middleware around the assembled handler.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/atriumhq/atrium/internal/api"
	"github.com/atriumhq/atrium/internal/api/handlers"
	"github.com/atriumhq/atrium/internal/api/middleware"
	"github.com/atriumhq/atrium/internal/auth"
	"github.com/atriumhq/atrium/internal/chat"
	"github.com/atriumhq/atrium/internal/config"
	"github.com/atriumhq/atrium/internal/llm"
	"github.com/atriumhq/atrium/internal/objectstore"
	"github.com/atriumhq/atrium/internal/retrieval"
	"github.com/atriumhq/atrium/internal/store"
	"github.com/atriumhq/atrium/internal/telemetry"
)

// Server holds the initialized Atrium API server.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the directory store, exposed for lifecycle management.
	Store store.Store

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc flushes telemetry on graceful shutdown.
	ShutdownFunc func(context.Context) error
}

// New initializes every component from environment configuration and
// returns a ready Server. All collaborators are constructed here, up
// front, and passed in explicitly.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the server with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gemini, err := llm.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("init gemini: %w", err)
	}

	index := retrieval.NewCorpusIndex()
	retriever := retrieval.NewCorpusRetriever(gemini, index)
	ingester := retrieval.NewIngester(dataStore, objects, gemini, index)
	orchestrator := chat.NewOrchestrator(dataStore, retriever, gemini)

	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}
	authenticator := middleware.NewAuthenticator(verifier, auth.NewProvisioner(dataStore))

	h := handlers.New(dataStore, objects, index, ingester, orchestrator, cfg)
	router := api.NewRouter(cfg, h, authenticator)

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Directory.ProjectID != "" {
		s, err := store.NewFirestoreStore(ctx, cfg.Directory.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init firestore: %w", err)
		}
		log.Info().Str("project", cfg.Directory.ProjectID).Msg("firestore store initialized")
		return s, nil
	}
	log.Info().Str("data_dir", cfg.Directory.DataDir).Msg("in-memory store initialized")
	return store.NewMemoryStore(cfg.Directory.DataDir), nil
}

func newObjectStore(ctx context.Context, cfg *config.Config) (objectstore.ObjectStore, error) {
	if cfg.Object.AccessKey != "" && cfg.Object.SecretKey != "" {
		s, err := objectstore.NewS3Store(ctx, cfg.Object)
		if err != nil {
			return nil, fmt.Errorf("init s3: %w", err)
		}
		return s, nil
	}
	log.Warn().Msg("no object storage credentials, using in-memory object store")
	return objectstore.NewMemoryObjectStore(), nil
}
