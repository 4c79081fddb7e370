// ABOUTME: Gateway orchestrator that wires the store, stager, completion client and HTTP server
// ABOUTME: Manages route registration, startup and graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/chatloom/chatloom/internal/chat"
	"github.com/chatloom/chatloom/internal/config"
	"github.com/chatloom/chatloom/internal/llm"
	"github.com/chatloom/chatloom/internal/store"
	"github.com/chatloom/chatloom/internal/upload"
)

// Version is reported by GET /version.
const Version = "0.1.0"

// defaultSystemPrompt is returned for conversations that have no system
// message yet.
const defaultSystemPrompt = "You are a helpful assistant."

// Gateway owns the HTTP server and the components behind it: the
// conversation store, the attachment stager, the completion client wrapped
// in the turn orchestrator, and the event broadcaster.
type Gateway struct {
	config       *config.Config
	store        store.Store
	stager       *upload.Stager
	orchestrator *chat.Orchestrator
	broadcaster  *chat.Broadcaster
	httpServer   *http.Server
	logger       *slog.Logger
}

// initStore creates the store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("CHATLOOM_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway with all components wired from the configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	stager, err := upload.NewStager(cfg.Uploads.Dir, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	broadcaster := chat.NewBroadcaster(logger)
	completions := llm.NewClient(logger)
	orchestrator := chat.NewOrchestrator(s, stager, completions, broadcaster, logger)

	g := &Gateway{
		config:       cfg,
		store:        s,
		stager:       stager,
		orchestrator: orchestrator,
		broadcaster:  broadcaster,
		logger:       logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// routes builds the HTTP mux. The paths mirror the client contract: flat
// action endpoints plus a /conversations/{id} subtree.
func (g *Gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", g.handleHealth)
	mux.HandleFunc("/version", g.handleVersion)

	mux.HandleFunc("/create_conversation", g.handleCreateConversation)
	mux.HandleFunc("/conversations", g.handleListConversations)
	mux.HandleFunc("/conversations/", g.handleConversationRoutes)

	mux.HandleFunc("/save_settings", g.handleSaveSettings)
	mux.HandleFunc("/settings", g.handleGetSettings)
	mux.HandleFunc("/settings/defaults", g.handleDefaultSettings)
	mux.HandleFunc("/get_system_prompt", g.handleGetSystemPrompt)

	mux.HandleFunc("/chat", g.handleChat)
	mux.HandleFunc("/events", g.handleEvents)

	return mux
}

// Run starts the HTTP server and blocks until the context is canceled or
// the server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown shuts down with a fresh context; the original context is
// already canceled by the time this runs.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.broadcaster.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleVersion returns the running server version.
func (g *Gateway) handleVersion(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, map[string]string{"version": Version})
}
