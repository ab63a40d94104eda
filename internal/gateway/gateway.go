// ABOUTME: Gateway wiring and lifecycle for the chat BFF server
// ABOUTME: Builds the component graph, mounts routes, and manages graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vendra/chat-gateway/internal/auth"
	"github.com/vendra/chat-gateway/internal/config"
	"github.com/vendra/chat-gateway/internal/orchestrator"
	"github.com/vendra/chat-gateway/internal/session"
	"github.com/vendra/chat-gateway/internal/store"
)

// Gateway coordinates the chat-gateway server components: the session
// store, the session lifecycle manager, the orchestrator transport, and
// the HTTP API that fronts them.
type Gateway struct {
	config     *config.Config
	store      store.Store
	sessions   *session.Manager
	transport  orchestrator.Transport
	verifier   *auth.JWTVerifier
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Gateway with the given configuration. The orchestrator
// transport variant is chosen here, once; nothing downstream branches on
// the wire protocol.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	transport, err := orchestrator.New(cfg.Orchestrator, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	g := &Gateway{
		config:    cfg,
		store:     s,
		sessions:  session.NewManager(s, cfg.Chat.GuestSessionTTL, logger),
		transport: transport,
		verifier:  auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)),
		logger:    logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.router(),
		ReadHeaderTimeout: 10 * time.Second,
		// WriteTimeout stays zero: SSE responses are long-lived.
	}

	return g, nil
}

func (g *Gateway) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/chat", func(r chi.Router) {
			r.Post("/messages", g.handleChatMessages)
			r.Post("/sessions", g.handleCreateSession)
			r.Get("/sessions", g.handleListSessions)
			r.Get("/sessions/{sessionID}", g.handleGetSession)
			r.Post("/sessions/{sessionID}/end", g.handleEndSession)
			r.Get("/sessions/{sessionID}/messages", g.handleHistory)
			r.Post("/sessions/{sessionID}/feedback", g.handleFeedback)
			r.Post("/guest/sessions", g.handleListGuestSessions)
		})
		r.Route("/auth/otp", func(r chi.Router) {
			r.Post("/request", g.handleOTPRequest)
			r.Post("/verify", g.handleOTPVerify)
		})
	})

	return r
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

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and releases held resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if closer, ok := g.transport.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("transport close: %w", err))
		}
	}
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
