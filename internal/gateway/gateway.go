// ABOUTME: Gateway orchestrator wiring store, auth, registry, bus, and sessions
// ABOUTME: Serves the bot upgrade endpoint, health checks, and the management API

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/hearth-chat/bot-gateway/internal/auth"
	"github.com/hearth-chat/bot-gateway/internal/bus"
	"github.com/hearth-chat/bot-gateway/internal/config"
	"github.com/hearth-chat/bot-gateway/internal/event"
	"github.com/hearth-chat/bot-gateway/internal/interaction"
	"github.com/hearth-chat/bot-gateway/internal/ratelimit"
	"github.com/hearth-chat/bot-gateway/internal/registry"
	"github.com/hearth-chat/bot-gateway/internal/store"
)

// shutdownTimeout bounds graceful HTTP server shutdown.
const shutdownTimeout = 10 * time.Second

// Options carries optional collaborators. Zero value uses log-only
// defaults for the external delivery paths.
type Options struct {
	Notifier interaction.Notifier
	Channels ChannelPublisher
	Logger   *slog.Logger
}

// Gateway orchestrates the bot-gateway server components.
type Gateway struct {
	config        *config.Config
	store         store.Store
	authenticator *auth.Authenticator
	registry      *registry.Service
	bus           *bus.Bus
	limiter       *ratelimit.Limiter
	interactions  *interaction.Service
	sessions      *Manager
	channels      ChannelPublisher
	jwtVerifier   *auth.JWTVerifier
	httpServer    *http.Server
	logger        *slog.Logger
}

// New creates a gateway, opening the SQLite store from config.
func New(cfg *config.Config, opts *Options) (*Gateway, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return NewWithStore(cfg, s, opts)
}

// NewWithStore creates a gateway over an existing store. The caller
// keeps ownership of nothing: Shutdown closes the store.
func NewWithStore(cfg *config.Config, s *store.SQLiteStore, opts *Options) (*Gateway, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	channels := opts.Channels
	if channels == nil {
		channels = NewLogChannelPublisher(logger)
	}

	eventBus := bus.New(logger)
	reg := registry.NewService(s, logger)
	limiter := ratelimit.New(s, cfg.Gateway.RateLimit, cfg.Gateway.RateWindow, logger)
	interactions := interaction.NewService(reg, s, eventBus, notifier,
		cfg.Gateway.ResponseTimeout, cfg.Gateway.ResponseTTL, logger)

	g := &Gateway{
		config:        cfg,
		store:         s,
		authenticator: auth.NewAuthenticator(s, logger),
		registry:      reg,
		bus:           eventBus,
		limiter:       limiter,
		interactions:  interactions,
		sessions:      NewManager(logger),
		channels:      channels,
		logger:        logger.With("component", "gateway"),
	}

	if cfg.Auth.JWTSecret != "" {
		g.jwtVerifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		g.logger.Info("management API auth enabled (JWT)")
	} else {
		g.logger.Warn("management API auth disabled - no jwt_secret configured")
	}

	return g, nil
}

// Handler returns the full HTTP handler: upgrade endpoint, health
// checks, and the management API.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /gateway/bot", g.handleBotUpgrade)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	api := http.NewServeMux()
	api.HandleFunc("PUT /api/applications/{id}/commands", g.handleReplaceCommands)
	api.HandleFunc("GET /api/applications/{id}/commands", g.handleListAppCommands)
	api.HandleFunc("DELETE /api/applications/{id}/commands", g.handleDeleteCommands)
	api.HandleFunc("GET /api/commands", g.handleListCommands)
	api.HandleFunc("POST /api/invoke", g.handleInvoke)
	api.HandleFunc("GET /api/interactions/{id}/response", g.handleGetResponse)

	var apiHandler http.Handler = api
	if g.jwtVerifier != nil {
		apiHandler = auth.HTTPAuthMiddleware(g.jwtVerifier)(api)
	}
	mux.Handle("/api/", apiHandler)

	return mux
}

// PublishEvent fans a platform event out to the bot's live sessions.
// No session means the event is dropped; platform events are not
// replayed on reconnect.
func (g *Gateway) PublishEvent(botUserID string, ev event.Server) {
	g.bus.Publish(botUserID, ev)
}

// Run serves until ctx is cancelled, then drains gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	g.httpServer = &http.Server{
		Addr:    g.config.Server.HTTPAddr,
		Handler: g.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Server.HTTPAddr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		g.logger.Info("shutdown requested")
		return g.Shutdown()
	}
}

// Shutdown drains sessions, stops timers, and closes the store.
func (g *Gateway) Shutdown() error {
	if g.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := g.httpServer.Shutdown(ctx); err != nil {
			g.logger.Warn("http shutdown incomplete", "error", err)
		}
	}

	g.sessions.CloseAll()
	g.interactions.Close()
	g.bus.Close()

	if err := g.store.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	g.logger.Info("gateway stopped")
	return nil
}

// handleBotUpgrade authenticates the bot and upgrades to WebSocket. On
// auth failure the connection never upgrades: the client receives a
// plain HTTP error with no partial handshake.
func (g *Gateway) handleBotUpgrade(w http.ResponseWriter, r *http.Request) {
	rawToken, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bot ")
	if !ok || rawToken == "" {
		http.Error(w, `{"error":"missing bot authorization"}`, http.StatusUnauthorized)
		return
	}

	identity, err := g.authenticator.Authenticate(r.Context(), rawToken)
	if err != nil {
		if errors.Is(err, auth.ErrMalformedToken) || errors.Is(err, auth.ErrInvalidCredential) {
			http.Error(w, `{"error":"invalid bot credential"}`, http.StatusUnauthorized)
			return
		}
		g.logger.Error("bot authentication failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	intents := parseIntents(r.URL.Query().Get("intents"))

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket accept failed", "error", err)
		return
	}

	sess, sessCtx := newSession(context.Background(), *identity, conn,
		g.bus, g.limiter, g.interactions, g.channels, intents, g.logger)
	g.sessions.Add(sess)
	defer g.sessions.Remove(sess)

	sess.run(sessCtx)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports readiness from store liveness. A gateway with
// zero connected bots is still ready; bots are optional tenants.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"sessions": g.sessions.Count(),
	})
}
