// Package gateway exposes conversations over HTTP and WebSocket.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/huddle/internal/config"
	"github.com/soyeahso/huddle/internal/conversation"
	"github.com/soyeahso/huddle/internal/domain"
	"github.com/soyeahso/huddle/internal/hooks"
	"github.com/soyeahso/huddle/internal/logging"
	"github.com/soyeahso/huddle/internal/version"
)

var ErrClientClosed = errors.New("client connection closed")

const maxPayload = 4 * 1024 * 1024 // 4MB

// Conversations runs and controls conversations. *conversation.Orchestrator
// implements it.
type Conversations interface {
	Start(ctx context.Context, req conversation.Request) conversation.Result
	Stream(ctx context.Context, req conversation.Request) <-chan conversation.Event
	Stop(conversationID string) bool
	Active() []string
}

// TranscriptReader reads stored transcripts scoped to a user.
type TranscriptReader interface {
	GetExisting(ctx context.Context, conversationID, userID string) ([]domain.Message, error)
}

// Server is the huddle gateway HTTP + WebSocket server.
type Server struct {
	cfg           config.GatewayConfig
	auth          ResolvedAuth
	log           *logging.Logger
	clients       *ClientRegistry
	conversations Conversations
	transcripts   TranscriptReader
	hooks         *hooks.Manager
	version       string

	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// WithTranscripts enables the transcript read endpoint.
func WithTranscripts(t TranscriptReader) ServerOption {
	return func(s *Server) {
		s.transcripts = t
	}
}

// New creates a new gateway server.
func New(cfg config.GatewayConfig, conversations Conversations, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:           cfg,
		auth:          ResolveAuth(cfg),
		log:           log.Sub("gateway"),
		clients:       NewClientRegistry(log.Sub("clients")),
		conversations: conversations,
		version:       version.Version,
		startedAt:     time.Now(),
		authLimiter:   newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkWebSocketOrigin returns a function that validates WebSocket Origin headers.
// If no origins are configured, only same-origin (no Origin header) or non-browser
// clients are allowed. If origins are configured, the Origin must match one of them.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Same-origin or non-browser clients
		}
		return isOriginAllowed(origin, allowed)
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.AllowedOrigins)
}

// Start begins listening for HTTP and WebSocket connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: batch runs answer only once the conversation ends.
		IdleTimeout: 120 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Bind != "" && s.cfg.Bind != "loopback" {
		s.log.Warn().Msg("gateway is reachable beyond loopback without TLS; put it behind a TLS proxy")
	}

	s.startedAt = time.Now()
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Bool("anonymous", s.auth.Anonymous).
		Msg("gateway server ready")

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{
			"addr": ln.Addr().String(),
		})
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		if s.hooks != nil {
			s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}
