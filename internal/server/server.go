// Package server exposes the local control API: REST endpoints for status,
// navigation and profile management, plus a websocket feed mirroring the
// engine's events. The API binds to localhost; it is the surface the profile
// editor and hotkey clients talk to.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/menuvox/menuvox/internal/capture"
	"github.com/menuvox/menuvox/internal/command"
	"github.com/menuvox/menuvox/internal/engine"
	"github.com/menuvox/menuvox/internal/events"
	"github.com/menuvox/menuvox/internal/history"
	"github.com/menuvox/menuvox/internal/nav"
)

const version = "0.1.0"

// Deps are the components the control API fronts. History may be nil when
// recording is disabled.
type Deps struct {
	Engine  *engine.Engine
	Nav     *nav.Machine
	Bus     *events.Bus
	History *history.Store
	Capture *capture.Service
}

// Server is the local control API.
type Server struct {
	logger      *slog.Logger
	addr        string
	profilePath string

	engine  *engine.Engine
	nav     *nav.Machine
	bus     *events.Bus
	history *history.Store
	capture *capture.Service

	hub *Hub
}

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds the control API server. addr is the listen address and
// profilePath the file a reload request falls back to when it names none.
func New(addr, profilePath string, deps Deps, opts ...Option) *Server {
	s := &Server{
		logger:      slog.Default().With("component", "server"),
		addr:        addr,
		profilePath: profilePath,
		engine:      deps.Engine,
		nav:         deps.Nav,
		bus:         deps.Bus,
		history:     deps.History,
		capture:     deps.Capture,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s.logger)
	return s
}

// Router assembles the chi router. Exposed so tests can drive handlers
// without a listening socket.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(s.requestLog)
	r.Use(corsMiddleware())

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Put("/detection", s.handleDetection)

		r.Get("/profile", s.handleProfile)
		r.Post("/profile/reload", s.handleReload)

		r.Get("/menus", s.handleMenus)
		r.Post("/menus/{id}/activate", s.handleActivate)

		r.Post("/nav/next", s.commandHandler(func() command.Command { return command.Navigate(1) }))
		r.Post("/nav/prev", s.commandHandler(func() command.Command { return command.Navigate(-1) }))
		r.Post("/nav/select", s.commandHandler(command.Select))
		r.Post("/nav/pop", s.commandHandler(command.Pop))
		r.Post("/nav/group-next", s.commandHandler(command.GroupNext))
		r.Post("/nav/group-prev", s.commandHandler(command.GroupPrev))

		r.Get("/history/announcements", s.handleAnnouncements)
		r.Get("/history/transitions", s.handleTransitions)

		r.Get("/debug/frame", s.handleDebugFrame)
	})

	r.Get("/ws", s.handleWS)
	return r
}

// Run serves the control API until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	if err := checkPortAvailable(s.addr); err != nil {
		return fmt.Errorf("address %s is already in use, is another instance running? %w", s.addr, err)
	}

	go s.hub.Run(ctx)
	detach := s.attachBus()
	defer detach()

	// Read and write timeouts are omitted: they would put deadlines on
	// hijacked websocket connections. Keepalive runs over ping/pong in the
	// hub instead.
	httpServer := &http.Server{
		Addr:        s.addr,
		Handler:     s.Router(),
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("control api listening", "addr", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// attachBus forwards engine events onto the websocket feed and returns the
// detach function.
func (s *Server) attachBus() func() {
	if s.bus == nil {
		return func() {}
	}
	subs := []events.Subscription{
		events.Subscribe(s.bus, events.TopicMenuChanged, func(_ context.Context, m events.MenuChanged) error {
			s.hub.Broadcast(wsMessage{Type: events.TopicMenuChanged, Data: m, Timestamp: time.Now()})
			return nil
		}),
		events.Subscribe(s.bus, events.TopicFocusChanged, func(_ context.Context, f events.FocusChanged) error {
			s.hub.Broadcast(wsMessage{Type: events.TopicFocusChanged, Data: f, Timestamp: time.Now()})
			return nil
		}),
		events.Subscribe(s.bus, events.TopicAnnouncement, func(_ context.Context, a events.Announcement) error {
			s.hub.Broadcast(wsMessage{Type: events.TopicAnnouncement, Data: a, Timestamp: time.Now()})
			return nil
		}),
		events.Subscribe(s.bus, events.TopicProfileLoaded, func(_ context.Context, p events.ProfileLoaded) error {
			s.hub.Broadcast(wsMessage{Type: events.TopicProfileLoaded, Data: p, Timestamp: time.Now()})
			return nil
		}),
	}
	return func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}
}

// requestLog logs every request at debug level.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method, "path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// corsMiddleware allows localhost origins only. Non-localhost origins get no
// CORS headers, so the browser blocks the request.
func corsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && isLocalhostOrigin(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// checkPortAvailable verifies the listen address can be bound, so a second
// daemon instance fails fast with a clear error.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
