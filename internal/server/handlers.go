package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/menuvox/menuvox/internal/command"
	"github.com/menuvox/menuvox/internal/engine"
	"github.com/menuvox/menuvox/internal/history"
	"github.com/menuvox/menuvox/internal/httputil"
	"github.com/menuvox/menuvox/internal/nav"
	"github.com/menuvox/menuvox/internal/overlay"
	"github.com/menuvox/menuvox/internal/profile"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OkJSON(w, healthResponse{
		Status:    "healthy",
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

type statusResponse struct {
	engine.Status
	FeedClients int `json:"feed_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.OkJSON(w, statusResponse{
		Status:      s.engine.Status(),
		FeedClients: s.hub.ClientCount(),
	})
}

func (s *Server) handleDetection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, fmt.Errorf("parse body: %w", err))
		return
	}
	if req.Enabled == nil {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "missing field: enabled")
		return
	}
	s.engine.SetDetecting(*req.Enabled)
	httputil.OkJSON(w, map[string]bool{"detecting": s.engine.Detecting()})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	httputil.OkJSON(w, s.nav.Profile())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, fmt.Errorf("parse body: %w", err))
			return
		}
	}
	path := req.Path
	if path == "" {
		path = s.profilePath
	}

	if err := s.engine.Queue().EnqueueWait(r.Context(), command.Reload(path)); err != nil {
		httputil.ErrorWithCode(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	httputil.OkJSON(w, map[string]any{"path": path, "menus": len(s.nav.Profile())})
}

type menusResponse struct {
	Menus  []string `json:"menus"`
	Active string   `json:"active"`
	Root   string   `json:"root"`
}

func (s *Server) handleMenus(w http.ResponseWriter, r *http.Request) {
	httputil.OkJSON(w, menusResponse{
		Menus:  s.nav.Profile().MenuIDs(),
		Active: s.nav.ActiveMenu(),
		Root:   s.nav.RootMenu(),
	})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	id := httputil.PathVar(r, "id")
	if err := s.engine.Queue().EnqueueWait(r.Context(), command.ActivateMenu(id)); err != nil {
		if errors.Is(err, nav.ErrUnknownMenu) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.Error(w, err)
		return
	}
	httputil.OkJSON(w, s.engine.Status())
}

// commandHandler runs one navigation command to completion and responds with
// the resulting engine status.
func (s *Server) commandHandler(build func() command.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.engine.Queue().EnqueueWait(r.Context(), build()); err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.OkJSON(w, s.engine.Status())
	}
}

func (s *Server) handleAnnouncements(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		httputil.ErrorWithCode(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	rows, err := s.history.RecentAnnouncements(r.Context(), httputil.QueryInt(r, "limit", 50))
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	if rows == nil {
		rows = []history.Announcement{}
	}
	httputil.OkJSON(w, rows)
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		httputil.ErrorWithCode(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	rows, err := s.history.RecentTransitions(r.Context(), httputil.QueryInt(r, "limit", 50))
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	if rows == nil {
		rows = []history.Transition{}
	}
	httputil.OkJSON(w, rows)
}

// handleDebugFrame returns the current screen as PNG with the active menu's
// conditions, elements and focus drawn on top. ?menu=id renders another
// menu's geometry instead, ?raw=1 skips the overlay.
func (s *Server) handleDebugFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := s.capture.NewHandle().Frame()
	if err != nil {
		httputil.InternalError(w, "capture failed: "+err.Error())
		return
	}

	img := image.Image(frame.Image)
	if r.URL.Query().Get("raw") == "" {
		var m *profile.Menu
		focused := -1
		if id := r.URL.Query().Get("menu"); id != "" {
			if m = s.nav.Profile().Menu(id); m == nil {
				httputil.NotFound(w, fmt.Sprintf("menu %q not found", id))
				return
			}
		} else if active := s.nav.ActiveMenu(); active != "" {
			m = s.nav.Profile().Menu(active)
			focused = s.nav.Snapshot().CurrentPosition
		}
		if m != nil {
			img = overlay.Render(img, m, focused)
		}
	}

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		s.logger.Debug("frame encode failed", "error", err)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isLocalhostOrigin(origin)
	},
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(s.hub, conn)
	select {
	case s.hub.register <- c:
	case <-s.hub.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}
