// Package server exposes map sessions over websockets. Each connection gets
// its own panel, orchestrator, render layer and map view.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orsmap/internal/cache"
	"github.com/sells-group/orsmap/internal/config"
	"github.com/sells-group/orsmap/internal/events"
	"github.com/sells-group/orsmap/internal/model"
	"github.com/sells-group/orsmap/internal/panel"
	"github.com/sells-group/orsmap/pkg/ors"
)

// TilePath is the route template of the basemap proxy.
const TilePath = "/tiles/{z}/{x}/{y}.png"

// Server hosts map sessions.
type Server struct {
	cfg      *config.Config
	api      ors.Client
	tiles    *TileProxy
	upgrader websocket.Upgrader

	ctx  context.Context
	stop context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// New creates a server backed by api.
func New(cfg *config.Config, api ors.Client) *Server {
	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		api:      api,
		tiles:    NewTileProxy(cfg.Map.BasemapURL, cfg.Map.TileCacheEntries),
		ctx:      ctx,
		stop:     stop,
		sessions: make(map[string]*Session),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/api/config", s.handleConfig)
	r.Get("/api/stats", s.handleStats)
	r.Get("/ws", s.handleWS)
	r.Method(http.MethodGet, "/tiles/{z}/{x}/{y}", s.tiles)
	return r
}

// SessionCount returns the number of connected sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close ends every session and waits for them to finish.
func (s *Server) Close() {
	s.stop()
	s.wg.Wait()
}

// ListenAndServe serves on port until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Hijacked websocket connections are not tracked by Shutdown.
		s.stop()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("server: listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	s.wg.Wait()
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.Server.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("server: websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	sess := newSession(s.ctx, conn, s.cfg, s.api)
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.wg.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.ID())
		s.mu.Unlock()
		s.wg.Done()
	}()

	sess.log.Info("server: session opened", zap.String("remote", r.RemoteAddr))
	if err := sess.Run(); err != nil {
		sess.log.Warn("server: session ended with error", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type profileOption struct {
	Value model.Profile `json:"value"`
	Label string        `json:"label"`
}

type rangeTypeOption struct {
	Value model.RangeType `json:"value"`
	Unit  string          `json:"unit"`
	Max   float64         `json:"max"`
}

type configResponse struct {
	Center             model.LatLng      `json:"center"`
	Zoom               int               `json:"zoom"`
	BasemapURL         string            `json:"basemap_url"`
	TileProxyURL       string            `json:"tile_proxy_url"`
	Attribution        string            `json:"attribution"`
	RouteMaxDistanceKm float64           `json:"route_max_distance_km"`
	Profiles           []profileOption   `json:"profiles"`
	RangeTypes         []rangeTypeOption `json:"range_types"`
	Defaults           model.PanelState  `json:"defaults"`
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	iso := s.cfg.Isochrone

	// A detached panel applies the same parsing and clamping a session does.
	p := panel.New(events.New(), iso)
	defaults := p.State()
	p.Close()

	resp := configResponse{
		Center:             model.LatLng{Lat: s.cfg.Map.CenterLat, Lon: s.cfg.Map.CenterLon},
		Zoom:               s.cfg.Map.Zoom,
		BasemapURL:         s.cfg.Map.BasemapURL,
		TileProxyURL:       TilePath,
		Attribution:        s.cfg.Map.Attribution,
		RouteMaxDistanceKm: s.cfg.Route.MaxDistanceKm,
		RangeTypes: []rangeTypeOption{
			{Value: model.RangeDistance, Unit: model.RangeDistance.Unit(), Max: iso.MaxDistanceKm},
			{Value: model.RangeTime, Unit: model.RangeTime.Unit(), Max: iso.MaxTimeMin},
		},
		Defaults: defaults,
	}
	for _, pr := range model.Profiles() {
		resp.Profiles = append(resp.Profiles, profileOption{Value: pr, Label: pr.Label()})
	}
	writeJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	Sessions int         `json:"sessions"`
	Tiles    cache.Stats `json:"tiles"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{Sessions: s.SessionCount(), Tiles: s.tiles.Stats()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
