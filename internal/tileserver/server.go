package tileserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mandelview/pkg/tiles"
)

// Server provides HTTP endpoints for tile fetching
type Server struct {
	cache    *TileCache
	addr     string
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	server   *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithGatherer exposes the gathered metrics on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithServerLogger sets the server logger.
func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new tile server
func NewServer(cache *TileCache, addr string, opts ...ServerOption) *Server {
	s := &Server{
		cache:  cache,
		addr:   addr,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tile/", s.handleTile)
	mux.HandleFunc("/prefetch", s.handlePrefetch)
	mux.HandleFunc("/health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown, including one that happened before Start.
func (s *Server) Start() error {
	s.logger.Info("tile server starting", zap.String("addr", s.addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// parseTilePath parses "{zoom}/{x}/{y}" with an optional .png suffix.
func parseTilePath(path string) (tiles.TileCoord, bool) {
	parts := strings.Split(strings.TrimPrefix(path, "/tile/"), "/")
	if len(parts) != 3 {
		return tiles.TileCoord{}, false
	}

	zoom, err := strconv.Atoi(parts[0])
	if err != nil {
		return tiles.TileCoord{}, false
	}
	x, err := strconv.Atoi(parts[1])
	if err != nil {
		return tiles.TileCoord{}, false
	}
	y, err := strconv.Atoi(strings.TrimSuffix(parts[2], ".png"))
	if err != nil {
		return tiles.TileCoord{}, false
	}

	return tiles.TileCoord{X: x, Y: y, Zoom: zoom}, true
}

// handleTile serves tile requests: /tile/{zoom}/{x}/{y}.png
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	coord, ok := parseTilePath(r.URL.Path)
	if !ok {
		http.Error(w, "Invalid tile path", http.StatusBadRequest)
		return
	}

	data, err := s.cache.GetTile(coord)
	switch {
	case errors.Is(err, ErrInvalidTile):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		s.logger.Warn("tile failed", zap.Stringer("tile", coord), zap.Error(err))
		http.Error(w, "Failed to render tile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "max-age=86400")
	_, _ = w.Write(data)
}

// PrefetchRequest represents a prefetch request
type PrefetchRequest struct {
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	Zoom    int     `json:"zoom"`
	Radius  int     `json:"radius"`
}

// handlePrefetch queues the tiles around a point for background rendering
func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PrefetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Radius < 0 || req.Radius > 8 {
		http.Error(w, "Radius must be between 0 and 8", http.StatusBadRequest)
		return
	}

	queued := s.cache.PrefetchArea(req.CenterX, req.CenterY, req.Zoom, req.Radius)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "prefetching", "queued": queued})
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
