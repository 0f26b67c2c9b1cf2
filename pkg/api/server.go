package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/hivelabs/hivemon/pkg/cache"
	"github.com/hivelabs/hivemon/pkg/log"
	"github.com/hivelabs/hivemon/pkg/metrics"
	"github.com/hivelabs/hivemon/pkg/registry"
	"github.com/hivelabs/hivemon/pkg/sse"
	"github.com/hivelabs/hivemon/pkg/stream"
	"github.com/hivelabs/hivemon/pkg/types"
	"github.com/hivelabs/hivemon/pkg/upstream"
)

const (
	defaultRangeSeconds = 3600
	maxRangeSeconds     = 30 * 86400
)

var nodeNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9.-]*$`)

// Config wires the server's collaborators
type Config struct {
	// Mux is the event multiplexer backing /api/events
	Mux *stream.Multiplexer

	// Upstream is the cluster API adapter
	Upstream *upstream.Client

	// Snapshots caches cluster summaries; Series caches node metrics
	Snapshots *cache.Cache[types.ClusterSnapshot]
	Series    *cache.Cache[types.MetricsSeries]

	// Registry stores the monitored server list; optional
	Registry *registry.Store

	// SnapshotTTL and SeriesTTL bound cache freshness
	SnapshotTTL time.Duration
	SeriesTTL   time.Duration
}

// Server is the HTTP surface: REST endpoints with JSON envelopes plus
// the SSE event stream
type Server struct {
	cfg     Config
	httpSrv *http.Server
	logger  zerolog.Logger
}

// NewServer creates the API server
func NewServer(cfg Config) *Server {
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 4 * time.Second
	}
	if cfg.SeriesTTL <= 0 {
		cfg.SeriesTTL = 30 * time.Second
	}

	s := &Server{
		cfg:    cfg,
		logger: log.WithComponent("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/cluster", s.handleCluster)
	mux.HandleFunc("GET /api/nodes/{node}/metrics", s.handleNodeMetrics)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/servers", s.handleListServers)
	mux.HandleFunc("POST /api/servers", s.handleCreateServer)
	mux.HandleFunc("GET /api/servers/{id}", s.handleGetServer)
	mux.HandleFunc("DELETE /api/servers/{id}", s.handleDeleteServer)
	mux.Handle("GET /healthz", metrics.HealthHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves HTTP on addr until Stop is called
func (s *Server) Start(addr string) error {
	s.httpSrv.Addr = addr
	s.logger.Info().Str("addr", addr).Msg("API server listening")

	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the route handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// envelope is the REST response wrapper
type envelope struct {
	OK        bool        `json:"ok"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func (s *Server) writeData(w http.ResponseWriter, path string, data interface{}) {
	s.writeJSON(w, path, http.StatusOK, envelope{OK: true, Data: data, Timestamp: time.Now()})
}

func (s *Server) writeError(w http.ResponseWriter, path string, status int, msg string) {
	s.writeJSON(w, path, status, envelope{OK: false, Error: msg, Timestamp: time.Now()})
}

func (s *Server) writeJSON(w http.ResponseWriter, path string, status int, env envelope) {
	metrics.APIRequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("failed to write response")
	}
}

// handleCluster serves the current cluster snapshot through the cache
func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	snap, err := s.cfg.Snapshots.GetOrCompute(r.Context(), "cluster", s.cfg.SnapshotTTL,
		func(ctx context.Context) (types.ClusterSnapshot, error) {
			return s.cfg.Upstream.ClusterSummary(ctx)
		})
	if err != nil {
		s.writeError(w, "/api/cluster", http.StatusInternalServerError, err.Error())
		return
	}
	s.writeData(w, "/api/cluster", snap)
}

// handleNodeMetrics serves a node metrics series. Query parameters:
// range (seconds of history), limit (max points), since (unix seconds
// lower bound).
func (s *Server) handleNodeMetrics(w http.ResponseWriter, r *http.Request) {
	const path = "/api/nodes/metrics"

	node := r.PathValue("node")
	if !nodeNameRe.MatchString(node) {
		s.writeError(w, path, http.StatusBadRequest, fmt.Sprintf("invalid node name %q", node))
		return
	}

	rangeSeconds := defaultRangeSeconds
	if raw := r.URL.Query().Get("range"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxRangeSeconds {
			s.writeError(w, path, http.StatusBadRequest, "range must be a positive number of seconds")
			return
		}
		rangeSeconds = v
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			s.writeError(w, path, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			s.writeError(w, path, http.StatusBadRequest, "since must be a unix timestamp")
			return
		}
		since = time.Unix(v, 0)
	}

	key := fmt.Sprintf("metrics:%s:%d", node, rangeSeconds)
	series, err := s.cfg.Series.GetOrCompute(r.Context(), key, s.cfg.SeriesTTL,
		func(ctx context.Context) (types.MetricsSeries, error) {
			return s.cfg.Upstream.NodeMetrics(ctx, node, rangeSeconds)
		})
	if err != nil {
		s.writeError(w, path, http.StatusInternalServerError, err.Error())
		return
	}

	points := series.Points
	if !since.IsZero() {
		filtered := make([]types.MetricPoint, 0, len(points))
		for _, p := range points {
			if !p.Time.Before(since) {
				filtered = append(filtered, p)
			}
		}
		points = filtered
	}
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}

	s.writeData(w, path, types.MetricsSeries{
		Node:         series.Node,
		RangeSeconds: series.RangeSeconds,
		Points:       points,
	})
}

// handleEvents bridges one subscription session onto the SSE transport
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, err := sse.PrepareResponse(w)
	if err != nil {
		s.writeError(w, "/api/events", http.StatusInternalServerError, err.Error())
		return
	}

	sess, err := s.cfg.Mux.Subscribe()
	if err != nil {
		if errors.Is(err, stream.ErrTooManySubscribers) {
			s.writeError(w, "/api/events", http.StatusServiceUnavailable, err.Error())
			return
		}
		s.writeError(w, "/api/events", http.StatusInternalServerError, err.Error())
		return
	}
	defer s.cfg.Mux.Unsubscribe(sess)

	logger := log.WithSession(sess.ID)
	metrics.APIRequestsTotal.WithLabelValues("/api/events", "200").Inc()

	if err := sse.WriteOpen(w); err != nil {
		sess.MarkDead()
		return
	}
	flusher.Flush()
	logger.Debug().Msg("event stream opened")

	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Msg("event stream client disconnected")
			return
		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			if err := sse.WriteEvent(w, ev); err != nil {
				// One subscriber's transport failure must never reach
				// the multiplexer loop or other sessions.
				sess.MarkDead()
				logger.Debug().Err(err).Msg("event stream write failed")
				return
			}
			flusher.Flush()
		}
	}
}

// sanitizeServer strips credentials before an entry leaves the API
func sanitizeServer(server *types.Server) *types.Server {
	clean := *server
	clean.Secret = ""
	return &clean
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Registry == nil {
		s.writeError(w, "/api/servers", http.StatusInternalServerError, "server registry not configured")
		return
	}

	servers, err := s.cfg.Registry.ListServers()
	if err != nil {
		s.writeError(w, "/api/servers", http.StatusInternalServerError, err.Error())
		return
	}

	sanitized := make([]*types.Server, len(servers))
	for i, server := range servers {
		sanitized[i] = sanitizeServer(server)
	}
	s.writeData(w, "/api/servers", sanitized)
}

func (s *Server) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Registry == nil {
		s.writeError(w, "/api/servers", http.StatusInternalServerError, "server registry not configured")
		return
	}

	var server types.Server
	if err := json.NewDecoder(r.Body).Decode(&server); err != nil {
		s.writeError(w, "/api/servers", http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if server.Name == "" || server.URL == "" {
		s.writeError(w, "/api/servers", http.StatusBadRequest, "name and url are required")
		return
	}

	if err := s.cfg.Registry.CreateServer(&server); err != nil {
		s.writeError(w, "/api/servers", http.StatusInternalServerError, err.Error())
		return
	}
	s.writeData(w, "/api/servers", sanitizeServer(&server))
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Registry == nil {
		s.writeError(w, "/api/servers", http.StatusInternalServerError, "server registry not configured")
		return
	}

	server, err := s.cfg.Registry.GetServer(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, "/api/servers", http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, "/api/servers", http.StatusInternalServerError, err.Error())
		return
	}
	s.writeData(w, "/api/servers", sanitizeServer(server))
}

func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Registry == nil {
		s.writeError(w, "/api/servers", http.StatusInternalServerError, "server registry not configured")
		return
	}

	if err := s.cfg.Registry.DeleteServer(r.PathValue("id")); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, "/api/servers", http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, "/api/servers", http.StatusInternalServerError, err.Error())
		return
	}
	s.writeData(w, "/api/servers", map[string]string{"status": "deleted"})
}
