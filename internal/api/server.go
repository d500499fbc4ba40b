package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/climatedb/internal/archive"
	"github.com/JakeFAU/climatedb/internal/metrics"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 1000
	requestTimeout  = 30 * time.Second
)

// Registry is the read side of the source registry.
type Registry interface {
	All() []archive.Source
	ResolveByID(id string) (archive.Source, error)
}

// Server serves archived articles and URL logs.
type Server struct {
	router   chi.Router
	registry Registry
	archive  archive.Archive
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(registry Registry, arch archive.Archive, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry: registry,
		archive:  arch,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sources", s.listSources)
		r.Get("/sources/{source}/articles/{id}", s.getArticle)
		r.Get("/sources/{source}/articles/{id}/raw", s.getRaw)
		r.Get("/logs/{name}", s.tailLog)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sourceView struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Domain string `json:"domain"`
}

func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	sources := s.registry.All()
	out := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		view := sourceView{ID: src.ID(), Domain: src.Domain()}
		if named, ok := src.(interface{ Name() string }); ok {
			view.Name = named.Name()
		}
		out = append(out, view)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.readEntry(w, r, archive.StoreFinal)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		s.logger.Warn("article write failed", zap.Error(err))
	}
}

func (s *Server) getRaw(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.readEntry(w, r, archive.StoreRaw)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		s.logger.Warn("raw write failed", zap.Error(err))
	}
}

// readEntry resolves the source and article id from the route and reads the
// entry from the kind store. It writes the error response itself.
func (s *Server) readEntry(w http.ResponseWriter, r *http.Request, kind archive.StoreKind) ([]byte, bool) {
	sourceID := chi.URLParam(r, "source")
	articleID := chi.URLParam(r, "id")
	if _, err := s.registry.ResolveByID(sourceID); err != nil {
		s.writeError(w, http.StatusNotFound, "source not found")
		return nil, false
	}
	if !archive.ValidArticleID(articleID) {
		s.writeError(w, http.StatusBadRequest, "invalid article id")
		return nil, false
	}
	store, err := s.archive.Store(r.Context(), kind, sourceID)
	if err != nil {
		s.logger.Error("open store failed", zap.String("source", sourceID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "storage unavailable")
		return nil, false
	}
	payload, err := store.Read(r.Context(), articleID)
	switch {
	case err == nil:
		return payload, true
	case errors.Is(err, archive.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "article not found")
	case errors.Is(err, archive.ErrUsage):
		s.writeError(w, http.StatusBadRequest, "invalid article id")
	default:
		s.logger.Error("read article failed",
			zap.String("source", sourceID),
			zap.String("article_id", articleID),
			zap.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, "read failed")
	}
	return nil, false
}

type logView struct {
	Name    string              `json:"name"`
	Total   int                 `json:"total"`
	Records []archive.URLRecord `json:"records"`
}

// tailLog returns the newest records of a log, oldest first.
func (s *Server) tailLog(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	// Names are plain file names so a request cannot reach outside the root.
	if !archive.ValidArticleID(name) {
		s.writeError(w, http.StatusBadRequest, "invalid log name")
		return
	}
	limit, err := parseLimit(r, defaultLogLimit, maxLogLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var domain string
	if sourceID := r.URL.Query().Get("source"); sourceID != "" {
		src, err := s.registry.ResolveByID(sourceID)
		if err != nil {
			s.writeError(w, http.StatusNotFound, "source not found")
			return
		}
		domain = src.Domain()
	}
	log, err := s.archive.Log(r.Context(), name)
	if err != nil {
		s.logger.Error("open log failed", zap.String("log", name), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	records, err := log.Get(r.Context())
	if err != nil {
		s.logger.Error("read log failed", zap.String("log", name), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "read failed")
		return
	}
	if domain != "" {
		matched := records[:0:0]
		for _, rec := range records {
			if strings.Contains(rec.URL, domain) {
				matched = append(matched, rec)
			}
		}
		records = matched
	}
	total := len(records)
	if total > limit {
		records = records[total-limit:]
	}
	s.writeJSON(w, http.StatusOK, logView{Name: name, Total: total, Records: records})
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	return min(val, maxLimit), nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", requestID(r.Context())),
					zap.Any("error", rec),
				)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
