package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/aggregate"
	"github.com/JakeFAU/lore-harvester/internal/logging"
	"github.com/JakeFAU/lore-harvester/internal/metrics"
	"github.com/JakeFAU/lore-harvester/internal/report"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// Server wires HTTP handlers to a read-only aggregation snapshot.
type Server struct {
	router  chi.Router
	state   *aggregate.State
	summary report.Summary
	threads []aggregate.ThreadRecord
	authors []authorView
	logger  *zap.Logger
}

type authorView struct {
	Name      string   `json:"name"`
	Initiated int      `json:"initiated"`
	Responded int      `json:"responded"`
	Emails    []string `json:"emails"`
}

type page[T any] struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Items  []T `json:"items"`
}

// NewServer constructs a Server with middleware and routes. state must not be
// modified afterwards.
func NewServer(state *aggregate.State, summary report.Summary, logger *zap.Logger) *Server {
	s := &Server{
		state:   state,
		summary: summary,
		threads: state.ThreadList(),
		authors: authorViews(state),
		logger:  logging.OrNop(logger).Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/summary", s.getSummary)
		r.Get("/threads", s.listThreads)
		r.Route("/authors", func(r chi.Router) {
			r.Get("/", s.listAuthors)
			r.Get("/{name}/emails", s.getAuthorEmails)
		})
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

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "threads": len(s.threads)})
}

func (s *Server) getSummary(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.summary)
}

// listThreads supports ?sort=id|responses|start|duration, ?q= subject
// substring, and limit/offset paging.
func (s *Server) listThreads(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := s.paging(w, r)
	if !ok {
		return
	}
	items := s.threads
	if q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q"))); q != "" {
		filtered := make([]aggregate.ThreadRecord, 0)
		for _, t := range items {
			if strings.Contains(strings.ToLower(t.ID), q) {
				filtered = append(filtered, t)
			}
		}
		items = filtered
	}
	less, ok := threadOrder(r.URL.Query().Get("sort"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown sort key")
		return
	}
	if less != nil {
		items = append([]aggregate.ThreadRecord(nil), items...)
		sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
	}
	s.writeJSON(w, http.StatusOK, paginate(items, limit, offset))
}

func (s *Server) listAuthors(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := s.paging(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, paginate(s.authors, limit, offset))
}

func (s *Server) getAuthorEmails(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	// chi matches against RawPath when it is set, leaving the segment escaped.
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(name)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed author name")
			return
		}
		name = unescaped
	}
	emails := s.state.Registry.Emails(name)
	if len(emails) == 0 {
		s.writeError(w, http.StatusNotFound, "author not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"name": name, "emails": emails})
}

func (s *Server) paging(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, offset = defaultPageSize, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = min(n, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

func paginate[T any](items []T, limit, offset int) page[T] {
	p := page[T]{Total: len(items), Offset: offset, Limit: limit, Items: []T{}}
	if offset >= len(items) {
		return p
	}
	end := min(offset+limit, len(items))
	p.Items = items[offset:end]
	return p
}

// threadOrder returns nil for the default id order.
func threadOrder(key string) (func(a, b aggregate.ThreadRecord) bool, bool) {
	switch key {
	case "", "id":
		return nil, true
	case "responses":
		return func(a, b aggregate.ThreadRecord) bool { return a.ResponseCount > b.ResponseCount }, true
	case "start":
		return func(a, b aggregate.ThreadRecord) bool { return timeOrZero(a.StartTime) < timeOrZero(b.StartTime) }, true
	case "duration":
		return func(a, b aggregate.ThreadRecord) bool {
			da, _ := a.Duration()
			db, _ := b.Duration()
			return da > db
		}, true
	default:
		return nil, false
	}
}

func timeOrZero(t *int64) int64 {
	if t == nil {
		return 0
	}
	return *t
}

func authorViews(state *aggregate.State) []authorView {
	out := make([]authorView, 0, len(state.Authors))
	for name, stats := range state.Authors {
		emails := state.Registry.Emails(name)
		if emails == nil {
			emails = []string{}
		}
		out = append(out, authorView{
			Name:      name,
			Initiated: stats.Initiated,
			Responded: len(stats.Responded),
			Emails:    emails,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
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

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
