// Package api exposes the loss engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/hazard-loss/internal/engine"
	"github.com/sells-group/hazard-loss/internal/geospatial"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/loss"
)

// Engine is the part of the loss engine the HTTP surface drives.
type Engine interface {
	RecomputeAll(ctx context.Context) (*engine.Summary, error)
	RecomputeOne(ctx context.Context, id string) (*loss.Record, error)
	RetractOne(ctx context.Context, id string) (*loss.Record, error)
	AAL(ctx context.Context) (*engine.Report, error)
	DirectLoss(ctx context.Context, id string) (*loss.Record, error)
	Nearest(ctx context.Context, sc hazard.Scenario, lon, lat float64) (geospatial.Match, bool, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	CORSOrigins []string
	// RateLimit is the sustained rate of recompute requests per second.
	RateLimit float64
	RateBurst int
}

// Server routes HTTP requests to an Engine.
type Server struct {
	engine  Engine
	store   Pinger
	limiter *rate.Limiter
	router  chi.Router
}

// NewServer builds the router.
func NewServer(eng Engine, store Pinger, opts Options) *Server {
	limit := rate.Limit(opts.RateLimit)
	if opts.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 1
	}
	s := &Server{
		engine:  eng,
		store:   store,
		limiter: rate.NewLimiter(limit, burst),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestLogger)

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/aal", s.getAAL)
		r.Get("/assets/{id}/loss", s.getDirectLoss)
		r.Get("/hazards/{hazard}/nearest", s.getNearest)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/recompute", s.recomputeAll)
			r.Post("/assets/{id}/recompute", s.recomputeOne)
			r.Delete("/assets/{id}/loss", s.retractOne)
		})
	})

	s.router = r
	return s
}

// ServeHTTP delegates to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getAAL(w http.ResponseWriter, r *http.Request) {
	rep, err := s.engine.AAL(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	rows := make([]map[string]any, 0, len(rep.Rows))
	for i := range rep.Rows {
		rows = append(rows, AALRowJSON(&rep.Rows[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":        rows,
		"grand_total": AALRowJSON(&rep.GrandTotal),
	})
}

func (s *Server) getDirectLoss(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.DirectLoss(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no direct loss for asset")
		return
	}
	writeJSON(w, http.StatusOK, RecordJSON(rec))
}

func (s *Server) recomputeAll(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.RecomputeAll(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) recomputeOne(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.RecomputeOne(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordJSON(rec))
}

func (s *Server) retractOne(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.RetractOne(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"retracted": RecordJSON(rec)})
}

// getNearest answers /hazards/{hazard}/nearest?rp=100&lon=..&lat=..
func (s *Server) getNearest(w http.ResponseWriter, r *http.Request) {
	h, err := hazard.Parse(chi.URLParam(r, "hazard"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	rp, err := strconv.Atoi(q.Get("rp"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "rp must be an integer return period")
		return
	}
	sc, ok := hazard.Lookup(h, rp)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown return period for "+h.String())
		return
	}
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	if errLon != nil || errLat != nil {
		writeError(w, http.StatusBadRequest, "lon and lat must be numbers")
		return
	}

	m, found, err := s.engine.Nearest(r.Context(), sc, lon, lat)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no eligible sample within threshold")
		return
	}
	v, _ := m.Sample.Intensity[sc].Get()
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario":    sc.String(),
		"location_id": m.Sample.LocationID,
		"intensity":   v,
		"distance_m":  m.Distance,
		"lon":         m.Sample.Lon,
		"lat":         m.Sample.Lat,
	})
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch engine.KindOf(err) {
	case engine.KindNotFound:
		status = http.StatusNotFound
	case engine.KindInvalidInput:
		status = http.StatusUnprocessableEntity
	case engine.KindUpstream:
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
