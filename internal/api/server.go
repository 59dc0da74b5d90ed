package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/brandpulse/social-listening/internal/analytics"
	"github.com/brandpulse/social-listening/internal/cache"
	"github.com/brandpulse/social-listening/internal/classify"
	"github.com/brandpulse/social-listening/internal/storage"
	"github.com/brandpulse/social-listening/internal/worker"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Deps are the services the control API drives
type Deps struct {
	Store      storage.Store
	Queue      *worker.Queue
	Worker     *worker.Worker
	Analytics  *analytics.Service
	Classifier *classify.Service
	Cache      *cache.Redis
}

// Server exposes the job pipeline over HTTP
type Server struct {
	Deps
	now func() time.Time
}

type healthChecker interface {
	Health(ctx context.Context) error
}

func NewServer(deps Deps) *Server {
	return &Server{Deps: deps, now: func() time.Time { return time.Now().UTC() }}
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(loggingMiddleware)

	router.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	router.HandleFunc("/metrics", s.metricsHandler).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/campaigns", s.createCampaign).Methods("POST")
	api.HandleFunc("/campaigns", s.listCampaigns).Methods("GET")
	api.HandleFunc("/campaigns/{id}", s.getCampaign).Methods("GET")
	api.HandleFunc("/campaigns/{id}", s.updateCampaign).Methods("PUT")
	api.HandleFunc("/campaigns/{id}", s.deleteCampaign).Methods("DELETE")

	api.HandleFunc("/campaigns/{id}/scrape", s.startScrape).Methods("POST")
	api.HandleFunc("/jobs/process", s.processJobs).Methods("POST")
	api.HandleFunc("/jobs", s.listJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", s.getJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/cancel", s.cancelJob).Methods("POST")

	api.HandleFunc("/campaigns/{id}/classify", s.classifyCampaign).Methods("POST")
	api.HandleFunc("/campaigns/{id}/analytics/run", s.runAnalytics).Methods("POST")
	api.HandleFunc("/analytics/run", s.runAnalyticsAll).Methods("POST")
	api.HandleFunc("/campaigns/{id}/analytics/summary", s.analyticsSummary).Methods("GET")
	api.HandleFunc("/campaigns/{id}/alerts", s.listAlerts).Methods("GET")
	api.HandleFunc("/alerts/{id}/dismiss", s.dismissAlert).Methods("POST")

	return router
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("Handled request")
	})
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := http.StatusOK

	if hc, ok := s.Store.(healthChecker); ok {
		checks["database"] = "ok"
		if err := hc.Health(r.Context()); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	checks["cache"] = "ok"
	if err := s.Cache.Health(r.Context()); err != nil {
		if errors.Is(err, cache.ErrCacheDisabled) {
			checks["cache"] = "disabled"
		} else {
			checks["cache"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	body := map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}
	if status != http.StatusOK {
		body["status"] = "unhealthy"
	}
	writeJSON(w, status, body)
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(s.Worker.GetMetrics()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

// writeError maps service errors onto status codes
func writeError(w http.ResponseWriter, err error) {
	var verr *storage.ValidationError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidTransition), errors.Is(err, worker.ErrAlreadyRunning):
		status = http.StatusConflict
	default:
		logrus.Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, &storage.ValidationError{Msg: msg})
}

func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &storage.ValidationError{Msg: "invalid request body: " + err.Error()}
	}
	return nil
}

// intParam parses an optional integer query parameter
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &storage.ValidationError{Msg: name + " must be a non-negative integer"}
	}
	return n, nil
}
