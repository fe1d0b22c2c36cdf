package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	domain "github.com/ignfab/osmoreport/internal/domain/issues"
	"github.com/ignfab/osmoreport/internal/domain/runs"
	"github.com/ignfab/osmoreport/internal/middleware"
)

// Router serves the read-only admin API over the issue and run stores. All
// mutation happens through the CLI workflow, never over HTTP.
type Router struct {
	issues domain.Repository
	runs   runs.Repository
}

func NewRouter(issues domain.Repository, runRepo runs.Repository, checkers map[string]middleware.HealthChecker) http.Handler {
	r := &Router{issues: issues, runs: runRepo}
	mux := chi.NewRouter()

	mux.Use(middleware.LoggingMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.HealthHandler(checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Get("/runs/latest", r.wrap(r.handleLatestRuns))
		rt.Get("/issues/{key}", r.wrap(r.handleGetIssue))
		rt.Get("/issues", r.wrap(r.handleListIssues))
		rt.Get("/summary", r.wrap(r.handleSummary))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

var errNotFound = errors.New("not found")

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			if errors.Is(err, sql.ErrNoRows) || errors.Is(err, errNotFound) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			var bad *badRequestError
			if errors.As(err, &bad) {
				http.Error(w, bad.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

// GET /v1/runs/latest?limit=20
func (r *Router) handleLatestRuns(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.runs.Latest(req.Context(), limit)
	if err != nil {
		return err
	}
	return writeJSON(w, list)
}

// GET /v1/issues/{key}
func (r *Router) handleGetIssue(w http.ResponseWriter, req *http.Request) error {
	key := chi.URLParam(req, "key")

	iss, err := r.issues.Get(req.Context(), key)
	if err != nil {
		return err
	}
	if iss == nil {
		return errNotFound
	}
	return writeJSON(w, iss)
}

// GET /v1/issues?feed_status=false
func (r *Router) handleListIssues(w http.ResponseWriter, req *http.Request) error {
	status := domain.FeedStatus(req.URL.Query().Get("feed_status"))
	switch status {
	case domain.FeedStatusFalse, domain.FeedStatusDone, domain.FeedStatusOpen:
	default:
		return &badRequestError{msg: "feed_status must be false, done or open"}
	}

	list, err := r.issues.SelectByFeedStatus(req.Context(), status)
	if err != nil {
		return err
	}
	return writeJSON(w, list)
}

// GET /v1/summary — report-lifecycle counts over the collected issues.
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	list, err := r.issues.SelectByFeedStatus(req.Context(), domain.FeedStatusFalse)
	if err != nil {
		return err
	}

	summary := struct {
		Total      int            `json:"total"`
		Reported   int            `json:"reported"`
		Linked     int            `json:"linked"`
		Excluded   int            `json:"excluded"`
		Pending    int            `json:"pending"`
		ByStatus   map[string]int `json:"by_status"`
		ComputedAt time.Time      `json:"computed_at"`
	}{
		ByStatus:   map[string]int{},
		ComputedAt: time.Now(),
	}
	summary.Total = len(list)
	for _, iss := range list {
		switch {
		case iss.OwnsReport():
			summary.Reported++
		case iss.ReportRef != nil:
			summary.Linked++
		case iss.Excluded != nil && *iss.Excluded:
			summary.Excluded++
		default:
			summary.Pending++
		}
		if iss.ReportStatus != nil {
			summary.ByStatus[*iss.ReportStatus]++
		}
	}
	return writeJSON(w, summary)
}
