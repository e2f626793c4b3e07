package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/service"
	"github.com/leettogether/leetstreak/internal/websocket"
	"github.com/leettogether/leetstreak/internal/weekly"
	"github.com/leettogether/leetstreak/internal/worker"
)

// Tracker is the service surface the API reads and writes
type Tracker interface {
	Register(ctx context.Context, discordID, handle string) (domain.User, error)
	Unregister(ctx context.Context, discordID string) error
	SetAnnouncementChannel(ctx context.Context, channelID string) error
	Users(ctx context.Context) ([]domain.User, error)
	Profile(ctx context.Context, discordID string) (*service.Profile, error)
	Streakboard(ctx context.Context, limit int) ([]service.StreakEntry, error)
	WeeklyLeaderboard(ctx context.Context) ([]weekly.Entry, error)
	Today(ctx context.Context, discordID string) (*service.TodayReport, error)
	Progress(ctx context.Context) ([]service.ProgressEntry, error)
	Attempts(ctx context.Context, discordID string, limit int) ([]domain.Submission, error)
}

// Jobs lists and triggers scheduled jobs
type Jobs interface {
	Jobs() []worker.Status
	Trigger(name string) error
}

// Pinger reports store connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the tracker API
type Handler struct {
	tracker Tracker
	jobs    Jobs
	hub     *websocket.Hub
	store   Pinger
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler. jobs and hub may be nil
func NewHandler(tracker Tracker, jobs Jobs, hub *websocket.Hub, store Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		tracker: tracker,
		jobs:    jobs,
		hub:     hub,
		store:   store,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RegisterRequest registers a user
type RegisterRequest struct {
	DiscordID string `json:"discord_id"`
	Handle    string `json:"leetcode_username"`
}

// ChannelRequest sets the announcement channel
type ChannelRequest struct {
	ChannelID string `json:"channel_id"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/", h.KeepAlive)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.RegisterUser)

			r.Route("/{discordID}", func(r chi.Router) {
				r.Get("/", h.GetProfile)
				r.Delete("/", h.UnregisterUser)
				r.Get("/today", h.GetToday)
				r.Get("/submissions", h.GetSubmissions)
			})
		})

		r.Get("/streaks", h.GetStreaks)
		r.Get("/weekly", h.GetWeekly)
		r.Get("/progress", h.GetProgress)

		r.Put("/settings/channel", h.SetChannel)

		r.Get("/jobs", h.ListJobs)
		r.Post("/jobs/{job}/run", h.RunJob)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Debug("failed to write response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeFailure maps a service error to a status code. Unexpected errors are
// logged and hidden behind ErrInternalError
func (h *Handler) writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidHandle):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, worker.ErrUnknownJob):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, worker.ErrJobRunning):
		h.writeError(w, http.StatusConflict, err)
	case domain.IsNoData(err):
		h.writeError(w, http.StatusBadGateway, domain.ErrNoData)
	default:
		h.logger.Error("request failed", "operation", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// KeepAlive answers uptime pings
func (h *Handler) KeepAlive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, service.KeepAliveText())
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.writeError(w, http.StatusServiceUnavailable, errors.New("live feed disabled"))
		return
	}
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	total := 0
	if h.hub != nil {
		total = h.hub.GetTotalConnections()
	}
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": total,
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports ready once the store answers
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.Warn("store not ready", "error", err)
			h.writeError(w, http.StatusServiceUnavailable, errors.New("store unavailable"))
			return
		}
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// ListUsers returns registered users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.tracker.Users(r.Context())
	if err != nil {
		h.writeFailure(w, "list users", err)
		return
	}
	h.writeSuccess(w, users)
}

// RegisterUser links a Discord user to a LeetCode handle
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	user, err := h.tracker.Register(r.Context(), req.DiscordID, req.Handle)
	if err != nil {
		h.writeFailure(w, "register", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    user,
	})
}

// UnregisterUser removes a user and their tracked state
func (h *Handler) UnregisterUser(w http.ResponseWriter, r *http.Request) {
	discordID := chi.URLParam(r, "discordID")
	if err := h.tracker.Unregister(r.Context(), discordID); err != nil {
		h.writeFailure(w, "unregister", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "removed"})
}

// GetProfile returns a user's streak and weekly record
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.tracker.Profile(r.Context(), chi.URLParam(r, "discordID"))
	if err != nil {
		h.writeFailure(w, "profile", err)
		return
	}
	h.writeSuccess(w, p)
}

// GetToday returns today's new solves. When LeetCode cannot be read the
// response says so instead of failing
func (h *Handler) GetToday(w http.ResponseWriter, r *http.Request) {
	discordID := chi.URLParam(r, "discordID")
	report, err := h.tracker.Today(r.Context(), discordID)
	if err != nil {
		if domain.IsNoData(err) {
			h.writeSuccess(w, map[string]interface{}{
				"discord_id": discordID,
				"no_data":    true,
				"message":    "no data yet",
			})
			return
		}
		h.writeFailure(w, "today", err)
		return
	}
	h.writeSuccess(w, report)
}

// GetSubmissions returns the user's latest attempts of any verdict
func (h *Handler) GetSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 50 {
			limit = l
		}
	}

	subs, err := h.tracker.Attempts(r.Context(), chi.URLParam(r, "discordID"), limit)
	if err != nil {
		h.writeFailure(w, "submissions", err)
		return
	}
	h.writeSuccess(w, subs)
}

// GetStreaks returns the streak leaderboard
func (h *Handler) GetStreaks(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.tracker.Streakboard(r.Context(), limit)
	if err != nil {
		h.writeFailure(w, "streaks", err)
		return
	}
	h.writeSuccess(w, entries)
}

// GetWeekly returns the current week's leaderboard
func (h *Handler) GetWeekly(w http.ResponseWriter, r *http.Request) {
	entries, err := h.tracker.WeeklyLeaderboard(r.Context())
	if err != nil {
		h.writeFailure(w, "weekly", err)
		return
	}
	h.writeSuccess(w, entries)
}

// GetProgress returns everyone's new solves today
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	entries, err := h.tracker.Progress(r.Context())
	if err != nil {
		h.writeFailure(w, "progress", err)
		return
	}
	h.writeSuccess(w, entries)
}

// SetChannel stores the announcement channel
func (h *Handler) SetChannel(w http.ResponseWriter, r *http.Request) {
	var req ChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if err := h.tracker.SetAnnouncementChannel(r.Context(), req.ChannelID); err != nil {
		h.writeFailure(w, "set channel", err)
		return
	}
	h.writeSuccess(w, map[string]string{"channel_id": req.ChannelID})
}

// ListJobs returns scheduler status
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.writeSuccess(w, []worker.Status{})
		return
	}
	h.writeSuccess(w, h.jobs.Jobs())
}

// RunJob starts a job outside its schedule
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.writeError(w, http.StatusServiceUnavailable, errors.New("scheduler disabled"))
		return
	}
	name := chi.URLParam(r, "job")
	if err := h.jobs.Trigger(name); err != nil {
		h.writeFailure(w, "run job", err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data:    map[string]string{"job": name, "status": "started"},
	})
}
