package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/mealplan/internal/backup"
	"github.com/dukerupert/mealplan/internal/handler"
	"github.com/dukerupert/mealplan/internal/meal"
	"github.com/dukerupert/mealplan/internal/middleware"
	ws "github.com/dukerupert/mealplan/internal/websocket"
)

const (
	mutationLimit  = 30
	mutationWindow = time.Minute
)

// Options holds request-handling settings that are not part of the meal domain.
type Options struct {
	// Location decides which calendar day a meal falls on. Nil means time.Local.
	Location       *time.Location
	AllowedOrigins []string
	// TrustedProxies may forward client addresses in X-Forwarded-For.
	TrustedProxies *middleware.TrustedProxies
}

type Server struct {
	hub            *ws.Hub
	meals          *meal.Store
	mealH          *handler.MealHandler
	backupH        *handler.BackupHandler
	backupManager  *backup.Manager
	rateLimiter    *middleware.RateLimiter
	allowedOrigins []string
	proxies        *middleware.TrustedProxies
	logger         *slog.Logger
}

// New wires the meal store and backup manager to HTTP handlers. bm may be
// nil, in which case backup routes are not registered.
func New(ms *meal.Store, hub *ws.Hub, bm *backup.Manager, opts Options, logger *slog.Logger) *Server {
	return &Server{
		hub:            hub,
		meals:          ms,
		mealH:          handler.NewMealHandler(ms, hub, opts.Location, logger.With("component", "meal")),
		backupH:        newBackupHandler(bm, hub, logger),
		backupManager:  bm,
		rateLimiter:    middleware.NewRateLimiter(),
		allowedOrigins: opts.AllowedOrigins,
		proxies:        opts.TrustedProxies,
		logger:         logger,
	}
}

func newBackupHandler(bm *backup.Manager, hub *ws.Hub, logger *slog.Logger) *handler.BackupHandler {
	if bm == nil {
		return nil
	}
	return handler.NewBackupHandler(bm, hub, logger.With("component", "backup_handler"))
}

// BackupStatusBroadcaster returns a backup.StatusCallback that pushes state
// changes to connected clients.
func BackupStatusBroadcaster(hub *ws.Hub) backup.StatusCallback {
	return func(s backup.Status) {
		hub.Broadcast(ws.Message{
			Type:   "backup_status",
			Entity: "backup",
			Action: string(s.State),
			Extra: map[string]any{
				"inProgress": s.InProgress,
				"error":      s.Error,
				"lastKey":    s.LastKey,
			},
		})
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.allowedOrigins))

	mux.HandleFunc("GET /api/meals", s.mealH.List)
	mux.HandleFunc("GET /api/meals/{id}", s.mealH.Get)
	mux.HandleFunc("POST /api/meals", s.rateLimitedHandler(s.mealH.Create))
	mux.HandleFunc("PUT /api/meals/{id}/favorite", s.rateLimitedHandler(s.mealH.SetFavorite))
	mux.HandleFunc("POST /api/meals/{id}/favorite/toggle", s.rateLimitedHandler(s.mealH.ToggleFavorite))
	mux.HandleFunc("POST /api/meals/reload", s.rateLimitedHandler(s.mealH.Reload))

	if s.backupH != nil {
		mux.HandleFunc("GET /api/backup/status", s.backupH.Status)
		mux.HandleFunc("POST /api/backup", s.rateLimitedHandler(s.backupH.Run))
		mux.HandleFunc("POST /api/backup/restore", s.rateLimitedHandler(s.backupH.Restore))
	}

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"meals":   s.meals.Len(),
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	limited := middleware.RateLimit(s.rateLimiter, s.proxies.ClientIP, mutationLimit, mutationWindow)(h)
	return limited.ServeHTTP
}
