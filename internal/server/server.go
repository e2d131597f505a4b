package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/choregame/internal/game"
	"github.com/dukerupert/choregame/internal/handler"
	"github.com/dukerupert/choregame/internal/metrics"
	"github.com/dukerupert/choregame/internal/middleware"
	"github.com/dukerupert/choregame/internal/push"
	"github.com/dukerupert/choregame/internal/store"
	ws "github.com/dukerupert/choregame/internal/websocket"
)

// Options carries the collaborators built by main. Mailer and Pusher may be
// nil to disable that channel.
type Options struct {
	Mailer         game.Mailer
	Pusher         push.Sender
	VAPIDPublicKey string
	Game           game.Config
	Metrics        *metrics.Metrics
	MetricsUser    string
	MetricsPass    string
	// Requests per minute allowed per client on write endpoints.
	WriteRateLimit float64
	WriteBurst     int
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	game        *game.Service
	gameH       *handler.GameHandler
	pushH       *handler.PushHandler
	metrics     *metrics.Metrics
	metricsUser string
	metricsPass string
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	pusher := opts.Pusher
	if pusher == nil {
		pusher = &push.Router{}
	}
	if opts.WriteRateLimit <= 0 {
		opts.WriteRateLimit = 30
	}
	if opts.WriteBurst <= 0 {
		opts.WriteBurst = 10
	}

	hub := ws.NewHub(logger.With("component", "websocket"))

	stores := game.Stores{
		Users:      store.NewUserStore(db),
		Games:      store.NewGameStore(db),
		Tasks:      store.NewTaskStore(db),
		Events:     store.NewEventStore(db),
		Challenges: store.NewChallengeStore(db),
		Mail:       store.NewMailStore(db),
	}
	svc := game.NewService(stores, opts.Mailer, opts.Pusher, hub, opts.Game, logger, m)

	return &Server{
		db:          db,
		hub:         hub,
		game:        svc,
		gameH:       handler.NewGameHandler(svc, stores.Events, stores.Challenges, stores.Mail, logger.With("component", "game_handler")),
		pushH:       handler.NewPushHandler(stores.Users, stores.Games, pusher, opts.VAPIDPublicKey, logger.With("component", "push_handler")),
		metrics:     m,
		metricsUser: opts.MetricsUser,
		metricsPass: opts.MetricsPass,
		rateLimiter: middleware.NewRateLimiter(opts.WriteRateLimit, opts.WriteBurst),
		logger:      logger,
	}
}

// Game returns the game service so main can drain background work.
func (s *Server) Game() *game.Service {
	return s.game
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", middleware.BasicAuth(s.metricsUser, s.metricsPass)(s.metrics.Handler()))
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	// Game transitions
	mux.HandleFunc("POST /api/games/{game_id}/tasks/{task_id}/complete", s.rateLimited(s.gameH.CompleteTask))
	mux.HandleFunc("POST /api/events/{id}/challenges", s.rateLimited(s.gameH.CreateChallenge))
	mux.HandleFunc("PUT /api/challenges/{id}", s.rateLimited(s.gameH.DecideChallenge))

	mux.HandleFunc("GET /api/tasks/{id}/events", s.gameH.ListEvents)
	mux.HandleFunc("GET /api/events/{id}/challenges", s.gameH.ListChallenges)
	mux.HandleFunc("GET /api/users/{id}/mail", s.gameH.ListMail)

	// Game setup
	mux.HandleFunc("POST /api/games/{id}/players", s.gameH.AddPlayers)
	mux.HandleFunc("POST /api/games/{game_id}/players/{user_id}/join", s.rateLimited(s.gameH.JoinGame))
	mux.HandleFunc("GET /api/games/{id}/initiation", s.gameH.InitiationCheck)

	// Push registration
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("PUT /api/users/{id}/device-token", s.pushH.SetDeviceToken)
	mux.HandleFunc("PUT /api/games/{game_id}/players/{user_id}/notifications", s.pushH.UpdatePlayerNotifications)
	mux.HandleFunc("POST /api/users/{id}/push-test", s.rateLimited(s.pushH.TestNotification))

	logged := middleware.RequestLogger(s.logger.With("component", "http"))(mux)
	return middleware.Monitor(s.metrics)(logged)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP)
	return rl(h).ServeHTTP
}
