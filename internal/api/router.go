package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Yashvi2874/tradetalents/internal/api/middleware"
	"github.com/Yashvi2874/tradetalents/internal/auth"
	"github.com/Yashvi2874/tradetalents/internal/handlers"
	"github.com/Yashvi2874/tradetalents/internal/relay"
	"github.com/Yashvi2874/tradetalents/internal/store"
)

// Deps bundles the router's collaborators.
type Deps struct {
	Logger         zerolog.Logger
	DB             store.DataStore
	Redis          *store.RedisStore // may be nil
	Tokens         *auth.TokenManager
	Relay          *relay.Relay
	AllowedOrigins []string
}

// NewRouter creates and configures the HTTP router: the REST API under
// /api and the relay's websocket endpoint at /ws.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (pass-through without Redis)
	limiter := middleware.NewRateLimiter(deps.Redis, deps.Logger)
	r.Use(limiter.Middleware)

	// CORS mirrors the relay's websocket origin allow-list.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(deps.DB, deps.Redis, deps.Tokens, deps.Relay)
	authmw := middleware.NewAuthMiddleware(deps.Tokens, deps.DB)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Relay websocket endpoint; identity comes from the bearer token
	// presented at handshake, never from event payloads.
	wsHandler := relay.NewHandler(deps.Relay, deps.AllowedOrigins, identityFromToken(deps.Tokens), deps.Logger)
	r.Handle("/ws", wsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.With(authmw.RequireAuth).Get("/me", h.Me)
		})

		// Public skill catalog
		r.Get("/skills", h.ListSkills)
		r.Get("/skills/{id}", h.GetSkill)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth)

			r.Get("/users/profile", h.GetProfile)
			r.Put("/users/profile", h.UpdateProfile)
			r.Get("/users/skills", h.GetUserSkills)
			r.Post("/users/skills", h.AddUserSkill)

			r.Post("/skills", h.CreateSkill)
			r.Put("/skills/{id}", h.UpdateSkill)
			r.Delete("/skills/{id}", h.DeleteSkill)

			r.Get("/sessions", h.ListSessions)
			r.Post("/sessions", h.CreateSession)
			r.Get("/sessions/{id}", h.GetSession)
			r.Put("/sessions/{id}", h.UpdateSession)
			r.Delete("/sessions/{id}", h.DeleteSession)
			r.Post("/sessions/{id}/join", h.JoinSession)
		})
	})

	return r
}

// identityFromToken authenticates a websocket handshake from its bearer
// token.
func identityFromToken(tokens *auth.TokenManager) relay.IdentityFunc {
	return func(r *http.Request) (relay.Identity, error) {
		claims, err := tokens.Verify(middleware.BearerToken(r))
		if err != nil {
			return relay.Identity{}, err
		}
		if _, err := uuid.Parse(claims.Subject); err != nil {
			return relay.Identity{}, err
		}
		return relay.Identity{UserID: claims.Subject, UserName: claims.Name}, nil
	}
}
