package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	if s.cfg.Server.RateLimit.Enabled {
		r.Use(s.rateLimitMiddleware)
	}

	r.Use(s.authMiddleware)

	// Public endpoints.
	r.Get("/version", s.handleVersion)
	r.Get("/cars", s.handleCars)

	// Leaderboards.
	r.Route("/leaderboard/{track}", func(r chi.Router) {
		r.Get("/", s.handleGetLeaderboard)
		r.Get("/times", s.handleTopTimes)
		r.Post("/submit", s.handleSubmitTime)
	})

	// User.
	r.Get("/user", s.handleUser)
	r.Post("/user/logout", s.handleLogout)

	// Discord OAuth.
	r.Get("/discord", s.handleDiscordAuth)
	r.Get("/discord/callback", s.handleDiscordCallback)

	return r
}

// corsMiddleware returns a CORS handler configured from the API config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
