package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simracing-tools/laptrack/pkg/api/store"
	"github.com/simracing-tools/laptrack/pkg/config"
)

const (
	shutdownTimeout        = 10 * time.Second
	limiterCleanupInterval = time.Minute
)

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log     logrus.FieldLogger
	cfg     *config.APIConfig
	version string

	store      store.Store
	limiter    *rateLimiter
	httpServer *http.Server

	oauthClient     *http.Client
	discordTokenURL string
	discordAPIBase  string

	wg   sync.WaitGroup
	done chan struct{}
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.APIConfig,
	version string,
) Server {
	return &server{
		log:             log.WithField("component", "api"),
		cfg:             cfg,
		version:         version,
		oauthClient:     &http.Client{Timeout: discordTimeout},
		discordTokenURL: discordTokenURL,
		discordAPIBase:  discordAPIBase,
		done:            make(chan struct{}),
	}
}

// Start initializes the store, seeds config data, and starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	// Create and start the database store.
	s.store = store.NewStore(s.log, &s.cfg.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	// Seed leaderboards from config.
	if len(s.cfg.Leaderboards) > 0 {
		if err := s.store.SeedLeaderboards(ctx, s.cfg.Leaderboards); err != nil {
			return fmt.Errorf("seeding leaderboards: %w", err)
		}
	}

	s.limiter = newRateLimiter(&s.cfg.Server.RateLimit)

	// Build router and start HTTP server.
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start limiter cleanup goroutine.
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(limiterCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.limiter.cleanup()
			case <-s.done:
				return
			}
		}
	}()

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	// Start HTTP server.
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server and closes the store.
func (s *server) Stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}
