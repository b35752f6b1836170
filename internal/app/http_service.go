package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cyncd/internal/config"
)

// HTTPService serves the REST API, health checks and metrics.
type HTTPService struct {
	cfg     *config.Config
	handler http.Handler
	server  *http.Server
}

// NewHTTPService creates a new HTTPService.
func NewHTTPService(cfg *config.Config, handler http.Handler) *HTTPService {
	return &HTTPService{
		cfg:     cfg,
		handler: handler,
	}
}

// Start begins serving if enabled. Listen failures are reported to
// onFatalError.
func (s *HTTPService) Start(ctx context.Context, onFatalError func(error)) {
	if !s.cfg.HTTP.Enabled {
		log.Info().Msg("HTTP API is disabled")
		return
	}

	go s.run(ctx, onFatalError)
}

func (s *HTTPService) run(ctx context.Context, onFatalError func(error)) {
	addr := s.cfg.HTTP.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
	}

	log.Info().Str("addr", addr).Msg("Starting HTTP server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if onFatalError != nil {
			onFatalError(fmt.Errorf("http server: %w", err))
		}
	}
}
