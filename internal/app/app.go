package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cyncd/internal/config"
)

// Options are startup switches that come from the command line rather than
// the config file.
type Options struct {
	// ResetRegistry forgets every persisted entity before discovery, so
	// unique IDs that changed with the inventory stop showing up as orphans.
	ResetRegistry bool
}

// App owns the cyncd services and their lifecycle.
type App struct {
	cfg      *config.Config
	opts     Options
	services *Services

	ctx    context.Context
	cancel context.CancelCauseFunc

	stopOnce sync.Once
	stopErr  error
}

// New builds every service without starting any of them.
func New(cfg *config.Config, opts Options) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, opts: opts, services: services}, nil
}

// Start resets the registry if asked, then connects the devices, adopts the
// configured entities and starts the script and the API.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancelCause(ctx)

	if a.opts.ResetRegistry {
		log.Info().Msg("Clearing entity registry (--reset-registry)")
		if err := a.services.ClearRegistry(a.ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to clear entity registry")
		}
	}

	if err := a.services.Start(a.ctx, a.fail); err != nil {
		return err
	}

	transport := "mqtt"
	if !a.cfg.MQTT.Enabled {
		transport = "dry-run"
	}
	log.Info().
		Int("entities", len(a.services.Platform.List())).
		Str("transport", transport).
		Bool("script", a.services.Lua != nil).
		Bool("http", a.cfg.HTTP.Enabled).
		Msg("cyncd started")
	return nil
}

// fail stops the app after an unrecoverable service error. Wait returns err.
func (a *App) fail(err error) {
	log.Error().Err(err).Msg("Fatal error, initiating shutdown")
	a.cancel(err)
}

// Wait blocks until shutdown is requested. It returns the fatal error that
// caused it, or nil for a signal or a canceled parent context.
func (a *App) Wait() error {
	if a.ctx == nil {
		return nil
	}
	<-a.ctx.Done()

	cause := context.Cause(a.ctx)
	if errors.Is(cause, context.Canceled) {
		return nil
	}
	return cause
}

// Stop cancels the app context and releases every service. Safe to call
// more than once.
func (a *App) Stop() error {
	a.stopOnce.Do(func() {
		log.Info().Msg("Shutting down...")
		if a.cancel != nil {
			a.cancel(nil)
		}
		a.stopErr = a.services.Stop()
	})
	return a.stopErr
}

// SignalContext returns a context canceled on SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()
	return ctx
}
