package app

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cyncd/internal/config"
	"github.com/dokzlo13/cyncd/internal/db"
	"github.com/dokzlo13/cyncd/internal/eventbus"
	"github.com/dokzlo13/cyncd/internal/httpapi"
	"github.com/dokzlo13/cyncd/internal/ledger"
	"github.com/dokzlo13/cyncd/internal/metrics"
	"github.com/dokzlo13/cyncd/internal/platform"
	"github.com/dokzlo13/cyncd/internal/storage"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB       *db.DB
	Store    *storage.Store
	Ledger   *ledger.Ledger
	Bus      *eventbus.Bus
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// High-level services
	Devices  *DeviceService
	Platform *platform.Platform
	Lua      *LuaService // nil without a script
	HTTP     *HTTPService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Store = storage.NewStore(database.DB)
	s.Ledger = ledger.New(database.DB)
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	s.Registry = prometheus.NewRegistry()
	s.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.Metrics = metrics.New(s.Registry)

	s.Devices, err = NewDeviceService(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Platform = platform.New(s.Bus, s.Store, s.Ledger, s.Metrics)

	if cfg.Script != "" {
		s.Lua = NewLuaService(cfg, s.Platform, s.Bus)
	}

	api := httpapi.NewServer(s.Platform, s.Ledger, s.Registry, s.Devices.Ready)
	s.HTTP = NewHTTPService(cfg, api.Router())

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	// Transport first so adopted entities can send commands right away
	if err := s.Devices.Start(ctx); err != nil {
		return err
	}

	opts := platform.Options{
		Rooms:     s.cfg.Options.Rooms,
		Subgroups: s.cfg.Options.Subgroups,
		Switches:  s.cfg.Options.Switches,
	}
	if err := s.Platform.Setup(ctx, s.Devices.Hub, opts); err != nil {
		return err
	}

	// Load Lua script before starting worker
	if s.Lua != nil {
		if err := s.Lua.LoadScript(); err != nil {
			return err
		}
		s.Lua.Start(ctx)
	}

	s.HTTP.Start(ctx, onFatalError)

	if s.cfg.Ledger.RetentionDays > 0 {
		go s.runLedgerCleanup(ctx)
	}

	return nil
}

// runLedgerCleanup periodically cleans up old ledger entries.
func (s *Services) runLedgerCleanup(ctx context.Context) {
	retention := s.cfg.Ledger.Retention()
	interval := s.cfg.Ledger.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.Ledger.DeleteOlderThan(ctx, retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}

// ClearRegistry drops every persisted entity registry entry.
func (s *Services) ClearRegistry(ctx context.Context) error {
	return s.Platform.ClearRegistry(ctx)
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Platform != nil {
		s.Platform.Shutdown()
	}
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.Devices != nil {
		s.Devices.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		s.Bus.Close(ctx)
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
