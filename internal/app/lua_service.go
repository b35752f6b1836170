package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cyncd/internal/config"
	"github.com/dokzlo13/cyncd/internal/eventbus"
	luart "github.com/dokzlo13/cyncd/internal/lua"
	"github.com/dokzlo13/cyncd/internal/lua/modules"
)

// LuaService wraps the Lua runtime running the automation script.
type LuaService struct {
	cfg     *config.Config
	Runtime *luart.Runtime
}

// NewLuaService creates a new LuaService.
func NewLuaService(cfg *config.Config, lights modules.Lights, bus *eventbus.Bus) *LuaService {
	return &LuaService{
		cfg:     cfg,
		Runtime: luart.NewRuntime(luart.RuntimeDeps{Lights: lights, Bus: bus}),
	}
}

// LoadScript loads and executes the Lua script.
// Must be called before Start().
func (s *LuaService) LoadScript() error {
	return s.Runtime.LoadScript(s.cfg.Script)
}

// Start begins the Lua worker goroutine.
func (s *LuaService) Start(ctx context.Context) {
	// The worker is the ONLY goroutine that touches Lua
	go s.Runtime.Run(ctx)
	log.Info().Str("script", s.cfg.Script).Msg("Lua worker started")
}

// Close closes the Lua runtime.
func (s *LuaService) Close() {
	if s.Runtime != nil {
		s.Runtime.Close()
	}
}
