package lua

import (
	"github.com/dokzlo13/cyncd/internal/eventbus"
	"github.com/dokzlo13/cyncd/internal/lua/modules"
)

// RuntimeDeps groups all dependencies needed by Lua runtime.
type RuntimeDeps struct {
	Lights modules.Lights
	Bus    *eventbus.Bus
}
