// Package luaexec provides the interface Lua modules use to get back onto
// the Lua worker goroutine.
package luaexec

import (
	"context"

	lua "github.com/yuin/gopher-lua"
)

// Executor provides thread-safe Lua execution and state access.
type Executor interface {
	// Do queues work to be executed on the Lua VM
	Do(ctx context.Context, work func(ctx context.Context)) bool
	// LState returns the underlying Lua state (for use within Do callbacks only)
	LState() *lua.LState
}
