package modules

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/cyncd/internal/debounce"
	"github.com/dokzlo13/cyncd/internal/light"
	"github.com/dokzlo13/cyncd/internal/luaexec"
	"github.com/dokzlo13/cyncd/internal/platform"
)

// anyLight is the on_change key matching every entity.
const anyLight = "*"

// Lights is the entity surface exposed to scripts.
type Lights interface {
	List() []*light.Entity
	Get(uniqueID string) (*light.Entity, error)
	TurnOn(ctx context.Context, uniqueID string, params light.TurnOnParams) error
	TurnOff(ctx context.Context, uniqueID string) error
}

// CyncModule provides cync.* functions to Lua.
//
// Functions that can fail return (result, error_string):
//
//	local ok, err = cync.light("cync_switch_42"):turn_on({ brightness = 128 })
//	if not ok then
//	    log.error("turn_on failed", { err = err })
//	end
//
// State change handlers run on the Lua worker. With quiet_ms set, a burst
// of changes calls the handler once per entity after the burst settles:
//
//	cync.on_change("*", function(light)
//	    log.info("changed", { id = light:id(), on = light:is_on() })
//	end, { quiet_ms = 250 })
type CyncModule struct {
	lights   Lights
	exec     luaexec.Executor
	handlers map[string][]*changeHandler
	quiets   []*debounce.Quiet
}

type changeHandler struct {
	fn    *lua.LFunction
	quiet *debounce.Quiet // nil = immediate
}

// NewCyncModule creates a new cync module. exec is needed only for
// debounced handlers.
func NewCyncModule(lights Lights, exec luaexec.Executor) *CyncModule {
	return &CyncModule{
		lights:   lights,
		exec:     exec,
		handlers: make(map[string][]*changeHandler),
	}
}

// Loader is the module loader for Lua
func (m *CyncModule) Loader(L *lua.LState) int {
	registerLightType(L)

	mod := L.NewTable()
	L.SetField(mod, "lights", L.NewFunction(m.getLights))
	L.SetField(mod, "light", L.NewFunction(m.getLight))
	L.SetField(mod, "on_change", L.NewFunction(m.onChange))

	L.Push(mod)
	return 1
}

// cync.lights() -> { light, ... }
func (m *CyncModule) getLights(L *lua.LState) int {
	tbl := L.NewTable()
	for _, e := range m.lights.List() {
		tbl.Append(newLight(L, m.lights, e.UniqueID()))
	}
	L.Push(tbl)
	return 1
}

// cync.light(unique_id) -> light | nil, err
func (m *CyncModule) getLight(L *lua.LState) int {
	uid := L.CheckString(1)
	if _, err := m.lights.Get(uid); err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(newLight(L, m.lights, uid))
	return 1
}

// cync.on_change(unique_id | "*", fn, { quiet_ms = N })
func (m *CyncModule) onChange(L *lua.LState) int {
	uid := L.CheckString(1)
	h := &changeHandler{fn: L.CheckFunction(2)}

	opts := L.OptTable(3, L.NewTable())
	if ms, ok := opts.RawGetString("quiet_ms").(lua.LNumber); ok && ms > 0 {
		if m.exec == nil {
			L.RaiseError("quiet_ms is not available in this context")
			return 0
		}
		h.quiet = debounce.NewQuiet(time.Duration(ms)*time.Millisecond, func(keys []string) {
			m.exec.Do(context.Background(), func(context.Context) {
				for _, key := range keys {
					m.call(m.exec.LState(), h.fn, key)
				}
			})
		})
		m.quiets = append(m.quiets, h.quiet)
	}

	m.handlers[uid] = append(m.handlers[uid], h)
	return 0
}

// Dispatch calls the on_change handlers for uniqueID. Must run on the Lua
// worker goroutine.
func (m *CyncModule) Dispatch(L *lua.LState, uniqueID string) {
	if _, err := m.lights.Get(uniqueID); err != nil {
		return
	}

	handlers := append(append([]*changeHandler(nil), m.handlers[uniqueID]...), m.handlers[anyLight]...)
	for _, h := range handlers {
		if h.quiet != nil {
			h.quiet.Add(uniqueID)
			continue
		}
		m.call(L, h.fn, uniqueID)
	}
}

func (m *CyncModule) call(L *lua.LState, fn *lua.LFunction, uniqueID string) {
	if _, err := m.lights.Get(uniqueID); err != nil {
		return
	}
	err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, newLight(L, m.lights, uniqueID))
	if err != nil {
		log.Error().Err(err).Str("unique_id", uniqueID).Msg("Lua on_change handler failed")
	}
}

// Close stops pending debounced handlers.
func (m *CyncModule) Close() {
	for _, q := range m.quiets {
		q.Close()
	}
}

func luaContext(L *lua.LState) context.Context {
	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return platform.WithSource(ctx, "lua")
}
