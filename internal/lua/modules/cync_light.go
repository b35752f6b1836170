package modules

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/cyncd/internal/light"
)

const lightTypeName = "cync.light"

// LightUserdata is a handle to a registered entity. State is read from the
// entity on every call.
type LightUserdata struct {
	uniqueID string
	lights   Lights
}

func registerLightType(L *lua.LState) {
	mt := L.NewTypeMetatable(lightTypeName)
	methods := map[string]lua.LGFunction{
		"id":         lightID,
		"name":       lightName,
		"is_on":      lightIsOn,
		"brightness": lightBrightness,
		"kelvin":     lightKelvin,
		"rgb":        lightRGB,
		"color_mode": lightColorMode,
		"turn_on":    lightTurnOn,
		"turn_off":   lightTurnOff,
	}
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), methods))
}

func newLight(L *lua.LState, lights Lights, uniqueID string) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = &LightUserdata{uniqueID: uniqueID, lights: lights}
	L.SetMetatable(ud, L.GetTypeMetatable(lightTypeName))
	return ud
}

// checkLight resolves the receiver and its entity. Raises a Lua error if
// the entity is gone.
func checkLight(L *lua.LState) (*LightUserdata, *light.Entity) {
	ud := L.CheckUserData(1)
	lu, ok := ud.Value.(*LightUserdata)
	if !ok {
		L.ArgError(1, "cync.light expected")
		return nil, nil
	}
	e, err := lu.lights.Get(lu.uniqueID)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return nil, nil
	}
	return lu, e
}

// light:id() -> string
func lightID(L *lua.LState) int {
	lu, _ := checkLight(L)
	L.Push(lua.LString(lu.uniqueID))
	return 1
}

// light:name() -> string
func lightName(L *lua.LState) int {
	_, e := checkLight(L)
	L.Push(lua.LString(e.Name()))
	return 1
}

// light:is_on() -> bool
func lightIsOn(L *lua.LState) int {
	_, e := checkLight(L)
	L.Push(lua.LBool(e.IsOn()))
	return 1
}

// light:brightness() -> 0-255
func lightBrightness(L *lua.LState) int {
	_, e := checkLight(L)
	L.Push(lua.LNumber(e.Brightness()))
	return 1
}

// light:kelvin() -> number | nil
func lightKelvin(L *lua.LState) int {
	_, e := checkLight(L)
	if k, ok := e.ColorTempKelvin(); ok {
		L.Push(lua.LNumber(k))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

// light:rgb() -> { r, g, b } | nil
func lightRGB(L *lua.LState) int {
	_, e := checkLight(L)
	c, ok := e.RGBColor()
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	tbl := L.NewTable()
	L.SetField(tbl, "r", lua.LNumber(c.R))
	L.SetField(tbl, "g", lua.LNumber(c.G))
	L.SetField(tbl, "b", lua.LNumber(c.B))
	L.Push(tbl)
	return 1
}

// light:color_mode() -> string | nil
func lightColorMode(L *lua.LState) int {
	_, e := checkLight(L)
	if mode := e.ColorMode(); mode != light.ColorModeNone {
		L.Push(lua.LString(mode))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

// light:turn_on({ brightness = 0-255, kelvin = K, rgb = { r, g, b } }) -> true | false, err
func lightTurnOn(L *lua.LState) int {
	lu, _ := checkLight(L)
	opts := L.OptTable(2, L.NewTable())

	params, err := turnOnParams(opts)
	if err != "" {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err))
		return 2
	}
	return pushResult(L, lu.lights.TurnOn(luaContext(L), lu.uniqueID, params))
}

// light:turn_off() -> true | false, err
func lightTurnOff(L *lua.LState) int {
	lu, _ := checkLight(L)
	return pushResult(L, lu.lights.TurnOff(luaContext(L), lu.uniqueID))
}

func pushResult(L *lua.LState, err error) int {
	if err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func turnOnParams(opts *lua.LTable) (light.TurnOnParams, string) {
	var params light.TurnOnParams

	if v, ok := opts.RawGetString("brightness").(lua.LNumber); ok {
		b := int(v)
		params.Brightness = &b
	}
	if v, ok := opts.RawGetString("kelvin").(lua.LNumber); ok {
		k := int(v)
		params.ColorTempKelvin = &k
	}
	switch v := opts.RawGetString("rgb").(type) {
	case *lua.LTable:
		var c [3]int
		for i, key := range []string{"r", "g", "b"} {
			n, ok := v.RawGetString(key).(lua.LNumber)
			if !ok {
				n, ok = v.RawGetInt(i + 1).(lua.LNumber)
			}
			if !ok || n < 0 || n > 255 {
				return params, "rgb must hold three values in 0-255"
			}
			c[i] = int(n)
		}
		params.RGB = &light.RGB{R: uint8(c[0]), G: uint8(c[1]), B: uint8(c[2])}
	case *lua.LNilType:
	default:
		return params, "rgb must be a table"
	}
	return params, ""
}
