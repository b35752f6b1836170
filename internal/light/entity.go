package light

import (
	"context"
)

// Device is the backing object an entity projects. Rooms and switches
// both implement it; the entity never caches any of these values.
type Device interface {
	Name() string
	HomeName() string
	PowerState() bool
	// Brightness is on device scale (0-100).
	Brightness() int
	// ColorTemp is on device scale (0-100, warm to cold).
	ColorTemp() int
	RGB() RGB
	Capabilities() Capabilities

	// Subscribe registers a state-change callback and returns the
	// function that releases it.
	Subscribe(fn func()) (unsubscribe func())

	// TurnOn sends an on command. nil arguments leave the corresponding
	// attribute unchanged. brightness is on host scale (0-255).
	TurnOn(ctx context.Context, rgb *RGB, brightness *int, colorTempPercent *int) error
	TurnOff(ctx context.Context) error
}

// TurnOnParams carries the optional attributes of a turn-on request.
type TurnOnParams struct {
	RGB             *RGB
	Brightness      *int // host scale, 0-255
	ColorTempKelvin *int
}

// Entity is a host light entity backed by a Cync room or switch.
type Entity struct {
	device      Device
	identity    identity
	supported   []ColorMode
	unsubscribe func()
}

func newEntity(device Device, id identity) *Entity {
	return &Entity{
		device:    device,
		identity:  id,
		supported: SupportedColorModes(device.Capabilities()),
	}
}

// Kind returns whether the entity wraps a room or a switch.
func (e *Entity) Kind() Kind { return e.identity.kind() }

// UniqueID returns the stable registry identifier.
func (e *Entity) UniqueID() string { return e.identity.uniqueID() }

// Name returns the device name.
func (e *Entity) Name() string { return e.device.Name() }

// Icon returns the entity icon, or "" for the host default.
func (e *Entity) Icon() string { return e.identity.icon() }

// DeviceInfo returns device registry information.
func (e *Entity) DeviceInfo() DeviceInfo { return e.identity.deviceInfo() }

// IsOn reports the device power state.
func (e *Entity) IsOn() bool { return e.device.PowerState() }

// Brightness returns brightness on host scale (0-255).
func (e *Entity) Brightness() int {
	return BrightnessToHost(e.device.Brightness())
}

// ColorTempKelvin returns the color temperature in Kelvin. ok is false when
// the device has no color temperature support.
func (e *Entity) ColorTempKelvin() (kelvin int, ok bool) {
	if !e.device.Capabilities().ColorTemp {
		return 0, false
	}
	return PercentToKelvin(e.device.ColorTemp()), true
}

// RGBColor returns the current color. ok is false when the device has no
// RGB support.
func (e *Entity) RGBColor() (color RGB, ok bool) {
	if !e.device.Capabilities().RGB {
		return RGB{}, false
	}
	c := e.device.RGB()
	return RGB{R: c.R, G: c.G, B: c.B}, true
}

// ColorMode returns the active color mode, ColorModeNone while off.
func (e *Entity) ColorMode() ColorMode {
	return ActiveColorMode(e.IsOn(), e.device.Capabilities(), e.device.RGB().Active)
}

// SupportedColorModes returns the modes resolved when the entity was built.
func (e *Entity) SupportedColorModes() []ColorMode {
	return append([]ColorMode(nil), e.supported...)
}

// Added subscribes refresh to the backing device's state changes.
// Calling Added on an already added entity replaces the subscription.
func (e *Entity) Added(refresh func()) {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	e.unsubscribe = e.device.Subscribe(refresh)
}

// WillRemove releases the entity's subscription so the device can be
// adopted again.
func (e *Entity) WillRemove() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// TurnOn forwards the request to the device, converting Kelvin to the
// device's color temperature percent.
func (e *Entity) TurnOn(ctx context.Context, params TurnOnParams) error {
	var ctPercent *int
	if params.ColorTempKelvin != nil {
		pct := KelvinToPercent(*params.ColorTempKelvin)
		ctPercent = &pct
	}
	return e.device.TurnOn(ctx, params.RGB, params.Brightness, ctPercent)
}

// TurnOff forwards an off command to the device.
func (e *Entity) TurnOff(ctx context.Context) error {
	return e.device.TurnOff(ctx)
}

// State is a point-in-time projection of every entity property.
type State struct {
	UniqueID            string      `json:"unique_id"`
	Kind                Kind        `json:"kind"`
	Name                string      `json:"name"`
	Icon                string      `json:"icon,omitempty"`
	IsOn                bool        `json:"is_on"`
	Brightness          int         `json:"brightness"`
	ColorTempKelvin     *int        `json:"color_temp_kelvin"`
	RGBColor            []int       `json:"rgb_color"`
	ColorMode           ColorMode   `json:"color_mode,omitempty"`
	SupportedColorModes []ColorMode `json:"supported_color_modes"`
	MinColorTempKelvin  int         `json:"min_color_temp_kelvin"`
	MaxColorTempKelvin  int         `json:"max_color_temp_kelvin"`
	DeviceInfo          DeviceInfo  `json:"device_info"`
}

// State reads every property once.
func (e *Entity) State() State {
	st := State{
		UniqueID:            e.UniqueID(),
		Kind:                e.Kind(),
		Name:                e.Name(),
		Icon:                e.Icon(),
		IsOn:                e.IsOn(),
		Brightness:          e.Brightness(),
		ColorMode:           e.ColorMode(),
		SupportedColorModes: e.SupportedColorModes(),
		MinColorTempKelvin:  MinColorTempKelvin,
		MaxColorTempKelvin:  MaxColorTempKelvin,
		DeviceInfo:          e.DeviceInfo(),
	}
	if k, ok := e.ColorTempKelvin(); ok {
		st.ColorTempKelvin = &k
	}
	if c, ok := e.RGBColor(); ok {
		st.RGBColor = c.Triple()
	}
	return st
}
