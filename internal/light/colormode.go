// Package light adapts Cync rooms and switches to the host light-entity
// contract: power, brightness, color temperature, RGB and device metadata.
package light

// ColorMode is a host color mode identifier.
type ColorMode string

const (
	// ColorModeNone is reported while the light is off.
	ColorModeNone       ColorMode = ""
	ColorModeOnOff      ColorMode = "onoff"
	ColorModeBrightness ColorMode = "brightness"
	ColorModeColorTemp  ColorMode = "color_temp"
	ColorModeRGB        ColorMode = "rgb"
)

// Capabilities are the feature flags reported by a backing device.
type Capabilities struct {
	RGB        bool `json:"rgb"`
	ColorTemp  bool `json:"color_temp"`
	Brightness bool `json:"brightness"`
}

// SupportedColorModes resolves the set of color modes a device can be
// driven in. RGB and color temperature stack; brightness is only offered
// when neither is available, and on/off is the fallback.
func SupportedColorModes(caps Capabilities) []ColorMode {
	var modes []ColorMode
	if caps.RGB {
		modes = append(modes, ColorModeRGB)
	}
	if caps.ColorTemp {
		modes = append(modes, ColorModeColorTemp)
	}
	if len(modes) == 0 && caps.Brightness {
		modes = append(modes, ColorModeBrightness)
	}
	if len(modes) == 0 {
		modes = append(modes, ColorModeOnOff)
	}
	return modes
}

// ActiveColorMode returns the mode the device is currently in.
// RGB is only reported for color-temperature capable devices whose RGB
// channel is flagged active.
func ActiveColorMode(on bool, caps Capabilities, rgbActive bool) ColorMode {
	if !on {
		return ColorModeNone
	}
	if caps.ColorTemp {
		if caps.RGB && rgbActive {
			return ColorModeRGB
		}
		return ColorModeColorTemp
	}
	if caps.Brightness {
		return ColorModeBrightness
	}
	return ColorModeOnOff
}

// HasMode reports whether mode is present in modes.
func HasMode(modes []ColorMode, mode ColorMode) bool {
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}
