package light

import "math"

// Color temperature window, warmest to coldest.
const (
	MinColorTempKelvin = 2000
	MaxColorTempKelvin = 6500
)

const (
	devicePercentMax  = 100
	hostBrightnessMax = 255
)

// RGB is a color triple. Active is set by devices whose RGB channel is
// currently driving the output; it is ignored on writes.
type RGB struct {
	R      uint8 `json:"r"`
	G      uint8 `json:"g"`
	B      uint8 `json:"b"`
	Active bool  `json:"active,omitempty"`
}

// Triple returns the color as an [r, g, b] slice.
func (c RGB) Triple() []int {
	return []int{int(c.R), int(c.G), int(c.B)}
}

// BrightnessToHost maps device brightness (0-100) to host scale (0-255).
func BrightnessToHost(percent int) int {
	return int(math.RoundToEven(float64(percent) * hostBrightnessMax / devicePercentMax))
}

// BrightnessToDevice maps host brightness (0-255) to device scale (0-100).
func BrightnessToDevice(brightness int) int {
	pct := float64(brightness) * devicePercentMax / hostBrightnessMax
	return int(math.RoundToEven(clamp(pct, 0, devicePercentMax)))
}

// PercentToKelvin maps a device color temperature percent to Kelvin.
func PercentToKelvin(percent int) int {
	span := float64(MaxColorTempKelvin - MinColorTempKelvin)
	return int(math.RoundToEven(MinColorTempKelvin + span*(float64(percent)/devicePercentMax)))
}

// KelvinToPercent maps Kelvin to a device color temperature percent,
// clamped to 0-100.
func KelvinToPercent(kelvin int) int {
	span := float64(MaxColorTempKelvin - MinColorTempKelvin)
	pct := devicePercentMax * float64(kelvin-MinColorTempKelvin) / span
	return int(math.RoundToEven(clamp(pct, 0, devicePercentMax)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
