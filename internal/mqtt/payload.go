package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/dokzlo13/cyncd/internal/cync"
	"github.com/dokzlo13/cyncd/internal/light"
)

const (
	stateOn  = "ON"
	stateOff = "OFF"
)

type colorPayload struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// commandPayload is the JSON body of a command message. Levels are on
// device scale (0-100).
type commandPayload struct {
	State      string        `json:"state"`
	Brightness *int          `json:"brightness,omitempty"`
	ColorTemp  *int          `json:"color_temp,omitempty"`
	Color      *colorPayload `json:"color,omitempty"`
}

// statePayload is the JSON body of a switch state report.
type statePayload struct {
	State       string        `json:"state,omitempty"`
	Brightness  *int          `json:"brightness,omitempty"`
	ColorTemp   *int          `json:"color_temp,omitempty"`
	Color       *colorPayload `json:"color,omitempty"`
	ColorActive *bool         `json:"color_active,omitempty"`
}

func encodeCommand(cmd cync.Command) ([]byte, error) {
	p := commandPayload{
		State:      stateOff,
		Brightness: cmd.Brightness,
		ColorTemp:  cmd.ColorTemp,
	}
	if cmd.Power {
		p.State = stateOn
	}
	if cmd.RGB != nil {
		p.Color = &colorPayload{R: cmd.RGB.R, G: cmd.RGB.G, B: cmd.RGB.B}
	}
	return json.Marshal(p)
}

func decodeState(data []byte) (cync.StateUpdate, error) {
	var p statePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return cync.StateUpdate{}, fmt.Errorf("failed to decode state: %w", err)
	}

	u := cync.StateUpdate{
		Brightness: p.Brightness,
		ColorTemp:  p.ColorTemp,
	}
	switch p.State {
	case "":
	case stateOn, "on":
		on := true
		u.Power = &on
	case stateOff, "off":
		off := false
		u.Power = &off
	default:
		return cync.StateUpdate{}, fmt.Errorf("unknown power state %q", p.State)
	}
	if p.Color != nil {
		u.RGB = &light.RGB{R: p.Color.R, G: p.Color.G, B: p.Color.B, Active: p.ColorActive == nil || *p.ColorActive}
	}
	return u, nil
}
