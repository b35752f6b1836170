package cync

import (
	"context"
	"sync"

	"github.com/dokzlo13/cyncd/internal/light"
)

// deviceState is the mutable state shared by switches and rooms.
type deviceState struct {
	power      bool
	brightness int // 0-100
	colorTemp  int // 0-100
	rgb        light.RGB
}

// Switch is a single Cync switch, bulb, plug or fan.
type Switch struct {
	hub      *Hub
	deviceID string
	name     string
	homeName string
	room     *Room
	plug     bool
	fan      bool
	caps     light.Capabilities

	// rooms lists every room whose aggregate includes this switch.
	rooms []*Room

	mu        sync.RWMutex
	state     deviceState
	observers Observers
}

func (s *Switch) DeviceID() string                 { return s.deviceID }
func (s *Switch) Name() string                     { return s.name }
func (s *Switch) HomeName() string                 { return s.homeName }
func (s *Switch) IsPlug() bool                     { return s.plug }
func (s *Switch) IsFan() bool                      { return s.fan }
func (s *Switch) Capabilities() light.Capabilities { return s.caps }

// RoomName returns the name of the room the switch belongs to.
func (s *Switch) RoomName() string {
	if s.room == nil {
		return ""
	}
	return s.room.name
}

func (s *Switch) PowerState() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.power
}

func (s *Switch) Brightness() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.brightness
}

func (s *Switch) ColorTemp() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.colorTemp
}

func (s *Switch) RGB() light.RGB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.rgb
}

func (s *Switch) snapshot() deviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn for state changes.
func (s *Switch) Subscribe(fn func()) func() {
	token := s.observers.Subscribe(fn)
	return func() { s.observers.Unsubscribe(token) }
}

// HasSubscribers reports whether an entity currently owns this switch.
func (s *Switch) HasSubscribers() bool {
	return s.observers.Len() > 0
}

// TurnOn sends an on command. brightness is on host scale.
func (s *Switch) TurnOn(ctx context.Context, rgb *light.RGB, brightness *int, colorTemp *int) error {
	return s.hub.send(ctx, onCommand(TargetSwitch, s.deviceID, s.homeName, rgb, brightness, colorTemp))
}

// TurnOff sends an off command.
func (s *Switch) TurnOff(ctx context.Context) error {
	return s.hub.send(ctx, Command{Target: TargetSwitch, ID: s.deviceID, Home: s.homeName})
}

// applyState merges u into the switch state and reports whether anything
// changed.
func (s *Switch) applyState(u StateUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	if u.Power != nil {
		next.power = *u.Power
	}
	if u.Brightness != nil {
		next.brightness = clampPercent(*u.Brightness)
	}
	if u.ColorTemp != nil {
		next.colorTemp = clampPercent(*u.ColorTemp)
	}
	if u.RGB != nil {
		next.rgb = *u.RGB
	}
	if next == s.state {
		return false
	}
	s.state = next
	return true
}

// commandUpdate converts a command into the state the switch would report
// after executing it, honoring the switch capabilities.
func (s *Switch) commandUpdate(cmd Command) StateUpdate {
	power := cmd.Power
	u := StateUpdate{Power: &power}
	if !cmd.Power {
		return u
	}
	if cmd.Brightness != nil && s.caps.Brightness {
		u.Brightness = cmd.Brightness
	}
	if cmd.ColorTemp != nil && s.caps.ColorTemp {
		u.ColorTemp = cmd.ColorTemp
	}
	if s.caps.RGB {
		switch {
		case cmd.RGB != nil:
			u.RGB = &light.RGB{R: cmd.RGB.R, G: cmd.RGB.G, B: cmd.RGB.B, Active: true}
		case u.ColorTemp != nil:
			rgb := s.RGB()
			rgb.Active = false
			u.RGB = &rgb
		}
	}
	return u
}

func onCommand(target TargetKind, id, home string, rgb *light.RGB, brightness *int, colorTemp *int) Command {
	cmd := Command{Target: target, ID: id, Home: home, Power: true, ColorTemp: colorTemp}
	if rgb != nil {
		cmd.RGB = &light.RGB{R: rgb.R, G: rgb.G, B: rgb.B}
	}
	if brightness != nil {
		pct := light.BrightnessToDevice(*brightness)
		cmd.Brightness = &pct
	}
	return cmd
}

func clampPercent(v int) int {
	return max(0, min(100, v))
}
