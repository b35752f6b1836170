package cync

import (
	"context"
	"errors"

	"github.com/dokzlo13/cyncd/internal/light"
)

// ErrUnknownTarget is returned when a command or state report names a
// device the hub does not know.
var ErrUnknownTarget = errors.New("unknown cync target")

// TargetKind is the addressed device type of a command.
type TargetKind string

const (
	TargetRoom   TargetKind = "room"
	TargetSwitch TargetKind = "switch"
)

// Command is a control request sent to the devices. Nil fields leave the
// attribute unchanged. Brightness and ColorTemp are on device scale.
type Command struct {
	Target     TargetKind `json:"target"`
	ID         string     `json:"id"`
	Home       string     `json:"home"`
	Power      bool       `json:"power"`
	RGB        *light.RGB `json:"rgb,omitempty"`
	Brightness *int       `json:"brightness,omitempty"`
	ColorTemp  *int       `json:"color_temp,omitempty"`
}

// Name returns "turn_on" or "turn_off".
func (c Command) Name() string {
	if c.Power {
		return "turn_on"
	}
	return "turn_off"
}

// Commander delivers commands to the physical devices.
type Commander interface {
	Send(ctx context.Context, cmd Command) error
}

// StateUpdate is a state report for one switch. Nil fields are unchanged.
type StateUpdate struct {
	Power      *bool      `json:"power,omitempty"`
	Brightness *int       `json:"brightness,omitempty"`
	ColorTemp  *int       `json:"color_temp,omitempty"`
	RGB        *light.RGB `json:"rgb,omitempty"`
}

// DryRunCommander applies commands straight back to the hub instead of
// talking to hardware.
type DryRunCommander struct {
	hub *Hub
}

// NewDryRunCommander creates a commander that echoes commands into hub.
func NewDryRunCommander(hub *Hub) *DryRunCommander {
	return &DryRunCommander{hub: hub}
}

// Send applies cmd as if the devices had reported it.
func (c *DryRunCommander) Send(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.hub.ApplyCommand(cmd)
}
