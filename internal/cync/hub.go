// Package cync models the Cync homes, rooms and switches the daemon
// controls. Devices hold the authoritative state; commands leave through a
// Commander and state reports come back through the Hub.
package cync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cyncd/internal/light"
)

// Home describes one Cync home in the inventory.
type Home struct {
	Name     string
	Rooms    []RoomSpec
	Switches []SwitchSpec
}

// RoomSpec describes a room or subgroup.
type RoomSpec struct {
	ID         string
	Name       string
	Switches   []string // member switch device IDs
	Subgroups  []string // subgroup room IDs
	ParentRoom string   // parent room ID, subgroups only
	IsSubgroup bool
}

// SwitchSpec describes a switch and its capabilities.
type SwitchSpec struct {
	DeviceID string
	Name     string
	Room     string // owning room ID
	Plug     bool
	Fan      bool
	Caps     light.Capabilities
}

// Hub owns every room and switch and routes commands and state reports.
type Hub struct {
	rooms    map[string]*Room
	switches map[string]*Switch

	mu        sync.RWMutex
	commander Commander
}

// NewHub builds the device graph from the inventory.
func NewHub(homes []Home) (*Hub, error) {
	h := &Hub{
		rooms:    make(map[string]*Room),
		switches: make(map[string]*Switch),
	}

	for _, home := range homes {
		for _, spec := range home.Switches {
			if _, dup := h.switches[spec.DeviceID]; dup {
				return nil, fmt.Errorf("duplicate switch %q", spec.DeviceID)
			}
			h.switches[spec.DeviceID] = &Switch{
				hub:      h,
				deviceID: spec.DeviceID,
				name:     spec.Name,
				homeName: home.Name,
				plug:     spec.Plug,
				fan:      spec.Fan,
				caps:     spec.Caps,
			}
		}
		for _, spec := range home.Rooms {
			if _, dup := h.rooms[spec.ID]; dup {
				return nil, fmt.Errorf("duplicate room %q", spec.ID)
			}
			h.rooms[spec.ID] = &Room{
				hub:         h,
				id:          spec.ID,
				name:        spec.Name,
				homeName:    home.Name,
				switchIDs:   append([]string(nil), spec.Switches...),
				subgroupIDs: append([]string(nil), spec.Subgroups...),
				isSubgroup:  spec.IsSubgroup,
			}
		}
	}

	if err := h.link(homes); err != nil {
		return nil, err
	}
	return h, nil
}

// link resolves references between rooms and switches.
func (h *Hub) link(homes []Home) error {
	for _, home := range homes {
		for _, spec := range home.Rooms {
			room := h.rooms[spec.ID]
			if spec.ParentRoom != "" {
				parent, ok := h.rooms[spec.ParentRoom]
				if !ok {
					return fmt.Errorf("room %q: parent %q: %w", spec.ID, spec.ParentRoom, ErrUnknownTarget)
				}
				room.parent = parent
			}
			for _, id := range spec.Switches {
				sw, ok := h.switches[id]
				if !ok {
					return fmt.Errorf("room %q: switch %q: %w", spec.ID, id, ErrUnknownTarget)
				}
				if sw.room == nil && !spec.IsSubgroup {
					sw.room = room
				}
			}
			for _, id := range spec.Subgroups {
				if _, ok := h.rooms[id]; !ok {
					return fmt.Errorf("room %q: subgroup %q: %w", spec.ID, id, ErrUnknownTarget)
				}
			}
		}
		for _, spec := range home.Switches {
			if spec.Room == "" {
				continue
			}
			room, ok := h.rooms[spec.Room]
			if !ok {
				return fmt.Errorf("switch %q: room %q: %w", spec.DeviceID, spec.Room, ErrUnknownTarget)
			}
			h.switches[spec.DeviceID].room = room
		}
	}

	for _, room := range h.rooms {
		room.members = h.collectMembers(room, make(map[string]bool))
		for _, sw := range room.members {
			room.caps.RGB = room.caps.RGB || sw.caps.RGB
			room.caps.ColorTemp = room.caps.ColorTemp || sw.caps.ColorTemp
			room.caps.Brightness = room.caps.Brightness || sw.caps.Brightness
			sw.rooms = append(sw.rooms, room)
		}
		room.refresh()
	}
	return nil
}

// collectMembers flattens a room's switches and its subgroups' switches.
func (h *Hub) collectMembers(room *Room, visited map[string]bool) []*Switch {
	if visited[room.id] {
		return nil
	}
	visited[room.id] = true

	seen := make(map[string]bool)
	var members []*Switch
	add := func(sw *Switch) {
		if !seen[sw.deviceID] {
			seen[sw.deviceID] = true
			members = append(members, sw)
		}
	}
	for _, id := range room.switchIDs {
		add(h.switches[id])
	}
	for _, id := range room.subgroupIDs {
		for _, sw := range h.collectMembers(h.rooms[id], visited) {
			add(sw)
		}
	}
	return members
}

// SetCommander installs the transport used for outgoing commands.
func (h *Hub) SetCommander(c Commander) {
	h.mu.Lock()
	h.commander = c
	h.mu.Unlock()
}

// Rooms returns every room ordered by ID.
func (h *Hub) Rooms() []*Room {
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].id < rooms[j].id })
	return rooms
}

// Switches returns every switch ordered by device ID.
func (h *Hub) Switches() []*Switch {
	switches := make([]*Switch, 0, len(h.switches))
	for _, s := range h.switches {
		switches = append(switches, s)
	}
	sort.Slice(switches, func(i, j int) bool { return switches[i].deviceID < switches[j].deviceID })
	return switches
}

// SwitchIDs returns every switch device ID in order.
func (h *Hub) SwitchIDs() []string {
	ids := make([]string, 0, len(h.switches))
	for id := range h.switches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Room looks up a room by ID.
func (h *Hub) Room(id string) (*Room, bool) {
	r, ok := h.rooms[id]
	return r, ok
}

// Switch looks up a switch by device ID.
func (h *Hub) Switch(id string) (*Switch, bool) {
	s, ok := h.switches[id]
	return s, ok
}

// ApplySwitchState merges a state report into a switch and refreshes every
// room that contains it.
func (h *Hub) ApplySwitchState(deviceID string, u StateUpdate) error {
	sw, ok := h.switches[deviceID]
	if !ok {
		return fmt.Errorf("switch %q: %w", deviceID, ErrUnknownTarget)
	}
	h.applySwitch(sw, u)
	return nil
}

// ApplyCommand updates state as if the devices had executed cmd.
func (h *Hub) ApplyCommand(cmd Command) error {
	var targets []*Switch
	switch cmd.Target {
	case TargetSwitch:
		sw, ok := h.switches[cmd.ID]
		if !ok {
			return fmt.Errorf("switch %q: %w", cmd.ID, ErrUnknownTarget)
		}
		targets = []*Switch{sw}
	case TargetRoom:
		room, ok := h.rooms[cmd.ID]
		if !ok {
			return fmt.Errorf("room %q: %w", cmd.ID, ErrUnknownTarget)
		}
		targets = room.members
	default:
		return fmt.Errorf("target kind %q: %w", cmd.Target, ErrUnknownTarget)
	}

	for _, sw := range targets {
		h.applySwitch(sw, sw.commandUpdate(cmd))
	}
	return nil
}

func (h *Hub) applySwitch(sw *Switch, u StateUpdate) {
	if !sw.applyState(u) {
		return
	}
	log.Debug().
		Str("device_id", sw.deviceID).
		Bool("power", sw.PowerState()).
		Int("brightness", sw.Brightness()).
		Msg("Switch state changed")

	sw.observers.Notify()
	for _, room := range sw.rooms {
		room.refresh()
	}
}

var errNoCommander = errors.New("no commander configured")

func (h *Hub) send(ctx context.Context, cmd Command) error {
	h.mu.RLock()
	c := h.commander
	h.mu.RUnlock()

	if c == nil {
		return errNoCommander
	}

	log.Debug().
		Str("target", string(cmd.Target)).
		Str("id", cmd.ID).
		Str("command", cmd.Name()).
		Msg("Sending command")

	if err := c.Send(ctx, cmd); err != nil {
		return fmt.Errorf("%s %s %q: %w", cmd.Name(), cmd.Target, cmd.ID, err)
	}
	return nil
}
