package cync

import (
	"context"
	"sync"

	"github.com/dokzlo13/cyncd/internal/light"
)

// Room is a Cync room or subgroup. Its state is an aggregate of its
// member switches, including the members of its subgroups.
type Room struct {
	hub         *Hub
	id          string
	name        string
	homeName    string
	switchIDs   []string
	subgroupIDs []string
	parent      *Room
	isSubgroup  bool

	members []*Switch
	caps    light.Capabilities

	mu        sync.RWMutex
	state     deviceState
	observers Observers
}

func (r *Room) ID() string                       { return r.id }
func (r *Room) Name() string                     { return r.name }
func (r *Room) HomeName() string                 { return r.homeName }
func (r *Room) IsSubgroup() bool                 { return r.isSubgroup }
func (r *Room) Capabilities() light.Capabilities { return r.caps }

// SwitchIDs returns member switch IDs in inventory order.
func (r *Room) SwitchIDs() []string { return append([]string(nil), r.switchIDs...) }

// SubgroupIDs returns subgroup room IDs in inventory order.
func (r *Room) SubgroupIDs() []string { return append([]string(nil), r.subgroupIDs...) }

// ParentRoom returns the parent room name of a subgroup.
func (r *Room) ParentRoom() string {
	if r.parent == nil {
		return ""
	}
	return r.parent.name
}

func (r *Room) PowerState() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.power
}

func (r *Room) Brightness() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.brightness
}

func (r *Room) ColorTemp() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.colorTemp
}

func (r *Room) RGB() light.RGB {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.rgb
}

// Subscribe registers fn for state changes.
func (r *Room) Subscribe(fn func()) func() {
	token := r.observers.Subscribe(fn)
	return func() { r.observers.Unsubscribe(token) }
}

// HasSubscribers reports whether an entity currently owns this room.
func (r *Room) HasSubscribers() bool {
	return r.observers.Len() > 0
}

// TurnOn sends an on command to the whole room. brightness is on host scale.
func (r *Room) TurnOn(ctx context.Context, rgb *light.RGB, brightness *int, colorTemp *int) error {
	return r.hub.send(ctx, onCommand(TargetRoom, r.id, r.homeName, rgb, brightness, colorTemp))
}

// TurnOff sends an off command to the whole room.
func (r *Room) TurnOff(ctx context.Context) error {
	return r.hub.send(ctx, Command{Target: TargetRoom, ID: r.id, Home: r.homeName})
}

// refresh recomputes the aggregate state and notifies observers on change.
func (r *Room) refresh() {
	next := aggregate(r.members)

	r.mu.Lock()
	changed := next != r.state
	r.state = next
	r.mu.Unlock()

	if changed {
		r.observers.Notify()
	}
}

// aggregate folds member states: power is on when any member is on, and
// levels are averaged over the members that are on (all members if none).
func aggregate(members []*Switch) deviceState {
	var st deviceState
	if len(members) == 0 {
		return st
	}

	type member struct {
		caps  light.Capabilities
		state deviceState
	}
	all := make([]member, 0, len(members))
	var on []member
	for _, sw := range members {
		m := member{caps: sw.caps, state: sw.snapshot()}
		all = append(all, m)
		if m.state.power {
			on = append(on, m)
		}
	}

	pool := on
	st.power = len(on) > 0
	if !st.power {
		pool = all
	}

	var bri, ct, ctN, r, g, b, rgbN int
	for _, m := range pool {
		bri += m.state.brightness
		if m.caps.ColorTemp {
			ct += m.state.colorTemp
			ctN++
		}
		if m.caps.RGB {
			r += int(m.state.rgb.R)
			g += int(m.state.rgb.G)
			b += int(m.state.rgb.B)
			rgbN++
			if m.state.rgb.Active {
				st.rgb.Active = true
			}
		}
	}
	st.brightness = mean(bri, len(pool))
	st.colorTemp = mean(ct, ctN)
	st.rgb.R = uint8(mean(r, rgbN))
	st.rgb.G = uint8(mean(g, rgbN))
	st.rgb.B = uint8(mean(b, rgbN))
	return st
}

func mean(sum, n int) int {
	if n == 0 {
		return 0
	}
	return (sum + n/2) / n
}

var (
	_ light.RoomDevice   = (*Room)(nil)
	_ light.SwitchDevice = (*Switch)(nil)
)
