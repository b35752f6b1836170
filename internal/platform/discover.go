package platform

import (
	"github.com/dokzlo13/cyncd/internal/cync"
	"github.com/dokzlo13/cyncd/internal/light"
)

// Options selects which devices are exposed as light entities.
type Options struct {
	Rooms     []string
	Subgroups []string
	Switches  []string
}

// Discover returns entities for every selected device that no entity owns
// yet. Plugs and fans are never exposed as lights.
func Discover(hub *cync.Hub, opts Options) []*light.Entity {
	rooms := toSet(opts.Rooms, opts.Subgroups)
	switches := toSet(opts.Switches)

	var entities []*light.Entity
	for _, room := range hub.Rooms() {
		if room.HasSubscribers() || !rooms[room.ID()] {
			continue
		}
		entities = append(entities, light.NewRoomEntity(room))
	}
	for _, sw := range hub.Switches() {
		if sw.HasSubscribers() || sw.IsPlug() || sw.IsFan() || !switches[sw.DeviceID()] {
			continue
		}
		entities = append(entities, light.NewSwitchEntity(sw))
	}
	return entities
}

func toSet(lists ...[]string) map[string]bool {
	set := make(map[string]bool)
	for _, list := range lists {
		for _, id := range list {
			set[id] = true
		}
	}
	return set
}
