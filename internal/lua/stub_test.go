package lua

import (
	"context"
	"fmt"

	"github.com/dokzlo13/cyncd/internal/light"
)

type stubDevice struct {
	name string
}

func (d *stubDevice) Name() string                     { return d.name }
func (d *stubDevice) HomeName() string                 { return "Home" }
func (d *stubDevice) PowerState() bool                 { return true }
func (d *stubDevice) Brightness() int                  { return 100 }
func (d *stubDevice) ColorTemp() int                   { return 0 }
func (d *stubDevice) RGB() light.RGB                   { return light.RGB{} }
func (d *stubDevice) Capabilities() light.Capabilities { return light.Capabilities{Brightness: true} }
func (d *stubDevice) Subscribe(func()) func()          { return func() {} }
func (d *stubDevice) TurnOff(context.Context) error    { return nil }
func (d *stubDevice) SwitchIDs() []string              { return []string{"1"} }
func (d *stubDevice) SubgroupIDs() []string            { return nil }
func (d *stubDevice) IsSubgroup() bool                 { return false }
func (d *stubDevice) ParentRoom() string               { return "" }

func (d *stubDevice) TurnOn(context.Context, *light.RGB, *int, *int) error {
	return nil
}

type stubLights struct {
	entities map[string]*light.Entity
}

func newStubLights(uids ...string) *stubLights {
	l := &stubLights{entities: make(map[string]*light.Entity)}
	for _, uid := range uids {
		l.entities[uid] = light.NewRoomEntity(&stubDevice{name: uid})
	}
	return l
}

func (l *stubLights) List() []*light.Entity {
	var out []*light.Entity
	for _, e := range l.entities {
		out = append(out, e)
	}
	return out
}

func (l *stubLights) Get(uid string) (*light.Entity, error) {
	if e, ok := l.entities[uid]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%s: not found", uid)
}

func (l *stubLights) TurnOn(context.Context, string, light.TurnOnParams) error { return nil }

func (l *stubLights) TurnOff(context.Context, string) error { return nil }
