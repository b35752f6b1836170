package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dokzlo13/cyncd/internal/config"
	"github.com/dokzlo13/cyncd/internal/light"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
database:
  path: ` + filepath.Join(t.TempDir(), "cyncd.sqlite") + `
options:
  rooms: [living]
  switches: ["10", "11"]
homes:
  - name: Home
    rooms:
      - id: living
        name: Living Room
        switches: ["10", "11"]
    switches:
      - device_id: "10"
        name: Floor Lamp
        room: living
        support_brightness: true
        support_color_temp: true
      - device_id: "11"
        name: Heater
        room: living
        plug: true
`))
	if err != nil {
		t.Fatalf("config.Parse() error = %v", err)
	}
	return cfg
}

func TestHomesFromConfig(t *testing.T) {
	cfg := testConfig(t)
	homes := homesFromConfig(cfg.Homes)

	if len(homes) != 1 || len(homes[0].Rooms) != 1 || len(homes[0].Switches) != 2 {
		t.Fatalf("homes = %+v", homes)
	}
	lamp := homes[0].Switches[0]
	if lamp.Caps != (light.Capabilities{ColorTemp: true, Brightness: true}) {
		t.Errorf("lamp caps = %+v", lamp.Caps)
	}
	if !homes[0].Switches[1].Plug {
		t.Error("heater not marked as plug")
	}
}

func TestServicesStartDryRun(t *testing.T) {
	cfg := testConfig(t)
	s, err := NewServices(cfg)
	if err != nil {
		t.Fatalf("NewServices() error = %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx, func(err error) { t.Errorf("fatal error: %v", err) }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ids := make([]string, 0)
	for _, e := range s.Platform.List() {
		ids = append(ids, e.UniqueID())
	}
	if len(ids) != 2 || ids[0] != "cync_room_10-11_" || ids[1] != "cync_switch_10" {
		t.Errorf("entities = %v", ids)
	}
	if err := s.Devices.Ready(); err != nil {
		t.Errorf("Ready() error = %v", err)
	}

	if err := s.Platform.TurnOn(ctx, "cync_switch_10", light.TurnOnParams{}); err != nil {
		t.Fatalf("TurnOn() error = %v", err)
	}
	room, _ := s.Platform.Get("cync_room_10-11_")
	if !room.IsOn() {
		t.Error("room did not follow member switch")
	}
}
