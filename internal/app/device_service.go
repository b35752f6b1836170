package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cyncd/internal/config"
	"github.com/dokzlo13/cyncd/internal/cync"
	"github.com/dokzlo13/cyncd/internal/light"
	"github.com/dokzlo13/cyncd/internal/mqtt"
)

// DeviceService owns the device graph and the transport its commands leave
// through.
type DeviceService struct {
	cfg *config.Config

	Hub    *cync.Hub
	Bridge *mqtt.Bridge // nil when MQTT is disabled
}

// NewDeviceService builds the hub from the configured inventory. The MQTT
// bridge is connected in Start.
func NewDeviceService(cfg *config.Config) (*DeviceService, error) {
	hub, err := cync.NewHub(homesFromConfig(cfg.Homes))
	if err != nil {
		return nil, err
	}
	return &DeviceService{cfg: cfg, Hub: hub}, nil
}

// Start connects the command transport. Without MQTT, commands are applied
// to the hub directly.
func (s *DeviceService) Start(ctx context.Context) error {
	if !s.cfg.MQTT.Enabled {
		log.Warn().Msg("MQTT disabled, commands are applied locally (dry run)")
		s.Hub.SetCommander(cync.NewDryRunCommander(s.Hub))
		return nil
	}

	bridge, err := mqtt.Connect(s.cfg.MQTT)
	if err != nil {
		return err
	}
	if err := bridge.SubscribeStates(s.Hub); err != nil {
		bridge.Close()
		return err
	}
	s.Bridge = bridge
	s.Hub.SetCommander(bridge)

	log.Info().
		Str("broker", s.cfg.MQTT.Broker).
		Str("prefix", s.cfg.MQTT.TopicPrefix).
		Msg("Connected to MQTT broker")
	return nil
}

// Ready reports whether commands can reach the devices.
func (s *DeviceService) Ready() error {
	if s.cfg.MQTT.Enabled && (s.Bridge == nil || !s.Bridge.IsConnected()) {
		return errors.New("mqtt broker not connected")
	}
	return nil
}

// Close releases the transport.
func (s *DeviceService) Close() {
	if s.Bridge != nil {
		s.Bridge.Close()
	}
}

func homesFromConfig(homes []config.HomeConfig) []cync.Home {
	out := make([]cync.Home, 0, len(homes))
	for _, h := range homes {
		home := cync.Home{Name: h.Name}
		for _, r := range h.Rooms {
			home.Rooms = append(home.Rooms, cync.RoomSpec{
				ID:         r.ID,
				Name:       r.Name,
				Switches:   r.Switches,
				Subgroups:  r.Subgroups,
				ParentRoom: r.ParentRoom,
				IsSubgroup: r.IsSubgroup,
			})
		}
		for _, sw := range h.Switches {
			home.Switches = append(home.Switches, cync.SwitchSpec{
				DeviceID: sw.DeviceID,
				Name:     sw.Name,
				Room:     sw.Room,
				Plug:     sw.Plug,
				Fan:      sw.Fan,
				Caps: light.Capabilities{
					RGB:        sw.SupportRGB,
					ColorTemp:  sw.SupportColorTemp,
					Brightness: sw.SupportBrightness,
				},
			})
		}
		out = append(out, home)
	}
	return out
}
