package light

import (
	"fmt"
	"strings"
)

// Device registry constants. Unique IDs built from these are persisted by
// the host, so their format must not change.
const (
	Domain       = "cync_lights"
	Manufacturer = "Cync by Savant"

	roomIDPrefix   = "cync_room_"
	switchIDPrefix = "cync_switch_"

	iconRoom     = "mdi:lightbulb-group"
	iconSubgroup = "mdi:lightbulb-group-outline"
)

// Kind identifies the backing device type of an entity.
type Kind string

const (
	KindRoom   Kind = "room"
	KindSwitch Kind = "switch"
)

// Identifier is a (domain, id) pair in the host device registry.
type Identifier struct {
	Domain string `json:"domain"`
	ID     string `json:"id"`
}

// DeviceInfo groups entities under one device in the host registry.
type DeviceInfo struct {
	Identifiers   []Identifier `json:"identifiers"`
	Manufacturer  string       `json:"manufacturer"`
	Name          string       `json:"name"`
	SuggestedArea string       `json:"suggested_area"`
}

// RoomDevice is a room or subgroup.
type RoomDevice interface {
	Device
	SwitchIDs() []string
	SubgroupIDs() []string
	ParentRoom() string
	IsSubgroup() bool
}

// SwitchDevice is a single switch or bulb.
type SwitchDevice interface {
	Device
	DeviceID() string
	RoomName() string
}

type identity interface {
	kind() Kind
	uniqueID() string
	deviceInfo() DeviceInfo
	icon() string
}

// NewRoomEntity builds an entity for a room or subgroup.
func NewRoomEntity(room RoomDevice) *Entity {
	return newEntity(room, roomIdentity{room: room})
}

// NewSwitchEntity builds an entity for a switch.
func NewSwitchEntity(sw SwitchDevice) *Entity {
	return newEntity(sw, switchIdentity{sw: sw})
}

type roomIdentity struct {
	room RoomDevice
}

func (roomIdentity) kind() Kind { return KindRoom }

func (r roomIdentity) uniqueID() string {
	return RoomUniqueID(r.room.SwitchIDs(), r.room.SubgroupIDs())
}

func (r roomIdentity) deviceInfo() DeviceInfo {
	area := r.room.Name()
	if r.room.IsSubgroup() {
		area = r.room.ParentRoom()
	}
	return newDeviceInfo(area, r.room.HomeName())
}

func (r roomIdentity) icon() string {
	if r.room.IsSubgroup() {
		return iconSubgroup
	}
	return iconRoom
}

type switchIdentity struct {
	sw SwitchDevice
}

func (switchIdentity) kind() Kind { return KindSwitch }

func (s switchIdentity) uniqueID() string {
	return SwitchUniqueID(s.sw.DeviceID())
}

func (s switchIdentity) deviceInfo() DeviceInfo {
	return newDeviceInfo(s.sw.RoomName(), s.sw.HomeName())
}

func (switchIdentity) icon() string { return "" }

// RoomUniqueID joins member switch and subgroup IDs in the order given.
func RoomUniqueID(switchIDs, subgroupIDs []string) string {
	return roomIDPrefix + strings.Join(switchIDs, "-") + "_" + strings.Join(subgroupIDs, "-")
}

// SwitchUniqueID prefixes a switch device ID.
func SwitchUniqueID(deviceID string) string {
	return switchIDPrefix + deviceID
}

func newDeviceInfo(area, home string) DeviceInfo {
	name := fmt.Sprintf("%s (%s)", area, home)
	return DeviceInfo{
		Identifiers:   []Identifier{{Domain: Domain, ID: name}},
		Manufacturer:  Manufacturer,
		Name:          name,
		SuggestedArea: area,
	}
}
