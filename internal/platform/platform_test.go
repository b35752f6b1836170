package platform

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dokzlo13/cyncd/internal/cync"
	"github.com/dokzlo13/cyncd/internal/db"
	"github.com/dokzlo13/cyncd/internal/eventbus"
	"github.com/dokzlo13/cyncd/internal/ledger"
	"github.com/dokzlo13/cyncd/internal/light"
	"github.com/dokzlo13/cyncd/internal/metrics"
	"github.com/dokzlo13/cyncd/internal/storage"
)

func intPtr(v int) *int {
	return &v
}

type testEnv struct {
	hub      *cync.Hub
	bus      *eventbus.Bus
	store    *storage.Store
	ledger   *ledger.Ledger
	platform *Platform
}

func testHomes() []cync.Home {
	return []cync.Home{{
		Name: "Home",
		Switches: []cync.SwitchSpec{
			{DeviceID: "1", Name: "Ceiling", Room: "kitchen", Caps: light.Capabilities{ColorTemp: true, Brightness: true}},
			{DeviceID: "2", Name: "Strip", Room: "kitchen", Caps: light.Capabilities{RGB: true, ColorTemp: true, Brightness: true}},
			{DeviceID: "3", Name: "Kettle", Room: "kitchen", Plug: true},
			{DeviceID: "4", Name: "Fan", Room: "kitchen", Fan: true},
			{DeviceID: "5", Name: "Lamp", Room: "den", Caps: light.Capabilities{Brightness: true}},
		},
		Rooms: []cync.RoomSpec{
			{ID: "kitchen", Name: "Kitchen", Switches: []string{"1", "2"}, Subgroups: []string{"counter"}},
			{ID: "counter", Name: "Counter", Switches: []string{"2"}, ParentRoom: "kitchen", IsSubgroup: true},
			{ID: "den", Name: "Den", Switches: []string{"5"}},
		},
	}}
}

func newTestEnv(t *testing.T, m *metrics.Metrics) *testEnv {
	t.Helper()

	hub, err := cync.NewHub(testHomes())
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	hub.SetCommander(cync.NewDryRunCommander(hub))

	database, err := db.Open(filepath.Join(t.TempDir(), "platform.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	bus := eventbus.NewWithConfig(1, 100)
	t.Cleanup(func() {
		bus.Close(context.Background())
		database.Close()
	})

	store := storage.NewStore(database.DB)
	l := ledger.New(database.DB)
	return &testEnv{
		hub:      hub,
		bus:      bus,
		store:    store,
		ledger:   l,
		platform: New(bus, store, l, m),
	}
}

func allOptions() Options {
	return Options{
		Rooms:     []string{"kitchen", "den"},
		Subgroups: []string{"counter"},
		Switches:  []string{"1", "2", "3", "4", "5"},
	}
}

func uniqueIDs(entities []*light.Entity) []string {
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.UniqueID()
	}
	return ids
}

func TestDiscoverHonorsOptionsAndSkipsPlugsAndFans(t *testing.T) {
	env := newTestEnv(t, nil)

	ids := uniqueIDs(Discover(env.hub, allOptions()))
	expected := []string{
		"cync_room_2_",
		"cync_room_5_",
		"cync_room_1-2_counter",
		"cync_switch_1",
		"cync_switch_2",
		"cync_switch_5",
	}
	if len(ids) != len(expected) {
		t.Fatalf("Discover() = %v, want %v", ids, expected)
	}
	// Rooms are ordered by room id: counter, den, kitchen.
	for i := range expected {
		if ids[i] != expected[i] {
			t.Errorf("Discover()[%d] = %q, want %q", i, ids[i], expected[i])
		}
	}

	partial := uniqueIDs(Discover(env.hub, Options{Rooms: []string{"den"}, Switches: []string{"5"}}))
	if len(partial) != 2 || partial[0] != "cync_room_5_" || partial[1] != "cync_switch_5" {
		t.Errorf("Discover(partial) = %v", partial)
	}
}

func TestDiscoverSkipsOwnedDevices(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.platform.Setup(ctx, env.hub, allOptions()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if again := Discover(env.hub, allOptions()); len(again) != 0 {
		t.Errorf("Discover() after Setup = %v, want none", uniqueIDs(again))
	}

	if err := env.platform.Remove(ctx, "cync_switch_5"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	readopt := uniqueIDs(Discover(env.hub, allOptions()))
	if len(readopt) != 1 || readopt[0] != "cync_switch_5" {
		t.Errorf("Discover() after Remove = %v, want [cync_switch_5]", readopt)
	}
}

func TestSetupPersistsRegistry(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.platform.Setup(ctx, env.hub, allOptions()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	entries, err := env.platform.Registry(ctx)
	if err != nil {
		t.Fatalf("Registry() error = %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("registry entries = %d, want 6", len(entries))
	}
	var lamp RegistryEntry
	for _, e := range entries {
		if e.UniqueID == "cync_switch_5" {
			lamp = e
		}
	}
	if lamp.Kind != light.KindSwitch || lamp.Name != "Lamp" || lamp.DeviceInfo.Name != "Den (Home)" {
		t.Errorf("lamp entry = %+v", lamp)
	}

	if len(env.platform.List()) != 6 {
		t.Errorf("List() = %d entities", len(env.platform.List()))
	}
}

func TestOrphansReportsStaleRegistryEntries(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	stale := RegistryEntry{UniqueID: "cync_switch_99", Kind: light.KindSwitch, Name: "Gone"}
	if err := env.store.Put(ctx, registryKind, stale.UniqueID, stale); err != nil {
		t.Fatal(err)
	}
	if err := env.platform.Setup(ctx, env.hub, Options{Switches: []string{"5"}}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	orphans, err := env.platform.Orphans(ctx)
	if err != nil {
		t.Fatalf("Orphans() error = %v", err)
	}
	if len(orphans) != 1 || orphans[0].UniqueID != "cync_switch_99" {
		t.Errorf("Orphans() = %+v", orphans)
	}

	if err := env.platform.ClearRegistry(ctx); err != nil {
		t.Fatalf("ClearRegistry() error = %v", err)
	}
	if entries, _ := env.platform.Registry(ctx); len(entries) != 0 {
		t.Errorf("registry after clear = %d", len(entries))
	}
}

func TestAddSkipsDuplicates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	sw, _ := env.hub.Switch("5")

	if err := env.platform.Add(ctx, light.NewSwitchEntity(sw), light.NewSwitchEntity(sw)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(env.platform.List()) != 1 {
		t.Errorf("List() = %d, want 1", len(env.platform.List()))
	}
}

func TestAddRollsBackWhenRegistryWriteFails(t *testing.T) {
	env := newTestEnv(t, nil)
	sw, _ := env.hub.Switch("5")

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := env.platform.Add(canceled, light.NewSwitchEntity(sw)); err == nil {
		t.Fatal("Add() with canceled context succeeded")
	}
	if n := len(env.platform.List()); n != 0 {
		t.Errorf("List() after failed Add = %d, want 0", n)
	}
	if sw.HasSubscribers() {
		t.Error("device still subscribed after failed Add")
	}

	if err := env.platform.Add(context.Background(), light.NewSwitchEntity(sw)); err != nil {
		t.Fatalf("Add() retry error = %v", err)
	}
	if _, err := env.platform.Get("cync_switch_5"); err != nil {
		t.Errorf("Get() after retry error = %v", err)
	}
	if !sw.HasSubscribers() {
		t.Error("device not subscribed after retry")
	}
}

func TestTurnOnDispatchesAndRecords(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := WithSource(context.Background(), "test")

	if err := env.platform.Setup(ctx, env.hub, allOptions()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	params := light.TurnOnParams{Brightness: intPtr(255), ColorTempKelvin: intPtr(2000)}
	if err := env.platform.TurnOn(ctx, "cync_switch_1", params); err != nil {
		t.Fatalf("TurnOn() error = %v", err)
	}

	e, err := env.platform.Get("cync_switch_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	st := e.State()
	if !st.IsOn || st.Brightness != 255 || st.ColorTempKelvin == nil || *st.ColorTempKelvin != 2000 {
		t.Errorf("state = %+v", st)
	}

	if err := env.platform.TurnOff(ctx, "cync_switch_1"); err != nil {
		t.Fatalf("TurnOff() error = %v", err)
	}
	if e.IsOn() {
		t.Error("entity still on")
	}

	entries, err := env.ledger.ForEntity(ctx, "cync_switch_1", 10)
	if err != nil {
		t.Fatalf("ForEntity() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want 2", len(entries))
	}
	commands := map[string]*ledger.Entry{}
	for _, entry := range entries {
		commands[entry.Command] = entry
	}
	on := commands["turn_on"]
	if on == nil || on.Source != "test" || on.EventType != ledger.EventCommandSent {
		t.Fatalf("turn_on entry = %+v", on)
	}
	if on.Payload["brightness"] != float64(255) || on.Payload["color_temp_kelvin"] != float64(2000) {
		t.Errorf("turn_on payload = %v", on.Payload)
	}
}

type failingCommander struct{}

func (failingCommander) Send(context.Context, cync.Command) error {
	return errors.New("broker down")
}

func TestTurnOnFailureIsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	env := newTestEnv(t, metrics.New(reg))
	ctx := context.Background()

	if err := env.platform.Setup(ctx, env.hub, allOptions()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	env.hub.SetCommander(failingCommander{})

	if err := env.platform.TurnOn(ctx, "cync_switch_5", light.TurnOnParams{}); err == nil {
		t.Fatal("expected error")
	}

	entries, _ := env.ledger.Recent(ctx, 1)
	if len(entries) != 1 || entries[0].EventType != ledger.EventCommandFailed || entries[0].Error == "" {
		t.Errorf("ledger = %+v", entries)
	}
}

func TestUnknownEntity(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.platform.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v", err)
	}
	if err := env.platform.TurnOn(ctx, "nope", light.TurnOnParams{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("TurnOn() error = %v", err)
	}
	if err := env.platform.TurnOff(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("TurnOff() error = %v", err)
	}
	if err := env.platform.Remove(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove() error = %v", err)
	}
}

func TestStateChangePublishesEvent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	changed := make(chan string, 16)
	env.bus.Subscribe(eventbus.EventTypeStateChanged, func(e eventbus.Event) {
		changed <- e.UniqueID
	})

	if err := env.platform.Setup(ctx, env.hub, Options{Rooms: []string{"den"}}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	on := true
	if err := env.hub.ApplySwitchState("5", cync.StateUpdate{Power: &on}); err != nil {
		t.Fatal(err)
	}

	select {
	case uid := <-changed:
		if uid != "cync_room_5_" {
			t.Errorf("state_changed for %q", uid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no state_changed event")
	}
}

func TestShutdownReleasesDevices(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.platform.Setup(ctx, env.hub, allOptions()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	env.platform.Shutdown()

	room, _ := env.hub.Room("kitchen")
	if room.HasSubscribers() {
		t.Error("kitchen still subscribed after Shutdown")
	}
	if entries, _ := env.platform.Registry(ctx); len(entries) != 6 {
		t.Errorf("registry after Shutdown = %d, want 6", len(entries))
	}
}

func TestSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.platform.Setup(ctx, env.hub, Options{Switches: []string{"2"}}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	st, err := env.platform.Snapshot("cync_switch_2")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if st.IsOn || st.ColorMode != light.ColorModeNone {
		t.Errorf("snapshot of off switch = %+v", st)
	}
	if _, err := env.platform.Snapshot("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Snapshot(nope) error = %v", err)
	}
}
