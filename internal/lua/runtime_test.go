package lua

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/cyncd/internal/eventbus"
)

func startRuntime(t *testing.T, deps RuntimeDeps) *Runtime {
	t.Helper()
	r := NewRuntime(deps)
	startRunning(t, r)
	return r
}

func TestDoSyncWithResult(t *testing.T) {
	r := startRuntime(t, RuntimeDeps{})

	var got lua.LValue
	err := r.DoSyncWithResult(context.Background(), func(ctx context.Context) error {
		if err := r.L.DoString(`answer = 6 * 7`); err != nil {
			return err
		}
		got = r.L.GetGlobal("answer")
		return nil
	})
	if err != nil {
		t.Fatalf("DoSyncWithResult() error = %v", err)
	}
	if got != lua.LNumber(42) {
		t.Errorf("answer = %v", got)
	}

	wantErr := errors.New("work failed")
	if err := r.DoSyncWithResult(context.Background(), func(context.Context) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("DoSyncWithResult() error = %v, want %v", err, wantErr)
	}
}

func TestWorkerSurvivesPanics(t *testing.T) {
	r := startRuntime(t, RuntimeDeps{})

	if !r.Do(context.Background(), func(context.Context) { panic("boom") }) {
		t.Fatal("Do() rejected work")
	}
	err := r.DoSyncWithResult(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Errorf("worker did not survive panic: %v", err)
	}
}

func TestClosedRuntimeRejectsWork(t *testing.T) {
	r := NewRuntime(RuntimeDeps{})
	r.Close()

	if r.Do(context.Background(), func(context.Context) {}) {
		t.Error("Do() accepted work after Close")
	}
	if err := r.DoSync(context.Background(), func(context.Context) {}); !errors.Is(err, ErrRuntimeClosed) {
		t.Errorf("DoSync() error = %v, want ErrRuntimeClosed", err)
	}
}

func TestCloseWaitsForWorker(t *testing.T) {
	r := NewRuntime(RuntimeDeps{})
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	started := make(chan struct{})
	var finished atomic.Int32
	r.Do(context.Background(), func(context.Context) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		if err := r.L.DoString(`first = true`); err == nil {
			finished.Add(1)
		}
	})
	r.Do(context.Background(), func(context.Context) {
		if err := r.L.DoString(`second = true`); err == nil {
			finished.Add(1)
		}
	})

	<-started
	cancel()
	r.Close()

	// The in-flight item must complete; the queued one may be dropped.
	if got := finished.Load(); got < 1 {
		t.Errorf("work finished before Close returned = %d, want at least 1", got)
	}
	// A second Close and a late Run are no-ops.
	r.Close()
	r.Run(context.Background())
}

func TestCloseWithoutRun(t *testing.T) {
	r := NewRuntime(RuntimeDeps{})
	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked without a running worker")
	}
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.lua")
	script := `
		local log = require("log")
		log.info("script loaded", { answer = 42 })
		loaded = true
	`
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRuntime(RuntimeDeps{})
	defer r.Close()
	if err := r.LoadScript(path); err != nil {
		t.Fatalf("LoadScript() error = %v", err)
	}
	if r.L.GetGlobal("loaded") != lua.LTrue {
		t.Error("script did not run")
	}

	if err := r.LoadScript(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("expected error for missing script")
	}
}

func TestStateChangesReachOnChange(t *testing.T) {
	bus := eventbus.NewWithConfig(1, 10)
	defer bus.Close(context.Background())

	lights := newStubLights("cync_room_1_")
	r := NewRuntime(RuntimeDeps{Lights: lights, Bus: bus})
	err := r.LoadString(`
		local cync = require("cync")
		changes = 0
		cync.on_change("cync_room_1_", function(l) changes = changes + 1 end)
	`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}

	startRunning(t, r)

	bus.Publish(eventbus.Event{Type: eventbus.EventTypeStateChanged, UniqueID: "cync_room_1_"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var changes lua.LValue
		_ = r.DoSyncWithResult(context.Background(), func(context.Context) error {
			changes = r.L.GetGlobal("changes")
			return nil
		})
		if changes == lua.LNumber(1) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("on_change handler was not called")
}

func TestDebouncedOnChange(t *testing.T) {
	bus := eventbus.NewWithConfig(1, 10)
	defer bus.Close(context.Background())

	r := NewRuntime(RuntimeDeps{Lights: newStubLights("cync_room_1_"), Bus: bus})
	err := r.LoadString(`
		local cync = require("cync")
		calls = 0
		cync.on_change("*", function(l) calls = calls + 1 end, { quiet_ms = 30 })
	`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	startRunning(t, r)

	for i := 0; i < 5; i++ {
		bus.Publish(eventbus.Event{Type: eventbus.EventTypeStateChanged, UniqueID: "cync_room_1_"})
	}
	time.Sleep(200 * time.Millisecond)

	var calls lua.LValue
	_ = r.DoSyncWithResult(context.Background(), func(context.Context) error {
		calls = r.L.GetGlobal("calls")
		return nil
	})
	if calls != lua.LNumber(1) {
		t.Errorf("calls = %v, want 1", calls)
	}
}

func startRunning(t *testing.T, r *Runtime) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		r.Close()
	})
}
