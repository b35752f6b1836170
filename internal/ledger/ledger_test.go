package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/cyncd/internal/db"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{EventType: EventCommandSent, Timestamp: base, UniqueID: "cync_switch_1", Command: "turn_on", Source: "api",
			Payload: map[string]any{"brightness": 128}},
		{EventType: EventCommandFailed, Timestamp: base.Add(time.Minute), UniqueID: "cync_switch_2", Command: "turn_off",
			Error: "broker down"},
	}
	for _, e := range entries {
		if err := l.Append(ctx, e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent() = %d entries, want 2", len(got))
	}
	if got[0].UniqueID != "cync_switch_2" || got[0].Error != "broker down" || got[0].EventType != EventCommandFailed {
		t.Errorf("newest entry = %+v", got[0])
	}
	if got[1].Payload["brightness"] != float64(128) || got[1].Source != "api" {
		t.Errorf("oldest entry = %+v", got[1])
	}
	if !got[1].Timestamp.Equal(base) {
		t.Errorf("timestamp = %v, want %v", got[1].Timestamp, base)
	}

	limited, _ := l.Recent(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("Recent(1) = %d entries", len(limited))
	}

	forEntity, err := l.ForEntity(ctx, "cync_switch_1", 10)
	if err != nil || len(forEntity) != 1 || forEntity[0].Command != "turn_on" {
		t.Errorf("ForEntity() = %+v, %v", forEntity, err)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_ = l.Append(ctx, Entry{EventType: EventCommandSent, Timestamp: now.Add(-48 * time.Hour), UniqueID: "old", Command: "turn_on"})
	_ = l.Append(ctx, Entry{EventType: EventCommandSent, UniqueID: "new", Command: "turn_on"})

	n, err := l.DeleteOlderThan(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	remaining, _ := l.Recent(ctx, 10)
	if len(remaining) != 1 || remaining[0].UniqueID != "new" {
		t.Errorf("remaining = %+v", remaining)
	}
}
