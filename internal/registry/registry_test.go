package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/collabtext/collabd/internal/room"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCfg() room.Config {
	return room.Config{
		HeartbitInterval:  time.Minute,
		DocumentLimit:     1000,
		LogBytesThreshold: 1 << 20,
		LogOpsThreshold:   1000,
	}
}

func TestRegistry_CreateAndGet(t *testing.T) {
	reg := New(context.Background(), testCfg(), testLogger(), "")
	name := reg.Create()
	if len(name) != roomIDLength {
		t.Fatalf("Create() name length = %d, want %d", len(name), roomIDLength)
	}

	r, err := reg.Get(name)
	if err != nil {
		t.Fatalf("Get(%q) = %v, want nil", name, err)
	}
	if r.Name != name {
		t.Errorf("Room.Name = %q, want %q", r.Name, name)
	}
}

func TestRegistry_GetUnknownFails(t *testing.T) {
	reg := New(context.Background(), testCfg(), testLogger(), "")
	if _, err := reg.Get("missing"); err != ErrRoomNotFound {
		t.Errorf("Get(missing) error = %v, want ErrRoomNotFound", err)
	}
}

func TestRegistry_CreateNeverCollides(t *testing.T) {
	reg := New(context.Background(), testCfg(), testLogger(), "")
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		name := reg.Create()
		if seen[name] {
			t.Fatalf("Create() produced duplicate name %q", name)
		}
		seen[name] = true
	}
	if reg.Count() != 50 {
		t.Errorf("Count() = %d, want 50", reg.Count())
	}
}

func TestRegistry_SweepEvictsIdleExpiredRooms(t *testing.T) {
	reg := New(context.Background(), testCfg(), testLogger(), "")
	name := reg.Create()

	// Force the room's bookkeeping to look old by sweeping with
	// thresholds of zero: any room, however fresh, counts as both idle
	// and expired.
	reg.Sweep(0, 0)

	if _, err := reg.Get(name); err != ErrRoomNotFound {
		t.Errorf("expected room evicted, Get error = %v", err)
	}
}

func TestRegistry_SweepSparesActiveRooms(t *testing.T) {
	reg := New(context.Background(), testCfg(), testLogger(), "")
	name := reg.Create()

	reg.Sweep(time.Hour, 7*24*time.Hour)

	if _, err := reg.Get(name); err != nil {
		t.Errorf("expected room to survive sweep, got %v", err)
	}
}
