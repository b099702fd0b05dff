// Package registry is the process-wide directory of live rooms: room
// creation, lookup, and periodic eviction of idle or expired rooms. It is
// the one piece of global mutable state in the service; every
// request handler receives it as an explicit argument rather than
// reaching for it ambiently.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/collabtext/collabd/internal/room"
)

// ErrRoomNotFound is returned by Get when no room with the given name is
// live.
var ErrRoomNotFound = fmt.Errorf("registry: room not found")

// Registry holds the name -> *room.Room map plus the tunables the
// sweeper and new rooms are built with.
type Registry struct {
	cfg      room.Config
	logger   *slog.Logger
	greeting string
	roomCtx  context.Context

	mu    sync.Mutex
	rooms map[string]*Registration
}

// Registration pairs a live Room with the bookkeeping the sweeper needs:
// its own cancellation so Run's goroutine can be stopped independently
// of the others, and the creation timestamp for the hard max-age check
// (a Room only tracks lastActivity for itself).
type Registration struct {
	Room    *room.Room
	Created time.Time
	cancel  context.CancelFunc
}

// New creates an empty Registry. ctx is the parent context every Room's
// mailbox goroutine is launched under; canceling it tears down every
// room (used for process shutdown).
func New(ctx context.Context, cfg room.Config, logger *slog.Logger, greeting string) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		greeting: greeting,
		roomCtx:  ctx,
		rooms:    make(map[string]*Registration),
	}
}

// Create generates a fresh room name, inserts an empty Room, launches its
// mailbox goroutine, and returns the name.
func (reg *Registry) Create() string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var name string
	for {
		name = generateRoomID()
		if _, exists := reg.rooms[name]; !exists {
			break
		}
	}
	reg.insertLocked(name, time.Now())
	return name
}

// Restore inserts a room under an already-known name with a given
// creation timestamp, used when reconstructing the Registry from
// persisted snapshots at startup. The caller is responsible for replaying
// the room's log after Restore returns.
func (reg *Registry) Restore(name string, created time.Time) *room.Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if existing, ok := reg.rooms[name]; ok {
		return existing.Room
	}
	return reg.insertLocked(name, created)
}

func (reg *Registry) insertLocked(name string, created time.Time) *room.Room {
	ctx, cancel := context.WithCancel(reg.roomCtx)
	r := room.New(name, reg.cfg, reg.logger, reg.greeting)
	reg.rooms[name] = &Registration{Room: r, Created: created, cancel: cancel}
	go r.Run(ctx)
	return r
}

// Get returns the named Room, or ErrRoomNotFound if no such room is live.
func (reg *Registry) Get(name string) (*room.Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	entry, ok := reg.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return entry.Room, nil
}

// Remove evicts a room from the directory and cancels its context, which
// stops the room's Run goroutine; Run closes any sessions still open but
// does not broadcast siteDisconnected for them, which is why Sweep calls
// Room.Shutdown first. Safe to call on a name that is not present.
func (reg *Registry) Remove(name string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if entry, ok := reg.rooms[name]; ok {
		entry.cancel()
		delete(reg.rooms, name)
	}
}

// Snapshot returns a point-in-time copy of every live room's name and
// Registration, used by the sweeper and by cmd/collabd's shutdown
// snapshot.
func (reg *Registry) Snapshot() map[string]*Registration {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make(map[string]*Registration, len(reg.rooms))
	for name, entry := range reg.rooms {
		out[name] = entry
	}
	return out
}

// Sweep evicts every room whose lastActivity exceeds idleTTL AND whose
// Created exceeds maxAge, announcing eviction via closing its sessions
// first. Called periodically by RunSweeper's ticker loop.
func (reg *Registry) Sweep(idleTTL, maxAge time.Duration) {
	now := time.Now()
	for name, entry := range reg.Snapshot() {
		idle := now.Sub(entry.Room.LastActivity())
		age := now.Sub(entry.Created)
		if idle < idleTTL || age < maxAge {
			continue
		}
		reg.logger.Info("evicting idle room", "room", name, "idle", idle, "age", age)
		entry.Room.Shutdown()
		reg.Remove(name)
	}
}

// RunSweeper blocks, evicting idle/expired rooms every interval, until
// ctx is canceled.
func (reg *Registry) RunSweeper(ctx context.Context, interval, idleTTL, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.Sweep(idleTTL, maxAge)
		}
	}
}

// Count returns the number of live rooms.
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}
