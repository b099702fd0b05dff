// Package persistence implements the on-disk snapshot format: one
// gzip-wrapped JSON file per room, written on
// graceful shutdown and once compaction has rewritten a room's log, and loaded back at
// startup to reconstruct the Registry. Persistence is best-effort — a
// crash can lose edits made since the last snapshot; there is no
// per-operation fsync.
package persistence

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/collabtext/collabd/internal/wire"
)

// Snapshot is the JSON payload inside a room's .gz file.
type Snapshot struct {
	Events  []wire.Op `json:"events"`
	Created time.Time `json:"created"`
}

func roomPath(dir, roomID string) string {
	return filepath.Join(dir, roomID+".gz")
}

// Save writes snap for roomID under dir. It writes to a temp file in the
// same directory, fsyncs it, then renames it over the final path, so a
// crash mid-write never leaves a half-written snapshot in place.
func Save(dir, roomID string, snap Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persistence: mkdir %s: %w", dir, err)
	}

	final := roomPath(dir, roomID)
	tmp, err := os.CreateTemp(dir, roomID+".gz.tmp-*")
	if err != nil {
		return fmt.Errorf("persistence: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	gz := gzip.NewWriter(tmp)
	enc := json.NewEncoder(gz)
	if err := enc.Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("persistence: encode %s: %w", roomID, err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("persistence: close gzip writer for %s: %w", roomID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("persistence: fsync %s: %w", roomID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persistence: close temp file for %s: %w", roomID, err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return fmt.Errorf("persistence: rename into place for %s: %w", roomID, err)
	}
	return nil
}

// Load reads back roomID's snapshot from dir.
func Load(dir, roomID string) (Snapshot, error) {
	f, err := os.Open(roomPath(dir, roomID))
	if err != nil {
		return Snapshot{}, fmt.Errorf("persistence: open %s: %w", roomID, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return Snapshot{}, fmt.Errorf("persistence: gzip reader for %s: %w", roomID, err)
	}
	defer gz.Close()

	var snap Snapshot
	if err := json.NewDecoder(gz).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("persistence: decode %s: %w", roomID, err)
	}
	return snap, nil
}

// ListRoomIDs returns the room IDs with a snapshot present under dir, in
// no particular order. A missing directory is treated as "no rooms",
// matching first-run behavior.
func ListRoomIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: read dir %s: %w", dir, err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".gz" {
			ids = append(ids, strings.TrimSuffix(name, ".gz"))
		}
	}
	return ids, nil
}
