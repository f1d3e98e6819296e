// Package state persists per-room read markers between viewer sessions.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/logging"
)

const (
	CurrentVersion = 1

	defaultDebounce = 1 * time.Second
)

// ReadMarker is the newest event a user has acknowledged in a timeline.
type ReadMarker struct {
	EventID   id.EventID `json:"event_id"`
	Timestamp time.Time  `json:"ts"`
}

// File is the on-disk layout.
type File struct {
	Version     int                   `json:"version"`
	ReadMarkers map[string]ReadMarker `json:"read_markers,omitempty"` // room[/thread] -> marker
	LastRoom    string                `json:"last_room,omitempty"`
}

// Key returns the marker key for a room or a thread in it.
func Key(roomID id.RoomID, threadID id.EventID) string {
	if threadID == "" {
		return string(roomID)
	}
	return string(roomID) + "/" + string(threadID)
}

// Manager holds read markers in memory and writes them out after a quiet
// period. Concurrent processes are serialized with a lock file.
type Manager struct {
	path     string
	lockPath string

	mu       sync.Mutex
	state    File
	dirty    bool
	timer    *time.Timer
	debounce time.Duration
}

// New creates a manager for path. An empty path keeps markers in memory only.
func New(path string) *Manager {
	path = strings.TrimSpace(path)
	m := &Manager{
		path:     path,
		state:    File{Version: CurrentVersion, ReadMarkers: make(map[string]ReadMarker)},
		debounce: defaultDebounce,
	}
	if path != "" {
		m.lockPath = path + ".lock"
	}
	return m
}

// SetDebounce changes the save delay. Zero or negative saves on the next tick.
func (m *Manager) SetDebounce(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d <= 0 {
		d = time.Millisecond
	}
	m.debounce = d
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path == "" {
		return nil
	}

	loaded, err := m.loadLocked()
	if err != nil {
		return err
	}
	m.state = loaded
	m.dirty = false
	return nil
}

func (m *Manager) ReadMarker(key string) (ReadMarker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	marker, ok := m.state.ReadMarkers[strings.TrimSpace(key)]
	return marker, ok
}

// SetReadMarker stores marker for key unless it is older than the stored one.
// It reports whether the marker moved.
func (m *Manager) SetReadMarker(key string, marker ReadMarker) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key = strings.TrimSpace(key)
	if key == "" || marker.EventID == "" {
		return false
	}
	if prev, ok := m.state.ReadMarkers[key]; ok {
		if prev.EventID == marker.EventID || marker.Timestamp.Before(prev.Timestamp) {
			return false
		}
	}
	m.state.ReadMarkers[key] = marker
	m.markDirtyLocked()
	return true
}

func (m *Manager) LastRoom() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastRoom
}

func (m *Manager) SetLastRoom(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.LastRoom == key {
		return
	}
	m.state.LastRoom = key
	m.markDirtyLocked()
}

// Close flushes pending changes.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	needsSave := m.dirty
	m.mu.Unlock()
	if !needsSave {
		return nil
	}
	return m.SaveNow()
}

func (m *Manager) SaveNow() error {
	m.mu.Lock()
	if m.path == "" {
		m.dirty = false
		m.mu.Unlock()
		return nil
	}
	snapshot := cloneFile(m.state)
	m.dirty = false
	m.mu.Unlock()

	snapshot.Version = CurrentVersion
	if err := withFileLock(m.lockPath, func() error {
		return writeAtomicJSON(m.path, snapshot)
	}); err != nil {
		m.mu.Lock()
		m.dirty = true
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) markDirtyLocked() {
	m.dirty = true
	if m.path == "" {
		return
	}
	if m.timer == nil {
		m.timer = time.AfterFunc(m.debounce, func() {
			if err := m.SaveNow(); err != nil {
				logger := logging.Component("state")
				logger.Warn().Err(err).Str("path", m.path).Msg("failed to save read markers")
			}
		})
		return
	}
	_ = m.timer.Reset(m.debounce)
}

func (m *Manager) loadLocked() (File, error) {
	out := File{Version: CurrentVersion}
	if err := withFileLock(m.lockPath, func() error {
		payload, err := os.ReadFile(m.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, &out); err != nil {
			return fmt.Errorf("parse %s: %w", m.path, err)
		}
		return nil
	}); err != nil {
		return File{}, err
	}

	if out.Version <= 0 {
		out.Version = CurrentVersion
	}
	if out.ReadMarkers == nil {
		out.ReadMarkers = make(map[string]ReadMarker)
	}
	return out, nil
}

func withFileLock(lockPath string, fn func() error) error {
	if strings.TrimSpace(lockPath) == "" {
		return fn()
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}()
	return fn()
}

func writeAtomicJSON(path string, file File) error {
	payload, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func cloneFile(in File) File {
	out := in
	out.ReadMarkers = make(map[string]ReadMarker, len(in.ReadMarkers))
	for k, v := range in.ReadMarkers {
		out.ReadMarkers[k] = v
	}
	return out
}
