package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Context remembers the last opened room view so `roomview view` can resume it.
type Context struct {
	// RoomID is the last opened room.
	RoomID string `yaml:"room,omitempty" json:"room_id,omitempty"`
	// ThreadID is the last opened thread root, if the view was a thread.
	ThreadID string `yaml:"thread,omitempty" json:"thread_id,omitempty"`
	// EventID is the last focused event.
	EventID string `yaml:"event,omitempty" json:"event_id,omitempty"`
	// UpdatedAt is when the context was last modified.
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// IsEmpty returns true if no room is remembered.
func (c *Context) IsEmpty() bool {
	return c.RoomID == ""
}

// HasThread returns true if the remembered view is a thread.
func (c *Context) HasThread() bool {
	return c.ThreadID != ""
}

// Clear removes all context.
func (c *Context) Clear() {
	c.RoomID = ""
	c.ThreadID = ""
	c.EventID = ""
	c.UpdatedAt = time.Now()
}

// SetRoom remembers a room view. Switching rooms drops the thread and focus.
func (c *Context) SetRoom(roomID, threadID string) {
	if roomID != c.RoomID || threadID != c.ThreadID {
		c.EventID = ""
	}
	c.RoomID = roomID
	c.ThreadID = threadID
	c.UpdatedAt = time.Now()
}

// SetFocus remembers the focused event of the current room view.
func (c *Context) SetFocus(eventID string) {
	c.EventID = eventID
	c.UpdatedAt = time.Now()
}

// String returns a human-readable representation of the context.
func (c *Context) String() string {
	if c.IsEmpty() {
		return "(no room selected)"
	}
	out := "room:" + c.RoomID
	if c.HasThread() {
		out += " thread:" + c.ThreadID
	}
	if c.EventID != "" {
		out += " event:" + c.EventID
	}
	return out
}

// ContextStore manages loading and saving context.
type ContextStore struct {
	path string
	mu   sync.RWMutex
}

// NewContextStore creates a new context store.
// If path is empty, uses the default path (~/.config/roomview/context.yaml).
func NewContextStore(path string) *ContextStore {
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, ".config", "roomview", "context.yaml")
	}
	return &ContextStore{path: path}
}

// Path returns the context file path.
func (s *ContextStore) Path() string {
	return s.path
}

// Load reads the context from disk.
// Returns an empty context if the file doesn't exist.
func (s *ContextStore) Load() (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := &Context{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ctx, nil
		}
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}

	if err := yaml.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("failed to parse context file: %w", err)
	}

	return ctx, nil
}

// Save writes the context to disk.
func (s *ContextStore) Save(ctx *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}

	data, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}

	return nil
}

// Clear removes the context file.
func (s *ContextStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove context file: %w", err)
	}
	return nil
}
