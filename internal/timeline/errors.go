package timeline

import (
	"errors"
	"fmt"

	"maunium.net/go/mautrix/id"
)

var (
	ErrClosed     = errors.New("timeline controller is closed")
	ErrNoSource   = errors.New("timeline source is required")
	ErrNotLoaded  = errors.New("event timeline not loaded")
	ErrSuperseded = errors.New("load superseded by a newer open")
)

// LoadError reports that the timeline around a target event could not be
// loaded. The controller falls back to the live timeline.
type LoadError struct {
	EventID id.EventID
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("load timeline at %s: %v", e.EventID, ErrNotLoaded)
	}
	return fmt.Sprintf("load timeline at %s: %v", e.EventID, e.Err)
}

func (e *LoadError) Unwrap() error {
	if e.Err == nil {
		return ErrNotLoaded
	}
	return e.Err
}
