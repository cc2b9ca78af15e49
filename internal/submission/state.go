package submission

import (
	"fmt"

	"github.com/truthvision/truthvision-go/internal/media"
	"github.com/truthvision/truthvision-go/pkg/models"
)

// State is a session's position in the submission lifecycle.
type State int

const (
	Idle State = iota
	Ready
	Submitting
	Succeeded
	Failed
)

var stateNames = map[State]string{
	Idle:       "idle",
	Ready:      "ready",
	Submitting: "submitting",
	Succeeded:  "succeeded",
	Failed:     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Panels tells a renderer which panels to show. Each flag follows exactly one state.
type Panels struct {
	Loading bool `json:"loading"`
	Result  bool `json:"result"`
	Error   bool `json:"error"`
}

// PanelsFor derives panel visibility from s.
func PanelsFor(s State) Panels {
	return Panels{
		Loading: s == Submitting,
		Result:  s == Succeeded,
		Error:   s == Failed,
	}
}

// MediaInfo describes the held media without its bytes.
type MediaInfo struct {
	Name        string     `json:"name"`
	ContentType string     `json:"content_type"`
	Kind        media.Kind `json:"kind"`
	Size        int64      `json:"size"`
	PreviewID   string     `json:"preview_id,omitempty"`
}

// ErrorInfo is the held failure.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Snapshot is a consistent copy of the controller's observable state.
type Snapshot struct {
	SessionID  string                 `json:"session_id,omitempty"`
	State      State                  `json:"state"`
	Generation uint64                 `json:"generation"`
	Media      *MediaInfo             `json:"media,omitempty"`
	Result     *models.AnalysisResult `json:"result,omitempty"`
	Error      *ErrorInfo             `json:"error,omitempty"`
	Panels     Panels                 `json:"panels"`
}

// Snapshot copies the current state under the controller lock.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		SessionID:  c.sessionID,
		State:      c.state,
		Generation: c.generation,
		Result:     c.result,
		Panels:     PanelsFor(c.state),
	}
	if current := c.selection.Current(); current != nil {
		snap.Media = &MediaInfo{
			Name:        current.Name,
			ContentType: current.ContentType,
			Kind:        current.Kind,
			Size:        current.Size,
		}
		if current.Preview != nil {
			snap.Media.PreviewID = current.Preview.ID()
		}
	}
	if c.failure != nil {
		snap.Error = &ErrorInfo{
			Kind:    string(c.failure.Type),
			Message: c.failure.Message,
		}
	}
	return snap
}
