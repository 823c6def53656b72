package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Urgency orders checklist items inside a combined notification.
type Urgency int

const (
	UrgencyInfo   Urgency = 0
	UrgencyNormal Urgency = 1
	UrgencyHigh   Urgency = 2
)

var urgencyNames = map[Urgency]string{
	UrgencyInfo:   "info",
	UrgencyNormal: "normal",
	UrgencyHigh:   "high",
}

func (u Urgency) String() string {
	if name, ok := urgencyNames[u]; ok {
		return name
	}
	return fmt.Sprintf("urgency(%d)", int(u))
}

// ParseUrgency accepts "info", "normal" or "high". Empty means info.
func ParseUrgency(s string) (Urgency, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return UrgencyInfo, nil
	}
	for u, name := range urgencyNames {
		if name == s {
			return u, nil
		}
	}
	return UrgencyInfo, fmt.Errorf("unknown urgency %q (use info, normal or high)", s)
}

func (u Urgency) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalJSON accepts either the name or the numeric level, so items
// written by external providers may use either form.
func (u *Urgency) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		if n < int(UrgencyInfo) || n > int(UrgencyHigh) {
			return fmt.Errorf("urgency %d out of range", n)
		}
		*u = Urgency(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("urgency must be a string or number: %w", err)
	}
	parsed, err := ParseUrgency(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Item sources produced inside this module. Collaborator signals carry the
// provider's name as their source.
const (
	SourceTask       = "task"
	SourceManual     = "manual"
	SourceBackground = "background"
)

// Item is one checklist candidate considered by a heartbeat check.
type Item struct {
	Source  string     `json:"source"`
	ID      string     `json:"id"`
	Text    string     `json:"text"`
	Urgency Urgency    `json:"urgency"`
	Due     *time.Time `json:"due,omitempty"`
}

// Ref is the human-facing identity of the item, e.g. "task:01J...".
func (i Item) Ref() string {
	return i.Source + ":" + i.ID
}

// Suppression records that an item must not be surfaced again before Until.
type Suppression struct {
	Key    string    `json:"key"`
	Ref    string    `json:"ref"`
	Text   string    `json:"text,omitempty"`
	At     time.Time `json:"at"`
	Until  time.Time `json:"until"`
	Reason string    `json:"reason"`
}

// Active reports whether the suppression still holds at now.
func (s Suppression) Active(now time.Time) bool {
	return now.Before(s.Until)
}

// Notification is the combined message handed to the delivery collaborator.
type Notification struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	Items   []Item    `json:"items"`
	Created time.Time `json:"created"`
}

// Completion is the recorded outcome of a background item.
type Completion struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Result      string    `json:"result"`
	CompletedAt time.Time `json:"completed_at"`
	Relayed     bool      `json:"relayed"`
}
