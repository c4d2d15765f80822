// Package client provides the guarded HTTP client and the live WebSocket
// stream client for the parking backend. Types mirror the backend wire
// protocol.
package client

import (
	"encoding/json"
	"time"
)

// EventTag identifies the kind of live stream message.
type EventTag string

const (
	TagGateEvent       EventTag = "gate_event"
	TagNewAlert        EventTag = "new_alert"
	TagOccupancyUpdate EventTag = "occupancy_update"
)

// Envelope is the frame for all live stream messages.
type Envelope struct {
	Type    EventTag        `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decision is the backend's classification of a gate event.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
	DecisionAlert Decision = "alert"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// --- Live stream payloads ---

// GateEvent is a pushed plate read at a gate.
type GateEvent struct {
	ID        string    `json:"id"`
	Plate     string    `json:"plate"`
	Gate      string    `json:"gate"`
	Decision  Decision  `json:"decision"`
	Timestamp time.Time `json:"timestamp"`
	Snapshot  string    `json:"snapshot,omitempty"`
}

// Alert arrives both pushed (new_alert) and pulled (/api/alerts).
type Alert struct {
	ID         string     `json:"id"`
	Type       string     `json:"alert_type"`
	Severity   Severity   `json:"severity"`
	Plate      string     `json:"plate,omitempty"`
	GateID     string     `json:"gate_id,omitempty"`
	Message    string     `json:"message"`
	Resolved   bool       `json:"resolved"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Occupancy is a lot fill reading. Percentage is only set by the REST
// endpoint.
type Occupancy struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage,omitempty"`
}

// --- HTTP response types ---

// AuthResponse is returned by POST /api/auth/login.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Identity is the authenticated operator's profile from /api/auth/me.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

// DisplayName returns the full name, falling back to the username.
func (i Identity) DisplayName() string {
	if i.FullName != "" {
		return i.FullName
	}
	return i.Username
}

// EventType classifies a pulled parking event.
type EventType string

const (
	EventEntry     EventType = "entry"
	EventExit      EventType = "exit"
	EventDetection EventType = "detection"
)

// ParkingEvent is an entry of the pulled /api/events log.
type ParkingEvent struct {
	ID            string    `json:"id"`
	Plate         string    `json:"plate"`
	GateID        string    `json:"gate_id"`
	CameraID      string    `json:"camera_id,omitempty"`
	EventType     EventType `json:"event_type"`
	OCRConfidence *float64  `json:"ocr_confidence,omitempty"`
	Decision      Decision  `json:"decision,omitempty"`
	RuleApplied   string    `json:"rule_applied,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
