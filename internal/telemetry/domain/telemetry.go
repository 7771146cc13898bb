package domain

import (
	"encoding/json"
	"time"
)

// Event is one user-facing action (registration step, login, scan) fanned out to Kafka and OTel.
// The JSON field names are what the Loki worker reads labels from.
type Event struct {
	UserID    string          `json:"userId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	EventType string          `json:"eventType"`
	Source    string          `json:"source"`
	IP        string          `json:"ip,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
