package models

import (
	"encoding/json"
	"fmt"
)

// EventType identifies a push-channel event.
type EventType string

const (
	// Client -> Server
	EventJoinCase  EventType = "join:case"
	EventLeaveCase EventType = "leave:case"

	// Server -> Client
	EventJoinedCase  EventType = "joined:case"
	EventLeftCase    EventType = "left:case"
	EventNewMessage  EventType = "message:new"
	EventMessageRead EventType = "message:read"
	EventError       EventType = "error"
)

// Envelope wraps every push-channel frame with a type tag. Payloads are
// decoded into their typed variant at the ingestion boundary; nothing
// downstream touches raw JSON.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinCase asks the server to scope push delivery to one case room.
type JoinCase struct {
	CaseID int64 `json:"caseId"`
}

// LeaveCase releases a case room. The server sends no acknowledgment.
type LeaveCase struct {
	CaseID int64 `json:"caseId"`
}

// JoinAck acknowledges a join request. Either Room/RoomSize are set or
// Error carries the rejection reason.
type JoinAck struct {
	CaseID   int64  `json:"caseId"`
	Room     string `json:"room,omitempty"`
	RoomSize int    `json:"roomSize,omitempty"`
	Error    string `json:"error,omitempty"`
}

// MessageRead notifies that a message was marked read by its recipient.
type MessageRead struct {
	ID     int64 `json:"id"`
	CaseID int64 `json:"caseId"`
}

// ErrorEvent is a server-side failure surfaced on the push channel.
type ErrorEvent struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// NewEnvelope builds an envelope around a typed payload.
func NewEnvelope(eventType EventType, data interface{}) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: eventType, Data: raw}, nil
}

// ParseEnvelope decodes one raw push-channel frame.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("parse envelope: missing type tag")
	}
	return &env, nil
}

// Decode unmarshals the envelope payload into the given typed variant.
func (e *Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
