package models

import (
	"strings"
	"time"
)

// EventKind classifies an inbound user event
type EventKind string

const (
	EventText    EventKind = "text"
	EventVoice   EventKind = "voice"
	EventCommand EventKind = "command"
	EventButton  EventKind = "button"
)

// InboundEvent is one user-originated message. Immutable once received.
type InboundEvent struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	ChatID string    `json:"chat_id"`
	Kind   EventKind `json:"kind"`
	Text   string    `json:"text,omitempty"`

	// Media attachments (voice notes, photos, documents)
	Audio       []byte `json:"-"`
	AudioFormat string `json:"audio_format,omitempty"`
	Image       []byte `json:"-"`
	MimeType    string `json:"mime_type,omitempty"`
	FileName    string `json:"file_name,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// IsCommand reports whether the event carries an explicit slash command
func (e *InboundEvent) IsCommand() bool {
	return e.Kind == EventCommand || e.Kind == EventButton || strings.HasPrefix(strings.TrimSpace(e.Text), "/")
}

// HasImage reports whether an image or document attachment is present
func (e *InboundEvent) HasImage() bool {
	return len(e.Image) > 0
}

// CaseEventKind is a domain event delivered to the auto-pilot state machine
type CaseEventKind string

const (
	CaseEventStart   CaseEventKind = "start"
	CaseEventAdvance CaseEventKind = "advance"
	CaseEventRetry   CaseEventKind = "retry"
	CaseEventCancel  CaseEventKind = "cancel"
	CaseEventStatus  CaseEventKind = "status"
	CaseEventInput   CaseEventKind = "input"
)

// CaseEvent is an event addressed to one automation case
type CaseEvent struct {
	CaseID  string        `json:"case_id"`
	UserID  string        `json:"user_id"`
	ChatID  string        `json:"chat_id"`
	Kind    CaseEventKind `json:"kind"`
	Text    string        `json:"text,omitempty"`
	Mode    ResponseMode  `json:"mode,omitempty"`
	EventID string        `json:"event_id,omitempty"`

	// Stage is set on internal advance events to the stage they were issued for
	Stage Stage `json:"stage,omitempty"`
}
