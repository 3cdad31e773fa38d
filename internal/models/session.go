package models

import (
	"strings"
	"time"
)

// ResponseMode is the channel a reply is delivered in
type ResponseMode string

const (
	ModeText  ResponseMode = "text"
	ModeVoice ResponseMode = "voice"
	ModeAuto  ResponseMode = "auto"
)

// ParseResponseMode parses a user-supplied mode name
func ParseResponseMode(s string) (ResponseMode, bool) {
	switch ResponseMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeText:
		return ModeText, true
	case ModeVoice:
		return ModeVoice, true
	case ModeAuto:
		return ModeAuto, true
	}
	return "", false
}

// maxRecentEventIDs bounds the per-session dedup memory
const maxRecentEventIDs = 64

// Session identifies one chat participant.
// Sessions are never hard-deleted; idle sessions are evicted from memory
// and re-hydrated from the repository on the next event.
type Session struct {
	UserID       string       `bson:"_id" json:"user_id"`
	ChatID       string       `bson:"chatId" json:"chat_id"`
	Mode         ResponseMode `bson:"mode" json:"mode"`
	Language     string       `bson:"language,omitempty" json:"language,omitempty"`
	ActiveCaseID string       `bson:"activeCaseId,omitempty" json:"active_case_id,omitempty"`
	LastCaseID   string       `bson:"lastCaseId,omitempty" json:"last_case_id,omitempty"`

	// Dedup state: the most recent event ids, matched exactly. Ids are not
	// assumed to arrive in numeric order.
	RecentEventIDs []string `bson:"recentEventIds,omitempty" json:"recent_event_ids,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// NewSession creates a session for a first-seen user. Mode defaults to auto.
func NewSession(userID, chatID string, now time.Time) *Session {
	return &Session{
		UserID:    userID,
		ChatID:    chatID,
		Mode:      ModeAuto,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SeenEvent reports whether the event id was already processed for this session
func (s *Session) SeenEvent(id string) bool {
	if id == "" {
		return false
	}
	for _, seen := range s.RecentEventIDs {
		if seen == id {
			return true
		}
	}
	return false
}

// MarkEvent records an event id as processed
func (s *Session) MarkEvent(id string) {
	if id == "" || s.SeenEvent(id) {
		return
	}
	s.RecentEventIDs = append(s.RecentEventIDs, id)
	if len(s.RecentEventIDs) > maxRecentEventIDs {
		s.RecentEventIDs = s.RecentEventIDs[len(s.RecentEventIDs)-maxRecentEventIDs:]
	}
}

// HasActiveCase reports whether an automation case is linked to the session
func (s *Session) HasActiveCase() bool {
	return s.ActiveCaseID != ""
}

// Clone returns a copy safe to hand across goroutines
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.RecentEventIDs = append([]string(nil), s.RecentEventIDs...)
	return &c
}
