package mode

import (
	"strings"
	"sync/atomic"

	"magabot/internal/models"
)

// Resolver decides the concrete reply mode for an inbound event.
// It is safe for concurrent use; the marker set can be swapped at runtime.
type Resolver struct {
	markers atomic.Pointer[[]string]
}

// NewResolver creates a resolver with the given voice-request markers
func NewResolver(markers []string) *Resolver {
	r := &Resolver{}
	r.SetMarkers(markers)
	return r
}

// SetMarkers replaces the voice-request marker set (used by config hot-reload)
func (r *Resolver) SetMarkers(markers []string) {
	normalized := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			normalized = append(normalized, m)
		}
	}
	r.markers.Store(&normalized)
}

// Markers returns the current marker set
func (r *Resolver) Markers() []string {
	return append([]string(nil), (*r.markers.Load())...)
}

// Resolve returns text or voice, never auto. An explicit session preference wins;
// in auto mode voice input gets a voice reply, and text gets one only when it
// carries a voice-request marker.
func (r *Resolver) Resolve(event *models.InboundEvent, session *models.Session) models.ResponseMode {
	if session != nil {
		switch session.Mode {
		case models.ModeText:
			return models.ModeText
		case models.ModeVoice:
			return models.ModeVoice
		}
	}

	if event == nil {
		return models.ModeText
	}
	if event.Kind == models.EventVoice {
		return models.ModeVoice
	}
	if r.hasMarker(event.Text) {
		return models.ModeVoice
	}
	return models.ModeText
}

func (r *Resolver) hasMarker(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, marker := range *r.markers.Load() {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Describe returns a user-facing description of a mode preference
func Describe(m models.ResponseMode) string {
	switch m {
	case models.ModeAuto:
		return "Automatic: voice in, voice out; text in, text out; text with a voice marker gets a voice reply"
	case models.ModeText:
		return "Always reply with text"
	case models.ModeVoice:
		return "Always reply with voice"
	default:
		return "Unknown mode"
	}
}
