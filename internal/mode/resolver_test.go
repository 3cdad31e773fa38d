package mode

import (
	"testing"

	"magabot/internal/config"
	"magabot/internal/models"
)

func TestResolve_ExplicitPreferenceWins(t *testing.T) {
	r := NewResolver(config.DefaultVoiceMarkers)

	voiceEvent := &models.InboundEvent{Kind: models.EventVoice}
	if got := r.Resolve(voiceEvent, &models.Session{Mode: models.ModeText}); got != models.ModeText {
		t.Errorf("text preference: got %s", got)
	}

	textEvent := &models.InboundEvent{Kind: models.EventText, Text: "hello"}
	if got := r.Resolve(textEvent, &models.Session{Mode: models.ModeVoice}); got != models.ModeVoice {
		t.Errorf("voice preference: got %s", got)
	}
}

func TestResolve_Auto(t *testing.T) {
	r := NewResolver(config.DefaultVoiceMarkers)
	session := &models.Session{Mode: models.ModeAuto}

	tests := []struct {
		name  string
		event *models.InboundEvent
		want  models.ResponseMode
	}{
		{"voice note", &models.InboundEvent{Kind: models.EventVoice}, models.ModeVoice},
		{"plain text", &models.InboundEvent{Kind: models.EventText, Text: "find me a job"}, models.ModeText},
		{"english marker", &models.InboundEvent{Kind: models.EventText, Text: "Answer by VOICE please"}, models.ModeVoice},
		{"russian marker", &models.InboundEvent{Kind: models.EventText, Text: "Скажи привет"}, models.ModeVoice},
		{"command", &models.InboundEvent{Kind: models.EventCommand, Text: "/status"}, models.ModeText},
		{"empty", &models.InboundEvent{Kind: models.EventText}, models.ModeText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.event, session); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolve_NeverReturnsAuto(t *testing.T) {
	r := NewResolver(config.DefaultVoiceMarkers)
	modes := []models.ResponseMode{models.ModeAuto, models.ModeText, models.ModeVoice, "", "garbage"}
	kinds := []models.EventKind{models.EventText, models.EventVoice, models.EventCommand, models.EventButton}
	texts := []string{"", "hi", "voice", "/mode auto"}

	for _, m := range modes {
		for _, k := range kinds {
			for _, text := range texts {
				got := r.Resolve(&models.InboundEvent{Kind: k, Text: text}, &models.Session{Mode: m})
				if got != models.ModeText && got != models.ModeVoice {
					t.Fatalf("Resolve(mode=%q, kind=%s, text=%q) = %q", m, k, text, got)
				}
			}
		}
	}

	if got := r.Resolve(nil, nil); got != models.ModeText {
		t.Errorf("nil inputs should resolve to text, got %s", got)
	}
}

func TestSetMarkers(t *testing.T) {
	r := NewResolver(nil)
	event := &models.InboundEvent{Kind: models.EventText, Text: "please read aloud"}
	auto := &models.Session{Mode: models.ModeAuto}

	if r.Resolve(event, auto) != models.ModeText {
		t.Fatal("no markers configured, expected text")
	}

	r.SetMarkers([]string{"  Read Aloud ", ""})
	if r.Resolve(event, auto) != models.ModeVoice {
		t.Error("expected voice after marker reload")
	}
	if len(r.Markers()) != 1 {
		t.Errorf("blank markers should be dropped, got %v", r.Markers())
	}
}
