package dispatch

import (
	"context"
	"log"
	"time"

	"magabot/internal/autopilot"
	"magabot/internal/capability"
	"magabot/internal/models"
)

// TextSender delivers a plain message to a chat
type TextSender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// VoiceSender delivers a voice note to a chat
type VoiceSender interface {
	SendVoice(ctx context.Context, chatID string, audio []byte, caption string) error
}

// ModeSource reports a user's configured response mode
type ModeSource interface {
	Mode(ctx context.Context, userID string) models.ResponseMode
}

// CaseNotifier sends auto-pilot notices to the case owner's chat and
// publishes them to progress subscribers. Owners in voice mode get a
// synthesized voice note when voice delivery is configured.
type CaseNotifier struct {
	sender TextSender
	hub    *Hub
	now    func() time.Time

	voice   VoiceSender
	invoker capability.Invoker
	modes   ModeSource
}

// NewCaseNotifier creates a notifier. sender and hub may be nil.
func NewCaseNotifier(sender TextSender, hub *Hub) *CaseNotifier {
	return &CaseNotifier{sender: sender, hub: hub, now: time.Now}
}

// WithVoice enables voice notices for owners whose session mode is voice
func (n *CaseNotifier) WithVoice(voice VoiceSender, invoker capability.Invoker, modes ModeSource) *CaseNotifier {
	n.voice = voice
	n.invoker = invoker
	n.modes = modes
	return n
}

// NotifyCase implements autopilot.Notifier
func (n *CaseNotifier) NotifyCase(ctx context.Context, c *models.Case, notice autopilot.Notice) {
	if n.hub != nil {
		n.hub.Publish(CaseUpdate{
			CaseID: c.ID,
			UserID: c.UserID,
			Stage:  c.Stage,
			Kind:   string(notice.Kind),
			Text:   notice.Text,
			At:     n.now(),
		})
	}
	if c.ChatID == "" {
		return
	}
	if n.sendVoice(ctx, c, notice) {
		return
	}
	if n.sender == nil {
		return
	}
	if err := n.sender.SendText(ctx, c.ChatID, notice.Text); err != nil {
		log.Printf("⚠️ [DISPATCH] Failed to deliver %s notice for case %s: %v", notice.Kind, c.ID, err)
	}
}

// sendVoice reports whether the notice went out as a voice note. Notices
// are not replies to a message, so auto mode stays text.
func (n *CaseNotifier) sendVoice(ctx context.Context, c *models.Case, notice autopilot.Notice) bool {
	if n.voice == nil || n.invoker == nil || n.modes == nil {
		return false
	}
	if n.modes.Mode(ctx, c.UserID) != models.ModeVoice {
		return false
	}
	res, err := n.invoker.Invoke(ctx, models.Invocation{
		Kind:    models.CapSpeechSynthesize,
		Payload: models.Payload{Text: notice.Text},
		UserID:  c.UserID,
		CaseID:  c.ID,
	})
	if err != nil || res == nil || len(res.Audio) == 0 {
		log.Printf("⚠️ [DISPATCH] Voice notice for case %s fell back to text: %v", c.ID, err)
		return false
	}
	if err := n.voice.SendVoice(ctx, c.ChatID, res.Audio, ""); err != nil {
		log.Printf("⚠️ [DISPATCH] Voice notice for case %s failed, sending text: %v", c.ID, err)
		return false
	}
	return true
}
