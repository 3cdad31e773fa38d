package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"magabot/internal/dispatch"
	"magabot/internal/models"
)

const (
	pollTimeout = 30 * time.Second
	// updateTimeout bounds the handling of one update, capability calls included
	updateTimeout = 5 * time.Minute
)

// Dispatcher handles one normalized inbound event
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *models.InboundEvent) ([]dispatch.Reply, error)
}

// Bot bridges Telegram updates to the dispatcher and delivers its replies
type Bot struct {
	client     *Client
	dispatcher Dispatcher
	allowed    map[string]bool
	now        func() time.Time

	mu      sync.Mutex
	running bool

	lanesMu  sync.Mutex
	lanes    map[string]*lane
	inFlight sync.WaitGroup
}

// lane holds one user's pending updates. A single goroutine drains it, so
// a user's updates are handled in arrival order while different users run
// concurrently.
type lane struct {
	pending []queuedUpdate
}

type queuedUpdate struct {
	ctx    context.Context
	update Update
}

// NewBot creates a bot. An empty allow-list accepts every user.
func NewBot(client *Client, dispatcher Dispatcher, allowedUsers []string) *Bot {
	var allowed map[string]bool
	for _, u := range allowedUsers {
		if u = strings.TrimSpace(u); u != "" {
			if allowed == nil {
				allowed = make(map[string]bool)
			}
			allowed[u] = true
		}
	}
	return &Bot{
		client:     client,
		dispatcher: dispatcher,
		allowed:    allowed,
		now:        time.Now,
		lanes:      make(map[string]*lane),
	}
}

// Submit queues an update behind earlier updates from the same user and
// returns at once. ctx bounds the handling; cancelling it drops updates
// still waiting in the lane.
func (b *Bot) Submit(ctx context.Context, u Update) {
	key := laneKey(u)
	b.lanesMu.Lock()
	l, ok := b.lanes[key]
	if !ok {
		l = &lane{}
		b.lanes[key] = l
	}
	l.pending = append(l.pending, queuedUpdate{ctx: ctx, update: u})
	b.lanesMu.Unlock()

	if !ok {
		b.inFlight.Add(1)
		go b.drain(key, l)
	}
}

func (b *Bot) drain(key string, l *lane) {
	defer b.inFlight.Done()
	for {
		b.lanesMu.Lock()
		if len(l.pending) == 0 {
			delete(b.lanes, key)
			b.lanesMu.Unlock()
			return
		}
		next := l.pending[0]
		l.pending = l.pending[1:]
		b.lanesMu.Unlock()

		if next.ctx.Err() != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(next.ctx, updateTimeout)
		if err := b.HandleUpdate(ctx, next.update); err != nil {
			log.Printf("⚠️ [TELEGRAM] Update %d failed: %v", next.update.UpdateID, err)
		}
		cancel()
	}
}

// Wait blocks until every submitted update has been handled
func (b *Bot) Wait() {
	b.inFlight.Wait()
}

func laneKey(u Update) string {
	if m := u.Message; m != nil && m.From != nil {
		return strconv.FormatInt(m.From.ID, 10)
	}
	return ""
}

// SendText implements dispatch.TextSender for auto-pilot notices
func (b *Bot) SendText(ctx context.Context, chatID, text string) error {
	return b.client.SendText(ctx, chatID, text)
}

// HandleUpdate converts an update to an event, dispatches it and delivers
// the replies in order
func (b *Bot) HandleUpdate(ctx context.Context, u Update) error {
	msg := u.Message
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		return nil
	}
	userID := strconv.FormatInt(msg.From.ID, 10)
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if b.allowed != nil && !b.allowed[userID] {
		log.Printf("🚫 [TELEGRAM] Ignoring update %d from user %s (not allowed)", u.UpdateID, userID)
		return nil
	}

	ev, err := b.toEvent(ctx, u)
	if err != nil {
		log.Printf("⚠️ [TELEGRAM] Failed to read update %d: %v", u.UpdateID, err)
		return b.client.SendText(ctx, chatID, "⚠️ I couldn't read that attachment. Please try again.")
	}
	if ev == nil {
		return nil
	}

	if err := b.client.SendTyping(ctx, chatID); err != nil {
		log.Printf("⚠️ [TELEGRAM] Typing indicator failed: %v", err)
	}

	replies, err := b.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		log.Printf("❌ [TELEGRAM] Dispatch failed for update %d: %v", u.UpdateID, err)
	}
	return b.deliver(ctx, chatID, replies)
}

func (b *Bot) toEvent(ctx context.Context, u Update) (*models.InboundEvent, error) {
	msg := u.Message
	ev := &models.InboundEvent{
		ID:         strconv.FormatInt(u.UpdateID, 10),
		UserID:     strconv.FormatInt(msg.From.ID, 10),
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		Kind:       models.EventText,
		Text:       strings.TrimSpace(msg.Text),
		ReceivedAt: b.now(),
	}
	if msg.Date > 0 {
		ev.ReceivedAt = time.Unix(msg.Date, 0)
	}

	switch {
	case msg.Voice != nil:
		data, name, err := b.client.DownloadFile(ctx, msg.Voice.FileID)
		if err != nil {
			return nil, err
		}
		ev.Kind = models.EventVoice
		ev.Audio = data
		ev.AudioFormat = audioFormat(msg.Voice.MimeType, name)
	case msg.Audio != nil:
		data, name, err := b.client.DownloadFile(ctx, msg.Audio.FileID)
		if err != nil {
			return nil, err
		}
		if msg.Audio.FileName != "" {
			name = msg.Audio.FileName
		}
		ev.Kind = models.EventVoice
		ev.Audio = data
		ev.AudioFormat = audioFormat(msg.Audio.MimeType, name)
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		data, name, err := b.client.DownloadFile(ctx, largest.FileID)
		if err != nil {
			return nil, err
		}
		ev.Image = data
		ev.MimeType = "image/jpeg"
		ev.FileName = name
		ev.Text = strings.TrimSpace(msg.Caption)
	case msg.Document != nil:
		data, name, err := b.client.DownloadFile(ctx, msg.Document.FileID)
		if err != nil {
			return nil, err
		}
		if msg.Document.FileName != "" {
			name = msg.Document.FileName
		}
		ev.Image = data
		ev.MimeType = msg.Document.MimeType
		ev.FileName = name
		ev.Text = strings.TrimSpace(msg.Caption)
	case ev.Text == "":
		return nil, nil
	}

	if ev.Kind == models.EventText && strings.HasPrefix(ev.Text, "/") {
		ev.Kind = models.EventCommand
	}
	return ev, nil
}

func (b *Bot) deliver(ctx context.Context, chatID string, replies []dispatch.Reply) error {
	var errs []error
	for _, r := range replies {
		var err error
		switch r.Kind {
		case dispatch.ReplyVoice:
			err = b.client.SendVoice(ctx, chatID, r.Audio, "")
			if err != nil && r.Text != "" {
				log.Printf("⚠️ [TELEGRAM] Voice reply failed, sending text: %v", err)
				err = b.client.SendText(ctx, chatID, r.Text)
			}
		case dispatch.ReplyDocument:
			err = b.client.SendDocument(ctx, chatID, r.Data, r.FileName, r.Text)
		default:
			if strings.TrimSpace(r.Text) == "" {
				continue
			}
			err = b.client.SendText(ctx, chatID, r.Text)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Poll runs the getUpdates loop until ctx is cancelled
func (b *Bot) Poll(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("poller already running")
	}
	b.running = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	if err := b.client.DeleteWebhook(ctx); err != nil {
		log.Printf("⚠️ [TELEGRAM] deleteWebhook failed: %v", err)
	}
	log.Printf("🤖 [TELEGRAM] Long polling started")

	var offset int64
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			log.Printf("🛑 [TELEGRAM] Long polling stopped")
			return nil
		default:
		}

		updates, err := b.client.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("⚠️ [TELEGRAM] getUpdates failed: %v (retry in %s)", err, backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, u := range updates {
			offset = u.UpdateID + 1
			b.Submit(ctx, u)
		}
	}
}

func audioFormat(mime, name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 && i < len(name)-1 {
		return strings.ToLower(name[i+1:])
	}
	if mime != "" {
		mime = strings.TrimPrefix(strings.ToLower(mime), "audio/")
		if i := strings.Index(mime, ";"); i >= 0 {
			mime = mime[:i]
		}
		return mime
	}
	return "ogg"
}
