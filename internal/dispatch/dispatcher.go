package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"magabot/internal/autopilot"
	"magabot/internal/capability"
	"magabot/internal/guard"
	"magabot/internal/logging"
	"magabot/internal/mode"
	"magabot/internal/models"
	"magabot/internal/report"
	"magabot/internal/router"
	"magabot/internal/sessions"
)

// Cases is the part of the auto-pilot the dispatcher drives. Events are
// always submitted asynchronously: the dispatcher holds the session lock
// and the machine takes it to link and unlink cases.
type Cases interface {
	Create(ctx context.Context, req autopilot.StartRequest) (*models.Case, error)
	Submit(ev models.CaseEvent) error
	Get(ctx context.Context, caseID string) (*models.Case, error)
	Settings() autopilot.Settings
}

// Guard is the rate check applied to inbound events and slow invocations
type Guard interface {
	Check(ctx context.Context, userID string, class models.LatencyClass) guard.Decision
}

// Deps are the collaborators of the dispatcher. Guard is optional.
type Deps struct {
	Sessions *sessions.Table
	Guard    Guard
	Resolver *mode.Resolver
	Router   *router.Router
	Invoker  capability.Invoker
	Cases    Cases
	Profile  models.Profile
}

// Dispatcher runs one inbound event through dedup, the guard, the mode
// resolver and the router, then invokes the capability or hands the event
// to the auto-pilot.
type Dispatcher struct {
	sessions *sessions.Table
	guard    Guard
	resolver *mode.Resolver
	router   *router.Router
	invoker  capability.Invoker
	cases    Cases
	profile  atomic.Pointer[models.Profile]
	now      func() time.Time
}

// postingsShown caps the search results listed in one reply
const postingsShown = 5

// New creates a dispatcher
func New(deps Deps) *Dispatcher {
	d := &Dispatcher{
		sessions: deps.Sessions,
		guard:    deps.Guard,
		resolver: deps.Resolver,
		router:   deps.Router,
		invoker:  deps.Invoker,
		cases:    deps.Cases,
		now:      time.Now,
	}
	d.SetProfile(deps.Profile)
	return d
}

// SetProfile replaces the applicant profile used for new cases
func (d *Dispatcher) SetProfile(p models.Profile) {
	d.profile.Store(&p)
}

// turn is the state of one event while the session lock is held
type turn struct {
	d       *Dispatcher
	ctx     context.Context
	session *models.Session
	mode    models.ResponseMode
	logger  *slog.Logger
	submit  []models.CaseEvent
}

// Dispatch handles one inbound event and returns the replies to deliver in
// order. A duplicate event id yields no replies and no side effects.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *models.InboundEvent) ([]Reply, error) {
	if ev == nil || ev.UserID == "" {
		return nil, fmt.Errorf("dispatch: event without user id")
	}
	logger := logging.WithSession(ev.UserID, ev.ChatID, ev.ID)

	var replies []Reply
	var pending []models.CaseEvent
	err := d.sessions.With(ctx, ev.UserID, ev.ChatID, func(s *models.Session) error {
		if s.SeenEvent(ev.ID) {
			logger.Info("duplicate event dropped")
			return nil
		}
		s.MarkEvent(ev.ID)

		t := &turn{d: d, ctx: ctx, session: s, logger: logger}
		t.mode = d.resolver.Resolve(ev, s)
		if dec := d.check(ctx, s.UserID, models.ClassFast); !dec.Allowed {
			replies = append(replies, t.answer(throttledText(dec)))
			return nil
		}
		replies = t.route(ev, 0)
		pending = t.submit
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch event %s: %w", ev.ID, err)
	}

	for _, ce := range pending {
		if err := d.cases.Submit(ce); err != nil {
			log.Printf("⚠️ [DISPATCH] Failed to queue %s for case %s: %v", ce.Kind, ce.CaseID, err)
			if ce.Kind != models.CaseEventStart {
				replies = append(replies, textReply("⏳ I'm still working on your previous request. Please try again in a moment."))
			}
		}
	}
	return replies, nil
}

func (d *Dispatcher) check(ctx context.Context, userID string, class models.LatencyClass) guard.Decision {
	if d.guard == nil {
		return guard.Decision{Allowed: true}
	}
	return d.guard.Check(ctx, userID, class)
}

func (t *turn) route(ev *models.InboundEvent, depth int) []Reply {
	dec, err := t.d.router.Route(ev, t.session)
	if err != nil {
		if errors.Is(err, router.ErrUnknownCommand) {
			return []Reply{t.answer(fmt.Sprintf("❓ Unknown command %s\n\n%s", dec.Command, router.HelpText(t.session.Mode, mode.Describe)))}
		}
		t.logger.Error("routing failed", "error", err)
		return []Reply{t.answer("❌ I couldn't process that message.")}
	}

	switch dec.Action {
	case router.ActionInvoke:
		return t.invoke(ev, dec, depth)
	case router.ActionCaseEvent:
		t.submit = append(t.submit, *dec.CaseEvent)
		return nil
	case router.ActionStartCase:
		return t.startCase(*dec.Criteria)
	case router.ActionModeChanged:
		return []Reply{textReplyf("✅ Mode set to %s. %s.", dec.Mode, mode.Describe(dec.Mode))}
	case router.ActionShowMode:
		return []Reply{textReplyf("Current mode: %s\n%s.\n\nChange it with /mode auto|text|voice", dec.Mode, mode.Describe(dec.Mode))}
	case router.ActionHelp:
		return []Reply{textReply(router.HelpText(t.session.Mode, mode.Describe))}
	case router.ActionNoCase:
		return []Reply{textReply("You have no auto-pilot case yet. Send /autopilot to start one.")}
	case router.ActionExport:
		return t.export(dec.CaseID)
	}
	return []Reply{t.answer("❌ I couldn't process that message.")}
}

func (t *turn) invoke(ev *models.InboundEvent, dec router.Decision, depth int) []Reply {
	inv := *dec.Invocation
	if t.d.invoker.Class(inv.Kind) == models.ClassSlow {
		if g := t.d.check(t.ctx, t.session.UserID, models.ClassSlow); !g.Allowed {
			return []Reply{t.answer(throttledText(g))}
		}
	}

	res, err := t.d.invoker.Invoke(t.ctx, inv)
	if err != nil {
		t.logger.Warn("capability failed", "capability", inv.Kind, "error", err)
		if inv.Kind == models.CapSpeechSynthesize {
			return []Reply{textReply(failureText(inv.Kind, err))}
		}
		return []Reply{t.answer(failureText(inv.Kind, err))}
	}
	if res == nil {
		res = &models.Result{}
	}

	if dec.Reroute {
		transcript := strings.TrimSpace(res.Text)
		if transcript == "" || depth > 0 {
			return []Reply{textReply("🎤 I couldn't make out any speech in that voice message.")}
		}
		next := *ev
		next.Kind = models.EventText
		next.Text = transcript
		next.Audio = nil
		return t.route(&next, depth+1)
	}

	replies := t.render(inv, res)
	if dec.SeedCase && dec.Criteria != nil {
		replies = append(replies, t.seedCase(*dec.Criteria, res.Postings)...)
	}
	return replies
}

func (t *turn) render(inv models.Invocation, res *models.Result) []Reply {
	switch inv.Kind {
	case models.CapSpeechSynthesize:
		if len(res.Audio) == 0 {
			return []Reply{textReply("🔇 Speech synthesis returned no audio.")}
		}
		return []Reply{{Kind: ReplyVoice, Audio: res.Audio, Format: res.AudioFormat, Text: inv.Payload.Text}}
	case models.CapJobSearch:
		return []Reply{textReply(formatPostings(res.Postings, postingsShown))}
	case models.CapNegotiate:
		return []Reply{textReply(formatCounter(res.Counter))}
	case models.CapInterviewPrep:
		if res.Brief != nil && res.Brief.Brief != "" {
			return []Reply{t.answer(res.Brief.Brief)}
		}
	}
	if strings.TrimSpace(res.Text) == "" {
		return []Reply{textReply("🤷 I have nothing to say to that.")}
	}
	return []Reply{t.answer(res.Text)}
}

// answer delivers text in the resolved mode. Voice falls back to text when synthesis fails.
func (t *turn) answer(text string) Reply {
	if t.mode != models.ModeVoice {
		return textReply(text)
	}
	res, err := t.d.invoker.Invoke(t.ctx, models.Invocation{
		Kind:    models.CapSpeechSynthesize,
		Payload: models.Payload{Text: text, Language: t.session.Language},
		UserID:  t.session.UserID,
	})
	if err != nil || res == nil || len(res.Audio) == 0 {
		t.logger.Warn("voice reply fell back to text", "error", err)
		return textReply(text)
	}
	return Reply{Kind: ReplyVoice, Audio: res.Audio, Format: res.AudioFormat, Text: text}
}

func (t *turn) seedCase(criteria models.Criteria, found []models.Posting) []Reply {
	if t.session.HasActiveCase() {
		return nil
	}
	if len(autopilot.FilterPostings(found, criteria, *t.d.profile.Load())) == 0 {
		return []Reply{textReply("None of these vacancies match your criteria, so I didn't start the auto-pilot.")}
	}
	c, err := t.createCase(criteria, found)
	if err != nil {
		return []Reply{textReply("❌ I couldn't start the auto-pilot. Please try /autopilot later.")}
	}
	return []Reply{textReplyf("🚀 Auto-pilot started with %d vacancies (case %s). I'll apply, prepare for interviews and negotiate for you. /status shows progress, /cancel stops it.",
		len(c.Artifacts.Postings), shortID(c.ID))}
}

func (t *turn) startCase(criteria models.Criteria) []Reply {
	if t.session.HasActiveCase() {
		return []Reply{textReply("An auto-pilot case is already running. Use /status or /cancel.")}
	}
	c, err := t.createCase(criteria, nil)
	if err != nil {
		return []Reply{textReply("❌ I couldn't start the auto-pilot. Please try again later.")}
	}
	role := criteria.TargetRole
	if role == "" {
		role = "your search"
	}
	return []Reply{textReplyf("🚀 Auto-pilot started for %s (case %s). I'll report every step. /status shows progress, /cancel stops it.", role, shortID(c.ID))}
}

// createCase persists a case, links it to the session and queues its start
func (t *turn) createCase(criteria models.Criteria, seed []models.Posting) (*models.Case, error) {
	c, err := t.d.cases.Create(t.ctx, autopilot.StartRequest{
		UserID:   t.session.UserID,
		ChatID:   t.session.ChatID,
		Criteria: criteria,
		Profile:  *t.d.profile.Load(),
		Seed:     seed,
	})
	if err != nil {
		t.logger.Error("failed to create case", "error", err)
		return nil, err
	}
	t.session.ActiveCaseID = c.ID
	t.session.LastCaseID = c.ID
	t.submit = append(t.submit, models.CaseEvent{
		CaseID: c.ID,
		UserID: c.UserID,
		ChatID: c.ChatID,
		Kind:   models.CaseEventStart,
	})
	log.Printf("🚀 [DISPATCH] Case %s linked to user %s", c.ID, c.UserID)
	return c, nil
}

func (t *turn) export(caseID string) []Reply {
	c, err := t.d.cases.Get(t.ctx, caseID)
	if err != nil {
		t.logger.Warn("export failed", "case_id", caseID, "error", err)
		return []Reply{textReply("I couldn't find that case.")}
	}
	data, err := report.XLSX(c, t.d.now())
	if err != nil {
		t.logger.Error("failed to render case workbook", "case_id", caseID, "error", err)
		return []Reply{textReply("❌ I couldn't build the report. Please try again later.")}
	}
	return []Reply{{
		Kind:     ReplyDocument,
		FileName: report.FileName(c, "xlsx"),
		Data:     data,
		Text:     autopilot.StatusText(c, t.d.cases.Settings()),
	}}
}

func failureText(kind models.CapabilityKind, err error) string {
	switch {
	case errors.Is(err, capability.ErrTimeout):
		return fmt.Sprintf("⏱️ %s took too long to respond. Please try again in a moment.", label(kind))
	case errors.Is(err, capability.ErrUnavailable):
		return fmt.Sprintf("🚫 %s is not available right now.", label(kind))
	case errors.Is(err, capability.ErrCancelled), errors.Is(err, context.Canceled):
		return fmt.Sprintf("%s was cancelled.", label(kind))
	}
	return fmt.Sprintf("❌ %s failed. Please try again later.", label(kind))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
