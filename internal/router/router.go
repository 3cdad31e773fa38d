package router

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"magabot/internal/models"
)

// ErrUnknownCommand is returned for slash commands outside the grammar
var ErrUnknownCommand = errors.New("unknown command")

// Action is what the dispatcher should do with a routed event
type Action int

const (
	// ActionInvoke dispatches Decision.Invocation through the capability registry
	ActionInvoke Action = iota
	// ActionCaseEvent forwards Decision.CaseEvent to the auto-pilot state machine
	ActionCaseEvent
	// ActionStartCase creates a new automation case
	ActionStartCase
	// ActionModeChanged acknowledges a /mode command that updated the session
	ActionModeChanged
	// ActionShowMode answers /mode without an argument
	ActionShowMode
	// ActionHelp answers /start and /help
	ActionHelp
	// ActionNoCase answers case commands sent while no case exists
	ActionNoCase
	// ActionExport exports the current or last case
	ActionExport
)

// Decision is the router's output for one event
type Decision struct {
	Action     Action
	Command    string
	Invocation *models.Invocation
	CaseEvent  *models.CaseEvent
	Mode       models.ResponseMode
	CaseID     string
	Criteria   *models.Criteria

	// SeedCase marks a job search whose results should open a new case
	SeedCase bool
	// Reroute marks a speech-recognize invocation whose transcript is routed again as text
	Reroute bool
}

// Router parses inbound events into decisions. Its only mutation is session.Mode.
type Router struct {
	mu       sync.RWMutex
	intents  []string
	criteria models.Criteria
}

// New creates a router with job-search intent phrases and default case criteria
func New(intents []string, criteria models.Criteria) *Router {
	r := &Router{criteria: criteria}
	r.SetIntents(intents)
	return r
}

// SetIntents replaces the free-text job-search intent phrases
func (r *Router) SetIntents(intents []string) {
	normalized := make([]string, 0, len(intents))
	for _, phrase := range intents {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase != "" {
			normalized = append(normalized, phrase)
		}
	}
	r.mu.Lock()
	r.intents = normalized
	r.mu.Unlock()
}

// SetCriteria replaces the default criteria used for new cases and searches
func (r *Router) SetCriteria(criteria models.Criteria) {
	r.mu.Lock()
	r.criteria = criteria
	r.mu.Unlock()
}

// DefaultCriteria returns a copy of the default criteria
func (r *Router) DefaultCriteria() models.Criteria {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.criteria
	c.Keywords = append([]string(nil), r.criteria.Keywords...)
	c.Locations = append([]string(nil), r.criteria.Locations...)
	c.TargetCompanies = append([]string(nil), r.criteria.TargetCompanies...)
	return c
}

// Route turns an inbound event into a decision
func (r *Router) Route(event *models.InboundEvent, session *models.Session) (Decision, error) {
	// Voice notes are transcribed first; the transcript is routed like typed text
	if event.Kind == models.EventVoice && len(event.Audio) > 0 {
		return Decision{
			Action:  ActionInvoke,
			Reroute: true,
			Invocation: r.invocation(models.CapSpeechRecognize, session, models.Payload{
				Audio:       event.Audio,
				AudioFormat: event.AudioFormat,
				Language:    session.Language,
			}),
		}, nil
	}

	text := strings.TrimSpace(event.Text)
	if event.Kind == models.EventButton && text != "" && !strings.HasPrefix(text, "/") {
		text = "/" + text
	}
	cmd, args := splitCommand(text)

	// Mode and cancel are handled here even while a case is running
	switch cmd {
	case "/mode":
		return r.routeMode(args, session)
	case "/cancel":
		if !session.HasActiveCase() {
			return Decision{Action: ActionNoCase, Command: cmd}, nil
		}
		return r.caseEvent(event, session, session.ActiveCaseID, models.CaseEventCancel, cmd), nil
	}

	if session.HasActiveCase() {
		kind := models.CaseEventInput
		switch cmd {
		case "/retry":
			kind = models.CaseEventRetry
		case "/status":
			kind = models.CaseEventStatus
		case "/export":
			return Decision{Action: ActionExport, Command: cmd, CaseID: session.ActiveCaseID}, nil
		}
		return r.caseEvent(event, session, session.ActiveCaseID, kind, cmd), nil
	}

	if cmd != "" {
		return r.routeCommand(cmd, args, event, session)
	}

	if event.HasImage() {
		return Decision{Action: ActionInvoke, Invocation: r.invocation(models.CapOCR, session, imagePayload(event, text))}, nil
	}

	if r.isJobIntent(text) {
		criteria := r.DefaultCriteria()
		return Decision{
			Action:     ActionInvoke,
			SeedCase:   true,
			Criteria:   &criteria,
			Invocation: r.invocation(models.CapJobSearch, session, models.Payload{Text: text, Criteria: &criteria}),
		}, nil
	}

	return Decision{
		Action:     ActionInvoke,
		Invocation: r.invocation(models.CapTextGenerate, session, models.Payload{Text: text, Language: session.Language}),
	}, nil
}

func (r *Router) routeMode(args string, session *models.Session) (Decision, error) {
	if args == "" {
		return Decision{Action: ActionShowMode, Command: "/mode", Mode: session.Mode}, nil
	}
	m, ok := models.ParseResponseMode(args)
	if !ok {
		return Decision{Command: "/mode"}, fmt.Errorf("%w: /mode %s", ErrUnknownCommand, args)
	}
	session.Mode = m
	return Decision{Action: ActionModeChanged, Command: "/mode", Mode: m}, nil
}

func (r *Router) routeCommand(cmd, args string, event *models.InboundEvent, session *models.Session) (Decision, error) {
	switch cmd {
	case "/start", "/help":
		return Decision{Action: ActionHelp, Command: cmd}, nil

	case "/ask":
		if args == "" {
			return Decision{Action: ActionHelp, Command: cmd}, nil
		}
		return r.invoke(cmd, models.CapTextGenerate, session, models.Payload{Text: args, Language: session.Language}), nil

	case "/say":
		if args == "" {
			return Decision{Action: ActionHelp, Command: cmd}, nil
		}
		return r.invoke(cmd, models.CapSpeechSynthesize, session, models.Payload{Text: args, Language: session.Language}), nil

	case "/ocr":
		if !event.HasImage() {
			return Decision{Action: ActionHelp, Command: cmd}, nil
		}
		return r.invoke(cmd, models.CapOCR, session, imagePayload(event, args)), nil

	case "/jobs":
		criteria := r.DefaultCriteria()
		if args != "" {
			criteria.Keywords = strings.Fields(args)
		}
		return r.invoke(cmd, models.CapJobSearch, session, models.Payload{Text: args, Criteria: &criteria}), nil

	case "/prep":
		if args == "" {
			return Decision{Action: ActionHelp, Command: cmd}, nil
		}
		criteria := r.DefaultCriteria()
		return r.invoke(cmd, models.CapInterviewPrep, session, models.Payload{
			Posting:  &models.Posting{Company: args, Title: criteria.TargetRole},
			Language: session.Language,
		}), nil

	case "/negotiate":
		amount, err := parseAmount(args)
		if err != nil {
			return Decision{Action: ActionHelp, Command: cmd}, nil
		}
		criteria := r.DefaultCriteria()
		return r.invoke(cmd, models.CapNegotiate, session, models.Payload{
			Offer: &models.Offer{Amount: amount, Currency: criteria.Currency, Round: 1},
		}), nil

	case "/autopilot":
		criteria := r.DefaultCriteria()
		if args != "" {
			criteria.TargetRole = args
			criteria.Keywords = strings.Fields(strings.ToLower(args))
		}
		return Decision{Action: ActionStartCase, Command: cmd, Criteria: &criteria}, nil

	case "/retry", "/status":
		if session.LastCaseID == "" {
			return Decision{Action: ActionNoCase, Command: cmd}, nil
		}
		kind := models.CaseEventStatus
		if cmd == "/retry" {
			kind = models.CaseEventRetry
		}
		return r.caseEvent(event, session, session.LastCaseID, kind, cmd), nil

	case "/export":
		if session.LastCaseID == "" {
			return Decision{Action: ActionNoCase, Command: cmd}, nil
		}
		return Decision{Action: ActionExport, Command: cmd, CaseID: session.LastCaseID}, nil
	}

	return Decision{Command: cmd}, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
}

func (r *Router) invoke(cmd string, kind models.CapabilityKind, session *models.Session, payload models.Payload) Decision {
	return Decision{Action: ActionInvoke, Command: cmd, Invocation: r.invocation(kind, session, payload)}
}

func (r *Router) invocation(kind models.CapabilityKind, session *models.Session, payload models.Payload) *models.Invocation {
	return &models.Invocation{Kind: kind, Payload: payload, UserID: session.UserID}
}

func (r *Router) caseEvent(event *models.InboundEvent, session *models.Session, caseID string, kind models.CaseEventKind, cmd string) Decision {
	return Decision{
		Action:  ActionCaseEvent,
		Command: cmd,
		CaseID:  caseID,
		CaseEvent: &models.CaseEvent{
			CaseID:  caseID,
			UserID:  session.UserID,
			ChatID:  session.ChatID,
			Kind:    kind,
			Text:    strings.TrimSpace(event.Text),
			EventID: event.ID,
		},
	}
}

func (r *Router) isJobIntent(text string) bool {
	lower := strings.ToLower(text)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, phrase := range r.intents {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// splitCommand splits "/cmd@botname args" into ("/cmd", "args")
func splitCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	cmd, args, _ := strings.Cut(text, " ")
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

func imagePayload(event *models.InboundEvent, question string) models.Payload {
	return models.Payload{
		Text:     question,
		Image:    event.Image,
		MimeType: event.MimeType,
		FileName: event.FileName,
	}
}

// parseAmount accepts "250000", "250 000", "250k" and "250к"
func parseAmount(s string) (int, error) {
	s = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	s = strings.ReplaceAll(s, "_", "")
	multiplier := 1
	for _, suffix := range []string{"k", "к"} {
		if strings.HasSuffix(s, suffix) {
			multiplier = 1000
			s = strings.TrimSuffix(s, suffix)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return n * multiplier, nil
}
