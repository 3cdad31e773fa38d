package models

import (
	"strings"
	"time"
)

// Stage is a phase of an automation case's lifecycle
type Stage string

const (
	StageDiscover  Stage = "discover"
	StageApply     Stage = "apply"
	StageInterview Stage = "interview"
	StageNegotiate Stage = "negotiate"
	StageClose     Stage = "close"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// StageOrder is the fixed forward order of a case
var StageOrder = []Stage{StageDiscover, StageApply, StageInterview, StageNegotiate, StageClose, StageDone}

// Next returns the stage following s in StageOrder, or "" if s is terminal or unknown
func (s Stage) Next() Stage {
	for i, st := range StageOrder {
		if st == s && i+1 < len(StageOrder) {
			return StageOrder[i+1]
		}
	}
	return ""
}

// Index returns the position of s in StageOrder, or -1
func (s Stage) Index() int {
	for i, st := range StageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// IsTerminal returns true for Done and Failed
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// Title returns the stage name as shown to users
func (s Stage) Title() string {
	if s == "" {
		return "None"
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// Criteria describes what the job search looks for
type Criteria struct {
	TargetRole      string   `bson:"targetRole" json:"target_role"`
	Keywords        []string `bson:"keywords,omitempty" json:"keywords,omitempty"`
	Locations       []string `bson:"locations,omitempty" json:"locations,omitempty"`
	TargetCompanies []string `bson:"targetCompanies,omitempty" json:"target_companies,omitempty"`
	MinSalary       int      `bson:"minSalary" json:"min_salary"`
	TargetSalary    int      `bson:"targetSalary" json:"target_salary"`
	Currency        string   `bson:"currency" json:"currency"`
	MaxApplyPerDay  int      `bson:"maxApplyPerDay" json:"max_apply_per_day"`
	MaxPostings     int      `bson:"maxPostings" json:"max_postings"`
	MinMatchScore   float64  `bson:"minMatchScore,omitempty" json:"min_match_score,omitempty"`
}

// Profile is the applicant data submitted with applications
type Profile struct {
	Name        string   `bson:"name" json:"name"`
	Email       string   `bson:"email" json:"email"`
	Phone       string   `bson:"phone,omitempty" json:"phone,omitempty"`
	ResumeURL   string   `bson:"resumeUrl,omitempty" json:"resume_url,omitempty"`
	CoverLetter string   `bson:"coverLetter,omitempty" json:"cover_letter,omitempty"`
	Skills      []string `bson:"skills,omitempty" json:"skills,omitempty"`
	Level       string   `bson:"level,omitempty" json:"level,omitempty"` // junior, middle, senior or lead
}

// Posting is one discovered vacancy
type Posting struct {
	ID          string    `bson:"id" json:"id"`
	Title       string    `bson:"title" json:"title"`
	Company     string    `bson:"company" json:"company"`
	Location    string    `bson:"location,omitempty" json:"location,omitempty"`
	SalaryFrom  int       `bson:"salaryFrom,omitempty" json:"salary_from,omitempty"`
	SalaryTo    int       `bson:"salaryTo,omitempty" json:"salary_to,omitempty"`
	Currency    string    `bson:"currency,omitempty" json:"currency,omitempty"`
	URL         string    `bson:"url,omitempty" json:"url,omitempty"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Source      string    `bson:"source" json:"source"`
	PublishedAt time.Time `bson:"publishedAt,omitempty" json:"published_at,omitempty"`
	MatchScore  float64   `bson:"matchScore" json:"match_score"`
}

// DedupKey identifies postings that are the same vacancy across sources
func (p Posting) DedupKey() string {
	return strings.ToLower(strings.TrimSpace(p.Title)) + "|" + strings.ToLower(strings.TrimSpace(p.Company))
}

// Application is the result of one apply attempt
type Application struct {
	PostingID   string    `bson:"postingId" json:"posting_id"`
	Company     string    `bson:"company" json:"company"`
	Title       string    `bson:"title" json:"title"`
	Success     bool      `bson:"success" json:"success"`
	Method      string    `bson:"method,omitempty" json:"method,omitempty"`
	Message     string    `bson:"message,omitempty" json:"message,omitempty"`
	MatchScore  float64   `bson:"matchScore" json:"match_score"`
	SubmittedAt time.Time `bson:"submittedAt" json:"submitted_at"`
}

// InterviewBrief is the preparation material for one employer
type InterviewBrief struct {
	Company    string    `bson:"company" json:"company"`
	Position   string    `bson:"position" json:"position"`
	Brief      string    `bson:"brief" json:"brief"`
	PreparedAt time.Time `bson:"preparedAt" json:"prepared_at"`
}

// Offer is a salary proposal sent to a counter-party
type Offer struct {
	Amount   int    `bson:"amount" json:"amount"`
	Currency string `bson:"currency" json:"currency"`
	Round    int    `bson:"round" json:"round"`
	Company  string `bson:"company,omitempty" json:"company,omitempty"`
	Message  string `bson:"message,omitempty" json:"message,omitempty"`
}

// CounterOffer is the counter-party's answer to an Offer
type CounterOffer struct {
	Amount   int    `bson:"amount" json:"amount"`
	Accepted bool   `bson:"accepted" json:"accepted"`
	Final    bool   `bson:"final" json:"final"`
	Message  string `bson:"message,omitempty" json:"message,omitempty"`
}

// StrategyRun is one concurrently evaluated negotiation candidate
type StrategyRun struct {
	StrategyID  string    `bson:"strategyId" json:"strategy_id"`
	Personality string    `bson:"personality" json:"personality"`
	Risk        string    `bson:"risk" json:"risk"`
	FinalOffer  int       `bson:"finalOffer" json:"final_offer"`
	Rounds      int       `bson:"rounds" json:"rounds"`
	Score       float64   `bson:"score" json:"score"`
	Order       int       `bson:"order" json:"order"`
	Succeeded   bool      `bson:"succeeded" json:"succeeded"`
	Error       string    `bson:"error,omitempty" json:"error,omitempty"`
	CompletedAt time.Time `bson:"completedAt" json:"completed_at"`
}

// NegotiationOutcome is the committed result of a Negotiate stage
type NegotiationOutcome struct {
	Company        string        `bson:"company,omitempty" json:"company,omitempty"`
	Target         int           `bson:"target" json:"target"`
	Currency       string        `bson:"currency" json:"currency"`
	Winner         StrategyRun   `bson:"winner" json:"winner"`
	Runs           []StrategyRun `bson:"runs" json:"runs"`
	Confidence     float64       `bson:"confidence" json:"confidence"`
	Recommendation string        `bson:"recommendation" json:"recommendation"`
	DecidedAt      time.Time     `bson:"decidedAt" json:"decided_at"`
}

// CloseSummary records the finalized contract
type CloseSummary struct {
	Company  string    `bson:"company" json:"company"`
	Position string    `bson:"position" json:"position"`
	Salary   int       `bson:"salary" json:"salary"`
	Currency string    `bson:"currency" json:"currency"`
	Letter   string    `bson:"letter" json:"letter"`
	ClosedAt time.Time `bson:"closedAt" json:"closed_at"`
}

// Artifacts accumulate across stages and survive Failed/retry excursions
type Artifacts struct {
	Postings     []Posting           `bson:"postings,omitempty" json:"postings,omitempty"`
	Applications []Application       `bson:"applications,omitempty" json:"applications,omitempty"`
	Briefs       []InterviewBrief    `bson:"briefs,omitempty" json:"briefs,omitempty"`
	Negotiation  *NegotiationOutcome `bson:"negotiation,omitempty" json:"negotiation,omitempty"`
	Close        *CloseSummary       `bson:"close,omitempty" json:"close,omitempty"`
	Notes        []string            `bson:"notes,omitempty" json:"notes,omitempty"`
}

// SuccessfulApplications returns the applications that went through
func (a *Artifacts) SuccessfulApplications() []Application {
	var out []Application
	for _, app := range a.Applications {
		if app.Success {
			out = append(out, app)
		}
	}
	return out
}

// Applied reports whether an application was already attempted successfully for the posting
func (a *Artifacts) Applied(postingID string) bool {
	for _, app := range a.Applications {
		if app.PostingID == postingID && app.Success {
			return true
		}
	}
	return false
}

// StageVisit is one entry in a case's stage history
type StageVisit struct {
	Stage Stage     `bson:"stage" json:"stage"`
	At    time.Time `bson:"at" json:"at"`
	Note  string    `bson:"note,omitempty" json:"note,omitempty"`
}

// Case is one user's end-to-end job-search workflow instance.
// It is mutated only by the auto-pilot state machine.
type Case struct {
	ID            string        `bson:"_id" json:"id"`
	UserID        string        `bson:"userId" json:"user_id"`
	ChatID        string        `bson:"chatId" json:"chat_id"`
	Stage         Stage         `bson:"stage" json:"stage"`
	FailedStage   Stage         `bson:"failedStage,omitempty" json:"failed_stage,omitempty"`
	Attempts      map[Stage]int `bson:"attempts" json:"attempts"`
	Criteria      Criteria      `bson:"criteria" json:"criteria"`
	Profile       Profile       `bson:"profile" json:"profile"`
	Artifacts     Artifacts     `bson:"artifacts" json:"artifacts"`
	Cancelled     bool          `bson:"cancelled" json:"cancelled"`
	FailureReason string        `bson:"failureReason,omitempty" json:"failure_reason,omitempty"`
	History       []StageVisit  `bson:"history" json:"history"`

	// Daily application cap bookkeeping
	AppliedDay   string `bson:"appliedDay,omitempty" json:"applied_day,omitempty"`
	AppliedToday int    `bson:"appliedToday" json:"applied_today"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// NewCase creates a case in the initial Discover stage
func NewCase(id, userID, chatID string, criteria Criteria, profile Profile, now time.Time) *Case {
	return &Case{
		ID:        id,
		UserID:    userID,
		ChatID:    chatID,
		Stage:     StageDiscover,
		Attempts:  make(map[Stage]int),
		Criteria:  criteria,
		Profile:   profile,
		History:   []StageVisit{{Stage: StageDiscover, At: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Active reports whether the case has not reached a terminal stage
func (c *Case) Active() bool {
	return !c.Stage.IsTerminal()
}

// Clone returns a deep copy of the case
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Attempts = make(map[Stage]int, len(c.Attempts))
	for k, v := range c.Attempts {
		cp.Attempts[k] = v
	}
	cp.Criteria.Keywords = append([]string(nil), c.Criteria.Keywords...)
	cp.Criteria.Locations = append([]string(nil), c.Criteria.Locations...)
	cp.Criteria.TargetCompanies = append([]string(nil), c.Criteria.TargetCompanies...)
	cp.Profile.Skills = append([]string(nil), c.Profile.Skills...)
	cp.Artifacts.Postings = append([]Posting(nil), c.Artifacts.Postings...)
	cp.Artifacts.Applications = append([]Application(nil), c.Artifacts.Applications...)
	cp.Artifacts.Briefs = append([]InterviewBrief(nil), c.Artifacts.Briefs...)
	cp.Artifacts.Notes = append([]string(nil), c.Artifacts.Notes...)
	if c.Artifacts.Negotiation != nil {
		n := *c.Artifacts.Negotiation
		n.Runs = append([]StrategyRun(nil), c.Artifacts.Negotiation.Runs...)
		cp.Artifacts.Negotiation = &n
	}
	if c.Artifacts.Close != nil {
		cl := *c.Artifacts.Close
		cp.Artifacts.Close = &cl
	}
	cp.History = append([]StageVisit(nil), c.History...)
	return &cp
}
