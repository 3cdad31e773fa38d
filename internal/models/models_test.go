package models

import (
	"strconv"
	"testing"
	"time"
)

func TestStageOrder(t *testing.T) {
	want := map[Stage]Stage{
		StageDiscover:  StageApply,
		StageApply:     StageInterview,
		StageInterview: StageNegotiate,
		StageNegotiate: StageClose,
		StageClose:     StageDone,
		StageDone:      "",
		StageFailed:    "",
	}
	for s, next := range want {
		if got := s.Next(); got != next {
			t.Errorf("%s.Next() = %q, want %q", s, got, next)
		}
	}

	if StageDiscover.Index() != 0 || StageDone.Index() != 5 || StageFailed.Index() != -1 {
		t.Error("unexpected stage indexes")
	}
	if !StageDone.IsTerminal() || !StageFailed.IsTerminal() || StageClose.IsTerminal() {
		t.Error("only Done and Failed are terminal")
	}
	if StageNegotiate.Title() != "Negotiate" || Stage("").Title() != "None" {
		t.Error("unexpected stage titles")
	}
}

func TestNewCase(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewCase("c1", "u1", "chat1", Criteria{TargetRole: "Go"}, Profile{Name: "A"}, now)

	if c.Stage != StageDiscover || !c.Active() {
		t.Fatalf("new case should be active in discover, got %s", c.Stage)
	}
	if len(c.History) != 1 || c.History[0].Stage != StageDiscover {
		t.Errorf("expected a single discover history entry, got %+v", c.History)
	}
	if c.Attempts == nil {
		t.Error("attempts map must be initialized")
	}
}

func TestCaseClone_IsDeep(t *testing.T) {
	c := NewCase("c1", "u1", "chat1", Criteria{Keywords: []string{"go"}}, Profile{}, time.Now())
	c.Attempts[StageDiscover] = 1
	c.Artifacts.Postings = []Posting{{ID: "p1"}}

	cp := c.Clone()
	cp.Attempts[StageDiscover] = 3
	cp.Criteria.Keywords[0] = "rust"
	cp.Artifacts.Postings[0].ID = "p2"

	if c.Attempts[StageDiscover] != 1 || c.Criteria.Keywords[0] != "go" || c.Artifacts.Postings[0].ID != "p1" {
		t.Error("mutating the clone changed the original")
	}
	if (*Case)(nil).Clone() != nil {
		t.Error("nil clone should be nil")
	}
}

func TestArtifacts_Applications(t *testing.T) {
	a := &Artifacts{Applications: []Application{
		{PostingID: "p1", Success: true},
		{PostingID: "p2", Success: false},
	}}
	if n := len(a.SuccessfulApplications()); n != 1 {
		t.Errorf("expected 1 successful application, got %d", n)
	}
	if !a.Applied("p1") || a.Applied("p2") || a.Applied("p3") {
		t.Error("Applied should only report successful applications")
	}
}

func TestPostingDedupKey(t *testing.T) {
	a := Posting{Title: " Go Developer ", Company: "ACME"}
	b := Posting{Title: "go developer", Company: "acme "}
	if a.DedupKey() != b.DedupKey() {
		t.Errorf("expected equal keys, got %q and %q", a.DedupKey(), b.DedupKey())
	}
}

func TestParseResponseMode(t *testing.T) {
	for _, in := range []string{"text", " Voice ", "AUTO"} {
		if _, ok := ParseResponseMode(in); !ok {
			t.Errorf("%q should parse", in)
		}
	}
	if _, ok := ParseResponseMode("loud"); ok {
		t.Error("unknown modes must be rejected")
	}
}

func TestSessionDedup(t *testing.T) {
	s := NewSession("u1", "chat1", time.Now())
	if s.Mode != ModeAuto {
		t.Errorf("default mode should be auto, got %s", s.Mode)
	}

	if s.SeenEvent("100") {
		t.Fatal("fresh session has seen nothing")
	}
	s.MarkEvent("101")
	if !s.SeenEvent("101") {
		t.Error("a processed id is a duplicate")
	}
	if s.SeenEvent("100") || s.SeenEvent("102") {
		t.Error("distinct ids are new whatever their numeric order")
	}
	s.MarkEvent("101")
	if len(s.RecentEventIDs) != 1 {
		t.Errorf("re-marking an id must not grow the ring, got %d", len(s.RecentEventIDs))
	}

	s.MarkEvent("http-abc")
	if !s.SeenEvent("http-abc") || s.SeenEvent("http-def") {
		t.Error("non-numeric ids are tracked by the recent ring")
	}
	if s.SeenEvent("") {
		t.Error("empty ids are never duplicates")
	}
}

func TestSessionDedup_RingIsBounded(t *testing.T) {
	s := NewSession("u1", "chat1", time.Now())
	for i := 0; i < maxRecentEventIDs+10; i++ {
		s.MarkEvent("evt-" + strconv.Itoa(i))
	}
	if len(s.RecentEventIDs) != maxRecentEventIDs {
		t.Fatalf("ring should hold %d ids, got %d", maxRecentEventIDs, len(s.RecentEventIDs))
	}
	if s.SeenEvent("evt-0") {
		t.Error("oldest ids fall out of the ring")
	}
	if !s.SeenEvent("evt-" + strconv.Itoa(maxRecentEventIDs+9)) {
		t.Error("newest id must be remembered")
	}
}

func TestCapabilityKindValid(t *testing.T) {
	for _, k := range AllCapabilityKinds {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if CapabilityKind("teleport").Valid() {
		t.Error("unknown kinds are invalid")
	}
}

func TestInboundEvent(t *testing.T) {
	if !(&InboundEvent{Kind: EventText, Text: " /status"}).IsCommand() {
		t.Error("slash text is a command")
	}
	if (&InboundEvent{Kind: EventText, Text: "hello"}).IsCommand() {
		t.Error("plain text is not a command")
	}
	if !(&InboundEvent{Image: []byte{1}}).HasImage() {
		t.Error("expected image")
	}
}
