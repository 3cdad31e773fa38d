package models

import "time"

// CapabilityKind is the closed set of external operations the assistant can invoke
type CapabilityKind string

const (
	CapTextGenerate     CapabilityKind = "text-generate"
	CapSpeechSynthesize CapabilityKind = "speech-synthesize"
	CapSpeechRecognize  CapabilityKind = "speech-recognize"
	CapOCR              CapabilityKind = "ocr"
	CapJobSearch        CapabilityKind = "job-search"
	CapApply            CapabilityKind = "apply"
	CapInterviewPrep    CapabilityKind = "interview-prep"
	CapNegotiate        CapabilityKind = "negotiate"
	CapFinalize         CapabilityKind = "finalize"
)

// AllCapabilityKinds lists every capability kind in a stable order
var AllCapabilityKinds = []CapabilityKind{
	CapTextGenerate,
	CapSpeechSynthesize,
	CapSpeechRecognize,
	CapOCR,
	CapJobSearch,
	CapApply,
	CapInterviewPrep,
	CapNegotiate,
	CapFinalize,
}

// Valid reports whether k is a member of the closed kind set
func (k CapabilityKind) Valid() bool {
	for _, known := range AllCapabilityKinds {
		if k == known {
			return true
		}
	}
	return false
}

// LatencyClass is the declared cost class of a capability
type LatencyClass string

const (
	ClassFast LatencyClass = "fast"
	ClassSlow LatencyClass = "slow"
)

// Payload is the input to a capability handler. Each kind reads the fields it needs.
type Payload struct {
	Text     string            `json:"text,omitempty"`
	Context  map[string]string `json:"context,omitempty"`
	Language string            `json:"language,omitempty"`

	Audio       []byte `json:"-"`
	AudioFormat string `json:"audio_format,omitempty"`
	Image       []byte `json:"-"`
	MimeType    string `json:"mime_type,omitempty"`
	FileName    string `json:"file_name,omitempty"`

	Criteria *Criteria           `json:"criteria,omitempty"`
	Posting  *Posting            `json:"posting,omitempty"`
	Profile  *Profile            `json:"profile,omitempty"`
	Offer    *Offer              `json:"offer,omitempty"`
	Outcome  *NegotiationOutcome `json:"outcome,omitempty"`
}

// Result is the output of a capability handler
type Result struct {
	Text        string          `json:"text,omitempty"`
	Audio       []byte          `json:"-"`
	AudioFormat string          `json:"audio_format,omitempty"`
	Postings    []Posting       `json:"postings,omitempty"`
	Application *Application    `json:"application,omitempty"`
	Brief       *InterviewBrief `json:"brief,omitempty"`
	Counter     *CounterOffer   `json:"counter,omitempty"`
}

// Invocation is one request to an external handler
type Invocation struct {
	Kind    CapabilityKind `json:"kind"`
	Payload Payload        `json:"payload"`
	Timeout time.Duration  `json:"timeout"`
	Attempt int            `json:"attempt"`
	UserID  string         `json:"user_id,omitempty"`
	CaseID  string         `json:"case_id,omitempty"`
}
