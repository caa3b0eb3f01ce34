package run

type EventKind string

const (
	EventStatus  EventKind = "status"  // row status change
	EventPhase   EventKind = "phase"   // before/after a network call
	EventLog     EventKind = "log"     // free-text line
	EventOutcome EventKind = "outcome" // one per record
	EventSummary EventKind = "summary" // terminal
)

// RowStatus is what a live consumer highlights for a row.
type RowStatus string

const (
	RowProcessing RowStatus = "processing"
	RowSuccess    RowStatus = "success"
	RowFailed     RowStatus = "failed"
)

type Phase string

const (
	PhaseResolving Phase = "resolving"
	PhaseResolved  Phase = "resolved"
	PhaseSending   Phase = "sending"
	PhaseSent      Phase = "sent"
)

// Event is one item of a run's progress stream. Index is -1 for run-level events.
type Event struct {
	Kind    EventKind `json:"kind"`
	Index   int       `json:"index"`
	Status  RowStatus `json:"status,omitempty"`
	Phase   Phase     `json:"phase,omitempty"`
	Message string    `json:"message,omitempty"`
	Outcome *Outcome  `json:"outcome,omitempty"`
	Summary *Summary  `json:"summary,omitempty"`
}
