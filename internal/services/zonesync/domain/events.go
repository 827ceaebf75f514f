package domain

import "time"

// EventKind enumerates the progress event kinds emitted during a sync run
type EventKind string

// Event kinds. A stream ends with exactly one of done or error
const (
	EventPhase      EventKind = "phase"
	EventProgress   EventKind = "progress"
	EventDiscovered EventKind = "discovered"
	EventWarning    EventKind = "warning"
	EventError      EventKind = "error"
	EventDone       EventKind = "done"
)

// Phase names announced via EventPhase
const (
	PhaseCheck     = "check"
	PhaseZone      = "zone"
	PhaseDiscover  = "discover"
	PhaseSubdomain = "subdomain"
)

// Day result statuses carried on EventProgress
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusMarker  = "marker"
)

// Event is one self-contained progress record. Serialized as a single JSON
// object per line on the wire; unused fields are omitted
type Event struct {
	Kind EventKind `json:"kind"`

	// phase
	Phase string `json:"phase,omitempty"`

	// progress
	Target  string `json:"target,omitempty"`
	Date    string `json:"date,omitempty"` // YYYY-MM-DD
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
	Status  string `json:"status,omitempty"`

	// discovered
	Subdomains []string `json:"subdomains,omitempty"`

	// warning / error
	Message string `json:"message,omitempty"`

	// done
	SubdomainCount int `json:"subdomainCount,omitempty"`
}

// Phased builds a phase event
func Phased(name string) Event { return Event{Kind: EventPhase, Phase: name} }

// Progressed builds a progress event for one resolved date
func Progressed(target string, day time.Time, current, total int, status string) Event {
	return Event{
		Kind:    EventProgress,
		Target:  target,
		Date:    day.UTC().Format("2006-01-02"),
		Current: current,
		Total:   total,
		Status:  status,
	}
}

// Discovered builds a discovery event
func Discovered(subdomains []string) Event {
	return Event{Kind: EventDiscovered, Subdomains: subdomains}
}

// Warned builds a warning event
func Warned(msg string) Event { return Event{Kind: EventWarning, Message: msg} }

// Failed builds a terminal error event
func Failed(msg string) Event { return Event{Kind: EventError, Message: msg} }

// Done builds the terminal success event
func Done(subdomains int) Event { return Event{Kind: EventDone, SubdomainCount: subdomains} }
