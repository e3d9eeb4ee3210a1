// Package transit defines the domain types shared by departure fetchers and the reminder loop.
package transit

import (
	"fmt"
	"time"
)

// Route is the single monitored connection between two stops.
// It is a value type; copies handed to other components cannot alter the original.
type Route struct {
	// Origin is the upstream stop identifier of the departure stop (e.g. "900000012102").
	Origin string

	// Destination is the upstream stop identifier of the arrival stop.
	Destination string
}

// String returns a short human-readable form of the route.
func (r Route) String() string {
	return fmt.Sprintf("%s -> %s", r.Origin, r.Destination)
}

// JourneysResponse represents the body returned by the /journeys endpoint.
type JourneysResponse struct {
	Journeys []Journey `json:"journeys"`
}

// Journey is a planned trip composed of one or more legs.
type Journey struct {
	Legs []Leg `json:"legs"`
}

// Leg is one uninterrupted segment of a journey.
// Departure is kept as the raw upstream string so that a missing value and a
// malformed value can be reported separately.
type Leg struct {
	Departure *string `json:"departure"`
	Arrival   *string `json:"arrival,omitempty"`
	Walking   bool    `json:"walking,omitempty"`
}

// AbsenceReason tags why a lookup produced no departure.
type AbsenceReason string

const (
	ReasonRequestFailed    AbsenceReason = "request_failed"
	ReasonBadStatus        AbsenceReason = "bad_status"
	ReasonDecodeFailed     AbsenceReason = "decode_failed"
	ReasonNoJourneys       AbsenceReason = "no_journeys"
	ReasonNoLegs           AbsenceReason = "no_legs"
	ReasonNoDeparture      AbsenceReason = "no_departure"
	ReasonInvalidDeparture AbsenceReason = "invalid_departure"
)

// Transient reports whether the reason stems from a failed exchange with the
// provider rather than from a well-formed response carrying no usable data.
func (r AbsenceReason) Transient() bool {
	switch r {
	case ReasonNoJourneys, ReasonNoLegs:
		return false
	default:
		return true
	}
}

// Absence describes a lookup that produced no departure.
type Absence struct {
	Reason AbsenceReason

	// Message is the human-readable diagnostic that was logged for this absence.
	Message string
}

// Lookup is the result of asking a fetcher for the next departure.
// Exactly one of Departure (non-zero) or Absence (non-nil) is meaningful.
type Lookup struct {
	Departure time.Time
	Absence   *Absence
}

// Found returns true if the lookup carries a departure.
func (l Lookup) Found() bool {
	return l.Absence == nil
}

// FoundAt creates a successful lookup.
func FoundAt(departure time.Time) Lookup {
	return Lookup{Departure: departure}
}

// Absent creates a lookup that carries no departure.
func Absent(reason AbsenceReason, message string) Lookup {
	return Lookup{Absence: &Absence{Reason: reason, Message: message}}
}
